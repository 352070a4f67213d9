// Package cryptoworker runs all asymmetric key operations in one goroutine
// that owns the node's private key and RSA keypair. Callers talk to it with
// opcode frames: 1B opcode || 4B request id || payload, answered with
// 4B request id || result.
package cryptoworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rzr-relay/go-backend/internal/crypto/hybrid"
	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
)

type Opcode byte

const (
	OpInitialize Opcode = iota
	OpSign
	OpSignAndEncrypt
	OpDecrypt
	OpExportPublicKey
	OpGenerateAndWrapKey
	OpUnwrapAndSaveKey
)

const (
	MaxRequestSize = 1 << 20
	headerSize     = 5
	componentName  = "cryptoworker"
)

var (
	ErrRequestTooLarge = errors.New("cryptoworker: request exceeds 1 MiB")
	ErrMalformed       = errors.New("cryptoworker: malformed request")
	ErrUnknownOpcode   = errors.New("cryptoworker: unknown opcode")
	ErrNotInitialized  = errors.New("cryptoworker: not initialized")
	ErrStopped         = errors.New("cryptoworker: stopped")
)

func (o Opcode) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpSign:
		return "sign"
	case OpSignAndEncrypt:
		return "sign_and_encrypt"
	case OpDecrypt:
		return "decrypt"
	case OpExportPublicKey:
		return "export_public_key"
	case OpGenerateAndWrapKey:
		return "generate_and_wrap_key"
	case OpUnwrapAndSaveKey:
		return "unwrap_and_save_key"
	default:
		return fmt.Sprintf("opcode(%d)", byte(o))
	}
}

type Options struct {
	RSABits int
	Queue   int
	Logger  *slog.Logger
	Engine  hybrid.Options
	// Observe, when set, is called with the opcode name after each request.
	Observe func(op string, ok bool)
}

type job struct {
	run   func() ([]byte, error)
	reply chan result
}

type result struct {
	out []byte
	err error
}

// Worker serializes key operations. State is only touched by the Run
// goroutine.
type Worker struct {
	opts    Options
	logger  *slog.Logger
	jobs    chan job
	stopped chan struct{}

	signer *identity.KeySigner
	engine *hybrid.Engine
}

func New(opts Options) *Worker {
	if opts.RSABits <= 0 {
		opts.RSABits = hybrid.RSABits
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		opts:    opts,
		logger:  logger,
		jobs:    make(chan job, opts.Queue),
		stopped: make(chan struct{}),
	}
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			out, err := j.run()
			j.reply <- result{out: out, err: err}
		}
	}
}

func (w *Worker) submit(ctx context.Context, run func() ([]byte, error)) ([]byte, error) {
	j := job{run: run, reply: make(chan result, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stopped:
		return nil, ErrStopped
	}
	select {
	case r := <-j.reply:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stopped:
		return nil, ErrStopped
	}
}

// Do handles one request frame and returns the response frame.
func (w *Worker) Do(ctx context.Context, frame []byte) ([]byte, error) {
	if len(frame) > MaxRequestSize {
		return nil, ErrRequestTooLarge
	}
	if len(frame) < headerSize {
		return nil, ErrMalformed
	}
	op := Opcode(frame[0])
	if op > OpUnwrapAndSaveKey {
		return nil, ErrUnknownOpcode
	}
	reqID := append([]byte(nil), frame[1:headerSize]...)
	payload := append([]byte(nil), frame[headerSize:]...)

	out, err := w.submit(ctx, func() ([]byte, error) {
		return w.process(op, payload)
	})
	if w.opts.Observe != nil {
		w.opts.Observe(op.String(), err == nil)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStopped) {
			return nil, err
		}
		w.logWarn(op.String(), "crypto request failed", "error", err.Error())
		// A failed operation still answers, with an empty result.
		out = nil
	}
	return append(reqID, out...), nil
}

// Initialize loads the node key and generates the RSA keypair.
func (w *Worker) Initialize(ctx context.Context, privateKey []byte) error {
	_, err := w.submit(ctx, func() ([]byte, error) {
		return w.process(OpInitialize, privateKey)
	})
	return err
}

// Address returns the node address once initialized.
func (w *Worker) Address(ctx context.Context) (identity.Address, error) {
	out, err := w.submit(ctx, func() ([]byte, error) {
		if w.signer == nil {
			return nil, ErrNotInitialized
		}
		return w.signer.Address().Bytes(), nil
	})
	if err != nil {
		return identity.Address{}, err
	}
	return identity.AddressFromBytes(out)
}

// SignMessage returns a bare domain-separated signature over m, without a
// timestamp prefix.
func (w *Worker) SignMessage(ctx context.Context, m []byte) ([]byte, error) {
	msg := append([]byte(nil), m...)
	return w.submit(ctx, func() ([]byte, error) {
		if w.signer == nil {
			return nil, ErrNotInitialized
		}
		return w.signer.SignMessage(msg)
	})
}

// SignHash signs a prepared 32-byte digest and returns r || s || v with
// v in {0, 1}, the form transaction signers expect.
func (w *Worker) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	h := append([]byte(nil), hash...)
	return w.submit(ctx, func() ([]byte, error) {
		if w.signer == nil {
			return nil, ErrNotInitialized
		}
		return w.signer.SignHash(h)
	})
}

func (w *Worker) process(op Opcode, payload []byte) ([]byte, error) {
	if op == OpInitialize {
		return nil, w.initialize(payload)
	}
	if w.engine == nil {
		return nil, ErrNotInitialized
	}
	switch op {
	case OpSign:
		return w.engine.SignData(payload)
	case OpSignAndEncrypt:
		id, rest, err := splitIdentity(payload)
		if err != nil {
			return nil, err
		}
		return w.engine.EncryptFor(id, rest)
	case OpDecrypt:
		id, rest, err := splitIdentity(payload)
		if err != nil {
			return nil, err
		}
		if len(rest) < hybrid.IVSize {
			return nil, ErrMalformed
		}
		return w.engine.DecryptFrom(id, rest[:hybrid.IVSize], rest[hybrid.IVSize:]), nil
	case OpExportPublicKey:
		id, _, err := splitIdentity(payload)
		if err != nil {
			return nil, err
		}
		return w.engine.ExportPublicKey(id)
	case OpGenerateAndWrapKey:
		id, rest, err := splitIdentity(payload)
		if err != nil {
			return nil, err
		}
		return w.engine.WrapKey(id, rest)
	case OpUnwrapAndSaveKey:
		id, rest, err := splitIdentity(payload)
		if err != nil {
			return nil, err
		}
		if w.engine.UnwrapKey(id, rest) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, ErrUnknownOpcode
	}
}

func (w *Worker) initialize(raw []byte) error {
	key, err := secp256k1.NewPrivateKey(raw)
	if err != nil {
		return err
	}
	rsaKey, err := hybrid.GenerateRSAKey(w.opts.RSABits, w.opts.Engine.Rand)
	if err != nil {
		return fmt.Errorf("generate rsa key: %w", err)
	}
	w.signer = identity.NewKeySigner(key)
	w.engine = hybrid.NewEngine(w.signer, rsaKey, w.opts.Engine)
	w.logInfo("initialize", "crypto worker ready", "node", w.signer.Address().Hex())
	return nil
}

func splitIdentity(payload []byte) (identity.Address, []byte, error) {
	if len(payload) < identity.AddressSize {
		return identity.Address{}, nil, ErrMalformed
	}
	id, _ := identity.AddressFromBytes(payload[:identity.AddressSize])
	return id, payload[identity.AddressSize:], nil
}

func (w *Worker) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	w.logger.Info(message, append(base, attrs...)...)
}

func (w *Worker) logWarn(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	w.logger.Warn(message, append(base, attrs...)...)
}
