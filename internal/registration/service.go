// Package registration submits identity registrations to the ledger on
// behalf of accounts and waits for them to be mined.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/platform/ratelimiter"
)

const (
	// RequestSize is account(20) || identity(20) || signature(65).
	RequestSize = 2*identity.AddressSize + identity.SignatureSize

	DefaultReceiptAttempts = 45
	DefaultReceiptInterval = 3 * time.Second
	componentName          = "registration"
)

var (
	ErrBadRequest  = errors.New("registration: malformed request")
	ErrRateLimited = errors.New("registration: hourly limit reached")
	ErrNotMined    = errors.New("registration: transaction not mined in time")
)

// Request is a parsed registration. The account signs account || identity
// as a plain personal message, which is what the contract checks.
type Request struct {
	Account  identity.Address
	Identity identity.Address
	V        byte
	R        [32]byte
	S        [32]byte
}

// Chain submits registrations and reports receipts.
type Chain interface {
	SubmitRegistration(ctx context.Context, req Request) (txHash [32]byte, err error)
	ReceiptMined(ctx context.Context, txHash [32]byte) (bool, error)
}

type Options struct {
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger
	// Sleep is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	chain    Chain
	window   *ratelimiter.SlidingWindow
	attempts int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

func NewService(chain Chain, window *ratelimiter.SlidingWindow, opts Options) *Service {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultReceiptAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultReceiptInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chain:    chain,
		window:   window,
		attempts: opts.Attempts,
		interval: opts.Interval,
		sleep:    opts.Sleep,
		logger:   logger,
	}
}

// Eligible reports whether a registration would currently be accepted,
// without consuming the window.
func (s *Service) Eligible() bool {
	return s.window.Eligible(false)
}

// ParseRequest checks the length and the account's signature.
func ParseRequest(body []byte) (Request, error) {
	var req Request
	if len(body) != RequestSize {
		return req, ErrBadRequest
	}
	account, _ := identity.AddressFromBytes(body[:identity.AddressSize])
	id, _ := identity.AddressFromBytes(body[identity.AddressSize : 2*identity.AddressSize])
	rawSig := body[2*identity.AddressSize:]

	signer, err := identity.RecoverPersonalAddress(body[:2*identity.AddressSize], rawSig)
	if err != nil || signer != account {
		return req, ErrBadRequest
	}
	sig, err := secp256k1.ParseSignature(rawSig)
	if err != nil {
		return req, ErrBadRequest
	}
	req.Account = account
	req.Identity = id
	req.V = 27 + sig.RecoveryID
	req.R = sig.R.Bytes32()
	req.S = sig.S.Bytes32()
	return req, nil
}

// Register validates body, consumes one slot of the hourly window, submits
// the transaction and polls for its receipt.
func (s *Service) Register(ctx context.Context, body []byte) error {
	req, err := ParseRequest(body)
	if err != nil {
		return err
	}
	if !s.window.Eligible(true) {
		return ErrRateLimited
	}
	tx, err := s.chain.SubmitRegistration(ctx, req)
	if err != nil {
		s.logWarn("submit", "registration transaction failed", "account", req.Account.Hex(), "error", err.Error())
		return fmt.Errorf("registration: submit: %w", err)
	}
	s.logInfo("submit", "registration submitted", "account", req.Account.Hex(), "identity", req.Identity.Hex())

	for n := 0; n < s.attempts; n++ {
		if n > 0 {
			if err := s.sleep(ctx, s.interval); err != nil {
				return err
			}
		}
		mined, err := s.chain.ReceiptMined(ctx, tx)
		if err != nil {
			s.logWarn("receipt", "receipt lookup failed", "attempt", n+1, "error", err.Error())
			continue
		}
		if mined {
			s.logInfo("receipt", "registration mined", "identity", req.Identity.Hex(), "attempt", n+1)
			return nil
		}
	}
	return ErrNotMined
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	s.logger.Info(message, append(base, attrs...)...)
}

func (s *Service) logWarn(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	s.logger.Warn(message, append(base, attrs...)...)
}
