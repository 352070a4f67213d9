package relay

import (
	"io"
	"log/slog"
	"strings"

	"rzr-relay/go-backend/internal/identity"
)

const componentName = "relay"

type Config struct {
	Variant  Variant
	Registry *Registry
	// Signer signs client nonces during signaling authentication.
	Signer identity.Signer
	// Verifier checks tunnel timestamp proofs addressed to this relay.
	Verifier *identity.Verifier
	// Trust, when RequireRegistered is set, must contain every identity
	// admitted to Ready.
	Trust             *identity.TrustSet
	RequireRegistered bool
	Rand              io.Reader
	Logger            *slog.Logger
	Metrics           Metrics
}

// Relay drives the state machine for all sessions of one variant.
type Relay struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Relay {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{cfg: cfg, logger: logger}
}

func (r *Relay) Registry() *Registry {
	return r.cfg.Registry
}

func (r *Relay) Variant() Variant {
	return r.cfg.Variant
}

// MaxFrame is the transport read limit for this variant.
func (r *Relay) MaxFrame() int64 {
	if r.cfg.Variant == VariantTunnel {
		return MaxTunnelFrame
	}
	return MaxSignalFrame
}

// Open creates the session for a new connection. Signaling sessions wait
// for IDENTIFY; tunnel sessions expect a timestamp proof straight away.
func (r *Relay) Open(t Transport) *Session {
	initial := StateIdle
	if r.cfg.Variant == VariantTunnel {
		initial = StateAuthenticating
	}
	s := newSession(t, initial)
	r.logDebug(s, "open", "session opened")
	return s
}

// HandleFrame applies one inbound frame. Frames that do not fit the current
// state are dropped without a reply.
func (r *Relay) HandleFrame(s *Session, frame []byte) {
	switch s.state {
	case StateIdle:
		if r.cfg.Variant == VariantSignal {
			r.identify(s, frame)
		}
	case StateAuthenticating:
		if r.cfg.Variant == VariantTunnel {
			r.authenticateTunnel(s, frame)
		} else {
			r.authenticateSignal(s, frame)
		}
	case StateReady:
		if r.cfg.Variant == VariantTunnel {
			r.forwardRaw(s, frame)
		} else {
			r.forwardTyped(s, frame)
		}
	}
}

// Close releases the session's Ready slot. A tunnel session that was Ready
// announces its departure to the remaining peers.
func (r *Relay) Close(s *Session) {
	wasReady := s.state == StateReady
	s.state = StateIdle
	if !wasReady {
		return
	}
	r.cfg.Registry.Unregister(s)
	r.setReady()
	r.logDebug(s, "close", "session closed", "identity", s.identity.Hex())
	if r.cfg.Variant != VariantTunnel {
		return
	}
	notice := make([]byte, 0, 1+identity.AddressSize)
	notice = append(notice, departureTag)
	notice = append(notice, s.identity[:]...)
	for _, peer := range r.cfg.Registry.Snapshot() {
		if peer == s || peer.identity == s.identity {
			continue
		}
		peer.send(notice)
	}
}

func (r *Relay) identify(s *Session, frame []byte) {
	if len(frame) != IdentifySize {
		return
	}
	claimed, _ := identity.AddressFromBytes(frame[:identity.AddressSize])
	nonce, err := identity.NewNonce(r.cfg.Rand)
	if err != nil {
		r.logWarn(s, "identify", "nonce generation failed", "error", err.Error())
		return
	}
	sig, err := r.cfg.Signer.SignMessage(frame[identity.AddressSize:])
	if err != nil {
		r.logWarn(s, "identify", "signing client nonce failed", "error", err.Error())
		return
	}
	s.claimed = claimed
	s.nonce = nonce
	s.state = StateAuthenticating

	reply := make([]byte, 0, identity.NonceSize+len(sig))
	reply = append(reply, nonce[:]...)
	reply = append(reply, sig...)
	s.send(reply)
}

func (r *Relay) authenticateSignal(s *Session, frame []byte) {
	if len(frame) != identity.SignatureSize {
		return
	}
	got, err := identity.RecoverAddress(s.nonce[:], frame)
	if err != nil || got != s.claimed {
		r.rejectAuth(s, "signature does not match claimed identity")
		return
	}
	r.admit(s, got)
}

func (r *Relay) authenticateTunnel(s *Session, frame []byte) {
	if len(frame) != identity.TimestampProofSize {
		return
	}
	got, err := r.cfg.Verifier.RecoverFresh(frame)
	if err != nil {
		r.rejectAuth(s, err.Error())
		return
	}
	r.admit(s, got)
}

func (r *Relay) admit(s *Session, id identity.Address) {
	if r.cfg.RequireRegistered && !r.cfg.Trust.Contains(id) {
		r.rejectAuth(s, "identity not registered on ledger")
		return
	}
	s.identity = id
	s.state = StateReady
	if prev := r.cfg.Registry.Register(s); prev != nil {
		r.logInfo(s, "evict", "replacing previous session", "identity", id.Hex(), "previous_session", prev.id)
		_ = prev.transport.Close()
	}
	r.observeAuth(true)
	r.setReady()
	s.send([]byte{ackSuccess})
	r.logInfo(s, "authenticate", "session ready", "identity", id.Hex())
}

func (r *Relay) rejectAuth(s *Session, reason string) {
	r.observeAuth(false)
	r.logDebug(s, "authenticate", "challenge failed", "reason", reason)
	s.send([]byte{ackFailure})
}

// forwardTyped handles type || target || payload.
func (r *Relay) forwardTyped(from *Session, frame []byte) {
	if len(frame) < 1+identity.AddressSize {
		return
	}
	mt := MessageType(frame[0])
	if !mt.Valid() {
		return
	}
	target, _ := identity.AddressFromBytes(frame[1 : 1+identity.AddressSize])
	payload := frame[1+identity.AddressSize:]

	to, ok := r.cfg.Registry.Lookup(target)
	if !ok {
		reply := make([]byte, 0, 1+identity.AddressSize)
		reply = append(reply, byte(MessageClientUnavailable))
		reply = append(reply, target[:]...)
		from.send(reply)
		r.observeForward(false)
		return
	}
	out := make([]byte, 0, 1+identity.AddressSize+len(payload))
	out = append(out, byte(mt))
	out = append(out, from.identity[:]...)
	out = append(out, payload...)
	to.send(out)
	r.observeForward(true)
}

// forwardRaw handles target || payload and delivers payload unchanged.
func (r *Relay) forwardRaw(from *Session, frame []byte) {
	if len(frame) < identity.AddressSize {
		return
	}
	target, _ := identity.AddressFromBytes(frame[:identity.AddressSize])
	to, ok := r.cfg.Registry.Lookup(target)
	if !ok {
		reply := make([]byte, 0, 1+identity.AddressSize)
		reply = append(reply, departureTag)
		reply = append(reply, target[:]...)
		from.send(reply)
		r.observeForward(false)
		return
	}
	to.send(append([]byte(nil), frame[identity.AddressSize:]...))
	r.observeForward(true)
}

func (r *Relay) observeAuth(ok bool) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveAuth(r.cfg.Variant.String(), ok)
	}
}

func (r *Relay) observeForward(delivered bool) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveForward(r.cfg.Variant.String(), delivered)
	}
}

func (r *Relay) setReady() {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetReady(r.cfg.Variant.String(), r.cfg.Registry.Len())
	}
}

func (r *Relay) logInfo(s *Session, operation, message string, attrs ...any) {
	r.logger.Info(message, append(r.logBase(s, operation), attrs...)...)
}

func (r *Relay) logWarn(s *Session, operation, message string, attrs ...any) {
	r.logger.Warn(message, append(r.logBase(s, operation), attrs...)...)
}

func (r *Relay) logDebug(s *Session, operation, message string, attrs ...any) {
	r.logger.Debug(message, append(r.logBase(s, operation), attrs...)...)
}

func (r *Relay) logBase(s *Session, operation string) []any {
	return []any{
		"component", componentName,
		"variant", r.cfg.Variant.String(),
		"operation", strings.TrimSpace(operation),
		"session_id", s.id,
	}
}
