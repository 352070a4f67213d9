// Package sse is the store-and-forward relay: authenticated peers hold an
// event stream open and other peers POST envelopes to them. Nothing is
// buffered for peers that are not connected.
package sse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/relay"
)

const (
	// MinEnvelope is ts(6) || sig(65) || target(20).
	MinEnvelope   = identity.TimestampProofSize + identity.AddressSize
	MaxEnvelope   = 2048
	streamBuffer  = 64
	componentName = "sse"
	// HashEvent is the event name of ledger hash updates.
	HashEvent = "hash"
)

var (
	ErrBadLength      = errors.New("sse: envelope length out of range")
	ErrNotRegistered  = errors.New("sse: sender has no open stream")
	ErrTargetNotFound = errors.New("sse: target has no open stream")
	ErrTargetBusy     = errors.New("sse: target stream is backed up")
)

type Event struct {
	Name string
	Data string
}

// Subscription is one open event stream.
type Subscription struct {
	id        identity.Address
	timestamp int64
	signature []byte
	events    chan Event
	done      chan struct{}
	once      sync.Once
}

func (s *Subscription) Identity() identity.Address {
	return s.id
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the stream is evicted or closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) offer(evt Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

type Config struct {
	Verifier *identity.Verifier
	Trust    *identity.TrustSet
	// RequireRegistered limits streams to identities in Trust.
	RequireRegistered bool
	Logger            *slog.Logger
	Metrics           relay.Metrics
}

type Relay struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[identity.Address]*Subscription
}

func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{cfg: cfg, logger: logger, streams: make(map[identity.Address]*Subscription)}
}

// Subscribe opens a stream for the signer of ts || sig. The proof must be
// fresh. An existing stream for the same identity is evicted.
func (r *Relay) Subscribe(ts int64, sig []byte) (*Subscription, error) {
	enc := identity.EncodeTimestamp(ts)
	proof := append(enc[:], sig...)
	if len(proof) != identity.TimestampProofSize {
		return nil, identity.ErrMalformedProof
	}
	id, err := r.cfg.Verifier.RecoverFresh(proof)
	if err != nil {
		return nil, err
	}
	if r.cfg.RequireRegistered && !r.cfg.Trust.Contains(id) {
		return nil, ErrNotRegistered
	}
	sub := &Subscription{
		id:        id,
		timestamp: ts,
		signature: append([]byte(nil), sig...),
		events:    make(chan Event, streamBuffer),
		done:      make(chan struct{}),
	}
	r.mu.Lock()
	prev := r.streams[id]
	r.streams[id] = sub
	n := len(r.streams)
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
		r.logInfo("subscribe", "replacing previous stream", "identity", id.Hex())
	}
	r.setReady(n)
	r.logInfo("subscribe", "stream opened", "identity", id.Hex())
	return sub, nil
}

// Unsubscribe removes sub if it is still the stream for its identity.
func (r *Relay) Unsubscribe(sub *Subscription) {
	sub.stop()
	r.mu.Lock()
	removed := false
	if cur, ok := r.streams[sub.id]; ok && cur == sub {
		delete(r.streams, sub.id)
		removed = true
	}
	n := len(r.streams)
	r.mu.Unlock()
	if removed {
		r.setReady(n)
		r.logDebug("unsubscribe", "stream closed", "identity", sub.id.Hex())
	}
}

// Deliver relays ts || sig || target || payload from its signer to target
// as an event named after mt with data base64(sender || payload).
func (r *Relay) Deliver(mt relay.MessageType, body []byte) error {
	if len(body) < MinEnvelope || len(body) > MaxEnvelope {
		return ErrBadLength
	}
	sender, _, err := r.cfg.Verifier.Recover(body[:identity.TimestampProofSize])
	if err != nil {
		return ErrNotRegistered
	}
	target, _ := identity.AddressFromBytes(body[identity.TimestampProofSize:MinEnvelope])

	r.mu.RLock()
	_, registered := r.streams[sender]
	to, found := r.streams[target]
	r.mu.RUnlock()
	if !registered {
		return ErrNotRegistered
	}
	if !found {
		r.observeForward(false)
		return ErrTargetNotFound
	}
	data := make([]byte, 0, identity.AddressSize+len(body)-MinEnvelope)
	data = append(data, sender[:]...)
	data = append(data, body[MinEnvelope:]...)
	if !to.offer(Event{Name: mt.String(), Data: base64.StdEncoding.EncodeToString(data)}) {
		r.observeForward(false)
		return ErrTargetBusy
	}
	r.observeForward(true)
	return nil
}

// Broadcast offers evt to every open stream; full streams miss it.
func (r *Relay) Broadcast(evt Event) {
	for _, sub := range r.snapshot() {
		sub.offer(evt)
	}
}

// AvailablePeers returns identity || ts(6) || sig(65) for every open
// stream, ordered by identity.
func (r *Relay) AvailablePeers() []byte {
	subs := r.snapshot()
	sort.Slice(subs, func(i, j int) bool {
		return bytes.Compare(subs[i].id[:], subs[j].id[:]) < 0
	})
	var buf bytes.Buffer
	for _, sub := range subs {
		ts := identity.EncodeTimestamp(sub.timestamp)
		buf.Write(sub.id[:])
		buf.Write(ts[:])
		buf.Write(sub.signature)
	}
	return buf.Bytes()
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

func (r *Relay) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.streams))
	for _, sub := range r.streams {
		out = append(out, sub)
	}
	return out
}

func (r *Relay) observeForward(delivered bool) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveForward(componentName, delivered)
	}
}

func (r *Relay) setReady(n int) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetReady(componentName, n)
	}
}

func (r *Relay) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	r.logger.Info(message, append(base, attrs...)...)
}

func (r *Relay) logDebug(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	r.logger.Debug(message, append(base, attrs...)...)
}
