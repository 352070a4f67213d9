// Package relay implements the per-connection authentication state machine
// and the persistent socket relay in its two variants: typed WebRTC
// signaling and raw byte tunneling.
package relay

import (
	"fmt"

	"rzr-relay/go-backend/internal/identity"
)

type State uint8

const (
	StateIdle State = iota
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type MessageType byte

const (
	MessagePing MessageType = iota
	MessageClientUnavailable
	MessageOffer
	MessageAnswer
	MessageCandidate
)

func (m MessageType) Valid() bool {
	return m <= MessageCandidate
}

// String is also the SSE event name.
func (m MessageType) String() string {
	switch m {
	case MessagePing:
		return "ping"
	case MessageClientUnavailable:
		return "unavailable"
	case MessageOffer:
		return "offer"
	case MessageAnswer:
		return "answer"
	case MessageCandidate:
		return "candidate"
	default:
		return fmt.Sprintf("message(%d)", byte(m))
	}
}

type Variant uint8

const (
	VariantSignal Variant = iota
	VariantTunnel
)

func (v Variant) String() string {
	if v == VariantTunnel {
		return "tunnel"
	}
	return "signal"
}

const (
	// IdentifySize is claimed identity(20) || client nonce(32).
	IdentifySize = identity.AddressSize + identity.ClientNonceSize
	// MaxSignalFrame and MaxTunnelFrame are the transport read limits.
	MaxSignalFrame = 2048
	MaxTunnelFrame = 65536

	ackFailure byte = 0x00
	ackSuccess byte = 0x01
	// departureTag prefixes the tunnel's departure notice and its
	// unavailable reply.
	departureTag byte = 0x00
)

// Transport is the outbound half of a connection. Send must not block on a
// slow peer.
type Transport interface {
	Send(frame []byte) error
	Close() error
}

// Metrics receives relay events. A nil Metrics is ignored.
type Metrics interface {
	ObserveAuth(variant string, ok bool)
	ObserveForward(variant string, delivered bool)
	SetReady(variant string, n int)
}
