package relay

import (
	"github.com/google/uuid"

	"rzr-relay/go-backend/internal/identity"
)

// Session is one connection's view of the state machine. Only the
// connection's own goroutine calls HandleFrame and Close for it; other
// sessions only touch its transport.
type Session struct {
	id        string
	transport Transport

	state    State
	identity identity.Address
	// claimed is the identity announced by IDENTIFY; it becomes identity
	// only after the challenge succeeds.
	claimed identity.Address
	nonce   [identity.NonceSize]byte
}

func newSession(t Transport, initial State) *Session {
	return &Session{id: uuid.NewString(), transport: t, state: initial}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return s.state
}

// Identity is valid once the session reached Ready.
func (s *Session) Identity() (identity.Address, bool) {
	return s.identity, s.state == StateReady
}

func (s *Session) send(frame []byte) {
	_ = s.transport.Send(frame)
}
