package relay

import (
	"sync"

	"rzr-relay/go-backend/internal/identity"
)

// Registry maps each identity to its one Ready session.
type Registry struct {
	mu   sync.RWMutex
	byID map[identity.Address]*Session
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[identity.Address]*Session)}
}

// Register stores s under its identity and returns the session it replaced,
// if any.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byID[s.identity]
	r.byID[s.identity] = s
	if prev == s {
		return nil
	}
	return prev
}

// Unregister removes s only if it is still the registered session for its
// identity.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[s.identity]; ok && cur == s {
		delete(r.byID, s.identity)
		return true
	}
	return false
}

func (r *Registry) Lookup(id identity.Address) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
