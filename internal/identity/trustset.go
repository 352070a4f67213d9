package identity

import "sync"

// TrustSet holds identities registered on the ledger. The ledger verifier
// is its only writer.
type TrustSet struct {
	mu      sync.RWMutex
	members map[Address]struct{}
}

func NewTrustSet() *TrustSet {
	return &TrustSet{members: make(map[Address]struct{})}
}

func (t *TrustSet) Add(a Address) {
	t.mu.Lock()
	t.members[a] = struct{}{}
	t.mu.Unlock()
}

func (t *TrustSet) Contains(a Address) bool {
	if t == nil {
		return true
	}
	t.mu.RLock()
	_, ok := t.members[a]
	t.mu.RUnlock()
	return ok
}

func (t *TrustSet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}
