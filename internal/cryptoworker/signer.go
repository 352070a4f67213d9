package cryptoworker

import (
	"context"
	"time"

	"rzr-relay/go-backend/internal/identity"
)

// NodeSigner adapts the worker to identity.Signer for the relay engines.
// Every call is bounded by timeout.
type NodeSigner struct {
	w       *Worker
	addr    identity.Address
	timeout time.Duration
}

// NewNodeSigner resolves the node address from an initialized worker.
func NewNodeSigner(ctx context.Context, w *Worker, timeout time.Duration) (*NodeSigner, error) {
	addr, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NodeSigner{w: w, addr: addr, timeout: timeout}, nil
}

func (s *NodeSigner) Address() identity.Address {
	return s.addr
}

func (s *NodeSigner) SignMessage(m []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.w.SignMessage(ctx, m)
}

// SignHash signs a raw digest; used for chain transactions.
func (s *NodeSigner) SignHash(hash []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.w.SignHash(ctx, hash)
}
