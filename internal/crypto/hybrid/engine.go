// Package hybrid holds the node's RSA-OAEP keypair and the per-peer
// AES-256-GCM keys exchanged under it.
package hybrid

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"rzr-relay/go-backend/internal/identity"
)

const (
	RSABits = 4096
	KeySize = 32
	IVSize  = 12
	// SignedPrefixSize is timestamp(6) || signature(65).
	SignedPrefixSize = identity.TimestampSize + identity.SignatureSize
)

var (
	ErrInvalidPeerKey = errors.New("invalid peer public key")
	ErrNoRSAKey       = errors.New("rsa keypair not initialized")
)

// Signer signs domain-separated messages with the node's secp256k1 key.
type Signer interface {
	SignMessage(m []byte) ([]byte, error)
}

type Options struct {
	Rand io.Reader
	Now  func() time.Time
}

type Engine struct {
	signer Signer
	rsaKey *rsa.PrivateKey
	rand   io.Reader
	now    func() time.Time

	mu   sync.RWMutex
	keys map[identity.Address][]byte
}

// GenerateRSAKey creates the long-lived OAEP keypair.
func GenerateRSAKey(bits int, r io.Reader) (*rsa.PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	return rsa.GenerateKey(r, bits)
}

func NewEngine(signer Signer, rsaKey *rsa.PrivateKey, opts Options) *Engine {
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		signer: signer,
		rsaKey: rsaKey,
		rand:   opts.Rand,
		now:    opts.Now,
		keys:   make(map[identity.Address][]byte),
	}
}

// SignData returns ts || sign(ts || data).
func (e *Engine) SignData(data []byte) ([]byte, error) {
	ts := identity.EncodeTimestamp(e.now().Unix())
	msg := make([]byte, 0, len(ts)+len(data))
	msg = append(msg, ts[:]...)
	msg = append(msg, data...)
	sig, err := e.signer.SignMessage(msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, SignedPrefixSize)
	out = append(out, ts[:]...)
	return append(out, sig...), nil
}

// PublicKeySPKI returns the DER SubjectPublicKeyInfo of the RSA key.
func (e *Engine) PublicKeySPKI() ([]byte, error) {
	if e.rsaKey == nil {
		return nil, ErrNoRSAKey
	}
	return x509.MarshalPKIXPublicKey(&e.rsaKey.PublicKey)
}

// ExportPublicKey returns ts || sign(ts || id || spki) || spki.
func (e *Engine) ExportPublicKey(id identity.Address) ([]byte, error) {
	spki, err := e.PublicKeySPKI()
	if err != nil {
		return nil, err
	}
	signed, err := e.SignData(concat(id[:], spki))
	if err != nil {
		return nil, err
	}
	return concat(signed, spki), nil
}

// WrapKey creates a fresh AES key for id, stores it, and returns
// ts || sign(ts || id || wrapped) || wrapped, wrapped under the peer's
// RSA-OAEP/SHA-256 public key.
func (e *Engine) WrapKey(id identity.Address, peerSPKI []byte) ([]byte, error) {
	parsed, err := x509.ParsePKIXPublicKey(peerSPKI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	peer, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPeerKey
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(e.rand, key); err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), e.rand, peer, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	signed, err := e.SignData(concat(id[:], wrapped))
	if err != nil {
		return nil, err
	}
	e.store(id, key)
	return concat(signed, wrapped), nil
}

// UnwrapKey decrypts a wrapped key sent by id and stores it. It reports
// false when the key cannot be unwrapped.
func (e *Engine) UnwrapKey(id identity.Address, wrapped []byte) bool {
	if e.rsaKey == nil {
		return false
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, e.rsaKey, wrapped, nil)
	if err != nil || len(key) != KeySize {
		return false
	}
	e.store(id, key)
	return true
}

// EncryptFor returns ts || sign(ts || plaintext) || iv || ciphertext, or nil
// when no key has been exchanged with id yet.
func (e *Engine) EncryptFor(id identity.Address, plaintext []byte) ([]byte, error) {
	aead := e.aead(id)
	if aead == nil {
		return nil, nil
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, iv, plaintext, nil)
	signed, err := e.SignData(plaintext)
	if err != nil {
		return nil, err
	}
	return concat(signed, iv, ct), nil
}

// DecryptFrom returns nil for a missing key, a bad IV, or a failed tag.
func (e *Engine) DecryptFrom(id identity.Address, iv, ciphertext []byte) []byte {
	aead := e.aead(id)
	if aead == nil || len(iv) != IVSize {
		return nil
	}
	pt, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt
}

func (e *Engine) HasKey(id identity.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.keys[id]
	return ok
}

func (e *Engine) store(id identity.Address, key []byte) {
	e.mu.Lock()
	e.keys[id] = key
	e.mu.Unlock()
}

func (e *Engine) aead(id identity.Address) cipher.AEAD {
	e.mu.RLock()
	key, ok := e.keys[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return aead
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
