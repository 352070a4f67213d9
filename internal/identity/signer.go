package identity

import (
	"errors"
	"fmt"

	"rzr-relay/go-backend/internal/crypto/secp256k1"
)

var ErrSignatureMismatch = errors.New("identity: signature does not match address")

// Signer produces 65-byte r || s || v signatures over domain-separated
// messages.
type Signer interface {
	Address() Address
	SignMessage(m []byte) ([]byte, error)
}

// KeySigner signs in the calling goroutine. The relay uses the crypto worker
// instead; KeySigner backs the worker and tooling.
type KeySigner struct {
	key  *secp256k1.PrivateKey
	addr Address
}

func NewKeySigner(key *secp256k1.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: FromPublicKey(key.PublicKey())}
}

func (s *KeySigner) Address() Address {
	return s.addr
}

func (s *KeySigner) SignMessage(m []byte) ([]byte, error) {
	h := HashMessage(m)
	return s.signHash(h[:])
}

// SignPersonalMessage signs without the domain tag.
func (s *KeySigner) SignPersonalMessage(m []byte) ([]byte, error) {
	h := HashPersonalMessage(m)
	return s.signHash(h[:])
}

func (s *KeySigner) signHash(h []byte) ([]byte, error) {
	sig, err := secp256k1.Sign(h, s.key, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: sign: %w", err)
	}
	return sig.Bytes(), nil
}

// SignHash signs a prepared digest and returns r || s || v with v in {0, 1}.
func (s *KeySigner) SignHash(h []byte) ([]byte, error) {
	sig, err := s.signHash(h)
	if err != nil {
		return nil, err
	}
	sig[64] -= 27
	return sig, nil
}

// RecoverAddress returns the address that signed the domain-separated m.
func RecoverAddress(m, sig []byte) (Address, error) {
	h := HashMessage(m)
	return recoverHash(h[:], sig)
}

// RecoverPersonalAddress is RecoverAddress without the domain tag.
func RecoverPersonalAddress(m, sig []byte) (Address, error) {
	h := HashPersonalMessage(m)
	return recoverHash(h[:], sig)
}

func recoverHash(h, sig []byte) (Address, error) {
	parsed, err := secp256k1.ParseSignature(sig)
	if err != nil {
		return Address{}, err
	}
	pub, err := secp256k1.RecoverPublicKey(parsed, h)
	if err != nil {
		return Address{}, err
	}
	return FromPublicKey(pub), nil
}

// VerifyAddress checks that sig over the domain-separated m recovers to want.
func VerifyAddress(m, sig []byte, want Address) error {
	got, err := RecoverAddress(m, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if got != want {
		return ErrSignatureMismatch
	}
	return nil
}
