package secp256k1

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	PrivateKeySize          = 32
	PublicKeySizeCompressed = 33
	PublicKeySize           = 65
)

var ErrInvalidPrivateKey = errors.New("secp256k1: private key out of range")

// PrivateKey is a scalar 0 < d < n.
type PrivateKey struct {
	d uint256.Int
}

// PublicKey is an affine curve point other than the identity.
type PublicKey struct {
	p point
}

// NewPrivateKey parses a 32-byte big-endian scalar.
func NewPrivateKey(raw []byte) (*PrivateKey, error) {
	if len(raw) != PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	k := &PrivateKey{}
	k.d.SetBytes(raw)
	if !isScalar(&k.d) {
		return nil, ErrInvalidPrivateKey
	}
	return k, nil
}

// GenerateKey draws 40 random bytes and reduces them with HashToPrivateKey.
func GenerateKey(r io.Reader) (*PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, PrivateKeySize+8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return HashToPrivateKey(buf)
}

// HashToPrivateKey maps 40..1024 bytes of uniform input to (v mod (n-1)) + 1.
// The extra 8 bytes over the scalar size make the modulo bias negligible.
func HashToPrivateKey(seed []byte) (*PrivateKey, error) {
	if len(seed) < PrivateKeySize+8 || len(seed) > 1024 {
		return nil, errors.New("secp256k1: seed must be 40..1024 bytes")
	}
	nMinus1 := new(big.Int).Sub(groupN.ToBig(), big.NewInt(1))
	v := new(big.Int).SetBytes(seed)
	v.Mod(v, nMinus1)
	v.Add(v, big.NewInt(1))
	k := &PrivateKey{}
	k.d.SetFromBig(v)
	return k, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (k *PrivateKey) Bytes() []byte {
	b := k.d.Bytes32()
	return b[:]
}

func (k *PrivateKey) PublicKey() *PublicKey {
	q := scalarBaseMult(&k.d)
	x, y := q.affine()
	return &PublicKey{p: affinePoint(&x, &y)}
}

// Zero clears the scalar.
func (k *PrivateKey) Zero() {
	k.d.Clear()
}

// ParsePublicKey accepts compressed (33 bytes) and uncompressed (65 bytes)
// SEC1 encodings and rejects points that are not on the curve.
func ParsePublicKey(raw []byte) (*PublicKey, error) {
	p, err := decodePoint(raw)
	if err != nil {
		return nil, err
	}
	return &PublicKey{p: p}, nil
}

// SerializeUncompressed returns 0x04 || X || Y.
func (pk *PublicKey) SerializeUncompressed() []byte {
	return encodePoint(&pk.p, false)
}

// SerializeCompressed returns 0x02/0x03 || X.
func (pk *PublicKey) SerializeCompressed() []byte {
	return encodePoint(&pk.p, true)
}

func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.p.equal(&other.p)
}
