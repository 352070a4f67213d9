package secp256k1

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	HashSize      = 32
	SignatureSize = 65
	CompactSize   = 64
	// recoveryOffset is added to the recovery id in the trailing v byte.
	recoveryOffset = 27
)

var (
	ErrInvalidHash      = errors.New("secp256k1: hash must be 32 bytes")
	ErrInvalidSignature = errors.New("secp256k1: invalid signature")
	ErrInvalidRecovery  = errors.New("secp256k1: invalid recovery id")
	ErrExtraEntropy     = errors.New("secp256k1: extra entropy must be 32 bytes")
)

// Signature is (r, s) plus the recovery id selecting R among the four
// candidates that share r.
type Signature struct {
	R          uint256.Int
	S          uint256.Int
	RecoveryID byte
}

// Bytes encodes r || s || v with v = 27 + recovery id.
func (sig *Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out, sig.Compact())
	out[64] = recoveryOffset + sig.RecoveryID
	return out
}

// Compact encodes r || s.
func (sig *Signature) Compact() []byte {
	r := sig.R.Bytes32()
	s := sig.S.Bytes32()
	out := make([]byte, CompactSize)
	copy(out[:32], r[:])
	copy(out[32:], s[:])
	return out
}

// ParseSignature decodes the 65-byte form. v may be the raw recovery id
// (0, 1) or the offset form (27, 28).
func ParseSignature(raw []byte) (*Signature, error) {
	if len(raw) != SignatureSize {
		return nil, ErrInvalidSignature
	}
	sig, err := ParseCompact(raw[:CompactSize])
	if err != nil {
		return nil, err
	}
	v := raw[64]
	switch v {
	case 0, 1:
		sig.RecoveryID = v
	case recoveryOffset, recoveryOffset + 1:
		sig.RecoveryID = v - recoveryOffset
	default:
		return nil, ErrInvalidRecovery
	}
	return sig, nil
}

// ParseCompact decodes r || s and checks both are in [1, n-1].
func ParseCompact(raw []byte) (*Signature, error) {
	if len(raw) != CompactSize {
		return nil, ErrInvalidSignature
	}
	sig := &Signature{}
	sig.R.SetBytes(raw[:32])
	sig.S.SetBytes(raw[32:])
	if !isScalar(&sig.R) || !isScalar(&sig.S) {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// Sign produces a low-S signature over a 32-byte hash with an RFC 6979
// nonce. extra, when present, must be 32 bytes and is mixed into the seed.
func Sign(hash []byte, key *PrivateKey, extra []byte) (*Signature, error) {
	if len(hash) != HashSize {
		return nil, ErrInvalidHash
	}
	if len(extra) != 0 && len(extra) != 32 {
		return nil, ErrExtraEntropy
	}
	if key == nil || !isScalar(&key.d) {
		return nil, ErrInvalidPrivateKey
	}
	m := bits2int(hash)

	var sig *Signature
	err := generateNonce(&key.d, hash, extra, func(k *uint256.Int) bool {
		q := scalarBaseMult(k)
		qx, qy := q.affine()
		r := modReduce(&qx, groupN)
		if r.IsZero() {
			return false
		}
		kInv, err := scalarInv(k)
		if err != nil {
			return false
		}
		dr := modMul(&key.d, &r, groupN)
		sum := modAdd(&m, &dr, groupN)
		s := modMul(&kInv, &sum, groupN)
		if s.IsZero() {
			return false
		}
		var rec byte
		if !qx.Eq(&r) {
			rec = 2
		}
		rec |= byte(qy[0] & 1)
		if s.Gt(halfN) {
			s = modNeg(&s, groupN)
			rec ^= 1
		}
		sig = &Signature{R: r, S: s, RecoveryID: rec}
		return true
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// Verify reports whether sig is a valid low-S signature of hash by pub.
// Malformed input yields false rather than an error.
func Verify(sig *Signature, hash []byte, pub *PublicKey) bool {
	if sig == nil || pub == nil || len(hash) != HashSize {
		return false
	}
	if !isScalar(&sig.R) || !isScalar(&sig.S) || sig.S.Gt(halfN) {
		return false
	}
	if pub.p.validate() != nil {
		return false
	}
	h := bits2int(hash)
	sInv, err := scalarInv(&sig.S)
	if err != nil {
		return false
	}
	u1 := modMul(&h, &sInv, groupN)
	u2 := modMul(&sig.R, &sInv, groupN)
	a := scalarBaseMult(&u1)
	b := pub.p.scalarMult(&u2)
	sum := a.add(&b)
	if sum.isIdentity() {
		return false
	}
	x, _ := sum.affine()
	v := modReduce(&x, groupN)
	return v.Eq(&sig.R)
}

// RecoverPublicKey returns the key that produced sig over hash.
func RecoverPublicKey(sig *Signature, hash []byte) (*PublicKey, error) {
	if sig == nil || len(hash) != HashSize {
		return nil, ErrInvalidSignature
	}
	if sig.RecoveryID > 3 {
		return nil, ErrInvalidRecovery
	}
	if !isScalar(&sig.R) || !isScalar(&sig.S) {
		return nil, ErrInvalidSignature
	}

	rx := sig.R
	if sig.RecoveryID >= 2 {
		// r + n must still be a field element.
		var limit uint256.Int
		limit.Sub(fieldP, groupN)
		if !sig.R.Lt(&limit) {
			return nil, ErrInvalidRecovery
		}
		rx.Add(&sig.R, groupN)
	}
	enc := make([]byte, 33)
	enc[0] = 0x02 | (sig.RecoveryID & 1)
	xb := rx.Bytes32()
	copy(enc[1:], xb[:])
	R, err := decodePoint(enc)
	if err != nil {
		return nil, err
	}

	rInv, err := scalarInv(&sig.R)
	if err != nil {
		return nil, err
	}
	h := bits2int(hash)
	hr := modMul(&h, &rInv, groupN)
	u1 := modNeg(&hr, groupN)
	u2 := modMul(&sig.S, &rInv, groupN)

	a := scalarBaseMult(&u1)
	b := R.scalarMult(&u2)
	q := a.add(&b)
	if q.isIdentity() {
		return nil, ErrInvalidSignature
	}
	x, y := q.affine()
	pub := &PublicKey{p: affinePoint(&x, &y)}
	if err := pub.p.validate(); err != nil {
		return nil, err
	}
	return pub, nil
}
