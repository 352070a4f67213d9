package secp256k1

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/holiman/uint256"
)

// maxNonceCandidates bounds the drbg loop; reaching it means the generator
// is broken, not that the key is unlucky.
const maxNonceCandidates = 1000

var ErrNonceExhausted = errors.New("secp256k1: no valid nonce after 1000 candidates")

// hmacDRBG is the HMAC-SHA256 generator of RFC 6979 section 3.2.
type hmacDRBG struct {
	k [32]byte
	v [32]byte
}

func newHMACDRBG(seed []byte) *hmacDRBG {
	d := &hmacDRBG{}
	for i := range d.v {
		d.v[i] = 0x01
	}
	d.reseed(seed)
	return d
}

func (d *hmacDRBG) mac(parts ...[]byte) [32]byte {
	h := hmac.New(sha256.New, d.k[:])
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (d *hmacDRBG) reseed(seed []byte) {
	d.k = d.mac(d.v[:], []byte{0x00}, seed)
	d.v = d.mac(d.v[:])
	if len(seed) == 0 {
		return
	}
	d.k = d.mac(d.v[:], []byte{0x01}, seed)
	d.v = d.mac(d.v[:])
}

func (d *hmacDRBG) next() [32]byte {
	d.v = d.mac(d.v[:])
	return d.v
}

// bits2int reduces a 32-byte hash into the scalar range.
func bits2int(hash []byte) uint256.Int {
	var h uint256.Int
	h.SetBytes(hash)
	return modReduce(&h, groupN)
}

// generateNonce yields candidates until accept returns true. The seed is
// i2o(d) || i2o(h mod n) || extra.
func generateNonce(d *uint256.Int, hash []byte, extra []byte, accept func(k *uint256.Int) bool) error {
	db := d.Bytes32()
	h := bits2int(hash)
	hb := h.Bytes32()
	seed := make([]byte, 0, 96)
	seed = append(seed, db[:]...)
	seed = append(seed, hb[:]...)
	seed = append(seed, extra...)

	g := newHMACDRBG(seed)
	for i := 0; i < maxNonceCandidates; i++ {
		t := g.next()
		var k uint256.Int
		k.SetBytes(t[:])
		if isScalar(&k) && accept(&k) {
			return nil
		}
		g.reseed(nil)
	}
	return ErrNonceExhausted
}
