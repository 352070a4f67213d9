// Package keccak implements the original Keccak-256 sponge used for Ethereum
// style addresses and message hashes. It differs from FIPS-202 SHA3-256 only
// in the domain padding byte (0x01 instead of 0x06).
package keccak

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

const (
	// Size is the digest length in bytes.
	Size = 32
	// rate is the sponge rate for a 256-bit capacity/2 output: 1600/8 - 2*32.
	rate      = 136
	rounds    = 24
	padDomain = 0x01
	padFinal  = 0x80
)

var roundConstants = [rounds]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808a, 0x8000000080008000,
	0x000000000000808b, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008a, 0x0000000000000088, 0x0000000080008009, 0x000000008000000a,
	0x000000008000808b, 0x800000000000008b, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800a, 0x800000008000000a,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// rho rotation offsets and pi lane order, walked together in one pass.
var (
	rotations = [24]int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14, 27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44}
	piLanes   = [24]int{10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4, 15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1}
)

type digest struct {
	state [25]uint64
	buf   [rate]byte
	n     int
}

// New256 returns a streaming Keccak-256 hash.
func New256() hash.Hash {
	return &digest{}
}

// Sum256 hashes the concatenation of parts.
func Sum256(parts ...[]byte) [Size]byte {
	d := digest{}
	for _, p := range parts {
		_, _ = d.Write(p)
	}
	var out [Size]byte
	d.finish(out[:])
	return out
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return rate }

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		k := copy(d.buf[d.n:], p)
		d.n += k
		p = p[k:]
		if d.n == rate {
			d.absorb()
		}
	}
	return written, nil
}

func (d *digest) Sum(in []byte) []byte {
	dup := *d
	var out [Size]byte
	dup.finish(out[:])
	return append(in, out[:]...)
}

func (d *digest) absorb() {
	for i := 0; i < rate/8; i++ {
		d.state[i] ^= binary.LittleEndian.Uint64(d.buf[i*8:])
	}
	permute(&d.state)
	d.n = 0
}

func (d *digest) finish(out []byte) {
	for i := d.n; i < rate; i++ {
		d.buf[i] = 0
	}
	d.buf[d.n] ^= padDomain
	d.buf[rate-1] ^= padFinal
	d.absorb()
	for i := 0; i < Size/8; i++ {
		binary.LittleEndian.PutUint64(out[i*8:], d.state[i])
	}
}

// permute is Keccak-f[1600].
func permute(st *[25]uint64) {
	var bc [5]uint64
	for r := 0; r < rounds; r++ {
		// theta
		for i := 0; i < 5; i++ {
			bc[i] = st[i] ^ st[i+5] ^ st[i+10] ^ st[i+15] ^ st[i+20]
		}
		for i := 0; i < 5; i++ {
			t := bc[(i+4)%5] ^ bits.RotateLeft64(bc[(i+1)%5], 1)
			for j := 0; j < 25; j += 5 {
				st[j+i] ^= t
			}
		}

		// rho + pi
		t := st[1]
		for i := 0; i < 24; i++ {
			j := piLanes[i]
			next := st[j]
			st[j] = bits.RotateLeft64(t, rotations[i])
			t = next
		}

		// chi
		for j := 0; j < 25; j += 5 {
			for i := 0; i < 5; i++ {
				bc[i] = st[j+i]
			}
			for i := 0; i < 5; i++ {
				st[j+i] ^= ^bc[(i+1)%5] & bc[(i+2)%5]
			}
		}

		// iota
		st[0] ^= roundConstants[r]
	}
}
