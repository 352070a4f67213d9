package secp256k1

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidPoint    = errors.New("secp256k1: invalid point encoding")
	ErrPointNotOnCurve = errors.New("secp256k1: point not on curve")
)

// point is a projective (X:Y:Z) point; the affine point is (X/Z, Y/Z) and the
// identity is (0:1:0).
type point struct {
	x, y, z uint256.Int
}

func identityPoint() point {
	var p point
	p.y.SetOne()
	return p
}

func generator() point {
	var p point
	p.x.Set(baseX)
	p.y.Set(baseY)
	p.z.SetOne()
	return p
}

func affinePoint(x, y *uint256.Int) point {
	var p point
	p.x.Set(x)
	p.y.Set(y)
	p.z.SetOne()
	return p
}

func (p *point) isIdentity() bool {
	return p.z.IsZero()
}

func (p *point) equal(q *point) bool {
	x1z2 := modMul(&p.x, &q.z, fieldP)
	x2z1 := modMul(&q.x, &p.z, fieldP)
	y1z2 := modMul(&p.y, &q.z, fieldP)
	y2z1 := modMul(&q.y, &p.z, fieldP)
	return x1z2.Eq(&x2z1) && y1z2.Eq(&y2z1)
}

func (p *point) negate() point {
	return point{x: p.x, y: modNeg(&p.y, fieldP), z: p.z}
}

func (p *point) double() point {
	return p.add(p)
}

// add is the complete projective addition of Renes, Costello and Batina
// (eprint 2015/1060, algorithm 1). It is valid for doubling and for the
// identity, so every caller goes through the same sequence of operations.
func (p *point) add(q *point) point {
	X1, Y1, Z1 := &p.x, &p.y, &p.z
	X2, Y2, Z2 := &q.x, &q.y, &q.z
	mul := func(a, b *uint256.Int) uint256.Int { return modMul(a, b, fieldP) }
	add := func(a, b *uint256.Int) uint256.Int { return modAdd(a, b, fieldP) }
	sub := func(a, b *uint256.Int) uint256.Int { return modSub(a, b, fieldP) }

	t0 := mul(X1, X2)
	t1 := mul(Y1, Y2)
	t2 := mul(Z1, Z2)
	t3 := add(X1, Y1)
	t4 := add(X2, Y2)
	t3 = mul(&t3, &t4)
	t4 = add(&t0, &t1)
	t3 = sub(&t3, &t4)
	t4 = add(X1, Z1)
	t5 := add(X2, Z2)
	t4 = mul(&t4, &t5)
	t5 = add(&t0, &t2)
	t4 = sub(&t4, &t5)
	t5 = add(Y1, Z1)
	X3 := add(Y2, Z2)
	t5 = mul(&t5, &X3)
	X3 = add(&t1, &t2)
	t5 = sub(&t5, &X3)
	Z3 := mul(curveA, &t4)
	X3 = mul(curveB3, &t2)
	Z3 = add(&X3, &Z3)
	X3 = sub(&t1, &Z3)
	Z3 = add(&t1, &Z3)
	Y3 := mul(&X3, &Z3)
	t1 = add(&t0, &t0)
	t1 = add(&t1, &t0)
	t2 = mul(curveA, &t2)
	t4 = mul(curveB3, &t4)
	t1 = add(&t1, &t2)
	t2 = sub(&t0, &t2)
	t2 = mul(curveA, &t2)
	t4 = add(&t4, &t2)
	t0 = mul(&t1, &t4)
	Y3 = add(&Y3, &t0)
	t0 = mul(&t5, &t4)
	X3 = mul(&t3, &X3)
	X3 = sub(&X3, &t0)
	t0 = mul(&t3, &t1)
	Z3 = mul(&t5, &Z3)
	Z3 = add(&Z3, &t0)
	return point{x: X3, y: Y3, z: Z3}
}

// affine converts to (x, y); the identity maps to (0, 0).
func (p *point) affine() (uint256.Int, uint256.Int) {
	if p.isIdentity() {
		return uint256.Int{}, uint256.Int{}
	}
	if p.z.IsUint64() && p.z.Uint64() == 1 {
		return p.x, p.y
	}
	iz, err := fieldInv(&p.z)
	if err != nil {
		return uint256.Int{}, uint256.Int{}
	}
	return modMul(&p.x, &iz, fieldP), modMul(&p.y, &iz, fieldP)
}

// validate checks that p is a non-identity point on the curve.
func (p *point) validate() error {
	x, y := p.affine()
	if !isFieldElement(&x) || !isFieldElement(&y) {
		return ErrInvalidPoint
	}
	lhs := modMul(&y, &y, fieldP)
	rhs := curveRHS(&x)
	if !lhs.Eq(&rhs) {
		return ErrPointNotOnCurve
	}
	return nil
}

// scalarMult is a double-and-add ladder over all 256 bits of k. Bits that are
// zero feed a throwaway accumulator so the operation count does not depend on
// the bit pattern.
func (p *point) scalarMult(k *uint256.Int) point {
	result := identityPoint()
	fake := generator()
	d := *p
	for i := 0; i < 256; i++ {
		if k[i/64]>>(uint(i)%64)&1 == 1 {
			result = result.add(&d)
		} else {
			fake = fake.add(&d)
		}
		d = d.double()
	}
	_ = fake
	return result
}

// decodePoint parses a 33-byte compressed or 65-byte uncompressed SEC1 point.
func decodePoint(raw []byte) (point, error) {
	switch {
	case len(raw) == 33 && (raw[0] == 0x02 || raw[0] == 0x03):
		var x uint256.Int
		x.SetBytes(raw[1:])
		if !isFieldElement(&x) {
			return point{}, ErrInvalidPoint
		}
		rhs := curveRHS(&x)
		y, err := fieldSqrt(&rhs)
		if err != nil {
			return point{}, ErrPointNotOnCurve
		}
		if (y[0]&1 == 1) != (raw[0]&1 == 1) {
			y = modNeg(&y, fieldP)
		}
		p := affinePoint(&x, &y)
		if err := p.validate(); err != nil {
			return point{}, err
		}
		return p, nil
	case len(raw) == 65 && raw[0] == 0x04:
		var x, y uint256.Int
		x.SetBytes(raw[1:33])
		y.SetBytes(raw[33:65])
		p := affinePoint(&x, &y)
		if err := p.validate(); err != nil {
			return point{}, err
		}
		return p, nil
	default:
		return point{}, ErrInvalidPoint
	}
}

func encodePoint(p *point, compressed bool) []byte {
	x, y := p.affine()
	xb := x.Bytes32()
	if compressed {
		out := make([]byte, 33)
		out[0] = 0x02
		if y[0]&1 == 1 {
			out[0] = 0x03
		}
		copy(out[1:], xb[:])
		return out
	}
	yb := y.Bytes32()
	out := make([]byte, 65)
	out[0] = 0x04
	copy(out[1:33], xb[:])
	copy(out[33:], yb[:])
	return out
}
