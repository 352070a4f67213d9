// Package secp256k1 implements the secp256k1 group, ECDSA with RFC6979
// deterministic nonces, and public key recovery.
//
// Field and scalar elements are fixed-width 256-bit integers with explicit
// modular reduction. Point arithmetic is projective and uses one complete
// addition formula for both doubling and general addition.
package secp256k1

import (
	"encoding/hex"
	"errors"

	"github.com/holiman/uint256"
)

var (
	// fieldP is the field prime 2^256 - 2^32 - 977.
	fieldP = mustHex("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f")
	// groupN is the order of the base point.
	groupN = mustHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	halfN  = new(uint256.Int).Rsh(groupN, 1)

	curveA  = new(uint256.Int)
	curveB  = uint256.NewInt(7)
	curveB3 = uint256.NewInt(21)

	baseX = mustHex("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	baseY = mustHex("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")

	// sqrtExp is (p+1)/4; p ≡ 3 mod 4 so a^sqrtExp is a square root when one exists.
	sqrtExp = new(uint256.Int).Rsh(new(uint256.Int).AddUint64(fieldP, 1), 2)
	pMinus2 = new(uint256.Int).SubUint64(fieldP, 2)
	nMinus2 = new(uint256.Int).SubUint64(groupN, 2)
)

var (
	ErrNoInverse    = errors.New("secp256k1: zero has no inverse")
	ErrNoSquareRoot = errors.New("secp256k1: no square root")
)

func mustHex(s string) *uint256.Int {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		panic("secp256k1: bad constant " + s)
	}
	return new(uint256.Int).SetBytes(raw)
}

// modAdd, modSub and modMul expect operands already reduced below m.
func modAdd(a, b, m *uint256.Int) uint256.Int {
	var z uint256.Int
	z.AddMod(a, b, m)
	return z
}

func modSub(a, b, m *uint256.Int) uint256.Int {
	var z uint256.Int
	z.Sub(a, b)
	if a.Lt(b) {
		z.Add(&z, m)
	}
	return z
}

func modMul(a, b, m *uint256.Int) uint256.Int {
	var z uint256.Int
	z.MulMod(a, b, m)
	return z
}

func modNeg(a, m *uint256.Int) uint256.Int {
	var z uint256.Int
	if a.IsZero() {
		return z
	}
	z.Sub(m, a)
	return z
}

func modReduce(a, m *uint256.Int) uint256.Int {
	var z uint256.Int
	z.Mod(a, m)
	return z
}

// modPow walks all 256 exponent bits regardless of their value.
func modPow(base, exp, m *uint256.Int) uint256.Int {
	var result uint256.Int
	result.SetOne()
	b := modReduce(base, m)
	for i := 255; i >= 0; i-- {
		result = modMul(&result, &result, m)
		product := modMul(&result, &b, m)
		if exp[i/64]>>(uint(i)%64)&1 == 1 {
			result = product
		}
	}
	return result
}

// fieldInv and scalarInv use Fermat's little theorem; p and n are prime.
func fieldInv(a *uint256.Int) (uint256.Int, error) {
	r := modReduce(a, fieldP)
	if r.IsZero() {
		return uint256.Int{}, ErrNoInverse
	}
	return modPow(&r, pMinus2, fieldP), nil
}

func scalarInv(a *uint256.Int) (uint256.Int, error) {
	r := modReduce(a, groupN)
	if r.IsZero() {
		return uint256.Int{}, ErrNoInverse
	}
	return modPow(&r, nMinus2, groupN), nil
}

func fieldSqrt(a *uint256.Int) (uint256.Int, error) {
	r := modPow(a, sqrtExp, fieldP)
	check := modMul(&r, &r, fieldP)
	if !check.Eq(a) {
		return uint256.Int{}, ErrNoSquareRoot
	}
	return r, nil
}

// curveRHS returns x^3 + ax + b.
func curveRHS(x *uint256.Int) uint256.Int {
	x2 := modMul(x, x, fieldP)
	x3 := modMul(&x2, x, fieldP)
	ax := modMul(curveA, x, fieldP)
	sum := modAdd(&x3, &ax, fieldP)
	return modAdd(&sum, curveB, fieldP)
}

// isFieldElement reports 0 < v < p.
func isFieldElement(v *uint256.Int) bool {
	return !v.IsZero() && v.Lt(fieldP)
}

// isScalar reports 0 < v < n.
func isScalar(v *uint256.Int) bool {
	return !v.IsZero() && v.Lt(groupN)
}
