package secp256k1

import (
	"sync"

	"github.com/holiman/uint256"
)

const (
	windowBits  = 8
	windowCount = 256/windowBits + 1
	windowSize  = 1 << (windowBits - 1)
)

var (
	basePowersOnce sync.Once
	basePowers     []point
)

// precomputeBase builds, for every window w, the multiples 1..128 of
// 2^(8w)·G. The table is built once on first use.
func precomputeBase() []point {
	basePowersOnce.Do(func() {
		points := make([]point, 0, windowCount*windowSize)
		p := generator()
		for w := 0; w < windowCount; w++ {
			b := p
			points = append(points, b)
			for i := 1; i < windowSize; i++ {
				b = b.add(&p)
				points = append(points, b)
			}
			p = b.double()
		}
		basePowers = points
	})
	return basePowers
}

// scalarBaseMult computes k·G with signed window-8 digits. Every window adds
// one table point: into the result for non-zero digits, into the fake
// accumulator otherwise.
func scalarBaseMult(k *uint256.Int) point {
	p, _ := windowedBaseMult(k)
	return p
}

func windowedBaseMult(k *uint256.Int) (point, point) {
	table := precomputeBase()
	result := identityPoint()
	fake := generator()
	n := *k
	one := uint256.NewInt(1)

	for w := 0; w < windowCount; w++ {
		offset := w * windowSize
		digit := int(n[0] & (1<<windowBits - 1))
		n.Rsh(&n, windowBits)
		if digit > windowSize {
			digit -= 1 << windowBits
			n.Add(&n, one)
		}

		if digit == 0 {
			q := table[offset]
			if w%2 != 0 {
				q = q.negate()
			}
			fake = fake.add(&q)
			continue
		}
		idx := digit
		if idx < 0 {
			idx = -idx
		}
		q := table[offset+idx-1]
		if digit < 0 {
			q = q.negate()
		}
		result = result.add(&q)
	}
	return result, fake
}
