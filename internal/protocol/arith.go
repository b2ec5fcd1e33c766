package protocol

import (
	"github.com/holiman/uint256"
)

// Counters are uint64; every product is taken in 256 bits and narrowed back
// only if it fits.

func addU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

func mulU64(a, b uint64) (uint64, error) {
	z, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !z.IsUint64() {
		return 0, ErrOverflow
	}
	return z.Uint64(), nil
}

// mulDivU64 returns floor(a*b/d). The intermediate product never wraps.
func mulDivU64(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if overflow || !z.IsUint64() {
		return 0, ErrOverflow
	}
	return z.Uint64(), nil
}

// weightedAverage returns floor((current*weight + next) / (weight+1)).
func weightedAverage(current, next, weight uint64) (uint64, error) {
	num, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(current), uint256.NewInt(weight))
	if overflow {
		return 0, ErrOverflow
	}
	num.Add(num, uint256.NewInt(next))
	den := new(uint256.Int).AddUint64(uint256.NewInt(weight), 1)
	z := new(uint256.Int).Div(num, den)
	if !z.IsUint64() {
		return 0, ErrOverflow
	}
	return z.Uint64(), nil
}
