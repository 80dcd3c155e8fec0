package basefee

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PermillOne is the number of parts representing 100%.
const PermillOne = 1_000_000

// Permill is a fixed point fraction in the range [0, 1] with a precision
// of one millionth.
type Permill uint32

// PermillFromParts constructs a fraction from parts per million, capping
// the value at 100%.
func PermillFromParts(parts uint32) Permill {
	return Permill(min(parts, PermillOne))
}

// PermillFromPercent constructs a fraction from a whole percentage.
func PermillFromPercent(pct uint32) Permill {
	return PermillFromParts(min(pct, 100) * 10_000)
}

// PermillFromRational constructs n/d rounded down, capping at 100%. A zero
// denominator is treated as 100%.
func PermillFromRational(n, d uint64) Permill {
	if d == 0 || n >= d {
		return PermillOne
	}

	v, _ := new(uint256.Int).MulDivOverflow(uint256.NewInt(n), uint256.NewInt(PermillOne), uint256.NewInt(d))
	return Permill(v.Uint64())
}

// Parts returns the fraction in parts per million.
func (p Permill) Parts() uint32 {
	return uint32(p)
}

// Clamp restricts the fraction to the range [lo, hi].
func (p Permill) Clamp(lo, hi Permill) Permill {
	return max(lo, min(p, hi))
}

// String implements the fmt.Stringer interface.
func (p Permill) String() string {
	whole := uint32(p) / 10_000
	frac := uint32(p) % 10_000
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}

	s := fmt.Sprintf("%d.%04d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s + "%"
}

// rescale maps p from the range [lo, hi] onto [0, 100%]. The caller
// guarantees lo <= p <= hi and lo < hi.
func rescale(p, lo, hi Permill) Permill {
	return Permill(uint64(p-lo) * PermillOne / uint64(hi-lo))
}
