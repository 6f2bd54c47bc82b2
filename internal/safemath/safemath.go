package safemath

import (
	"errors"
	"math"
)

// ErrOverflow is returned whenever a checked operation would wrap,
// underflow, or divide by zero. Backing, fee, and valuation math must
// never saturate silently.
var ErrOverflow = errors.New("arithmetic overflow")

// Add returns a + b, failing on wrap-around.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a - b, failing on underflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a * b, failing on wrap-around.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// Div returns a / b truncated toward zero, failing on division by zero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// MulDiv returns a * num / den with truncating division. The backing
// split (70/100, 30/100), the transfer fee (50/10000), and the
// liquidation floor (pct/100) are all computed through here.
func MulDiv(a, num, den uint64) (uint64, error) {
	prod, err := Mul(a, num)
	if err != nil {
		return 0, err
	}
	return Div(prod, den)
}
