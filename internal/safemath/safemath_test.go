package safemath_test

import (
	"math"
	"testing"

	"EstabloLedger/internal/safemath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	got, err := safemath.Add(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = safemath.Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, safemath.ErrOverflow)

	got, err = safemath.Add(math.MaxUint64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestSub(t *testing.T) {
	got, err := safemath.Sub(42, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)

	_, err = safemath.Sub(1, 2)
	assert.ErrorIs(t, err, safemath.ErrOverflow)

	got, err = safemath.Sub(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestMul(t *testing.T) {
	got, err := safemath.Mul(6, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	got, err = safemath.Mul(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)

	_, err = safemath.Mul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, safemath.ErrOverflow)
}

func TestDiv(t *testing.T) {
	got, err := safemath.Div(7, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got, "division truncates")

	_, err = safemath.Div(1, 0)
	assert.ErrorIs(t, err, safemath.ErrOverflow)
}

func TestMulDiv_FeeAndBacking(t *testing.T) {
	// 0.5% fee on 10,000 units.
	fee, err := safemath.MulDiv(10_000, 50, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), fee)

	// 70/30 backing split for 1,000,000 units.
	liquid, err := safemath.MulDiv(1_000_000, 70, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), liquid)

	collateral, err := safemath.MulDiv(1_000_000, 30, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(300_000), collateral)

	// Truncation: fee on 199 units is zero.
	fee, err = safemath.MulDiv(199, 50, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee)

	// The intermediate product overflows before the division can rescue it.
	_, err = safemath.MulDiv(math.MaxUint64, 70, 100)
	assert.ErrorIs(t, err, safemath.ErrOverflow)
}
