package aggregator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/model"
)

func ints(nums ...int64) []model.Value {
	values := make([]model.Value, len(nums))
	for i, n := range nums {
		values[i] = model.NewInteger(big.NewInt(n))
	}
	return values
}

// samples [1, 3, 3, 5, 9] → count=5, average=4,
// median=3, mode=3, min=1, max=9.
func TestCompute_ScenarioS5_IntegerAggregation(t *testing.T) {
	c, err := compute(ints(1, 3, 3, 5, 9))
	require.NoError(t, err)

	assert.Equal(t, int64(5), c.count)
	assert.Equal(t, 0, big.NewInt(4).Cmp(c.average.Int))
	assert.Equal(t, 0, big.NewInt(3).Cmp(c.median.Int))
	assert.Equal(t, 0, big.NewInt(3).Cmp(c.mode.Int))
	assert.Equal(t, 0, big.NewInt(1).Cmp(c.min.Int))
	assert.Equal(t, 0, big.NewInt(9).Cmp(c.max.Int))
}

func TestCompute_IntegerEvenCountMedian(t *testing.T) {
	c, err := compute(ints(1, 2, 3, 4))
	require.NoError(t, err)
	// centre elements 2,3 -> (2+3)/2 = 2 (integer division)
	assert.Equal(t, 0, big.NewInt(2).Cmp(c.median.Int))
}

func TestCompute_IntegerTruncatesTowardZero(t *testing.T) {
	c, err := compute(ints(-1, -2))
	require.NoError(t, err)
	// sum=-3, n=2, -3/2 truncated toward zero = -1
	assert.Equal(t, 0, big.NewInt(-1).Cmp(c.average.Int))
}

func TestCompute_FloatAggregation(t *testing.T) {
	values := []model.Value{model.NewFloat(1.5), model.NewFloat(2.5), model.NewFloat(2.5), model.NewFloat(9.5)}
	c, err := compute(values)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, c.average.Float, 1e-9)
	assert.InDelta(t, 1.5, c.min.Float, 1e-9)
	assert.InDelta(t, 9.5, c.max.Float, 1e-9)
	// mode computed on integer truncation: trunc(1.5)=1, trunc(2.5)=2 (x2), trunc(9.5)=9
	assert.Equal(t, 0, big.NewInt(2).Cmp(c.mode.Int))
}

func TestCompute_FloatNaNAborts(t *testing.T) {
	values := []model.Value{model.NewFloat(1.0), model.NewFloat(nan())}
	_, err := compute(values)
	assert.ErrorIs(t, err, errNaN)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestCompute_BooleanMajorityTrue(t *testing.T) {
	values := []model.Value{model.NewBool(true), model.NewBool(true), model.NewBool(false)}
	c, err := compute(values)
	require.NoError(t, err)
	assert.True(t, c.average.Bool)
	assert.True(t, c.max.Bool)
	assert.False(t, c.min.Bool) // not all true
}

func TestCompute_BooleanAllTrue(t *testing.T) {
	values := []model.Value{model.NewBool(true), model.NewBool(true)}
	c, err := compute(values)
	require.NoError(t, err)
	assert.True(t, c.min.Bool)
	assert.True(t, c.max.Bool)
}

func TestCompute_EmptyWindowErrors(t *testing.T) {
	_, err := compute(nil)
	assert.ErrorIs(t, err, errEmptyWindow)
}
