package aggregator

import (
	"errors"
	"math"
	"math/big"
	"sort"

	"github.com/jordise2002/modbus-watch/internal/model"
)

var errEmptyWindow = errors.New("aggregator: cannot aggregate an empty sample window")
var errNaN = errors.New("aggregator: encountered NaN while aggregating a float window")

// computed is the five aggregate fields derived from a non-empty,
// single-kind sequence of samples.
type computed struct {
	average, median, mode, min, max model.Value
	count                           int64
}

// compute dispatches to the kind-specific aggregate algorithm. All
// samples must share one Value kind — the caller
// guarantees this by construction (one data_type per configured
// value).
func compute(values []model.Value) (computed, error) {
	if len(values) == 0 {
		return computed{}, errEmptyWindow
	}
	switch values[0].Kind {
	case model.IntegerKind:
		return computeInteger(values)
	case model.FloatKind:
		return computeFloat(values)
	default:
		return computeBool(values)
	}
}

func computeInteger(values []model.Value) (computed, error) {
	ints := make([]*big.Int, len(values))
	for i, v := range values {
		ints[i] = v.Int
	}
	sorted := append([]*big.Int(nil), ints...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	sum := big.NewInt(0)
	for _, v := range ints {
		sum.Add(sum, v)
	}
	n := big.NewInt(int64(len(ints)))
	avg := new(big.Int).Quo(sum, n) // Quo truncates toward zero

	min, max := sorted[0], sorted[len(sorted)-1]

	var median *big.Int
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = new(big.Int).Quo(new(big.Int).Add(sorted[mid-1], sorted[mid]), big.NewInt(2))
	}

	mode := modeOfBigInts(sorted)

	return computed{
		average: model.NewInteger(avg),
		median:  model.NewInteger(median),
		mode:    model.NewInteger(mode),
		min:     model.NewInteger(min),
		max:     model.NewInteger(max),
		count:   int64(len(ints)),
	}, nil
}

// modeOfBigInts returns the value with the highest frequency in
// sorted (already ascending); ties resolve to the lowest value
// because we only replace the running best on a strictly greater
// count.
func modeOfBigInts(sorted []*big.Int) *big.Int {
	best := sorted[0]
	bestCount := 0
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j].Cmp(sorted[i]) == 0 {
			j++
		}
		count := j - i
		if count > bestCount {
			bestCount = count
			best = sorted[i]
		}
		i = j
	}
	return best
}

func computeFloat(values []model.Value) (computed, error) {
	floats := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v.Float) {
			return computed{}, errNaN
		}
		floats[i] = v.Float
	}
	sorted := append([]float64(nil), floats...)
	sort.Float64s(sorted)

	var sum float64
	for _, f := range floats {
		sum += f
	}
	avg := sum / float64(len(floats))
	min, max := sorted[0], sorted[len(sorted)-1]

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	mode := modeOfTruncatedFloats(floats)

	return computed{
		average: model.NewFloat(avg),
		median:  model.NewFloat(median),
		mode:    model.NewInteger(big.NewInt(mode)),
		min:     model.NewFloat(min),
		max:     model.NewFloat(max),
		count:   int64(len(floats)),
	}, nil
}

// modeOfTruncatedFloats implements the domain convention that the
// float mode is computed on the integer truncation of
// each sample, a lossy hash preserved intentionally for compatibility.
func modeOfTruncatedFloats(floats []float64) int64 {
	truncated := make([]int64, len(floats))
	for i, f := range floats {
		truncated[i] = int64(math.Trunc(f))
	}
	sorted := append([]int64(nil), truncated...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	best := sorted[0]
	bestCount := 0
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		count := j - i
		if count > bestCount {
			bestCount = count
			best = sorted[i]
		}
		i = j
	}
	return best
}

func computeBool(values []model.Value) (computed, error) {
	var trueCount, falseCount int
	for _, v := range values {
		if v.Bool {
			trueCount++
		} else {
			falseCount++
		}
	}
	allTrue := falseCount == 0
	anyTrue := trueCount > 0
	consensus := trueCount >= falseCount

	return computed{
		average: model.NewBool(consensus),
		median:  model.NewBool(consensus),
		mode:    model.NewBool(consensus),
		min:     model.NewBool(allTrue),
		max:     model.NewBool(anyTrue),
		count:   int64(len(values)),
	}, nil
}
