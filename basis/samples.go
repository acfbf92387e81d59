package basis

import (
	"math"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// invalidWarnFraction is the share of invalid samples above which a
// DataConversionWarning is emitted.
const invalidWarnFraction = 0.9

// MinMaxRescaleSamples maps samples to [0, 1].
//
// bounds[0] and bounds[1] map to 0 and 1; nil bounds use the NaN-ignoring
// min and max of x. Samples outside the bounds become NaN. A zero range
// leaves the samples shifted but unscaled. The returned scaling is the
// divisor used.
func MinMaxRescaleSamples(x []float64, bounds []float64) ([]float64, float64, error) {
	var lo, hi float64
	if bounds == nil {
		lo, hi = nanMinMax(x)
	} else {
		lo, hi = bounds[0], bounds[1]
	}

	out := make([]float64, len(x))
	scaling := 1.0
	if lo != hi {
		scaling = hi - lo
	}
	invalid := 0
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
			out[i] = math.NaN()
			invalid++
			continue
		}
		out[i] = (v - lo) / scaling
	}

	if err := checkValidFraction(invalid, len(x)); err != nil {
		return nil, 0, err
	}
	return out, scaling, nil
}

func checkValidFraction(invalid, total int) error {
	if total == 0 {
		return nil
	}
	if invalid == total {
		return errors.NewValueError("basis.MinMaxRescaleSamples",
			"All the samples lie outside the [vmin, vmax] range.")
	}
	if float64(invalid)/float64(total) > invalidWarnFraction {
		errors.Warn(errors.NewDataConversionWarning("samples", "NaN",
			"More than 90% of the samples lie outside the [vmin, vmax] range."))
	}
	return nil
}

func nanMinMax(x []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Linspace returns n evenly spaced points over [lo, hi]. n == 1 gives [lo].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// Meshgrid returns the ij-indexed grid over axes, each coordinate array
// flattened row-major (the last axis varies fastest).
func Meshgrid(axes ...[]float64) [][]float64 {
	total := 1
	for _, a := range axes {
		total *= len(a)
	}
	grid := make([][]float64, len(axes))
	for d := range grid {
		grid[d] = make([]float64, total)
	}
	idx := make([]int, len(axes))
	for k := 0; k < total; k++ {
		for d, a := range axes {
			grid[d][k] = a[idx[d]]
		}
		for d := len(axes) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(axes[d]) {
				break
			}
			idx[d] = 0
		}
	}
	return grid
}
