package basis

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/parallel"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// kernelSource is implemented by bases usable in conv mode.
type kernelSource interface {
	Kernel() (*mat.Dense, error)
}

// leafKernel samples b on window equi-spaced points of [0, 1].
func leafKernel(b Basis, window int) (*mat.Dense, error) {
	if window <= 0 {
		return nil, errors.NewValidationError("window_size", "must be a positive integer in conv mode", window)
	}
	return b.evaluate([][]float64{Linspace(0, 1, window)})
}

// convolveCausal filters x with every kernel column. Row t only sees
// x[t-window .. t-1]; kernel row 0 weights the most recent sample. The first
// window rows are NaN.
func convolveCausal(x []float64, kernel *mat.Dense) *mat.Dense {
	window, cols := kernel.Dims()
	n := len(x)
	return evalRows(n, cols, func(t int, row []float64) {
		if t < window {
			fillNaN(row)
			return
		}
		for k := 0; k < cols; k++ {
			s := 0.0
			for m := 0; m < window; m++ {
				s += x[t-1-m] * kernel.At(m, k)
			}
			row[k] = s
		}
	})
}

// ConvolveCausal convolves every column of X with kernel and concatenates
// the results: input column c occupies output columns c*K .. (c+1)*K-1,
// where K is the number of kernel columns.
func ConvolveCausal(X mat.Matrix, kernel *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	_, k := kernel.Dims()
	out := mat.NewDense(r, c*k, nil)
	parallel.ParallelizeWithThreshold(c, 1, func(start, end int) {
		for j := start; j < end; j++ {
			conv := convolveCausal(mat.Col(nil, j, X), kernel)
			out.Slice(0, r, j*k, (j+1)*k).(*mat.Dense).Copy(conv)
		}
	})
	return out
}
