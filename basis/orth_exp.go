package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// OrthExponential is a set of decaying exponentials exp(-rate·x),
// orthonormalised over the valid samples. Decay rates whose exponentials are
// numerically linearly dependent on [0, 1] are rejected when set, so the
// output always has NBasisFuncs columns.
type OrthExponential struct {
	base
	decayRates []float64
}

// NewOrthExponential returns a basis with one element per decay rate.
func NewOrthExponential(n int, decayRates []float64, opts ...Option) (*OrthExponential, error) {
	c := newConfig("OrthExponential", opts)
	o := &OrthExponential{
		base:       newBase("OrthExponential", n, c),
		decayRates: append([]float64(nil), decayRates...),
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OrthExponential) clone() Basis {
	c := *o
	c.decayRates = o.DecayRates()
	return &c
}

func (o *OrthExponential) validate() error {
	if o.nBasisFuncs < 1 {
		return errors.NewValueError(o.typeName, fmt.Sprintf(
			"Object class %s requires >= 1 basis elements. %d basis elements specified instead",
			o.typeName, o.nBasisFuncs))
	}
	if len(o.decayRates) != o.nBasisFuncs {
		return errors.NewValueError(o.typeName, fmt.Sprintf(
			"The number of basis functions must match the number of decay rates provided. "+
				"Number of basis functions provided: %d, Number of decay rates provided: %d",
			o.nBasisFuncs, len(o.decayRates)))
	}
	seen := make(map[float64]bool, len(o.decayRates))
	for _, r := range o.decayRates {
		if seen[r] {
			return errors.NewValueError(o.typeName,
				"Two or more rate are repeated! Repeating rate will result in a linearly dependent set of function for the basis.")
		}
		seen[r] = true
	}
	if rank := decayRank(o.decayRates, Linspace(0, 1, rankGridSize)); rank < o.nBasisFuncs {
		return errors.NewValueError(o.typeName, fmt.Sprintf(
			"Decay rates are numerically linearly dependent: rank %d, %d basis elements. "+
				"Use rates that are further apart.", rank, o.nBasisFuncs))
	}
	if o.mode == Conv && o.bounds != nil {
		return errors.NewValidationError("bounds", "bounds are only valid in eval mode", o.bounds)
	}
	return o.validateCommon()
}

// rankGridSize is the number of points used to check the decay rates.
const rankGridSize = 200

// decayRank is the numerical rank of exp(-rate·x) over the points x.
func decayRank(rates, x []float64) int {
	m := mat.NewDense(len(x), len(rates), nil)
	for i, v := range x {
		for j, rate := range rates {
			m.Set(i, j, math.Exp(-rate*v))
		}
	}
	return matrixRank(m)
}

// DecayRates returns a copy of the decay rates.
func (o *OrthExponential) DecayRates() []float64 {
	return append([]float64(nil), o.decayRates...)
}

// SetDecayRates replaces the decay rates; their count must equal NBasisFuncs.
func (o *OrthExponential) SetDecayRates(rates []float64) error {
	return setWithRollback(&o.decayRates, append([]float64(nil), rates...), o.validate)
}

func (o *OrthExponential) SetNBasisFuncs(n int) error {
	return setWithRollback(&o.nBasisFuncs, n, o.validate)
}

func (o *OrthExponential) GetParams() map[string]interface{} {
	p := o.commonParams()
	p["decay_rates"] = o.DecayRates()
	return p
}

func (o *OrthExponential) SetParams(params map[string]interface{}) error {
	return setParams(o, params, &o.base, func(key string, value interface{}) (bool, error) {
		if key != "decay_rates" {
			return false, nil
		}
		rates, ok := value.([]float64)
		if !ok {
			return true, errors.NewValidationError(key, "must be []float64", value)
		}
		o.decayRates = append([]float64(nil), rates...)
		return true, nil
	}, o.validate)
}

func (o *OrthExponential) Evaluate(x ...[]float64) (*mat.Dense, error) {
	return evaluateChecked(o, x)
}

func (o *OrthExponential) EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error) {
	return evaluateOnGrid(o, n)
}

func (o *OrthExponential) ComputeFeatures(x ...[]float64) (*mat.Dense, error) {
	return computeFeatures(o, o, x)
}

// Kernel returns the (window_size, n_basis_funcs) convolution kernel.
func (o *OrthExponential) Kernel() (*mat.Dense, error) { return leafKernel(o, o.windowSize) }

func (o *OrthExponential) evaluate(xs [][]float64) (*mat.Dense, error) {
	if len(xs[0]) < o.nBasisFuncs {
		return nil, errors.NewValueError(o.typeName, fmt.Sprintf(
			"OrthExponential requires at least as many samples as basis functions! "+
				"Class instantiated with %d basis functions but only %d samples provided!",
			o.nBasisFuncs, len(xs[0])))
	}
	x, _, err := MinMaxRescaleSamples(xs[0], o.bounds)
	if err != nil {
		return nil, err
	}

	valid := make([]int, 0, len(x))
	for i, v := range x {
		if !math.IsNaN(v) {
			valid = append(valid, i)
		}
	}
	if len(valid) < o.nBasisFuncs {
		return nil, errors.NewValueError(o.typeName, fmt.Sprintf(
			"OrthExponential requires at least as many valid samples as basis functions: %d valid, %d basis functions",
			len(valid), o.nBasisFuncs))
	}
	decay := mat.NewDense(len(valid), o.nBasisFuncs, nil)
	for r, i := range valid {
		for j, rate := range o.decayRates {
			decay.Set(r, j, math.Exp(-rate*x[i]))
		}
	}

	var svd mat.SVD
	if !svd.Factorize(decay, mat.SVDThin) {
		return nil, errors.NewModelError("OrthExponential.Evaluate", "svd", errors.ErrSingularMatrix)
	}
	rank := rankFromValues(svd.Values(nil), len(valid), o.nBasisFuncs)
	if rank < o.nBasisFuncs {
		return nil, errors.NewValueError(o.typeName, fmt.Sprintf(
			"The exponentials are linearly dependent on the samples provided: rank %d, %d basis elements. "+
				"Provide more distinct sample points.", rank, o.nBasisFuncs))
	}
	var u mat.Dense
	svd.UTo(&u)

	n := o.nBasisFuncs
	out := mat.NewDense(len(x), n, nil)
	for i := 0; i < len(x); i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, math.NaN())
		}
	}
	for r, i := range valid {
		for j := 0; j < n; j++ {
			out.Set(i, j, u.At(r, j))
		}
	}
	return out, nil
}
