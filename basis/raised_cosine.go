package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// raisedCosine implements the linear and log-stretched raised-cosine bases.
type raisedCosine struct {
	base
	log         bool
	width       float64
	timeScaling float64
}

// RaisedCosineLinear is a set of raised-cosine bumps with equi-spaced peaks on [0, 1].
type RaisedCosineLinear struct{ *raisedCosine }

// RaisedCosineLog places the bumps on a log-stretched axis, giving narrow
// elements near zero and wide ones near one. Suited to spike-history filters.
type RaisedCosineLog struct{ *raisedCosine }

// NewRaisedCosineLinear returns a linear raised-cosine basis. Default width 2.
func NewRaisedCosineLinear(n int, opts ...Option) (*RaisedCosineLinear, error) {
	c := newConfig("RaisedCosineLinear", opts)
	r := &raisedCosine{base: newBase("RaisedCosineLinear", n, c), width: c.width}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &RaisedCosineLinear{r}, nil
}

// NewRaisedCosineLog returns a log raised-cosine basis. Default width 2,
// default time scaling 50.
func NewRaisedCosineLog(n int, opts ...Option) (*RaisedCosineLog, error) {
	c := newConfig("RaisedCosineLog", opts)
	r := &raisedCosine{
		base:        newBase("RaisedCosineLog", n, c),
		log:         true,
		width:       c.width,
		timeScaling: c.timeScaling,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &RaisedCosineLog{r}, nil
}

func (b *RaisedCosineLinear) clone() Basis { c := *b.raisedCosine; return &RaisedCosineLinear{&c} }
func (b *RaisedCosineLog) clone() Basis    { c := *b.raisedCosine; return &RaisedCosineLog{&c} }

func (r *raisedCosine) clone() Basis { c := *r; return &c }

func (r *raisedCosine) validate() error {
	minBasis := 1
	if r.log {
		minBasis = 2
	}
	if r.nBasisFuncs < minBasis {
		return errors.NewValueError(r.typeName, fmt.Sprintf(
			"Object class %s requires >= %d basis elements. %d basis elements specified instead",
			r.typeName, minBasis, r.nBasisFuncs))
	}
	if r.width < 1 || 2*r.width != math.Trunc(2*r.width) {
		return errors.NewValueError(r.typeName, fmt.Sprintf(
			"Invalid raised cosine width. 2*width must be a positive integer, 2*width = %g instead!", 2*r.width))
	}
	if r.log && !(r.timeScaling > 0) {
		return errors.NewValueError(r.typeName, fmt.Sprintf(
			"Only strictly positive time_scaling are allowed, %g provided instead.", r.timeScaling))
	}
	if r.mode == Conv && r.bounds != nil {
		return errors.NewValidationError("bounds", "bounds are only valid in eval mode", r.bounds)
	}
	return r.validateCommon()
}

// Width returns the bump width in units of peak spacing.
func (r *raisedCosine) Width() float64 { return r.width }

// SetWidth changes the width; 2*width must be a positive integer >= 2.
func (r *raisedCosine) SetWidth(w float64) error {
	return setWithRollback(&r.width, w, r.validate)
}

// TimeScaling returns the log-stretch factor. Zero for the linear basis.
func (r *raisedCosine) TimeScaling() float64 { return r.timeScaling }

// SetTimeScaling changes the log-stretch factor.
func (r *raisedCosine) SetTimeScaling(s float64) error {
	if !r.log {
		return errors.NewAttributeError(r.typeName, "time_scaling")
	}
	return setWithRollback(&r.timeScaling, s, r.validate)
}

func (r *raisedCosine) SetNBasisFuncs(n int) error {
	return setWithRollback(&r.nBasisFuncs, n, r.validate)
}

func (r *raisedCosine) GetParams() map[string]interface{} {
	p := r.commonParams()
	p["width"] = r.width
	if r.log {
		p["time_scaling"] = r.timeScaling
	}
	return p
}

func (r *raisedCosine) SetParams(params map[string]interface{}) error {
	return setParams(r, params, &r.base, func(key string, value interface{}) (bool, error) {
		switch {
		case key == "width":
			f, ok := toFloat(value)
			if !ok {
				return true, errors.NewValidationError(key, "must be a number", value)
			}
			r.width = f
		case key == "time_scaling" && r.log:
			f, ok := toFloat(value)
			if !ok {
				return true, errors.NewValidationError(key, "must be a number", value)
			}
			r.timeScaling = f
		default:
			return false, nil
		}
		return true, nil
	}, r.validate)
}

func (r *raisedCosine) Evaluate(x ...[]float64) (*mat.Dense, error) { return evaluateChecked(r, x) }

func (r *raisedCosine) EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error) {
	return evaluateOnGrid(r, n)
}

func (r *raisedCosine) ComputeFeatures(x ...[]float64) (*mat.Dense, error) {
	return computeFeatures(r, r, x)
}

// Kernel returns the (window_size, n_basis_funcs) convolution kernel.
func (r *raisedCosine) Kernel() (*mat.Dense, error) { return leafKernel(r, r.windowSize) }

func (r *raisedCosine) peaks() []float64 {
	last := 1.0
	if r.log {
		// 最後のバンプが 1 で 0 に減衰するように
		last = 1 - r.width/(float64(r.nBasisFuncs)+r.width-1)
	}
	return Linspace(0, last, r.nBasisFuncs)
}

func (r *raisedCosine) evaluate(xs [][]float64) (*mat.Dense, error) {
	x, _, err := MinMaxRescaleSamples(xs[0], r.bounds)
	if err != nil {
		return nil, err
	}
	if r.log {
		norm := math.Log(r.timeScaling + 1)
		for i, v := range x {
			x[i] = math.Log(r.timeScaling*v+1) / norm
		}
	}
	peaks := r.peaks()
	delta := 1.0
	if len(peaks) > 1 {
		delta = peaks[1] - peaks[0]
	}
	return evalRows(len(x), r.nBasisFuncs, func(i int, row []float64) {
		if math.IsNaN(x[i]) {
			fillNaN(row)
			return
		}
		for j, p := range peaks {
			arg := math.Max(-math.Pi, math.Min(math.Pi, math.Pi*(x[i]-p)/(delta*r.width)))
			row[j] = 0.5 * (math.Cos(arg) + 1)
		}
	}), nil
}
