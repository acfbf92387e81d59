package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

type splineKind int

const (
	kindB splineKind = iota
	kindM
	kindCyclic
)

// spline implements the three spline families. Exported types embed it.
type spline struct {
	base
	kind  splineKind
	order int
}

// BSpline is a B-spline basis on open-uniform knots over [0, 1].
type BSpline struct{ *spline }

// MSpline is a B-spline basis normalised so each element integrates to one.
type MSpline struct{ *spline }

// CyclicBSpline is a periodic B-spline basis: the first and last elements
// join smoothly, and f(0) == f(1) for every element.
type CyclicBSpline struct{ *spline }

func newSpline(typeName string, kind splineKind, n int, opts []Option) (*spline, error) {
	c := newConfig(typeName, opts)
	s := &spline{base: newBase(typeName, n, c), kind: kind, order: c.order}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewBSpline returns a BSpline with n elements. The default order is 4 (cubic).
func NewBSpline(n int, opts ...Option) (*BSpline, error) {
	s, err := newSpline("BSpline", kindB, n, opts)
	if err != nil {
		return nil, err
	}
	return &BSpline{s}, nil
}

// NewMSpline returns an MSpline with n elements.
func NewMSpline(n int, opts ...Option) (*MSpline, error) {
	s, err := newSpline("MSpline", kindM, n, opts)
	if err != nil {
		return nil, err
	}
	return &MSpline{s}, nil
}

// NewCyclicBSpline returns a CyclicBSpline with n elements. Order must be at least 2.
func NewCyclicBSpline(n int, opts ...Option) (*CyclicBSpline, error) {
	s, err := newSpline("CyclicBSpline", kindCyclic, n, opts)
	if err != nil {
		return nil, err
	}
	return &CyclicBSpline{s}, nil
}

func (b *BSpline) clone() Basis       { c := *b.spline; return &BSpline{&c} }
func (b *MSpline) clone() Basis       { c := *b.spline; return &MSpline{&c} }
func (b *CyclicBSpline) clone() Basis { c := *b.spline; return &CyclicBSpline{&c} }

func (s *spline) clone() Basis { c := *s; return &c }

func (s *spline) validate() error {
	if s.nBasisFuncs < 1 {
		return errors.NewValueError(s.typeName, fmt.Sprintf(
			"Object class %s requires >= 1 basis elements. %d basis elements specified instead",
			s.typeName, s.nBasisFuncs))
	}
	if s.order < 1 {
		return errors.NewValueError(s.typeName, "Spline order must be positive!")
	}
	if s.kind == kindCyclic && s.order < 2 {
		return errors.NewValueError(s.typeName, fmt.Sprintf(
			"Order >= 2 required for cyclic B-spline, order %d specified instead!", s.order))
	}
	if s.order > s.nBasisFuncs {
		return errors.NewValueError(s.typeName, fmt.Sprintf(
			"`order` parameter cannot be larger than `n_basis_funcs`. order %d, n_basis_funcs %d",
			s.order, s.nBasisFuncs))
	}
	if s.mode == Conv && s.bounds != nil {
		return errors.NewValidationError("bounds", "bounds are only valid in eval mode", s.bounds)
	}
	return s.validateCommon()
}

// Order returns the spline order (degree + 1).
func (s *spline) Order() int { return s.order }

// SetOrder changes the order. An order larger than NBasisFuncs is rejected.
func (s *spline) SetOrder(order int) error {
	return setWithRollback(&s.order, order, s.validate)
}

func (s *spline) SetNBasisFuncs(n int) error {
	return setWithRollback(&s.nBasisFuncs, n, s.validate)
}

func (s *spline) GetParams() map[string]interface{} {
	p := s.commonParams()
	p["order"] = s.order
	return p
}

func (s *spline) SetParams(params map[string]interface{}) error {
	return setParams(s, params, &s.base, func(key string, value interface{}) (bool, error) {
		if key != "order" {
			return false, nil
		}
		n, ok := toInt(value)
		if !ok {
			return true, errors.NewValidationError(key, "must be an integer", value)
		}
		s.order = n
		return true, nil
	}, s.validate)
}

func (s *spline) Evaluate(x ...[]float64) (*mat.Dense, error) { return evaluateChecked(s, x) }

func (s *spline) EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error) {
	return evaluateOnGrid(s, n)
}

func (s *spline) ComputeFeatures(x ...[]float64) (*mat.Dense, error) {
	return computeFeatures(s, s, x)
}

// Kernel returns the (window_size, n_basis_funcs) convolution kernel.
func (s *spline) Kernel() (*mat.Dense, error) { return leafKernel(s, s.windowSize) }

func (s *spline) evaluate(xs [][]float64) (*mat.Dense, error) {
	x, _, err := MinMaxRescaleSamples(xs[0], s.bounds)
	if err != nil {
		return nil, err
	}
	n := s.nBasisFuncs
	var knots []float64
	if s.kind != kindCyclic {
		knots = openUniformKnots(n, s.order)
	}
	return evalRows(len(x), n, func(i int, row []float64) {
		if math.IsNaN(x[i]) {
			fillNaN(row)
			return
		}
		switch s.kind {
		case kindB:
			bsplineRow(knots, s.order, x[i], row)
		case kindM:
			bsplineRow(knots, s.order, x[i], row)
			for j := range row {
				if d := knots[j+s.order] - knots[j]; d > 0 {
					row[j] *= float64(s.order) / d
				}
			}
		case kindCyclic:
			cyclicRow(n, s.order, x[i], row)
		}
	}), nil
}

// openUniformKnots returns n+order knots: order-1 repeated zeros, the
// interior grid on [0, 1], then order-1 repeated ones.
func openUniformKnots(n, order int) []float64 {
	interior := Linspace(0, 1, n-order+2)
	knots := make([]float64, 0, n+order)
	for i := 0; i < order-1; i++ {
		knots = append(knots, 0)
	}
	knots = append(knots, interior...)
	for i := 0; i < order-1; i++ {
		knots = append(knots, 1)
	}
	return knots
}

// bsplineRow evaluates all len(knots)-order B-splines at x (Cox-de Boor).
// The last non-empty knot interval is closed on the right.
func bsplineRow(knots []float64, order int, x float64, out []float64) {
	m := len(knots)
	work := make([]float64, m-1)
	for i := 0; i < m-1; i++ {
		if knots[i] <= x && x < knots[i+1] {
			work[i] = 1
		}
	}
	if x == knots[m-1] {
		for i := m - 2; i >= 0; i-- {
			if knots[i] < knots[i+1] {
				work[i] = 1
				break
			}
		}
	}
	for k := 2; k <= order; k++ {
		for i := 0; i < m-k; i++ {
			v := 0.0
			if d := knots[i+k-1] - knots[i]; d > 0 {
				v += (x - knots[i]) / d * work[i]
			}
			if d := knots[i+k] - knots[i+1]; d > 0 {
				v += (knots[i+k] - x) / d * work[i+1]
			}
			work[i] = v
		}
	}
	copy(out, work[:m-order])
}

// cardinalBSpline is the uniform B-spline of the given order supported on [0, order).
func cardinalBSpline(order int, u float64) float64 {
	if u < 0 || u >= float64(order) {
		return 0
	}
	knots := make([]float64, order+1)
	for i := range knots {
		knots[i] = float64(i)
	}
	var out [1]float64
	bsplineRow(knots, order, u, out[:])
	return out[0]
}

// cyclicRow evaluates n periodic B-splines at x in [0, 1]. Element i is the
// cardinal spline shifted by i/n and wrapped around the unit interval.
func cyclicRow(n, order int, x float64, out []float64) {
	fn := float64(n)
	for i := range out {
		u := math.Mod(x*fn-float64(i), fn)
		if u < 0 {
			u += fn
		}
		out[i] = cardinalBSpline(order, u)
	}
}

func fillNaN(row []float64) {
	for j := range row {
		row[j] = math.NaN()
	}
}
