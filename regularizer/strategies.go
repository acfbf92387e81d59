package regularizer

import (
	"math"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/solver"
)

// UnRegularized leaves the loss unchanged.
type UnRegularized struct{}

func (*UnRegularized) Name() string                     { return "UnRegularized" }
func (*UnRegularized) AllowedSolvers() []solver.Name    { return smoothSolvers }
func (*UnRegularized) DefaultSolver() solver.Name       { return solver.LBFGS }
func (*UnRegularized) Penalty([]float64, float64) float64 { return 0 }

func (*UnRegularized) Apply(loss solver.Problem, _ float64) solver.Problem {
	return loss
}

// Ridge adds ½·strength·‖coef‖².
type Ridge struct{}

func (*Ridge) Name() string                  { return "Ridge" }
func (*Ridge) AllowedSolvers() []solver.Name { return smoothSolvers }
func (*Ridge) DefaultSolver() solver.Name    { return solver.LBFGS }

func (*Ridge) Penalty(coef []float64, strength float64) float64 {
	s := 0.0
	for _, c := range coef {
		s += c * c
	}
	return 0.5 * strength * s
}

func (r *Ridge) Apply(loss solver.Problem, strength float64) solver.Problem {
	return solver.Problem{
		Func: func(params []float64, data solver.Data) float64 {
			return loss.Func(params, data) + r.Penalty(coefOf(params), strength)
		},
		Grad: func(grad, params []float64, data solver.Data) {
			loss.Grad(grad, params, data)
			for i, c := range coefOf(params) {
				grad[i] += strength * c
			}
		},
		Prox: loss.Prox,
	}
}

// Lasso adds strength·‖coef‖₁ through soft thresholding.
type Lasso struct{}

func (*Lasso) Name() string                  { return "Lasso" }
func (*Lasso) AllowedSolvers() []solver.Name { return []solver.Name{solver.ProximalGradient} }
func (*Lasso) DefaultSolver() solver.Name    { return solver.ProximalGradient }

func (*Lasso) Penalty(coef []float64, strength float64) float64 {
	s := 0.0
	for _, c := range coef {
		s += math.Abs(c)
	}
	return strength * s
}

func (*Lasso) Apply(loss solver.Problem, strength float64) solver.Problem {
	return solver.Problem{
		Func: loss.Func,
		Grad: loss.Grad,
		Prox: func(params []float64, scale float64) {
			SoftThreshold(coefOf(params), scale*strength)
		},
	}
}

// SoftThreshold applies sign(x)·max(|x|-t, 0) in place.
func SoftThreshold(x []float64, t float64) {
	for i, v := range x {
		switch {
		case v > t:
			x[i] = v - t
		case v < -t:
			x[i] = v + t
		default:
			x[i] = 0
		}
	}
}

// GroupLasso penalizes the L2 norm of coefficient groups.
//
// Mask has shape (n_groups, n_coef); Mask[g][j] == 1 puts coefficient j in
// group g. Each coefficient belongs to at most one group, ungrouped
// coefficients are not penalized. Groups are weighted by sqrt(size).
type GroupLasso struct {
	Mask [][]float64
}

// NewGroupLasso validates mask and returns the strategy.
func NewGroupLasso(mask [][]float64) (*GroupLasso, error) {
	g := &GroupLasso{Mask: mask}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (*GroupLasso) Name() string                  { return "GroupLasso" }
func (*GroupLasso) AllowedSolvers() []solver.Name { return []solver.Name{solver.ProximalGradient} }
func (*GroupLasso) DefaultSolver() solver.Name    { return solver.ProximalGradient }

// GetParams returns the mask.
func (g *GroupLasso) GetParams() map[string]interface{} {
	return map[string]interface{}{"mask": g.Mask}
}

// SetParams sets the mask.
func (g *GroupLasso) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "mask" {
			return errors.NewValidationError(k, "unknown parameter for GroupLasso", v)
		}
		mask, ok := v.([][]float64)
		if !ok {
			return errors.NewValidationError("mask", "must be [][]float64", v)
		}
		prev := g.Mask
		g.Mask = mask
		if err := g.validate(); err != nil {
			g.Mask = prev
			return err
		}
	}
	return nil
}

func (g *GroupLasso) validate() error {
	if len(g.Mask) == 0 {
		return nil
	}
	width := len(g.Mask[0])
	counts := make([]float64, width)
	for _, row := range g.Mask {
		if len(row) != width {
			return errors.NewValidationError("mask", "rows must have equal length", len(row))
		}
		for j, v := range row {
			if v != 0 && v != 1 {
				return errors.NewValidationError("mask", "entries must be 0 or 1", v)
			}
			counts[j] += v
		}
	}
	for j, c := range counts {
		if c > 1 {
			return errors.NewValidationError("mask", "each coefficient can belong to at most one group", j)
		}
	}
	return nil
}

// CheckShape verifies the mask matches the number of coefficients.
func (g *GroupLasso) CheckShape(nCoef int) error {
	if len(g.Mask) == 0 {
		return errors.NewValidationError("mask", "GroupLasso requires a mask", nil)
	}
	if len(g.Mask[0]) != nCoef {
		return errors.NewDimensionError("GroupLasso.CheckShape", nCoef, len(g.Mask[0]), 1)
	}
	return nil
}

func (g *GroupLasso) Penalty(coef []float64, strength float64) float64 {
	total := 0.0
	for _, row := range g.Mask {
		norm, size := 0.0, 0.0
		for j, v := range row {
			if v == 1 && j < len(coef) {
				norm += coef[j] * coef[j]
				size++
			}
		}
		total += math.Sqrt(size) * math.Sqrt(norm)
	}
	return strength * total
}

func (g *GroupLasso) Apply(loss solver.Problem, strength float64) solver.Problem {
	return solver.Problem{
		Func: loss.Func,
		Grad: loss.Grad,
		Prox: func(params []float64, scale float64) {
			g.prox(coefOf(params), scale*strength)
		},
	}
}

// prox shrinks each group towards zero by t·sqrt(size).
func (g *GroupLasso) prox(coef []float64, t float64) {
	for _, row := range g.Mask {
		norm, size := 0.0, 0.0
		for j, v := range row {
			if v == 1 {
				norm += coef[j] * coef[j]
				size++
			}
		}
		norm = math.Sqrt(norm)
		factor := 0.0
		if norm > 0 {
			factor = math.Max(0, 1-t*math.Sqrt(size)/norm)
		}
		for j, v := range row {
			if v == 1 {
				coef[j] *= factor
			}
		}
	}
}
