// Package regularizer provides penalty strategies for regressors and a
// registry resolving string keys to strategies.
//
// A strategy turns the smooth loss into the solver.Problem actually
// minimized: smooth penalties are folded into Func and Grad, non-smooth
// penalties are expressed through Prox. The intercept, stored as the last
// parameter, is never penalized.
package regularizer

import (
	"sort"
	"sync"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/solver"
)

// Regularizer is a penalty strategy.
type Regularizer interface {
	Name() string
	AllowedSolvers() []solver.Name
	DefaultSolver() solver.Name
	// Penalty evaluates the penalty on coefficients (intercept excluded).
	Penalty(coef []float64, strength float64) float64
	// Apply returns the problem to minimize for a smooth loss.
	Apply(loss solver.Problem, strength float64) solver.Problem
}

// ShapeChecker is implemented by strategies that depend on the number of
// coefficients, such as GroupLasso.
type ShapeChecker interface {
	CheckShape(nCoef int) error
}

// smoothSolvers are the gradient-based solvers valid for differentiable objectives.
var smoothSolvers = []solver.Name{
	solver.GradientDescent, solver.BFGS, solver.LBFGS, solver.NonlinearCG, solver.ProximalGradient,
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Regularizer{
		"UnRegularized": func() Regularizer { return &UnRegularized{} },
		"Ridge":         func() Regularizer { return &Ridge{} },
		"Lasso":         func() Regularizer { return &Lasso{} },
		"GroupLasso":    func() Regularizer { return &GroupLasso{} },
	}
)

// Register adds a strategy under key.
func Register(key string, ctor func() Regularizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = ctor
}

// Keys returns the registered keys, sorted.
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New builds the strategy registered under key.
func New(key string) (Regularizer, error) {
	registryMu.RLock()
	ctor, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewConfigurationError("regularizer", key, Keys())
	}
	return ctor(), nil
}

// Resolve accepts a Regularizer, a registry key, or nil (UnRegularized).
func Resolve(v interface{}) (Regularizer, error) {
	switch r := v.(type) {
	case nil:
		return &UnRegularized{}, nil
	case Regularizer:
		return r, nil
	case string:
		return New(r)
	default:
		return nil, errors.NewValidationError("regularizer", "must be a Regularizer or a registry key", v)
	}
}

// IsAllowed reports whether r accepts solver name.
func IsAllowed(r Regularizer, name solver.Name) bool {
	for _, n := range r.AllowedSolvers() {
		if n == name {
			return true
		}
	}
	return false
}

func allowedStrings(r Regularizer) []string {
	names := r.AllowedSolvers()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// CheckSolver returns a ConfigurationError when r does not accept name.
func CheckSolver(r Regularizer, name solver.Name) error {
	if !IsAllowed(r, name) {
		return errors.NewConfigurationError("solver for "+r.Name(), string(name), allowedStrings(r))
	}
	return nil
}

// coefOf drops the trailing intercept.
func coefOf(params []float64) []float64 {
	if len(params) == 0 {
		return params
	}
	return params[:len(params)-1]
}
