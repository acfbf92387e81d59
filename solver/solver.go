// Package solver adapts iterative optimizers to a single calling convention.
//
// Every solver exposes the same three entry points regardless of backend:
//
//	InitState(init, data) -> state
//	Update(params, state, data) -> params', state'
//	Run(init, data) -> params*, state*
//
// Parameters are flat slices laid out as coefficients followed by the
// intercept. Data is passed positionally as a Data value and handed
// unchanged to the Problem callbacks.
package solver

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Name selects a solver backend.
type Name string

const (
	GradientDescent  Name = "GradientDescent"
	BFGS             Name = "BFGS"
	LBFGS            Name = "LBFGS"
	NonlinearCG      Name = "NonlinearCG"
	ProximalGradient Name = "ProximalGradient"
)

// Data is the design matrix and response passed through to the objective.
type Data struct {
	X mat.Matrix
	Y mat.Vector
}

// Problem is the objective handed to a solver.
//
// Func and Grad describe the smooth part. Prox, if set, applies the proximal
// operator of the non-smooth part in place with step scale; only the
// ProximalGradient solver calls it.
type Problem struct {
	Func func(params []float64, data Data) float64
	Grad func(grad, params []float64, data Data)
	Prox func(params []float64, scale float64)
}

// State is the solver state carried between Update calls.
type State struct {
	Iter      int
	Value     float64
	GradNorm  float64
	Stepsize  float64
	Status    optimize.Status
	Converged bool
	FuncEvals int
	GradEvals int

	// Extrapolation point and momentum for accelerated proximal steps.
	Momentum []float64
	T        float64
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.Momentum != nil {
		c.Momentum = append([]float64(nil), s.Momentum...)
	}
	return &c
}

// Solver is implemented once per backend.
type Solver interface {
	Name() Name
	InitState(init []float64, data Data) (*State, error)
	Update(params []float64, state *State, data Data) ([]float64, *State, error)
	Run(init []float64, data Data) ([]float64, *State, error)
}

// Bound entry points. These are what a regressor stores after configuration.
type (
	InitStateFunc func(init []float64, data Data) (*State, error)
	UpdateFunc    func(params []float64, state *State, data Data) ([]float64, *State, error)
	RunFunc       func(init []float64, data Data) ([]float64, *State, error)
)

// Constructor builds a solver for a problem.
type Constructor func(problem Problem, opts Options) Solver

var (
	registryMu sync.RWMutex
	registry   = map[Name]Constructor{}
)

func init() {
	for _, n := range []Name{GradientDescent, BFGS, LBFGS, NonlinearCG} {
		name := n
		Register(name, func(p Problem, o Options) Solver {
			return &gonumSolver{name: name, problem: p, opts: o}
		})
	}
	Register(ProximalGradient, func(p Problem, o Options) Solver {
		return &proximalSolver{problem: p, opts: o}
	})
}

// Register adds or replaces a solver backend.
func Register(name Name, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Names returns the registered solver names in sorted order.
func Names() []Name {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]Name, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func nameStrings(names []Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// ParseName resolves a solver name, returning a ConfigurationError if unknown.
func ParseName(s string) (Name, error) {
	registryMu.RLock()
	_, ok := registry[Name(s)]
	registryMu.RUnlock()
	if !ok {
		return "", errors.NewConfigurationError("solver", s, nameStrings(Names()))
	}
	return Name(s), nil
}

// New builds the named solver for problem. kwargs are validated against
// the options the solver understands.
func New(name Name, problem Problem, kwargs map[string]interface{}) (Solver, error) {
	if problem.Func == nil || problem.Grad == nil {
		return nil, errors.NewValueError("solver.New", "problem must define Func and Grad")
	}
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewConfigurationError("solver", string(name), nameStrings(Names()))
	}
	opts, err := ParseOptions(name, kwargs)
	if err != nil {
		return nil, err
	}
	return ctor(problem, opts), nil
}

func checkData(op string, params []float64, data Data) error {
	if data.X == nil || data.Y == nil {
		return errors.NewValueError(op, "data must contain X and Y")
	}
	r, c := data.X.Dims()
	if data.Y.Len() != r {
		return errors.NewDimensionError(op, r, data.Y.Len(), 0)
	}
	if len(params) != c+1 {
		return errors.NewDimensionError(op, c+1, len(params), 1)
	}
	return nil
}

func gradNorm(grad []float64) float64 {
	if len(grad) == 0 {
		return 0
	}
	return floats.Norm(grad, math.Inf(1))
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}
