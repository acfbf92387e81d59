// Package regressor holds the plumbing shared by every concrete regressor:
// the regularizer and solver configuration, the bound solver entry points,
// and parameter introspection for pipeline tooling.
//
// Concrete models embed *BaseRegressor and expose their own
// hyperparameters through RegisterParam; they never override GetParams or
// SetParams.
package regressor

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
	"github.com/YuminosukeSato/glmgo/regularizer"
	"github.com/YuminosukeSato/glmgo/solver"
)

// Param exposes one model-specific hyperparameter.
type Param struct {
	Get func() interface{}
	Set func(value interface{}) error
}

// BaseRegressor is embedded by concrete regressors.
type BaseRegressor struct {
	regularizer         regularizer.Regularizer
	regularizerStrength float64
	solverName          solver.Name
	solverKwargs        map[string]interface{}

	solverInitState solver.InitStateFunc
	solverUpdate    solver.UpdateFunc
	solverRun       solver.RunFunc

	extra map[string]Param
}

// Option configures a BaseRegressor.
type Option func(*settings)

type settings struct {
	regularizer interface{}
	strength    float64
	solverName  string
	kwargs      map[string]interface{}
}

// WithRegularizer accepts a regularizer.Regularizer or a registry key.
func WithRegularizer(r interface{}) Option {
	return func(s *settings) {
		s.regularizer = r
	}
}

// WithRegularizerStrength sets the penalty multiplier (>= 0).
func WithRegularizerStrength(strength float64) Option {
	return func(s *settings) {
		s.strength = strength
	}
}

// WithSolverName selects the solver. Empty uses the regularizer's default.
func WithSolverName(name string) Option {
	return func(s *settings) {
		s.solverName = name
	}
}

// WithSolverKwargs passes options to the solver constructor.
func WithSolverKwargs(kwargs map[string]interface{}) Option {
	return func(s *settings) {
		s.kwargs = kwargs
	}
}

// NewBaseRegressor resolves the regularizer and validates the solver
// configuration. Unknown keys yield a ConfigurationError.
func NewBaseRegressor(opts ...Option) (*BaseRegressor, error) {
	s := &settings{strength: 1}
	for _, opt := range opts {
		opt(s)
	}
	reg, err := regularizer.Resolve(s.regularizer)
	if err != nil {
		return nil, err
	}
	name := reg.DefaultSolver()
	if s.solverName != "" {
		if name, err = solver.ParseName(s.solverName); err != nil {
			return nil, err
		}
	}
	r := &BaseRegressor{
		regularizer:         reg,
		regularizerStrength: s.strength,
		solverName:          name,
		solverKwargs:        copyKwargs(s.kwargs),
		extra:               map[string]Param{},
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func copyKwargs(kwargs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	return out
}

// validate checks the combined configuration.
func (r *BaseRegressor) validate() error {
	if s := r.regularizerStrength; !(s >= 0) || math.IsInf(s, 1) {
		return errors.NewValidationError("regularizer_strength", "must be a non-negative finite number", s)
	}
	if err := regularizer.CheckSolver(r.regularizer, r.solverName); err != nil {
		return err
	}
	if _, err := solver.ParseOptions(r.solverName, r.solverKwargs); err != nil {
		return err
	}
	return nil
}

// snapshot and restore back the rollback of failed setters.
type snapshot struct {
	reg      regularizer.Regularizer
	strength float64
	name     solver.Name
	kwargs   map[string]interface{}
}

func (r *BaseRegressor) snapshot() snapshot {
	return snapshot{r.regularizer, r.regularizerStrength, r.solverName, r.solverKwargs}
}

func (r *BaseRegressor) restore(s snapshot) {
	r.regularizer, r.regularizerStrength, r.solverName, r.solverKwargs = s.reg, s.strength, s.name, s.kwargs
}

func (r *BaseRegressor) apply(change func() error) error {
	saved := r.snapshot()
	if err := change(); err != nil {
		r.restore(saved)
		return err
	}
	if err := r.validate(); err != nil {
		r.restore(saved)
		return err
	}
	r.unbind()
	return nil
}

// unbind drops solver bindings made for a previous configuration.
func (r *BaseRegressor) unbind() {
	r.solverInitState, r.solverUpdate, r.solverRun = nil, nil, nil
}

// Regularizer returns the resolved strategy.
func (r *BaseRegressor) Regularizer() regularizer.Regularizer { return r.regularizer }

// SetRegularizer accepts a strategy or registry key. The current solver
// must be allowed by the new strategy.
func (r *BaseRegressor) SetRegularizer(v interface{}) error {
	return r.apply(func() error {
		reg, err := regularizer.Resolve(v)
		if err != nil {
			return err
		}
		r.regularizer = reg
		return nil
	})
}

// RegularizerStrength returns the penalty multiplier.
func (r *BaseRegressor) RegularizerStrength() float64 { return r.regularizerStrength }

// SetRegularizerStrength sets the penalty multiplier.
func (r *BaseRegressor) SetRegularizerStrength(strength float64) error {
	return r.apply(func() error {
		r.regularizerStrength = strength
		return nil
	})
}

// SolverName returns the configured solver.
func (r *BaseRegressor) SolverName() solver.Name { return r.solverName }

// SetSolverName selects a solver by name.
func (r *BaseRegressor) SetSolverName(name string) error {
	return r.apply(func() error {
		n, err := solver.ParseName(name)
		if err != nil {
			return err
		}
		r.solverName = n
		return nil
	})
}

// SolverKwargs returns a copy of the solver options.
func (r *BaseRegressor) SolverKwargs() map[string]interface{} { return copyKwargs(r.solverKwargs) }

// SetSolverKwargs replaces the solver options.
func (r *BaseRegressor) SetSolverKwargs(kwargs map[string]interface{}) error {
	return r.apply(func() error {
		r.solverKwargs = copyKwargs(kwargs)
		return nil
	})
}

// SolverInitState, SolverUpdate and SolverRun are the bound entry points.
// They have the same signature for every solver and are nil until
// InstantiateSolver has been called.
func (r *BaseRegressor) SolverInitState() solver.InitStateFunc { return r.solverInitState }
func (r *BaseRegressor) SolverUpdate() solver.UpdateFunc       { return r.solverUpdate }
func (r *BaseRegressor) SolverRun() solver.RunFunc             { return r.solverRun }

// InstantiateSolver penalizes loss with the regularizer, builds the
// configured solver and binds its entry points.
func (r *BaseRegressor) InstantiateSolver(loss solver.Problem) (solver.Solver, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	problem := r.regularizer.Apply(loss, r.regularizerStrength)
	s, err := solver.New(r.solverName, problem, r.solverKwargs)
	if err != nil {
		return nil, err
	}
	r.solverInitState = s.InitState
	r.solverUpdate = s.Update
	r.solverRun = s.Run

	log.GetLoggerWithName("regressor").Debug("solver instantiated",
		log.SolverKey, string(r.solverName),
		log.RegularizerKey, r.regularizer.Name(),
		log.RegularizationKey, r.regularizerStrength,
	)
	return s, nil
}

// RegisterParam exposes a model-specific hyperparameter through
// GetParams/SetParams.
func (r *BaseRegressor) RegisterParam(name string, p Param) {
	if r.extra == nil {
		r.extra = map[string]Param{}
	}
	r.extra[name] = p
}

// GetParams returns the constructor-level hyperparameters.
func (r *BaseRegressor) GetParams() map[string]interface{} {
	p := map[string]interface{}{
		"regularizer":          r.regularizer,
		"regularizer_strength": r.regularizerStrength,
		"solver_name":          string(r.solverName),
		"solver_kwargs":        r.SolverKwargs(),
	}
	for name, ep := range r.extra {
		p[name] = ep.Get()
	}
	return p
}

// SetParams updates hyperparameters by name. The combined configuration
// is validated once all keys are applied; on any error nothing changes.
// SetParams(GetParams()) leaves the regressor unchanged.
func (r *BaseRegressor) SetParams(params map[string]interface{}) error {
	saved := r.snapshot()
	savedExtra := map[string]interface{}{}
	for name, ep := range r.extra {
		savedExtra[name] = ep.Get()
	}
	rollback := func() {
		r.restore(saved)
		for name, v := range savedExtra {
			_ = r.extra[name].Set(v)
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		var err error
		switch key {
		case "regularizer":
			var reg regularizer.Regularizer
			if reg, err = regularizer.Resolve(value); err == nil {
				r.regularizer = reg
			}
		case "regularizer_strength":
			f, ok := toFloat(value)
			if !ok {
				err = errors.NewValidationError(key, "must be a number", value)
			}
			r.regularizerStrength = f
		case "solver_name":
			var name solver.Name
			switch v := value.(type) {
			case solver.Name:
				name, err = solver.ParseName(string(v))
			case string:
				name, err = solver.ParseName(v)
			default:
				err = errors.NewValidationError(key, "must be a string", value)
			}
			if err == nil {
				r.solverName = name
			}
		case "solver_kwargs":
			kwargs, ok := value.(map[string]interface{})
			if !ok && value != nil {
				err = errors.NewValidationError(key, "must be a map", value)
			}
			r.solverKwargs = copyKwargs(kwargs)
		default:
			ep, ok := r.extra[key]
			if !ok {
				err = errors.NewValidationError(key, "unknown parameter", value)
			} else {
				err = ep.Set(value)
			}
		}
		if err != nil {
			rollback()
			return err
		}
	}
	if err := r.validate(); err != nil {
		rollback()
		return err
	}
	r.unbind()
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
