package solver

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Options are the parsed solver_kwargs.
type Options struct {
	MaxIter      int     // maxiter
	Tol          float64 // tol
	Stepsize     float64 // stepsize; 0 selects a line search
	Store        int     // store (LBFGS memory)
	Acceleration bool    // acceleration (ProximalGradient)
}

// DefaultOptions mirrors the defaults of the reference solvers.
func DefaultOptions() Options {
	return Options{MaxIter: 1000, Tol: 1e-8, Store: 15, Acceleration: true}
}

// option keys understood by each solver
var solverKwargs = map[Name][]string{
	GradientDescent:  {"maxiter", "tol", "stepsize"},
	BFGS:             {"maxiter", "tol"},
	LBFGS:            {"maxiter", "tol", "store"},
	NonlinearCG:      {"maxiter", "tol"},
	ProximalGradient: {"maxiter", "tol", "stepsize", "acceleration"},
}

// AcceptedKwargs returns the option keys name accepts.
func AcceptedKwargs(name Name) []string {
	keys, ok := solverKwargs[name]
	if !ok {
		keys = []string{"maxiter", "tol"}
	}
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

// ParseOptions validates kwargs for name and fills in defaults.
func ParseOptions(name Name, kwargs map[string]interface{}) (Options, error) {
	opts := DefaultOptions()
	accepted := map[string]bool{}
	for _, k := range AcceptedKwargs(name) {
		accepted[k] = true
	}

	for key, raw := range kwargs {
		if !accepted[key] {
			return opts, errors.NewValidationError("solver_kwargs",
				"option not accepted by "+string(name), key)
		}
		switch key {
		case "maxiter", "store":
			n, ok := toInt(raw)
			if !ok || n <= 0 {
				return opts, errors.NewValidationError(key, "must be a positive integer", raw)
			}
			if key == "maxiter" {
				opts.MaxIter = n
			} else {
				opts.Store = n
			}
		case "tol", "stepsize":
			f, ok := toFloat(raw)
			if !ok || f < 0 || math.IsNaN(f) {
				return opts, errors.NewValidationError(key, "must be a non-negative number", raw)
			}
			if key == "tol" {
				opts.Tol = f
			} else {
				opts.Stepsize = f
			}
		case "acceleration":
			b, ok := raw.(bool)
			if !ok {
				return opts, errors.NewValidationError(key, "must be a boolean", raw)
			}
			opts.Acceleration = b
		}
	}
	return opts, nil
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
