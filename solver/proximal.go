package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

const (
	// backtracking shrink factor and the smallest step tried
	proxShrink  = 0.5
	proxMinStep = 1e-20
)

// proximalSolver is FISTA with backtracking line search. Problem.Prox
// handles the non-smooth penalty; a nil Prox reduces to accelerated
// gradient descent.
type proximalSolver struct {
	problem Problem
	opts    Options
}

func (s *proximalSolver) Name() Name { return ProximalGradient }

func (s *proximalSolver) prox(x []float64, step float64) {
	if s.problem.Prox != nil {
		s.problem.Prox(x, step)
	}
}

func (s *proximalSolver) initialStep() float64 {
	if s.opts.Stepsize > 0 {
		return s.opts.Stepsize
	}
	return 1
}

func (s *proximalSolver) InitState(init []float64, data Data) (st *State, err error) {
	defer errors.Recover(&err, "solver.InitState")
	if err := checkData("solver.InitState", init, data); err != nil {
		return nil, err
	}
	value := s.problem.Func(init, data)
	if err := errors.CheckScalar("solver.InitState", value, 0); err != nil {
		return nil, err
	}
	grad := make([]float64, len(init))
	s.problem.Grad(grad, init, data)
	return &State{
		Value:     value,
		GradNorm:  gradNorm(grad),
		Stepsize:  s.initialStep(),
		Status:    optimize.NotTerminated,
		Momentum:  append([]float64(nil), init...),
		T:         1,
		FuncEvals: 1,
		GradEvals: 1,
	}, nil
}

// step performs one proximal iteration from x with state st (modified in place).
// It returns the new iterate.
func (s *proximalSolver) step(x []float64, st *State, data Data) ([]float64, error) {
	y := st.Momentum
	if y == nil || !s.opts.Acceleration {
		y = x
	}
	n := len(x)
	grad := make([]float64, n)
	fy := s.problem.Func(y, data)
	s.problem.Grad(grad, y, data)
	st.FuncEvals++
	st.GradEvals++

	stepsize := st.Stepsize
	if stepsize <= 0 {
		stepsize = s.initialStep()
	}
	z := make([]float64, n)
	diff := make([]float64, n)
	var fz float64
	for {
		floats.AddScaledTo(z, y, -stepsize, grad)
		s.prox(z, stepsize)
		fz = s.problem.Func(z, data)
		st.FuncEvals++
		floats.SubTo(diff, z, y)
		bound := fy + floats.Dot(grad, diff) + floats.Dot(diff, diff)/(2*stepsize)
		if !math.IsNaN(fz) && fz <= bound+1e-12*math.Abs(bound) {
			break
		}
		if s.opts.Stepsize > 0 && !math.IsNaN(fz) {
			// fixed step requested
			break
		}
		stepsize *= proxShrink
		if stepsize < proxMinStep {
			return nil, errors.NewNumericalInstabilityError("solver.ProximalGradient", []float64{fz, fy}, st.Iter)
		}
	}

	// fixed-point residual of the proximal gradient map
	floats.SubTo(diff, z, x)
	residual := floats.Norm(diff, 2) / stepsize

	tNext := (1 + math.Sqrt(1+4*st.T*st.T)) / 2
	momentum := make([]float64, n)
	copy(momentum, z)
	if s.opts.Acceleration {
		floats.AddScaled(momentum, (st.T-1)/tNext, diff)
	}

	st.Iter++
	st.Value = fz
	st.GradNorm = residual
	st.Stepsize = stepsize
	st.Momentum = momentum
	st.T = tNext
	st.Converged = residual < s.opts.Tol
	if st.Converged {
		st.Status = optimize.StepConvergence
	} else {
		st.Status = optimize.NotTerminated
	}
	return z, nil
}

func (s *proximalSolver) Update(params []float64, state *State, data Data) (out []float64, st *State, err error) {
	defer errors.Recover(&err, "solver.Update")
	if err := checkData("solver.Update", params, data); err != nil {
		return nil, nil, err
	}
	next := state.Clone()
	if next == nil {
		if next, err = s.InitState(params, data); err != nil {
			return nil, nil, err
		}
	}
	if len(next.Momentum) != len(params) {
		next.Momentum = append([]float64(nil), params...)
	}
	x := append([]float64(nil), params...)
	z, err := s.step(x, next, data)
	if err != nil {
		return nil, nil, err
	}
	return z, next, nil
}

func (s *proximalSolver) Run(init []float64, data Data) (out []float64, st *State, err error) {
	defer errors.Recover(&err, "solver.Run")
	st, err = s.InitState(init, data)
	if err != nil {
		return nil, nil, err
	}
	logger := log.GetLoggerWithName("solver").With(log.SolverKey, string(ProximalGradient))
	x := append([]float64(nil), init...)
	for st.Iter < s.opts.MaxIter {
		if x, err = s.step(x, st, data); err != nil {
			return nil, nil, err
		}
		if st.Converged {
			break
		}
	}
	if !st.Converged {
		st.Status = optimize.IterationLimit
		errors.Warn(errors.NewConvergenceWarning(string(ProximalGradient), st.Iter, ""))
	}
	logger.Debug("run finished",
		log.IterationKey, st.Iter,
		log.LossKey, st.Value,
		log.GradNormKey, st.GradNorm,
		log.StatusKey, st.Status.String(),
	)
	return x, st, nil
}
