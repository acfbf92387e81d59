package solver

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

// gonumSolver runs one of the gonum/optimize gradient methods.
type gonumSolver struct {
	name    Name
	problem Problem
	opts    Options
}

func (s *gonumSolver) Name() Name { return s.name }

// method returns a fresh optimize.Method; methods hold per-run state.
func (s *gonumSolver) method() optimize.Method {
	switch s.name {
	case GradientDescent:
		gd := &optimize.GradientDescent{}
		if s.opts.Stepsize > 0 {
			gd.StepSizer = &optimize.ConstantStepSize{Size: s.opts.Stepsize}
		}
		return gd
	case BFGS:
		return &optimize.BFGS{}
	case LBFGS:
		return &optimize.LBFGS{Store: s.opts.Store}
	case NonlinearCG:
		return &optimize.CG{}
	}
	return nil
}

func (s *gonumSolver) optProblem(data Data, state *State) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			if state != nil {
				state.FuncEvals++
			}
			return s.problem.Func(x, data)
		},
		Grad: func(grad, x []float64) {
			if state != nil {
				state.GradEvals++
			}
			s.problem.Grad(grad, x, data)
		},
	}
}

func (s *gonumSolver) settings(maxIter int) *optimize.Settings {
	return &optimize.Settings{
		GradientThreshold: s.opts.Tol,
		MajorIterations:   maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.opts.Tol * 1e-2,
			Relative:   s.opts.Tol * 1e-2,
			Iterations: 20,
		},
	}
}

func (s *gonumSolver) InitState(init []float64, data Data) (st *State, err error) {
	defer errors.Recover(&err, "solver.InitState")
	if err := checkData("solver.InitState", init, data); err != nil {
		return nil, err
	}
	grad := make([]float64, len(init))
	s.problem.Grad(grad, init, data)
	value := s.problem.Func(init, data)
	if err := errors.CheckScalar("solver.InitState", value, 0); err != nil {
		return nil, err
	}
	return &State{
		Value:     value,
		GradNorm:  gradNorm(grad),
		Status:    optimize.NotTerminated,
		FuncEvals: 1,
		GradEvals: 1,
	}, nil
}

// minimize runs gonum from x0 for at most steps iterations and returns the
// best location it reached. gonum counts the starting location as a major
// iteration, hence the +1.
func (s *gonumSolver) minimize(op string, x0 []float64, data Data, steps int, st *State) ([]float64, *optimize.Result, error) {
	res, err := optimize.Minimize(s.optProblem(data, st), x0, s.settings(steps+1), s.method())
	if res == nil {
		return nil, nil, errors.NewModelError(op, "optimization failed", err)
	}
	x := append([]float64(nil), res.X...)
	if err != nil {
		// gonum reports line search failures near the optimum as errors
		// but still returns the best location.
		start := s.problem.Func(x0, data)
		if math.IsNaN(res.F) || math.IsInf(res.F, 0) || res.F > start {
			return nil, nil, errors.NewModelError(op, "optimization failed", err)
		}
		log.GetLoggerWithName("solver").Debug("line search stopped early",
			log.SolverKey, string(s.name), log.LossKey, res.F, "reason", err.Error())
		res.Status = optimize.StepConvergence
	}
	return x, res, nil
}

func (s *gonumSolver) Update(params []float64, state *State, data Data) (out []float64, st *State, err error) {
	defer errors.Recover(&err, "solver.Update")
	if err := checkData("solver.Update", params, data); err != nil {
		return nil, nil, err
	}
	next := state.Clone()
	if next == nil {
		next = &State{}
	}
	x, res, err := s.minimize("solver.Update", params, data, 1, next)
	if err != nil {
		return nil, nil, err
	}
	next.Iter++
	next.Value = res.F
	next.GradNorm = gradNorm(res.Gradient)
	next.Status = res.Status
	next.Converged = converged(res.Status)
	return x, next, nil
}

func (s *gonumSolver) Run(init []float64, data Data) (out []float64, st *State, err error) {
	defer errors.Recover(&err, "solver.Run")
	if err := checkData("solver.Run", init, data); err != nil {
		return nil, nil, err
	}
	st = &State{}
	x, res, err := s.minimize("solver.Run", init, data, s.opts.MaxIter, st)
	if err != nil {
		return nil, nil, err
	}
	st.Iter = max(res.MajorIterations-1, 0)
	st.Value = res.F
	st.GradNorm = gradNorm(res.Gradient)
	st.Status = res.Status
	st.Converged = converged(res.Status)
	if res.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning(string(s.name), st.Iter, ""))
	}
	log.GetLoggerWithName("solver").Debug("run finished",
		log.SolverKey, string(s.name),
		log.IterationKey, st.Iter,
		log.LossKey, st.Value,
		log.GradNormKey, st.GradNorm,
		log.StatusKey, res.Status.String(),
	)
	return x, st, nil
}
