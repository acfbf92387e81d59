package glm

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
	"github.com/YuminosukeSato/glmgo/regularizer"
	"github.com/YuminosukeSato/glmgo/solver"
)

// linearPredictor returns X·coef + intercept for flat params.
func linearPredictor(p []float64, X mat.Matrix) []float64 {
	r, c := X.Dims()
	eta := mat.NewVecDense(r, nil)
	eta.MulVec(X, mat.NewVecDense(c, p[:c]))
	out := eta.RawVector().Data
	for i := range out {
		out[i] += p[c]
	}
	return out
}

func vecData(y mat.Vector) []float64 {
	if v, ok := y.(*mat.VecDense); ok && v.RawVector().Inc == 1 {
		return v.RawVector().Data[:v.Len()]
	}
	out := make([]float64, y.Len())
	for i := range out {
		out[i] = y.AtVec(i)
	}
	return out
}

// lossProblem is the mean negative log-likelihood of obs and its gradient.
func lossProblem(obs observation.Model) solver.Problem {
	return solver.Problem{
		Func: func(p []float64, d solver.Data) float64 {
			return obs.NegLogLikelihood(vecData(d.Y), linearPredictor(p, d.X))
		},
		Grad: func(grad, p []float64, d solver.Data) {
			r, c := d.X.Dims()
			ge := make([]float64, r)
			obs.EtaGrad(ge, vecData(d.Y), linearPredictor(p, d.X))
			floats.Scale(1/float64(r), ge)
			gc := mat.NewVecDense(c, grad[:c])
			gc.MulVec(d.X.T(), mat.NewVecDense(r, ge))
			grad[c] = floats.Sum(ge)
		},
	}
}

// initialParams starts from zero coefficients and the intercept that
// matches the mean response.
func (g *GLM) initialParams(y *mat.VecDense, nFeatures int) model.Params {
	mean := floats.Sum(y.RawVector().Data) / float64(y.Len())
	return model.NewParams(nFeatures, math.Log(math.Max(mean, 1e-8)))
}

func (g *GLM) checkRegularizerShape(nFeatures int) error {
	if sc, ok := g.Regularizer().(regularizer.ShapeChecker); ok {
		return sc.CheckShape(nFeatures)
	}
	return nil
}

// bindSolver instantiates the configured solver if the bindings were
// dropped by a configuration change.
func (g *GLM) bindSolver() error {
	if g.SolverRun() != nil {
		return nil
	}
	_, err := g.InstantiateSolver(lossProblem(g.observation))
	return err
}

// Fit はモデルを学習する。
// 入力の検証は solver を呼ぶ前にすべて行う。NaN を含む行は除外する。
func (g *GLM) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "GLM.Fit")

	Xv, yv, err := g.prepare("GLM.Fit", X, y)
	if err != nil {
		return err
	}
	nSamples, nFeatures := Xv.Dims()
	if err := g.checkRegularizerShape(nFeatures); err != nil {
		return err
	}
	if _, err := g.InstantiateSolver(lossProblem(g.observation)); err != nil {
		return err
	}

	runID := log.NewRunID()
	logger := g.logger.With(log.RunIDKey, runID)
	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.SolverKey, string(g.SolverName()),
		log.RegularizerKey, g.Regularizer().Name(),
		log.ObservationKey, g.observation.Name(),
	)
	start := time.Now()

	x0 := g.initialParams(yv, nFeatures)
	flat, state, err := g.SolverRun()(x0.Flatten(), solver.Data{X: Xv, Y: yv})
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return errors.NewModelError("GLM.Fit", "solver", err)
	}
	params := model.ParamsFromFlat(flat)
	if err := g.CheckParams(params); err != nil {
		return err
	}

	g.params = params
	g.solverState = state
	g.state.SetFitted(nFeatures, nSamples, state.Iter, runID)

	logger.Info("fit finished",
		log.OperationKey, log.OperationFit,
		log.IterationKey, state.Iter,
		log.LossKey, state.Value,
		log.GradNormKey, state.GradNorm,
		log.StatusKey, state.Status.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// InitializeSolver validates the data and returns the starting params and
// solver state for a sequence of Update calls.
func (g *GLM) InitializeSolver(X mat.Matrix, y mat.Vector) (model.Params, *solver.State, error) {
	Xv, yv, err := g.prepare("GLM.InitializeSolver", X, y)
	if err != nil {
		return model.Params{}, nil, err
	}
	_, nFeatures := Xv.Dims()
	if err := g.checkRegularizerShape(nFeatures); err != nil {
		return model.Params{}, nil, err
	}
	if _, err := g.InstantiateSolver(lossProblem(g.observation)); err != nil {
		return model.Params{}, nil, err
	}
	x0 := g.initialParams(yv, nFeatures)
	state, err := g.SolverInitState()(x0.Flatten(), solver.Data{X: Xv, Y: yv})
	if err != nil {
		return model.Params{}, nil, err
	}
	return x0, state, nil
}

// Update runs a single solver step from params and state. The arguments
// are not modified; the returned params are also installed as the model's
// fitted parameters.
func (g *GLM) Update(params model.Params, state *solver.State, X mat.Matrix, y mat.Vector) (model.Params, *solver.State, error) {
	if err := g.CheckParams(params); err != nil {
		return model.Params{}, nil, err
	}
	Xv, yv, err := g.prepare("GLM.Update", X, y)
	if err != nil {
		return model.Params{}, nil, err
	}
	if err := g.CheckInputAndParamsConsistency(params, Xv, yv); err != nil {
		return model.Params{}, nil, err
	}
	nSamples, nFeatures := Xv.Dims()
	if err := g.checkRegularizerShape(nFeatures); err != nil {
		return model.Params{}, nil, err
	}
	if err := g.bindSolver(); err != nil {
		return model.Params{}, nil, err
	}
	if state == nil {
		if state, err = g.SolverInitState()(params.Flatten(), solver.Data{X: Xv, Y: yv}); err != nil {
			return model.Params{}, nil, err
		}
	}

	flat, next, err := g.SolverUpdate()(params.Flatten(), state, solver.Data{X: Xv, Y: yv})
	if err != nil {
		return model.Params{}, nil, err
	}
	out := model.ParamsFromFlat(flat)

	g.params = out.Clone()
	g.solverState = next.Clone()
	st := g.state.GetState()
	runID := st.RunID
	if runID == "" {
		runID = log.NewRunID()
	}
	g.state.SetFitted(nFeatures, st.NSamples, st.NIter, runID)
	g.state.AddSamples(nSamples, 1)

	if g.logger.Enabled(context.Background(), log.LevelDebug) {
		g.logger.Debug("update",
			log.OperationKey, log.OperationUpdate,
			log.RunIDKey, runID,
			log.IterationKey, next.Iter,
			log.LossKey, next.Value,
			log.GradNormKey, next.GradNorm,
		)
	}
	return out, next, nil
}

// PredictAndComputeLoss returns the penalized loss at params.
func (g *GLM) PredictAndComputeLoss(params model.Params, X mat.Matrix, y mat.Vector) (float64, error) {
	if err := g.CheckParams(params); err != nil {
		return 0, err
	}
	Xv, yv, err := g.prepare("GLM.PredictAndComputeLoss", X, y)
	if err != nil {
		return 0, err
	}
	if err := g.CheckInputAndParamsConsistency(params, Xv, yv); err != nil {
		return 0, err
	}
	loss := lossProblem(g.observation).Func(params.Flatten(), solver.Data{X: Xv, Y: yv})
	return loss + g.Regularizer().Penalty(params.Coef, g.RegularizerStrength()), nil
}

// FitStream は batches を順に Update に流す。
// チャネルが閉じられるか ctx が終了するまで続ける。
// エラーで戻った後は batches を読まないので、送信側は ctx か
// stream.Pipeline.Stop で止めること。
func (g *GLM) FitStream(ctx context.Context, batches <-chan *model.Batch) error {
	var (
		params model.Params
		state  *solver.State
		n      int
	)
	if g.state.IsFitted() {
		params = g.params.Clone()
		state = g.solverState.Clone()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				g.logger.Info("stream finished",
					log.OperationKey, log.OperationStream,
					"batches", n,
				)
				return nil
			}
			if batch == nil {
				continue
			}
			var err error
			if params.IsZero() {
				if params, state, err = g.InitializeSolver(batch.X, batch.Y); err != nil {
					return err
				}
			}
			if params, state, err = g.Update(params, state, batch.X, batch.Y); err != nil {
				return err
			}
			n++
		}
	}
}
