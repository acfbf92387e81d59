package glm

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
	"github.com/YuminosukeSato/glmgo/regularizer"
	"github.com/YuminosukeSato/glmgo/solver"
)

var (
	trueCoef      = []float64{0.5, -0.3}
	trueIntercept = 0.2
)

// poissonData draws n samples from exp(0.2 + 0.5·x0 - 0.3·x1).
func poissonData(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	src := rand.NewPCG(seed, 7)
	rng := rand.New(src)
	X := mat.NewDense(n, 2, nil)
	rates := make([]float64, n)
	for i := 0; i < n; i++ {
		x0, x1 := 2*rng.Float64()-1, 2*rng.Float64()-1
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		rates[i] = math.Exp(trueIntercept + trueCoef[0]*x0 + trueCoef[1]*x1)
	}
	y := observation.NewPoisson().Sample(src, rates)
	return X, mat.NewVecDense(n, y)
}

func TestFitRecoversCoefficients(t *testing.T) {
	X, y := poissonData(3000, 1)
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))

	p, err := g.GetCoefAndIntercept()
	require.NoError(t, err)
	require.Len(t, p.Coef, 2)
	assert.InDelta(t, trueCoef[0], p.Coef[0], 0.15)
	assert.InDelta(t, trueCoef[1], p.Coef[1], 0.15)
	assert.InDelta(t, trueIntercept, p.Intercept, 0.15)
	assert.True(t, g.SolverState().Converged)

	rates, err := g.Predict(X)
	require.NoError(t, err)
	for i := 0; i < rates.Len(); i++ {
		require.Greater(t, rates.AtVec(i), 0.0)
	}
}

func TestFitChecksInputBeforeSolver(t *testing.T) {
	g, err := NewGLM()
	require.NoError(t, err)

	X := mat.NewDense(10, 2, nil)
	y := mat.NewVecDense(9, nil)
	err = g.Fit(X, y)
	require.Error(t, err)
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))
	assert.Nil(t, g.SolverRun(), "solver must not be instantiated")
	assert.False(t, g.IsFitted())

	// 負のカウントは Poisson の台の外
	yNeg := mat.NewVecDense(10, nil)
	yNeg.SetVec(3, -1)
	require.Error(t, g.Fit(X, yNeg))
	assert.Nil(t, g.SolverRun())
}

func TestUpdateIsPure(t *testing.T) {
	X, y := poissonData(500, 2)
	g, err := NewGLM()
	require.NoError(t, err)

	params, state, err := g.InitializeSolver(X, y)
	require.NoError(t, err)
	coefBefore := append([]float64(nil), params.Coef...)
	interceptBefore := params.Intercept
	iterBefore := state.Iter

	loss0, err := g.PredictAndComputeLoss(params, X, y)
	require.NoError(t, err)

	next, nextState, err := g.Update(params, state, X, y)
	require.NoError(t, err)
	assert.Equal(t, coefBefore, params.Coef)
	assert.Equal(t, interceptBefore, params.Intercept)
	assert.Equal(t, iterBefore, state.Iter)
	assert.Equal(t, iterBefore+1, nextState.Iter)

	for i := 0; i < 10; i++ {
		next, nextState, err = g.Update(next, nextState, X, y)
		require.NoError(t, err)
	}
	loss1, err := g.PredictAndComputeLoss(next, X, y)
	require.NoError(t, err)
	assert.Less(t, loss1, loss0)

	// Update はモデルの係数も更新する
	fitted, err := g.GetCoefAndIntercept()
	require.NoError(t, err)
	assert.Equal(t, next.Coef, fitted.Coef)
}

func TestUpdateRejectsInconsistentParams(t *testing.T) {
	X, y := poissonData(50, 3)
	g, err := NewGLM()
	require.NoError(t, err)

	_, _, err = g.Update(model.NewParams(3, 0), nil, X, y)
	var dim *errors.DimensionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &dim))

	_, _, err = g.Update(model.Params{Coef: []float64{math.NaN(), 0}}, nil, X, y)
	require.Error(t, err)
}

func TestLassoShrinksToZero(t *testing.T) {
	X, y := poissonData(500, 4)
	g, err := NewGLM(
		WithRegularizer("Lasso"),
		WithRegularizerStrength(10),
		WithSolverKwargs(map[string]interface{}{"maxiter": 200}),
	)
	require.NoError(t, err)
	assert.Equal(t, solver.ProximalGradient, g.SolverName())
	require.NoError(t, g.Fit(X, y))

	p, err := g.GetCoefAndIntercept()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, p.Coef)

	mean := 0.0
	for i := 0; i < y.Len(); i++ {
		mean += y.AtVec(i)
	}
	mean /= float64(y.Len())
	assert.InDelta(t, math.Log(mean), p.Intercept, 1e-3)
}

func TestGroupLassoShapeMismatch(t *testing.T) {
	X, y := poissonData(50, 5)
	gl, err := regularizer.NewGroupLasso([][]float64{{1, 1, 0}})
	require.NoError(t, err)
	g, err := NewGLM(WithRegularizer(gl))
	require.NoError(t, err)

	err = g.Fit(X, y)
	var dim *errors.DimensionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &dim))
}

func TestUpdateChecksGroupMaskWidth(t *testing.T) {
	X, y := poissonData(50, 5)
	for _, mask := range [][][]float64{{{1}}, {{1, 1, 0}}} {
		gl, err := regularizer.NewGroupLasso(mask)
		require.NoError(t, err)
		g, err := NewGLM(WithRegularizer(gl))
		require.NoError(t, err)

		_, _, err = g.Update(model.NewParams(2, 0), nil, X, y)
		var dim *errors.DimensionError
		require.Error(t, err, "mask width %d", len(mask[0]))
		assert.True(t, errors.As(err, &dim), "mask width %d: %v", len(mask[0]), err)
		assert.False(t, g.IsFitted())
	}
}

func TestPredictErrors(t *testing.T) {
	g, err := NewGLM()
	require.NoError(t, err)

	_, err = g.Predict(mat.NewDense(3, 2, nil))
	var nf *errors.NotFittedError
	require.Error(t, err)
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, g.SetCoefAndIntercept(model.Params{Coef: []float64{1, 2}, Intercept: 0}))
	_, err = g.Predict(mat.NewDense(3, 3, nil))
	var dim *errors.DimensionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &dim))

	rates, err := g.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rates.AtVec(0), 1e-12)
}

func TestScoreTypes(t *testing.T) {
	X, y := poissonData(1000, 6)
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))

	ll, err := g.Score(X, y)
	require.NoError(t, err)
	assert.Less(t, ll, 0.0)

	for _, st := range []string{ScorePseudoR2McFadden, ScorePseudoR2Cohen} {
		require.NoError(t, g.SetParams(map[string]interface{}{"score_type": st}))
		r2, err := g.Score(X, y)
		require.NoError(t, err)
		assert.Greater(t, r2, 0.0, st)
		assert.Less(t, r2, 1.0, st)
	}

	var cfg *errors.ConfigurationError
	err = g.SetParams(map[string]interface{}{"score_type": "accuracy"})
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfg))
	assert.Equal(t, ScorePseudoR2Cohen, g.ScoreType())
}

func TestSimulate(t *testing.T) {
	X, y := poissonData(200, 7)
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))

	counts, rates, err := g.Simulate(rand.NewPCG(3, 4), X)
	require.NoError(t, err)
	require.Equal(t, 200, counts.Len())
	require.Equal(t, 200, rates.Len())
	for i := 0; i < counts.Len(); i++ {
		c := counts.AtVec(i)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.Equal(t, math.Trunc(c), c)
	}
}

func TestSimulateNaNRow(t *testing.T) {
	X, y := poissonData(60, 7)
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))

	Xn := mat.NewDense(2, 2, []float64{math.NaN(), 0.5, 0.1, -0.2})
	type result struct {
		counts, rates mat.Vector
		err           error
	}
	done := make(chan result, 1)
	go func() {
		c, r, err := g.Simulate(rand.NewPCG(5, 6), Xn)
		done <- result{c, r, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, math.IsNaN(res.rates.AtVec(0)))
		assert.True(t, math.IsNaN(res.counts.AtVec(0)))
		assert.False(t, math.IsNaN(res.counts.AtVec(1)))
	case <-time.After(5 * time.Second):
		t.Fatal("Simulate did not return for a NaN row")
	}
}

func TestParamsRoundTripAndClone(t *testing.T) {
	g, err := NewGLM(
		WithRegularizer("Ridge"),
		WithRegularizerStrength(0.3),
		WithObservationModel("Gamma"),
		WithSolverName("BFGS"),
	)
	require.NoError(t, err)

	before := g.GetParams()
	require.NoError(t, g.SetParams(g.GetParams()))
	assert.Equal(t, before, g.GetParams())

	X, y := poissonData(100, 8)
	c := g.Clone().(*GLM)
	assert.Equal(t, g.GetParams(), c.GetParams())
	assert.False(t, c.IsFitted())

	require.NoError(t, c.SetParams(map[string]interface{}{
		"regularizer_strength": 1.0,
		"observation_model":    "Poisson",
	}))
	assert.Equal(t, 0.3, g.RegularizerStrength())
	assert.Equal(t, "Gamma", g.ObservationModel().Name())
	require.NoError(t, c.Fit(X, y))
	assert.False(t, g.IsFitted())
}

func TestFitDropsNaNRows(t *testing.T) {
	X, y := poissonData(300, 9)
	X.Set(0, 0, math.NaN())
	X.Set(1, 1, math.NaN())
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))
	_, nSamples := g.state.GetDimensions()
	assert.Equal(t, 298, nSamples)

	rates, err := g.Predict(X)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rates.AtVec(0)))

	X.Set(2, 0, math.Inf(1))
	require.Error(t, g.Fit(X, y))
}

func TestFitStream(t *testing.T) {
	g, err := NewGLM()
	require.NoError(t, err)

	batches := make(chan *model.Batch, 3)
	for i := 0; i < 3; i++ {
		X, y := poissonData(200, uint64(10+i))
		batches <- &model.Batch{X: X, Y: y}
	}
	close(batches)
	require.NoError(t, g.FitStream(context.Background(), batches))
	assert.True(t, g.IsFitted())
	assert.Equal(t, 3, g.NIter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = g.FitStream(ctx, make(chan *model.Batch))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveAndLoadModel(t *testing.T) {
	X, y := poissonData(400, 20)
	g, err := NewGLM(WithRegularizer("Ridge"), WithRegularizerStrength(0.01))
	require.NoError(t, err)
	g.SetFeatureNames([]string{"x0", "x1"})
	require.NoError(t, g.Fit(X, y))

	path := filepath.Join(t.TempDir(), "glm.glmw")
	require.NoError(t, g.SaveModel(path, model.CodecZstd))

	loaded, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, loaded.LoadModel(path))
	assert.Equal(t, "Ridge", loaded.Regularizer().Name())
	assert.Equal(t, 0.01, loaded.RegularizerStrength())

	want, err := g.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	w, err := loaded.ExportWeights()
	require.NoError(t, err)
	assert.Equal(t, []string{"x0", "x1"}, w.Features)
}

func TestFitLogsRunID(t *testing.T) {
	p, _ := log.NewTestLoggerProvider(log.LevelInfo)
	prev := log.SetProvider(p)
	defer log.SetProvider(prev)

	X, y := poissonData(100, 21)
	g, err := NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X, y))

	assert.True(t, p.Logger().ContainsMessage("fit finished"))
	assert.True(t, p.Logger().ContainsField(log.RunIDKey, g.state.GetState().RunID))
	assert.True(t, p.Logger().ContainsField(log.ModelNameKey, "GLM"))
}
