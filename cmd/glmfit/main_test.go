package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/glmgo/config"
	"github.com/YuminosukeSato/glmgo/glm"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

func TestSimulateSession(t *testing.T) {
	d := config.DataConfig{Samples: 200, Seed: 3, BaseRate: 2}
	s := simulateSession(d, observation.NewPoisson())
	require.Len(t, s.Y, 200)
	for i := range s.Y {
		assert.GreaterOrEqual(t, s.Position[i], 0.0)
		assert.Less(t, s.Position[i], 1.0)
		assert.Less(t, s.Phase[i], 2*math.Pi)
		assert.Greater(t, s.Rate[i], 0.0)
		assert.Equal(t, math.Floor(s.Y[i]), s.Y[i])
	}

	again := simulateSession(d, observation.NewPoisson())
	assert.Equal(t, s.Y, again.Y)
}

func TestDesignColumns(t *testing.T) {
	s := simulateSession(config.DataConfig{Samples: 50, Seed: 1, BaseRate: 1}, observation.NewPoisson())
	X, y := s.design([]string{config.InputSpeed, config.InputPosition}, 10, 20)
	r, c := X.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, s.Speed[10], X.At(0, 0))
	assert.Equal(t, s.Position[19], X.At(9, 1))
	assert.Equal(t, s.Y[15], y.AtVec(5))
}

func TestRunWritesWeights(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "m.glmw")
	cfgPath := filepath.Join(dir, "cfg.yaml")
	yaml := "basis: {kind: BSpline, n_basis_funcs: 6, input: position, bounds: [0, 1]}\n" +
		"model: {regularizer: Ridge, regularizer_strength: 0.001}\n" +
		"data: {samples: 400, seed: 2}\n" +
		"output: {weights: " + weights + ", codec: lz4}\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	provider, _ := log.NewTestLoggerProvider(log.LevelInfo)
	prev := log.SetProvider(provider)
	defer log.SetProvider(prev)

	require.NoError(t, run(cfgPath, log.GetLoggerWithName("glmfit")))
	assert.True(t, provider.Logger().ContainsMessage("held-out evaluation"))
	assert.True(t, provider.Logger().ContainsMessage(`"mse"`))
	assert.True(t, provider.Logger().ContainsMessage(`"r2"`))
	assert.True(t, provider.Logger().ContainsMessage(`"mean_deviance"`))

	g, err := glm.NewGLM()
	require.NoError(t, err)
	require.NoError(t, g.LoadModel(weights))
	p, err := g.GetCoefAndIntercept()
	require.NoError(t, err)
	assert.Len(t, p.Coef, 6)
}

func TestRunRejectsEmptySplit(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := "basis: {kind: BSpline, n_basis_funcs: 4, input: position, bounds: [0, 1]}\n" +
		"data: {samples: 10, test_fraction: 0.95}\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	var err error
	require.NotPanics(t, func() { err = run(cfgPath, log.GetLoggerWithName("glmfit")) })
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr), "%v", err)
	assert.Equal(t, "data.test_fraction", verr.ParamName)
}

func TestHeldOutMetricsSkipsNaNRows(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelInfo)
	logger := provider.Logger()
	y := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	pred := mat.NewVecDense(4, []float64{math.NaN(), 2, 3, 5})

	fields := heldOutMetrics("Poisson", y, pred, logger)
	got := map[string]float64{}
	for i := 0; i+1 < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1].(float64)
	}
	require.Len(t, got, 3)
	assert.InDelta(t, 1.0/3, got["mse"], 1e-12)
	assert.False(t, math.IsNaN(got["r2"]))
	assert.False(t, math.IsNaN(got["mean_deviance"]))

	// Gamma deviance は 0 の応答を受け付けない
	fields = heldOutMetrics("Gamma", mat.NewVecDense(2, []float64{0, 1}), mat.NewVecDense(2, []float64{1, 1}), logger)
	assert.Len(t, fields, 4)
	assert.True(t, logger.ContainsMessage("held-out metric skipped"))
}
