package pipeline

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/basis"
	"github.com/YuminosukeSato/glmgo/glm"
	"github.com/YuminosukeSato/glmgo/metrics"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/preprocessing"
)

// placeData は位置 x ∈ [0, 1) に対する Poisson スパイク数
func placeData(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	src := rand.NewPCG(seed, 11)
	rng := rand.New(src)
	X := mat.NewDense(n, 1, nil)
	rates := make([]float64, n)
	for i := 0; i < n; i++ {
		x := rng.Float64()
		X.Set(i, 0, x)
		rates[i] = math.Exp(0.5 + math.Sin(2*math.Pi*x))
	}
	y := observation.NewPoisson().Sample(src, rates)
	return X, mat.NewVecDense(n, y)
}

func newBasisPipeline(t *testing.T) *Pipeline {
	t.Helper()
	b, err := basis.NewBSpline(6, basis.WithBounds(0, 1))
	require.NoError(t, err)
	g, err := glm.NewGLM(glm.WithRegularizer("Ridge"), glm.WithRegularizerStrength(0.001))
	require.NoError(t, err)
	p, err := NewPipeline([]Step{{Name: "basis", Transformer: basis.NewTransformerBasis(b)}}, "glm", g)
	require.NoError(t, err)
	return p
}

func TestKFoldSplit(t *testing.T) {
	folds, err := NewKFold(3).Split(10)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	sizes := []int{len(folds[0].Test), len(folds[1].Test), len(folds[2].Test)}
	assert.Equal(t, []int{4, 3, 3}, sizes)

	var all []int
	for _, f := range folds {
		assert.Len(t, f.Train, 10-len(f.Test))
		all = append(all, f.Test...)
	}
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].Test)
}

func TestKFoldShuffleIsSeeded(t *testing.T) {
	k := KFold{NSplits: 4, Shuffle: true, Seed: 42}
	a, err := k.Split(20)
	require.NoError(t, err)
	b, err := k.Split(20)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var all []int
	for _, f := range a {
		all = append(all, f.Test...)
	}
	sort.Ints(all)
	assert.Len(t, all, 20)
	assert.Equal(t, 0, all[0])
	assert.Equal(t, 19, all[19])
}

func TestKFoldErrors(t *testing.T) {
	_, err := NewKFold(1).Split(10)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = NewKFold(5).Split(3)
	assert.Error(t, err)
}

func TestNewPipelineRejectsBadNames(t *testing.T) {
	g, err := glm.NewGLM()
	require.NoError(t, err)
	s := preprocessing.NewStandardScalerDefault()

	_, err = NewPipeline([]Step{{Name: "a__b", Transformer: s}}, "glm", g)
	assert.Error(t, err)
	_, err = NewPipeline([]Step{{Name: "glm", Transformer: s}}, "glm", g)
	assert.Error(t, err)
	_, err = NewPipeline(nil, "glm", nil)
	assert.Error(t, err)
}

func TestPipelineFitPredictScore(t *testing.T) {
	X, y := placeData(2000, 1)
	p := newBasisPipeline(t)
	require.NoError(t, p.Fit(X, y))

	grid := mat.NewDense(3, 1, []float64{0.25, 0.5, 0.75})
	rates, err := p.Predict(grid)
	require.NoError(t, err)
	// 真のレート exp(0.5 + sin(2πx))
	assert.InDelta(t, math.Exp(1.5), rates.AtVec(0), 0.8)
	assert.InDelta(t, math.Exp(0.5), rates.AtVec(1), 0.5)
	assert.InDelta(t, math.Exp(-0.5), rates.AtVec(2), 0.3)

	score, err := p.Score(X, y)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(score))
}

func TestPipelineParams(t *testing.T) {
	p := newBasisPipeline(t)
	params := p.GetParams()
	assert.Equal(t, 6, params["basis__n_basis_funcs"])
	assert.Equal(t, 0.001, params["glm__regularizer_strength"])

	require.NoError(t, p.SetParams(map[string]interface{}{
		"basis__n_basis_funcs":      8,
		"glm__regularizer_strength": 0.1,
	}))
	params = p.GetParams()
	assert.Equal(t, 8, params["basis__n_basis_funcs"])
	assert.Equal(t, 0.1, params["glm__regularizer_strength"])

	err := p.SetParams(map[string]interface{}{"nope__x": 1})
	assert.Error(t, err)
}

func TestPipelineSetParamsRollsBack(t *testing.T) {
	p := newBasisPipeline(t)
	err := p.SetParams(map[string]interface{}{
		"basis__n_basis_funcs":      9,
		"glm__regularizer_strength": -1.0,
	})
	require.Error(t, err)
	params := p.GetParams()
	assert.Equal(t, 6, params["basis__n_basis_funcs"])
	assert.Equal(t, 0.001, params["glm__regularizer_strength"])
}

func TestPipelineCloneIsIndependent(t *testing.T) {
	p := newBasisPipeline(t)
	c := p.Clone().(*Pipeline)
	require.NoError(t, c.SetParams(map[string]interface{}{"basis__n_basis_funcs": 10}))
	assert.Equal(t, 6, p.GetParams()["basis__n_basis_funcs"])
	assert.Equal(t, 10, c.GetParams()["basis__n_basis_funcs"])
}

func TestCrossValScore(t *testing.T) {
	X, y := placeData(600, 2)
	p := newBasisPipeline(t)
	scores, err := CrossValScore(context.Background(), p, X, y, NewKFold(3), 2)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.False(t, math.IsNaN(s))
	}
	// 元の推定器は学習されない
	assert.False(t, p.Final().(*glm.GLM).IsFitted())
}

func TestCandidatesDeduplicates(t *testing.T) {
	c, prints := Candidates(map[string][]interface{}{
		"a": {1, 2, 1},
		"b": {"x"},
	})
	assert.Len(t, c, 2)
	assert.Len(t, prints, 2)
	assert.NotEqual(t, prints[0], prints[1])
	assert.Equal(t, Fingerprint(map[string]interface{}{"b": "x", "a": 1}), prints[0])
}

func TestGridSearchCV(t *testing.T) {
	X, y := placeData(600, 3)
	gs := NewGridSearchCV(newBasisPipeline(t), map[string][]interface{}{
		"basis__n_basis_funcs":      {5, 8},
		"glm__regularizer_strength": {0.001, 0.01},
	})
	gs.CV = NewKFold(3)
	gs.Workers = 4
	require.NoError(t, gs.Fit(context.Background(), X, y))

	require.Len(t, gs.Results, 4)
	ranks := map[int]bool{}
	for _, r := range gs.Results {
		assert.Len(t, r.FoldScores, 3)
		ranks[r.Rank] = true
		if r.Rank == 1 {
			assert.Equal(t, gs.BestScore, r.MeanScore)
		}
	}
	assert.Len(t, ranks, 4)
	require.NotNil(t, gs.BestEstimator)

	_, err := gs.BestEstimator.Score(X, y)
	assert.NoError(t, err)
}

func TestGridSearchCVRejectsInvalidCandidate(t *testing.T) {
	X, y := placeData(100, 4)
	gs := NewGridSearchCV(newBasisPipeline(t), map[string][]interface{}{
		"glm__regularizer_strength": {0.1, -1.0},
	})
	gs.CV = NewKFold(2)
	assert.Error(t, gs.Fit(context.Background(), X, y))
	assert.Nil(t, gs.Results)
}

func TestPipelineSetParamsRoundTrip(t *testing.T) {
	p := newBasisPipeline(t)
	before := p.GetParams()
	require.NoError(t, p.SetParams(before))
	assert.Equal(t, before, p.GetParams())
}

func TestPipelineSetParamsRestoresReplacedStep(t *testing.T) {
	p := newBasisPipeline(t)
	oldBasis := p.GetParams()["basis"]
	oldFinal := p.Final()

	nb, err := basis.NewBSpline(12, basis.WithBounds(0, 1))
	require.NoError(t, err)
	ng, err := glm.NewGLM()
	require.NoError(t, err)

	// 置き換えの後で別のキーが失敗する
	err = p.SetParams(map[string]interface{}{
		"basis":                     basis.NewTransformerBasis(nb),
		"glm":                       ng,
		"glm__regularizer_strength": -1.0,
	})
	require.Error(t, err)
	assert.Same(t, oldBasis, p.GetParams()["basis"])
	assert.Same(t, oldFinal, p.Final())
	assert.Equal(t, 6, p.GetParams()["basis__n_basis_funcs"])

	err = p.SetParams(map[string]interface{}{
		"basis": basis.NewTransformerBasis(nb),
		"glm":   "not a regressor",
	})
	require.Error(t, err)
	assert.Same(t, oldBasis, p.GetParams()["basis"])
	assert.Same(t, oldFinal, p.Final())

	require.NoError(t, p.SetParams(map[string]interface{}{"basis": basis.NewTransformerBasis(nb)}))
	assert.Equal(t, 12, p.GetParams()["basis__n_basis_funcs"])
}

func TestCrossValScoreWithScoring(t *testing.T) {
	X, y := placeData(600, 6)
	p := newBasisPipeline(t)
	cv := NewKFold(3)
	scores, err := CrossValScoreWithScoring(context.Background(), p, X, y, cv, 2, "r2")
	require.NoError(t, err)
	require.Len(t, scores, 3)

	folds, err := cv.Split(600)
	require.NoError(t, err)
	c := p.Clone().(*Pipeline)
	Xtr, ytr := selectRows(X, y, folds[0].Train)
	require.NoError(t, c.Fit(Xtr, ytr))
	Xte, yte := selectRows(X, y, folds[0].Test)
	pred, err := c.Predict(Xte)
	require.NoError(t, err)
	want, err := metrics.R2Score(yte, pred)
	require.NoError(t, err)
	assert.InDelta(t, want, scores[0], 1e-9)

	mse, err := CrossValScoreWithScoring(context.Background(), p, X, y, cv, 2, "neg_mean_squared_error")
	require.NoError(t, err)
	for _, s := range mse {
		assert.Less(t, s, 0.0)
	}

	_, err = CrossValScoreWithScoring(context.Background(), p, X, y, cv, 2, "accuracy")
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestGridSearchCVScoring(t *testing.T) {
	X, y := placeData(600, 5)
	gs := NewGridSearchCV(newBasisPipeline(t), map[string][]interface{}{
		"glm__regularizer_strength": {0.001, 100.0},
	})
	gs.CV = NewKFold(3)
	gs.Scoring = "neg_mean_poisson_deviance"
	require.NoError(t, gs.Fit(context.Background(), X, y))
	require.Len(t, gs.Results, 2)
	for _, r := range gs.Results {
		for _, s := range r.FoldScores {
			assert.LessOrEqual(t, s, 0.0)
		}
	}
	assert.Equal(t, 0.001, gs.BestParams["glm__regularizer_strength"])

	gs.Scoring = "accuracy"
	gs.Results = nil
	err := gs.Fit(context.Background(), X, y)
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Nil(t, gs.Results)
	assert.Contains(t, Scorings(), "r2")
}
