package glm

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/parallel"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

// Predict は発火率（平均応答）を返す。NaN を含む行の予測は NaN になる。
func (g *GLM) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := g.state.RequireFitted("GLM", "Predict"); err != nil {
		return nil, err
	}
	if err := g.CheckInputDimensionality(X, nil); err != nil {
		return nil, err
	}
	if err := g.CheckInputAndParamsConsistency(g.params, X, nil); err != nil {
		return nil, err
	}

	eta := g.params.LinearPredictor(X)
	n := eta.Len()
	rates := mat.NewVecDense(n, nil)
	parallel.ParallelizeWithThreshold(n, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			rates.SetVec(i, g.observation.InverseLink(eta.AtVec(i)))
		}
	})
	return rates, nil
}

// Score は ScoreType に応じて平均対数尤度または擬似決定係数を返す
func (g *GLM) Score(X mat.Matrix, y mat.Vector) (float64, error) {
	if err := g.state.RequireFitted("GLM", "Score"); err != nil {
		return 0, err
	}
	Xv, yv, err := g.prepare("GLM.Score", X, y)
	if err != nil {
		return 0, err
	}
	rates, err := g.Predict(Xv)
	if err != nil {
		return 0, err
	}
	obs, pred := yv.RawVector().Data, rates.RawVector().Data

	var score float64
	switch g.scoreType {
	case ScoreLogLikelihood:
		score = g.observation.LogLikelihood(obs, pred) / float64(len(obs))
	case ScorePseudoR2McFadden:
		score, err = observation.PseudoR2(g.observation, obs, pred, observation.McFadden)
	case ScorePseudoR2Cohen:
		score, err = observation.PseudoR2(g.observation, obs, pred, observation.Cohen)
	default:
		err = errors.NewConfigurationError("score type", g.scoreType, scoreTypes)
	}
	if err != nil {
		return 0, err
	}
	g.logger.Debug("score",
		log.OperationKey, log.OperationScore,
		log.ScoreKey, score,
		"score_type", g.scoreType,
	)
	return score, nil
}

// Simulate draws responses from the fitted model at X. It returns the
// sampled responses and the firing rates they were drawn from. A row
// whose rate is NaN (for example a NaN input) gets a NaN response.
func (g *GLM) Simulate(src rand.Source, X mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	if src == nil {
		return nil, nil, errors.NewValueError("GLM.Simulate", "random source must not be nil")
	}
	rates, err := g.Predict(X)
	if err != nil {
		return nil, nil, err
	}
	samples := g.observation.Sample(src, rates.RawVector().Data)
	return mat.NewVecDense(len(samples), samples), rates, nil
}
