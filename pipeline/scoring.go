package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/metrics"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// ScoreFunc compares observations with predictions. Higher is better.
type ScoreFunc func(yTrue, yPred mat.Vector) (float64, error)

func negate(f ScoreFunc) ScoreFunc {
	return func(yTrue, yPred mat.Vector) (float64, error) {
		v, err := f(yTrue, yPred)
		return -v, err
	}
}

// scorers maps scoring names to metrics. Losses are negated so that the
// search always maximises.
var scorers = map[string]ScoreFunc{
	"r2":                                 metrics.R2Score,
	"explained_variance":                 metrics.ExplainedVarianceScore,
	"neg_mean_squared_error":             negate(metrics.MSE),
	"neg_root_mean_squared_error":        negate(metrics.RMSE),
	"neg_mean_absolute_error":            negate(metrics.MAE),
	"neg_mean_absolute_percentage_error": negate(metrics.MAPE),
	"neg_mean_poisson_deviance":          negate(metrics.PoissonDeviance),
	"neg_mean_gamma_deviance":            negate(metrics.GammaDeviance),
}

// Scorings returns the accepted scoring names. The empty name uses the
// estimator's own Score.
func Scorings() []string {
	out := make([]string, 0, len(scorers))
	for k := range scorers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookupScorer(scoring string) (ScoreFunc, error) {
	if scoring == "" {
		return nil, nil
	}
	f, ok := scorers[scoring]
	if !ok {
		return nil, errors.NewConfigurationError("scoring", scoring, Scorings())
	}
	return f, nil
}

// score evaluates a fitted estimator on (X, y). With a nil f it defers to
// est.Score; otherwise rows whose observation or prediction is NaN are
// dropped before f is applied.
func score(est Estimator, f ScoreFunc, X mat.Matrix, y mat.Vector) (float64, error) {
	if f == nil {
		return est.Score(X, y)
	}
	p, ok := est.(model.Predictor)
	if !ok {
		return 0, errors.NewTypeError("pipeline.score", "estimator does not implement Predict")
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	if y.Len() != pred.Len() {
		return 0, errors.NewDimensionError("pipeline.score", y.Len(), pred.Len(), 0)
	}
	obs, fit := metrics.DropNaN(y, pred)
	if obs.Len() == 0 {
		return 0, errors.NewValueError("pipeline.score", "every sample contains NaN")
	}
	return f(obs, fit)
}
