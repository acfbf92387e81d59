// Package glm implements a generalized linear model with a log link,
// the canonical concrete model.Regressor.
//
//	g, _ := glm.NewGLM(glm.WithRegularizer("Ridge"), glm.WithRegularizerStrength(0.1))
//	if err := g.Fit(X, y); err != nil { ... }
//	rates, _ := g.Predict(X)
package glm

import (
	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
	"github.com/YuminosukeSato/glmgo/regressor"
	"github.com/YuminosukeSato/glmgo/solver"
)

// スコアの種類
const (
	ScoreLogLikelihood    = "log-likelihood"
	ScorePseudoR2McFadden = "pseudo-r2-McFadden"
	ScorePseudoR2Cohen    = "pseudo-r2-Cohen"
)

var scoreTypes = []string{ScoreLogLikelihood, ScorePseudoR2McFadden, ScorePseudoR2Cohen}

// GLM は log リンクの一般化線形モデル
type GLM struct {
	*regressor.BaseRegressor

	observation observation.Model
	scoreType   string

	state        *model.StateManager
	params       model.Params
	solverState  *solver.State
	featureNames []string

	logger log.Logger
}

// Option configures a GLM.
type Option func(*options)

type options struct {
	base        []regressor.Option
	observation interface{}
	scoreType   string
}

// WithObservationModel accepts an observation.Model or a registry key
// ("Poisson", "Gamma"). Default Poisson.
func WithObservationModel(m interface{}) Option {
	return func(o *options) {
		o.observation = m
	}
}

// WithScoreType selects what Score returns. Default log-likelihood.
func WithScoreType(scoreType string) Option {
	return func(o *options) {
		o.scoreType = scoreType
	}
}

// WithRegularizer accepts a regularizer or a registry key.
func WithRegularizer(r interface{}) Option {
	return func(o *options) {
		o.base = append(o.base, regressor.WithRegularizer(r))
	}
}

// WithRegularizerStrength sets the penalty multiplier.
func WithRegularizerStrength(strength float64) Option {
	return func(o *options) {
		o.base = append(o.base, regressor.WithRegularizerStrength(strength))
	}
}

// WithSolverName selects the solver backend.
func WithSolverName(name string) Option {
	return func(o *options) {
		o.base = append(o.base, regressor.WithSolverName(name))
	}
}

// WithSolverKwargs passes options such as maxiter and tol to the solver.
func WithSolverKwargs(kwargs map[string]interface{}) Option {
	return func(o *options) {
		o.base = append(o.base, regressor.WithSolverKwargs(kwargs))
	}
}

// NewGLM は新しい GLM を作成する
func NewGLM(opts ...Option) (*GLM, error) {
	o := &options{scoreType: ScoreLogLikelihood}
	for _, opt := range opts {
		opt(o)
	}
	base, err := regressor.NewBaseRegressor(o.base...)
	if err != nil {
		return nil, err
	}
	obs, err := observation.Resolve(o.observation)
	if err != nil {
		return nil, err
	}
	if err := checkScoreType(o.scoreType); err != nil {
		return nil, err
	}
	g := &GLM{
		BaseRegressor: base,
		observation:   obs,
		scoreType:     o.scoreType,
		state:         model.NewStateManager(),
		logger:        log.GetLoggerWithName("glm").With(log.ModelNameKey, "GLM"),
	}
	g.registerParams()
	return g, nil
}

func checkScoreType(s string) error {
	for _, t := range scoreTypes {
		if s == t {
			return nil
		}
	}
	return errors.NewConfigurationError("score type", s, scoreTypes)
}

// registerParams exposes the GLM-specific hyperparameters through the
// inherited GetParams/SetParams.
func (g *GLM) registerParams() {
	g.RegisterParam("observation_model", regressor.Param{
		Get: func() interface{} { return g.observation },
		Set: func(v interface{}) error {
			m, err := observation.Resolve(v)
			if err != nil {
				return err
			}
			g.observation = m
			return nil
		},
	})
	g.RegisterParam("score_type", regressor.Param{
		Get: func() interface{} { return g.scoreType },
		Set: func(v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return errors.NewValidationError("score_type", "must be a string", v)
			}
			if err := checkScoreType(s); err != nil {
				return err
			}
			g.scoreType = s
			return nil
		},
	})
}

// ObservationModel returns the noise model.
func (g *GLM) ObservationModel() observation.Model { return g.observation }

// ScoreType returns the score Score computes.
func (g *GLM) ScoreType() string { return g.scoreType }

// SolverState returns the state of the last Fit or Update, nil before fitting.
func (g *GLM) SolverState() *solver.State { return g.solverState.Clone() }

// IsFitted reports whether the model has coefficients.
func (g *GLM) IsFitted() bool { return g.state.IsFitted() }

// NIter returns the number of solver iterations run so far.
func (g *GLM) NIter() int { return g.state.GetState().NIter }

// SetFeatureNames attaches column names, carried into exported weights.
func (g *GLM) SetFeatureNames(names []string) {
	g.featureNames = append([]string(nil), names...)
}

// Clone returns an unfitted GLM with the same hyperparameters.
func (g *GLM) Clone() model.Estimator {
	c, err := NewGLM()
	if err != nil {
		panic(err)
	}
	if err := c.SetParams(g.GetParams()); err != nil {
		panic(err)
	}
	return c
}

// GetCoefAndIntercept returns a copy of the fitted parameters.
func (g *GLM) GetCoefAndIntercept() (model.Params, error) {
	if err := g.state.RequireFitted("GLM", "GetCoefAndIntercept"); err != nil {
		return model.Params{}, err
	}
	return g.params.Clone(), nil
}

// SetCoefAndIntercept installs params as the fitted parameters.
func (g *GLM) SetCoefAndIntercept(params model.Params) error {
	if err := g.CheckParams(params); err != nil {
		return err
	}
	g.params = params.Clone()
	st := g.state.GetState()
	g.state.SetFitted(len(params.Coef), st.NSamples, st.NIter, st.RunID)
	return nil
}

var (
	_ model.Regressor          = (*GLM)(nil)
	_ model.WeightExporter     = (*GLM)(nil)
	_ model.StreamingEstimator = (*GLM)(nil)
)
