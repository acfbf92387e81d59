// Package model defines the contracts shared by every estimator in glmgo:
// the Regressor contract, parameter introspection, transformers, weight
// export and streaming.
package model

import (
	"context"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/solver"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	Fit(X mat.Matrix, y mat.Vector) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// Scorer is implemented by models that can score predictions against observations.
type Scorer interface {
	Score(X mat.Matrix, y mat.Vector) (float64, error)
}

// ParameterGetter exposes constructor-level hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter updates hyperparameters by name.
// SetParams(GetParams()) must leave the object unchanged.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Cloner creates an unfitted copy with identical hyperparameters.
type Cloner interface {
	Clone() Estimator
}

// Estimator is anything that can be fitted and introspected by pipeline tooling.
type Estimator interface {
	Fitter
	ParameterGetter
	ParameterSetter
}

// Regressor is the contract every concrete regression model satisfies.
//
// Fit validates its inputs through the Check* hooks before any solver call.
// Update performs exactly one solver step and returns fresh params and state;
// the caller's params and state are never modified.
type Regressor interface {
	Estimator
	Predictor
	Scorer
	Cloner

	// Simulate draws observations from the fitted model. It returns the
	// sampled responses and the model's mean (firing rate).
	Simulate(src rand.Source, X mat.Matrix) (responses, rates *mat.VecDense, err error)

	// Update runs a single optimization step.
	Update(params Params, state *solver.State, X mat.Matrix, y mat.Vector) (Params, *solver.State, error)

	// InitializeSolver validates the data and returns starting params and
	// solver state, ready for repeated Update calls.
	InitializeSolver(X mat.Matrix, y mat.Vector) (Params, *solver.State, error)

	// PredictAndComputeLoss evaluates the penalized loss at params.
	PredictAndComputeLoss(params Params, X mat.Matrix, y mat.Vector) (float64, error)

	CheckParams(params Params) error
	CheckInputDimensionality(X mat.Matrix, y mat.Vector) error
	CheckInputAndParamsConsistency(params Params, X mat.Matrix, y mat.Vector) error

	GetCoefAndIntercept() (Params, error)
	SetCoefAndIntercept(params Params) error
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error
	// Transform はデータを変換する
	Transform(X mat.Matrix) (*mat.Dense, error)
	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (*mat.Dense, error)
}

// TransformerStep is a transformer usable as a pipeline step: its
// parameters are introspectable and it can produce an unfitted copy.
type TransformerStep interface {
	Transformer
	ParameterGetter
	ParameterSetter
	CloneTransformer() TransformerStep
}

// WeightExporter は重みをエクスポート可能なモデルのインターフェース
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(weights *ModelWeights) error
}

// Batch is one chunk of a training stream.
type Batch struct {
	X mat.Matrix
	Y mat.Vector
}

// StreamingEstimator trains from a channel of batches until the channel is
// closed or ctx is done.
type StreamingEstimator interface {
	FitStream(ctx context.Context, batches <-chan *Batch) error
}
