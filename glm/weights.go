package glm

import (
	"encoding/gob"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/regularizer"
)

const modelType = "GLM"

func init() {
	// GroupLasso のマスク
	gob.Register([][]float64{})
}

// ExportWeights は学習済みの係数とハイパーパラメータを書き出す
func (g *GLM) ExportWeights() (*model.ModelWeights, error) {
	if err := g.state.RequireFitted("GLM", "ExportWeights"); err != nil {
		return nil, err
	}
	hp := map[string]interface{}{
		"regularizer":          g.Regularizer().Name(),
		"regularizer_strength": g.RegularizerStrength(),
		"solver_name":          string(g.SolverName()),
		"solver_kwargs":        g.SolverKwargs(),
		"observation_model":    g.observation.Name(),
		"score_type":           g.scoreType,
	}
	if gl, ok := g.Regularizer().(*regularizer.GroupLasso); ok {
		hp["regularizer_mask"] = gl.Mask
	}
	if gm, ok := g.observation.(*observation.Gamma); ok {
		hp["observation_shape"] = gm.Shape
	}

	st := g.state.GetState()
	meta := map[string]interface{}{"run_id": st.RunID}
	if g.solverState != nil {
		meta["loss"] = g.solverState.Value
		meta["converged"] = g.solverState.Converged
	}
	w := &model.ModelWeights{
		ModelType:       modelType,
		Version:         model.WeightsVersion,
		Coefficients:    append([]float64(nil), g.params.Coef...),
		Intercept:       g.params.Intercept,
		Features:        append([]string(nil), g.featureNames...),
		Hyperparameters: hp,
		Metadata:        meta,
		State:           st,
	}
	w.Seal()
	return w, nil
}

// ImportWeights restores a model written by ExportWeights.
func (g *GLM) ImportWeights(w *model.ModelWeights) error {
	if w == nil {
		return errors.NewValueError("GLM.ImportWeights", "weights must not be nil")
	}
	if w.ModelType != modelType {
		return errors.NewValidationError("model_type", "expected "+modelType, w.ModelType)
	}
	if err := w.Validate(); err != nil {
		return err
	}

	params := map[string]interface{}{}
	for _, key := range []string{"regularizer_strength", "solver_name", "solver_kwargs", "score_type"} {
		if v, ok := w.Hyperparameters[key]; ok {
			params[key] = v
		}
	}
	if name, ok := w.Hyperparameters["regularizer"].(string); ok {
		params["regularizer"] = name
		if mask, ok := w.Hyperparameters["regularizer_mask"].([][]float64); ok {
			gl, err := regularizer.NewGroupLasso(mask)
			if err != nil {
				return err
			}
			params["regularizer"] = gl
		}
	}
	if name, ok := w.Hyperparameters["observation_model"].(string); ok {
		params["observation_model"] = name
		if shape, ok := w.Hyperparameters["observation_shape"].(float64); ok && name == "Gamma" {
			params["observation_model"] = observation.NewGamma(shape)
		}
	}
	if err := g.SetParams(params); err != nil {
		return err
	}

	g.state.SetState(w.State)
	g.params = model.Params{Coef: append([]float64(nil), w.Coefficients...), Intercept: w.Intercept}
	g.featureNames = append([]string(nil), w.Features...)
	g.solverState = nil
	return nil
}

// SaveModel writes the fitted model to path, compressed with codec.
func (g *GLM) SaveModel(path string, codec model.Codec) error {
	w, err := g.ExportWeights()
	if err != nil {
		return err
	}
	return model.SaveModel(w, path, codec)
}

// LoadModel reads a model written by SaveModel.
func (g *GLM) LoadModel(path string) error {
	var w model.ModelWeights
	if err := model.LoadModel(&w, path); err != nil {
		return err
	}
	return g.ImportWeights(&w)
}
