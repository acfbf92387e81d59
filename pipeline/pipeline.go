// Package pipeline chains transformers with a final regressor and provides
// model selection: k-fold splitting, cross-validated scoring and grid search.
//
// Parameters of a step are addressed as "step__param", so a grid over a
// pipeline can reach into the basis and the GLM alike:
//
//	grid := map[string][]interface{}{
//	    "basis__n_basis_funcs":    {5, 10, 20},
//	    "glm__regularizer_strength": {0.01, 0.1},
//	}
package pipeline

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Estimator is what model selection needs: fit, score, introspect and clone.
type Estimator interface {
	model.Estimator
	model.Scorer
	model.Cloner
}

// Step is one named transformer.
type Step struct {
	Name        string
	Transformer model.TransformerStep
}

// Pipeline applies its transformers in order, then the final regressor.
type Pipeline struct {
	steps     []Step
	finalName string
	final     model.Regressor
}

// NewPipeline builds a pipeline. Step names must be unique, non-empty and
// must not contain "__".
func NewPipeline(steps []Step, finalName string, final model.Regressor) (*Pipeline, error) {
	if final == nil {
		return nil, errors.NewValueError("pipeline.NewPipeline", "final estimator must not be nil")
	}
	seen := map[string]bool{}
	names := make([]string, 0, len(steps)+1)
	for _, s := range steps {
		if s.Transformer == nil {
			return nil, errors.NewValidationError(s.Name, "transformer must not be nil", nil)
		}
		names = append(names, s.Name)
	}
	names = append(names, finalName)
	for _, n := range names {
		if n == "" || strings.Contains(n, "__") {
			return nil, errors.NewValidationError("step name", "must be non-empty and must not contain \"__\"", n)
		}
		if seen[n] {
			return nil, errors.NewValidationError("step name", "duplicate", n)
		}
		seen[n] = true
	}
	return &Pipeline{steps: append([]Step(nil), steps...), finalName: finalName, final: final}, nil
}

// Steps returns the transformer steps.
func (p *Pipeline) Steps() []Step { return append([]Step(nil), p.steps...) }

// Final returns the final regressor.
func (p *Pipeline) Final() model.Regressor { return p.final }

// Fit fits each transformer on the output of the previous one, then the regressor.
func (p *Pipeline) Fit(X mat.Matrix, y mat.Vector) error {
	cur := X
	for _, s := range p.steps {
		out, err := s.Transformer.FitTransform(cur)
		if err != nil {
			return errors.Wrapf(err, "pipeline step %q", s.Name)
		}
		cur = out
	}
	return p.final.Fit(cur, y)
}

// Transform runs X through the fitted transformers.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	cur := X
	for _, s := range p.steps {
		out, err := s.Transformer.Transform(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", s.Name)
		}
		cur = out
	}
	return cur, nil
}

// Predict transforms X and predicts with the final regressor.
func (p *Pipeline) Predict(X mat.Matrix) (*mat.VecDense, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.final.Predict(Xt)
}

// Score transforms X and scores with the final regressor.
func (p *Pipeline) Score(X mat.Matrix, y mat.Vector) (float64, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return 0, err
	}
	return p.final.Score(Xt, y)
}

func (p *Pipeline) stepParams(name string) (model.ParameterGetter, model.ParameterSetter, bool) {
	if name == p.finalName {
		return p.final, p.final, true
	}
	for _, s := range p.steps {
		if s.Name == name {
			return s.Transformer, s.Transformer, true
		}
	}
	return nil, nil, false
}

// GetParams returns every step under its name and every step parameter as step__param.
func (p *Pipeline) GetParams() map[string]interface{} {
	out := map[string]interface{}{p.finalName: p.final}
	for k, v := range p.final.GetParams() {
		out[p.finalName+"__"+k] = v
	}
	for _, s := range p.steps {
		out[s.Name] = s.Transformer
		for k, v := range s.Transformer.GetParams() {
			out[s.Name+"__"+k] = v
		}
	}
	return out
}

// SetParams routes step__param keys to their step. A bare step name
// replaces the step. If any key is rejected, replaced steps and steps
// already updated are restored.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	savedSteps := append([]Step(nil), p.steps...)
	savedFinal := p.final
	restore := func() {
		p.steps = savedSteps
		p.final = savedFinal
	}

	nested := map[string]map[string]interface{}{}
	var order []string
	for key, value := range params {
		name, sub, isNested := strings.Cut(key, "__")
		if _, _, ok := p.stepParams(name); !ok {
			restore()
			return errors.NewValidationError(key, "unknown pipeline step", value)
		}
		if !isNested {
			if err := p.replaceStep(name, value); err != nil {
				restore()
				return err
			}
			continue
		}
		if nested[name] == nil {
			nested[name] = map[string]interface{}{}
			order = append(order, name)
		}
		nested[name][sub] = value
	}

	done := map[string]map[string]interface{}{}
	for _, name := range order {
		getter, setter, _ := p.stepParams(name)
		before := getter.GetParams()
		if err := setter.SetParams(nested[name]); err != nil {
			for n, saved := range done {
				_, s, _ := p.stepParams(n)
				_ = s.SetParams(saved)
			}
			restore()
			return errors.Wrapf(err, "pipeline step %q", name)
		}
		done[name] = before
	}
	return nil
}

func (p *Pipeline) replaceStep(name string, value interface{}) error {
	if name == p.finalName {
		r, ok := value.(model.Regressor)
		if !ok {
			return errors.NewValidationError(name, "must be a model.Regressor", value)
		}
		p.final = r
		return nil
	}
	t, ok := value.(model.TransformerStep)
	if !ok {
		return errors.NewValidationError(name, "must be a model.TransformerStep", value)
	}
	for i := range p.steps {
		if p.steps[i].Name == name {
			p.steps[i].Transformer = t
		}
	}
	return nil
}

// Clone returns an unfitted copy of every step.
func (p *Pipeline) Clone() model.Estimator {
	steps := make([]Step, len(p.steps))
	for i, s := range p.steps {
		steps[i] = Step{Name: s.Name, Transformer: s.Transformer.CloneTransformer()}
	}
	final, ok := p.final.Clone().(model.Regressor)
	if !ok {
		panic("pipeline: final estimator clone is not a model.Regressor")
	}
	return &Pipeline{steps: steps, finalName: p.finalName, final: final}
}

var _ Estimator = (*Pipeline)(nil)
