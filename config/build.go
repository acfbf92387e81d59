package config

import (
	"sort"

	"github.com/YuminosukeSato/glmgo/basis"
	"github.com/YuminosukeSato/glmgo/glm"
	"github.com/YuminosukeSato/glmgo/observation"
)

type leafBuilder func(b *BasisConfig, opts []basis.Option) (basis.Basis, error)

var leafBuilders = map[string]leafBuilder{
	"BSpline": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewBSpline(b.NBasisFuncs, opts...)
	},
	"MSpline": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewMSpline(b.NBasisFuncs, opts...)
	},
	"CyclicBSpline": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewCyclicBSpline(b.NBasisFuncs, opts...)
	},
	"RaisedCosineLinear": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewRaisedCosineLinear(b.NBasisFuncs, opts...)
	},
	"RaisedCosineLog": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewRaisedCosineLog(b.NBasisFuncs, opts...)
	},
	"OrthExponential": func(b *BasisConfig, opts []basis.Option) (basis.Basis, error) {
		return basis.NewOrthExponential(b.NBasisFuncs, b.DecayRates, opts...)
	},
}

// Kinds returns the supported leaf kinds.
func Kinds() []string {
	out := make([]string, 0, len(leafBuilders))
	for k := range leafBuilders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *BasisConfig) options() []basis.Option {
	var opts []basis.Option
	if b.Label != "" {
		opts = append(opts, basis.WithLabel(b.Label))
	}
	if b.Mode != "" {
		opts = append(opts, basis.WithMode(basis.Mode(b.Mode)))
	}
	if b.WindowSize != 0 {
		opts = append(opts, basis.WithWindowSize(b.WindowSize))
	}
	if len(b.Bounds) == 2 {
		opts = append(opts, basis.WithBounds(b.Bounds[0], b.Bounds[1]))
	}
	if b.Order != 0 {
		opts = append(opts, basis.WithOrder(b.Order))
	}
	if b.Width != 0 {
		opts = append(opts, basis.WithWidth(b.Width))
	}
	if b.TimeScaling != 0 {
		opts = append(opts, basis.WithTimeScaling(b.TimeScaling))
	}
	return opts
}

// BuildBasis constructs the basis tree.
func (b *BasisConfig) BuildBasis() (basis.Basis, error) {
	if b.Kind != "" {
		return leafBuilders[b.Kind](b, b.options())
	}
	first, err := b.Children[0].BuildBasis()
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "pow":
		return basis.Pow(first, b.Exponent)
	case "mul":
		second, err := b.Children[1].BuildBasis()
		if err != nil {
			return nil, err
		}
		return basis.Mul(first, second), nil
	default:
		second, err := b.Children[1].BuildBasis()
		if err != nil {
			return nil, err
		}
		return basis.Add(first, second), nil
	}
}

// GLMOptions translates the model section into glm options.
func (m *ModelConfig) GLMOptions() ([]glm.Option, error) {
	obs, err := observation.New(m.Observation)
	if err != nil {
		return nil, err
	}
	if g, ok := obs.(*observation.Gamma); ok && m.ObservationShape > 0 {
		g.Shape = m.ObservationShape
	}
	opts := []glm.Option{glm.WithObservationModel(obs)}
	if m.Regularizer != "" {
		opts = append(opts, glm.WithRegularizer(m.Regularizer))
	}
	if m.RegularizerStrength != nil {
		opts = append(opts, glm.WithRegularizerStrength(*m.RegularizerStrength))
	}
	if m.SolverName != "" {
		opts = append(opts, glm.WithSolverName(m.SolverName))
	}
	if len(m.SolverKwargs) > 0 {
		opts = append(opts, glm.WithSolverKwargs(m.SolverKwargs))
	}
	if m.ScoreType != "" {
		opts = append(opts, glm.WithScoreType(m.ScoreType))
	}
	return opts, nil
}
