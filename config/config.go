// Package config は glmfit の YAML 設定を読み込み、検証し、basis と GLM を組み立てる。
//
//	basis:
//	  op: add
//	  children:
//	    - {kind: CyclicBSpline, n_basis_funcs: 8, input: position}
//	    - {kind: RaisedCosineLinear, n_basis_funcs: 5, input: speed}
//	model:
//	  observation: Poisson
//	  regularizer: Ridge
//	  regularizer_strength: 0.01
//	data:
//	  samples: 5000
//	  seed: 1
//	output:
//	  weights: model.glmw
//	  codec: zstd
package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// 合成データの入力変数
const (
	InputPosition = "position"
	InputPhase    = "phase"
	InputSpeed    = "speed"
)

// Inputs は leaf の input に指定できる値
var Inputs = []string{InputPosition, InputPhase, InputSpeed}

// Config is the whole file.
type Config struct {
	Basis  BasisConfig  `yaml:"basis"`
	Model  ModelConfig  `yaml:"model"`
	Data   DataConfig   `yaml:"data"`
	Output OutputConfig `yaml:"output"`
}

// BasisConfig is one node of the basis tree. A node is either a leaf (Kind
// set) or a composition (Op set).
type BasisConfig struct {
	Kind        string    `yaml:"kind,omitempty"`
	NBasisFuncs int       `yaml:"n_basis_funcs,omitempty"`
	Order       int       `yaml:"order,omitempty"`
	Label       string    `yaml:"label,omitempty"`
	Bounds      []float64 `yaml:"bounds,omitempty"`
	Width       float64   `yaml:"width,omitempty"`
	TimeScaling float64   `yaml:"time_scaling,omitempty"`
	DecayRates  []float64 `yaml:"decay_rates,omitempty"`
	Mode        string    `yaml:"mode,omitempty"`
	WindowSize  int       `yaml:"window_size,omitempty"`
	Input       string    `yaml:"input,omitempty"`

	Op       string        `yaml:"op,omitempty"`
	Exponent int           `yaml:"exponent,omitempty"`
	Children []BasisConfig `yaml:"children,omitempty"`
}

// ModelConfig configures the GLM.
type ModelConfig struct {
	Observation         string                 `yaml:"observation"`
	ObservationShape    float64                `yaml:"observation_shape,omitempty"`
	Regularizer         string                 `yaml:"regularizer,omitempty"`
	RegularizerStrength *float64               `yaml:"regularizer_strength,omitempty"`
	SolverName          string                 `yaml:"solver_name,omitempty"`
	SolverKwargs        map[string]interface{} `yaml:"solver_kwargs,omitempty"`
	ScoreType           string                 `yaml:"score_type,omitempty"`
}

// DataConfig drives the synthetic place-cell generator.
type DataConfig struct {
	Samples  int     `yaml:"samples"`
	Seed     uint64  `yaml:"seed"`
	BaseRate float64 `yaml:"base_rate"`
	// TestFraction of the samples is held out for scoring.
	TestFraction float64 `yaml:"test_fraction"`
}

// Split returns the first held-out row: rows [0, split) are used for
// fitting and rows [split, Samples) for scoring. Both sides must be non-empty.
func (d DataConfig) Split() (int, error) {
	split := int(float64(d.Samples) * (1 - d.TestFraction))
	if split < 1 || split >= d.Samples {
		return 0, errors.NewValidationError("data.test_fraction", fmt.Sprintf(
			"leaves %d training and %d test rows out of %d; both need at least one",
			max(split, 0), d.Samples-max(split, 0), d.Samples), d.TestFraction)
	}
	return split, nil
}

// OutputConfig lists optional artifacts. Empty paths are skipped.
type OutputConfig struct {
	Weights    string `yaml:"weights,omitempty"`
	Codec      string `yaml:"codec,omitempty"`
	BasisPlot  string `yaml:"basis_plot,omitempty"`
	TuningPlot string `yaml:"tuning_plot,omitempty"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates. Unknown keys are errors.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Model.Observation == "" {
		c.Model.Observation = "Poisson"
	}
	if c.Data.Samples == 0 {
		c.Data.Samples = 2000
	}
	if c.Data.Seed == 0 {
		c.Data.Seed = 1
	}
	if c.Data.BaseRate == 0 {
		c.Data.BaseRate = 2
	}
	if c.Data.TestFraction == 0 {
		c.Data.TestFraction = 0.2
	}
	if c.Output.Codec == "" {
		c.Output.Codec = model.CodecZstd.String()
	}
}

// Validate checks every section. Basis parameters themselves are checked
// by the basis constructors in BuildBasis.
func (c *Config) Validate() error {
	if err := c.Basis.validate("basis"); err != nil {
		return err
	}
	if _, err := observation.New(c.Model.Observation); err != nil {
		return err
	}
	if c.Model.ObservationShape < 0 {
		return errors.NewValidationError("model.observation_shape", "must be positive", c.Model.ObservationShape)
	}
	if s := c.Model.RegularizerStrength; s != nil && (!(*s >= 0) || math.IsInf(*s, 1)) {
		return errors.NewValidationError("model.regularizer_strength", "must be a non-negative finite number", *s)
	}
	if c.Data.Samples < 10 {
		return errors.NewValidationError("data.samples", "must be at least 10", c.Data.Samples)
	}
	if c.Data.BaseRate <= 0 {
		return errors.NewValidationError("data.base_rate", "must be positive", c.Data.BaseRate)
	}
	if c.Data.TestFraction <= 0 || c.Data.TestFraction >= 1 {
		return errors.NewValidationError("data.test_fraction", "must be in (0, 1)", c.Data.TestFraction)
	}
	if _, err := c.Data.Split(); err != nil {
		return err
	}
	if _, err := model.ParseCodec(c.Output.Codec); err != nil {
		return err
	}
	return nil
}

func (b *BasisConfig) validate(path string) error {
	switch {
	case b.Kind == "" && b.Op == "":
		return errors.NewValidationError(path, "either kind or op must be set", nil)
	case b.Kind != "" && b.Op != "":
		return errors.NewValidationError(path, "kind and op are mutually exclusive", b.Kind+"/"+b.Op)
	}

	if b.Kind != "" {
		if _, ok := leafBuilders[b.Kind]; !ok {
			return errors.NewConfigurationError("basis kind", b.Kind, Kinds())
		}
		if len(b.Children) > 0 {
			return errors.NewValidationError(path+".children", "a leaf basis has no children", len(b.Children))
		}
		if !contains(Inputs, b.Input) {
			return errors.NewConfigurationError("basis input", b.Input, Inputs)
		}
		if b.Mode != "" && b.Mode != "eval" && b.Mode != "conv" {
			return errors.NewConfigurationError("basis mode", b.Mode, []string{"eval", "conv"})
		}
		if b.Bounds != nil && len(b.Bounds) != 2 {
			return errors.NewValidationError(path+".bounds", "must have two elements", b.Bounds)
		}
		return nil
	}

	want := 2
	switch b.Op {
	case "add", "mul":
	case "pow":
		want = 1
		if b.Exponent < 1 {
			return errors.NewValidationError(path+".exponent", "must be a positive integer", b.Exponent)
		}
	default:
		return errors.NewConfigurationError("basis op", b.Op, []string{"add", "mul", "pow"})
	}
	if len(b.Children) != want {
		return errors.NewValidationError(path+".children", fmt.Sprintf("%s takes %d children", b.Op, want), len(b.Children))
	}
	for i := range b.Children {
		if err := b.Children[i].validate(fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// LeafInputs lists the input variable of every leaf in the order the
// built basis expects its columns.
func (b *BasisConfig) LeafInputs() []string {
	if b.Kind != "" {
		return []string{b.Input}
	}
	if b.Op == "pow" {
		var out []string
		for i := 0; i < b.Exponent; i++ {
			out = append(out, b.Children[0].LeafInputs()...)
		}
		return out
	}
	var out []string
	for i := range b.Children {
		out = append(out, b.Children[i].LeafInputs()...)
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
