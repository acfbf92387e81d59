// Package basis builds non-linear feature expansions from collections of
// scalar basis functions.
//
// A basis is evaluated on sample points (eval mode) or convolved with an
// input signal (conv mode). Bases compose: Add concatenates feature blocks,
// Mul takes the row-wise product of every pair of functions. Hyperparameters
// are read and written through GetParams/SetParams; every setter validates
// the new value and leaves the basis untouched when validation fails. The
// label is fixed at construction.
//
// Each input of a leaf basis may span several columns (SetInputShape). The
// basis is then applied to every column and the blocks are concatenated,
// so ComputeFeatures returns NOutputFeatures columns, not NBasisFuncs.
package basis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/parallel"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Mode selects how ComputeFeatures treats its input.
type Mode string

const (
	// Eval evaluates the basis at the samples.
	Eval Mode = "eval"
	// Conv convolves the samples with a kernel sampled from the basis.
	Conv Mode = "conv"
)

// Basis is a fixed-size set of basis functions.
type Basis interface {
	Label() string
	// SetLabel always fails: the label is read-only.
	SetLabel(label string) error

	NBasisFuncs() int
	SetNBasisFuncs(n int) error
	// NInputs is the number of one-dimensional inputs Evaluate expects.
	NInputs() int
	// NBasisInput is the number of columns each leaf input consumes in
	// ComputeFeatures, in input order. Defaults to 1 per input.
	NBasisInput() []int
	// SetInputShape sets the column count of every input, one value per input.
	SetInputShape(k ...int) error
	// NOutputFeatures is the width of the ComputeFeatures output.
	NOutputFeatures() int
	Mode() Mode

	// Evaluate returns an (n_samples, n_basis_funcs) matrix.
	Evaluate(x ...[]float64) (*mat.Dense, error)
	// EvaluateOnGrid samples an equi-spaced grid with n[i] points along input
	// i. It returns the meshgrid coordinates (ij ordering, flattened row-major)
	// and the basis evaluated at those points.
	EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error)
	// ComputeFeatures evaluates in eval mode and convolves in conv mode. It
	// takes one slice per input column (the sum of NBasisInput).
	ComputeFeatures(x ...[]float64) (*mat.Dense, error)

	GetParams() map[string]interface{}
	SetParams(params map[string]interface{}) error

	evaluate(xs [][]float64) (*mat.Dense, error)
	axisBounds() [][2]float64
	blocks() []block
	clone() Basis
}

// Copy returns a deep copy of b. Composite children are copied too.
func Copy(b Basis) Basis {
	return b.clone()
}

// block is a labelled run of output columns, used by SplitByFeature.
type block struct {
	label string
	width int
}

// config collects construction options shared by all bases.
type config struct {
	label       string
	mode        Mode
	windowSize  int
	bounds      []float64
	order       int
	width       float64
	timeScaling float64
}

// Option configures a basis at construction.
type Option func(*config)

// WithLabel sets the (immutable) label.
func WithLabel(label string) Option {
	return func(c *config) {
		c.label = label
	}
}

// WithMode selects eval or conv mode.
func WithMode(mode Mode) Option {
	return func(c *config) {
		c.mode = mode
	}
}

// WithWindowSize sets the kernel length used in conv mode.
func WithWindowSize(n int) Option {
	return func(c *config) {
		c.windowSize = n
	}
}

// WithBounds fixes the domain mapped to [0, 1]. Samples outside are NaN.
func WithBounds(lo, hi float64) Option {
	return func(c *config) {
		c.bounds = []float64{lo, hi}
	}
}

// WithOrder sets the spline order.
func WithOrder(order int) Option {
	return func(c *config) {
		c.order = order
	}
}

// WithWidth sets the raised-cosine width.
func WithWidth(width float64) Option {
	return func(c *config) {
		c.width = width
	}
}

// WithTimeScaling sets the log-stretch of RaisedCosineLog.
func WithTimeScaling(s float64) Option {
	return func(c *config) {
		c.timeScaling = s
	}
}

func newConfig(defaultLabel string, opts []Option) *config {
	c := &config{
		label:       defaultLabel,
		mode:        Eval,
		order:       4,
		width:       2,
		timeScaling: 50,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// base holds the state shared by one-dimensional bases.
type base struct {
	typeName    string
	label       string
	nBasisFuncs int
	mode        Mode
	windowSize  int
	bounds      []float64
	inputShape  int
}

func newBase(typeName string, n int, c *config) base {
	return base{
		typeName:    typeName,
		label:       c.label,
		nBasisFuncs: n,
		mode:        c.mode,
		windowSize:  c.windowSize,
		bounds:      c.bounds,
		inputShape:  1,
	}
}

func (b *base) Label() string { return b.label }

func (b *base) SetLabel(string) error {
	return errors.NewAttributeError(b.typeName, "label")
}

func (b *base) NBasisFuncs() int { return b.nBasisFuncs }
func (b *base) NInputs() int     { return 1 }
func (b *base) Mode() Mode       { return b.mode }
func (b *base) WindowSize() int  { return b.windowSize }

func (b *base) NBasisInput() []int   { return []int{b.inputShape} }
func (b *base) NOutputFeatures() int { return b.nBasisFuncs * b.inputShape }

// SetInputShape sets how many columns the input spans.
func (b *base) SetInputShape(k ...int) error {
	if len(k) != 1 {
		return errors.NewTypeError(b.typeName+".SetInputShape", fmt.Sprintf(
			"expected 1 input shape, %d provided", len(k)))
	}
	if k[0] < 1 {
		return errors.NewValidationError("input_shape", "must be a positive integer", k[0])
	}
	b.inputShape = k[0]
	return nil
}

// Bounds returns the domain bounds, if set.
func (b *base) Bounds() (lo, hi float64, ok bool) {
	if b.bounds == nil {
		return 0, 0, false
	}
	return b.bounds[0], b.bounds[1], true
}

func (b *base) axisBounds() [][2]float64 {
	if b.bounds == nil {
		return [][2]float64{{0, 1}}
	}
	return [][2]float64{{b.bounds[0], b.bounds[1]}}
}

func (b *base) blocks() []block {
	return []block{{label: b.label, width: b.NOutputFeatures()}}
}

// validateCommon checks the fields held by base.
func (b *base) validateCommon() error {
	switch b.mode {
	case Eval:
	case Conv:
		if b.windowSize <= 0 {
			return errors.NewValidationError("window_size",
				"must be a positive integer in conv mode", b.windowSize)
		}
	default:
		return errors.NewConfigurationError("mode", string(b.mode), []string{string(Eval), string(Conv)})
	}
	if b.bounds != nil {
		if len(b.bounds) != 2 {
			return errors.NewValidationError("bounds", "must have exactly two elements", b.bounds)
		}
		if !(b.bounds[0] < b.bounds[1]) {
			return errors.NewValidationError("bounds", "lower bound must be strictly less than upper bound", b.bounds)
		}
	}
	return nil
}

func (b *base) commonParams() map[string]interface{} {
	var bounds []float64
	if b.bounds != nil {
		bounds = []float64{b.bounds[0], b.bounds[1]}
	}
	return map[string]interface{}{
		"n_basis_funcs": b.nBasisFuncs,
		"mode":          b.mode,
		"window_size":   b.windowSize,
		"bounds":        bounds,
		"label":         b.label,
	}
}

// setCommon applies one of the base keys. handled is false for unknown keys.
func (b *base) setCommon(key string, value interface{}) (handled bool, err error) {
	switch key {
	case "n_basis_funcs":
		n, ok := toInt(value)
		if !ok {
			return true, errors.NewValidationError(key, "must be an integer", value)
		}
		b.nBasisFuncs = n
	case "mode":
		switch m := value.(type) {
		case Mode:
			b.mode = m
		case string:
			b.mode = Mode(m)
		default:
			return true, errors.NewValidationError(key, "must be a Mode", value)
		}
	case "window_size":
		n, ok := toInt(value)
		if !ok {
			return true, errors.NewValidationError(key, "must be an integer", value)
		}
		b.windowSize = n
	case "bounds":
		switch v := value.(type) {
		case nil:
			b.bounds = nil
		case []float64:
			if v == nil {
				b.bounds = nil
			} else {
				b.bounds = append([]float64(nil), v...)
			}
		default:
			return true, errors.NewValidationError(key, "must be []float64 or nil", value)
		}
	case "label":
		if s, ok := value.(string); ok && s == b.label {
			return true, nil
		}
		return true, b.SetLabel(fmt.Sprint(value))
	default:
		return false, nil
	}
	return true, nil
}

// setParams applies params to a one-dimensional basis with rollback.
// snapshot/restore copy the full state, extra handles type-specific keys.
func setParams[T any](state *T, params map[string]interface{}, b *base,
	extra func(key string, value interface{}) (bool, error), validate func() error) error {
	saved := *state
	for key, value := range params {
		handled, err := b.setCommon(key, value)
		if !handled && extra != nil {
			handled, err = extra(key, value)
		}
		if !handled {
			err = errors.NewValidationError(key, "unknown parameter for "+b.typeName, value)
		}
		if err != nil {
			*state = saved
			return err
		}
	}
	if err := validate(); err != nil {
		*state = saved
		return err
	}
	return nil
}

// setWithRollback assigns v to field and reverts when validate fails.
func setWithRollback[T any](field *T, v T, validate func() error) error {
	old := *field
	*field = v
	if err := validate(); err != nil {
		*field = old
		return err
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// checkInput validates Evaluate arguments: one slice per input.
func checkInput(b Basis, xs [][]float64) error {
	if err := checkSamples(xs); err != nil {
		return err
	}
	return checkDimensionality(b, len(xs))
}

// checkColumns validates ComputeFeatures arguments: one slice per input column.
func checkColumns(b Basis, xs [][]float64) error {
	if err := checkSamples(xs); err != nil {
		return err
	}
	if want := nColumns(b); len(xs) != want {
		return errors.NewTypeError("basis.ComputeFeatures", fmt.Sprintf(
			"Input dimensionality mismatch. This basis requires %d input columns, %d provided instead.",
			want, len(xs)))
	}
	return nil
}

// nColumns is the total number of input columns b consumes.
func nColumns(b Basis) int {
	n := 0
	for _, k := range b.NBasisInput() {
		n += k
	}
	return n
}

func checkSamples(xs [][]float64) error {
	const op = "basis.Evaluate"
	for _, x := range xs {
		if len(x) == 0 {
			return errors.NewValueError(op, "All sample provided must be non empty.")
		}
	}
	for _, x := range xs {
		if len(x) != len(xs[0]) {
			return errors.NewValueError(op, "Sample size mismatch. Input elements have inconsistent sample sizes.")
		}
	}
	return nil
}

func checkDimensionality(b Basis, got int) error {
	if got != b.NInputs() {
		return errors.NewTypeError("basis.Evaluate", fmt.Sprintf(
			"Input dimensionality mismatch. This basis evaluation requires %d inputs, %d inputs provided instead.",
			b.NInputs(), got))
	}
	return nil
}

func evaluateChecked(b Basis, xs [][]float64) (*mat.Dense, error) {
	if err := checkInput(b, xs); err != nil {
		return nil, err
	}
	return b.evaluate(xs)
}

func evaluateOnGrid(b Basis, n []int) ([][]float64, *mat.Dense, error) {
	if err := checkDimensionality(b, len(n)); err != nil {
		return nil, nil, err
	}
	for _, k := range n {
		if k <= 0 {
			return nil, nil, errors.NewValueError("basis.EvaluateOnGrid",
				"All sample counts provided must be greater than zero.")
		}
	}
	bounds := b.axisBounds()
	axes := make([][]float64, len(n))
	for i, k := range n {
		axes[i] = Linspace(bounds[i][0], bounds[i][1], k)
	}
	grid := Meshgrid(axes...)
	values, err := b.evaluate(grid)
	if err != nil {
		return nil, nil, err
	}
	return grid, values, nil
}

// computeFeatures applies a leaf basis to every input column and
// concatenates the blocks: column c fills output columns c*n .. (c+1)*n-1.
func computeFeatures(b Basis, k kernelSource, xs [][]float64) (*mat.Dense, error) {
	if err := checkColumns(b, xs); err != nil {
		return nil, err
	}
	var kernel *mat.Dense
	if b.Mode() == Conv {
		var err error
		if kernel, err = k.Kernel(); err != nil {
			return nil, err
		}
	}
	var out *mat.Dense
	for _, x := range xs {
		var f *mat.Dense
		if kernel != nil {
			f = convolveCausal(x, kernel)
		} else {
			var err error
			if f, err = b.evaluate([][]float64{x}); err != nil {
				return nil, err
			}
		}
		if out == nil {
			out = f
		} else {
			out = hstack(out, f)
		}
	}
	return out, nil
}

// evalRows fills an (n, cols) matrix row by row, in parallel for large n.
func evalRows(n, cols int, fill func(i int, row []float64)) *mat.Dense {
	out := mat.NewDense(n, cols, nil)
	raw := out.RawMatrix()
	parallel.ParallelizeWithThreshold(n, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			fill(i, raw.Data[i*raw.Stride:i*raw.Stride+cols])
		}
	})
	return out
}
