package basis

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// TransformerBasis adapts a Basis to the model.Transformer contract so it
// can be a pipeline step. X holds the basis input columns in order, so a
// leaf whose input spans k columns (SetInputShape) reads k consecutive columns.
type TransformerBasis struct {
	basis  Basis
	fitted bool
}

// NewTransformerBasis wraps b.
func NewTransformerBasis(b Basis) *TransformerBasis {
	return &TransformerBasis{basis: b}
}

// Basis returns the wrapped basis.
func (t *TransformerBasis) Basis() Basis { return t.basis }

func (t *TransformerBasis) columns(X mat.Matrix) ([][]float64, error) {
	_, c := X.Dims()
	if want := nColumns(t.basis); c != want {
		return nil, errors.NewDimensionError("TransformerBasis", want, c, 1)
	}
	xs := make([][]float64, c)
	for j := range xs {
		xs[j] = mat.Col(nil, j, X)
	}
	return xs, nil
}

// Fit checks that X has one column per basis input column. Bases carry no
// data-dependent state, so nothing is learned.
func (t *TransformerBasis) Fit(X mat.Matrix) error {
	if _, err := t.columns(X); err != nil {
		return err
	}
	t.fitted = true
	return nil
}

// Transform computes the basis features of X.
func (t *TransformerBasis) Transform(X mat.Matrix) (*mat.Dense, error) {
	xs, err := t.columns(X)
	if err != nil {
		return nil, err
	}
	return t.basis.ComputeFeatures(xs...)
}

// FitTransform fits and transforms X.
func (t *TransformerBasis) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// GetParams returns the wrapped basis parameters and the basis itself.
func (t *TransformerBasis) GetParams() map[string]interface{} {
	p := t.basis.GetParams()
	p["basis"] = t.basis
	return p
}

// SetParams forwards to the wrapped basis. The "basis" key swaps it out.
func (t *TransformerBasis) SetParams(params map[string]interface{}) error {
	saved := t.basis
	forward := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k == "basis" {
			b, ok := v.(Basis)
			if !ok {
				t.basis = saved
				return errors.NewValidationError(k, "must be a Basis", v)
			}
			t.basis = b
			continue
		}
		forward[k] = v
	}
	if len(forward) == 0 {
		return nil
	}
	if err := t.basis.SetParams(forward); err != nil {
		t.basis = saved
		return err
	}
	return nil
}

// Clone returns an unfitted TransformerBasis over a deep copy of the basis.
func (t *TransformerBasis) Clone() *TransformerBasis {
	return &TransformerBasis{basis: Copy(t.basis)}
}

// CloneTransformer implements model.TransformerStep.
func (t *TransformerBasis) CloneTransformer() model.TransformerStep { return t.Clone() }

var _ model.TransformerStep = (*TransformerBasis)(nil)
