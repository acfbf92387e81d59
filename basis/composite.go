package basis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// composite holds the two children of a combined basis. Its inputs are the
// concatenation of the children's inputs.
type composite struct {
	typeName string
	symbol   string
	basis1   Basis
	basis2   Basis
}

// AdditiveBasis concatenates the features of two bases.
type AdditiveBasis struct{ composite }

// MultiplicativeBasis takes the row-wise product of every pair of elements
// of two bases. Its size is the product of the children's sizes, so nested
// products grow quickly.
type MultiplicativeBasis struct{ composite }

// Add combines b1 and b2 additively.
func Add(b1, b2 Basis) *AdditiveBasis {
	return &AdditiveBasis{composite{typeName: "AdditiveBasis", symbol: "+", basis1: b1, basis2: b2}}
}

// Mul combines b1 and b2 multiplicatively.
func Mul(b1, b2 Basis) *MultiplicativeBasis {
	return &MultiplicativeBasis{composite{typeName: "MultiplicativeBasis", symbol: "*", basis1: b1, basis2: b2}}
}

// Pow multiplies b with itself k times. k must be at least 1; Pow(b, 1) is b.
func Pow(b Basis, k int) (Basis, error) {
	if k <= 0 {
		return nil, errors.NewValueError("basis.Pow", "Exponent should be a non-negative integer!")
	}
	result := b
	for i := 1; i < k; i++ {
		result = Mul(result, b)
	}
	return result, nil
}

func (c *composite) Label() string {
	return fmt.Sprintf("(%s %s %s)", c.basis1.Label(), c.symbol, c.basis2.Label())
}

func (c *composite) SetLabel(string) error {
	return errors.NewAttributeError(c.typeName, "label")
}

// SetNBasisFuncs fails: the size of a composite follows from its children.
func (c *composite) SetNBasisFuncs(int) error {
	return errors.NewAttributeError(c.typeName, "n_basis_funcs")
}

func (c *composite) NInputs() int { return c.basis1.NInputs() + c.basis2.NInputs() }

func (c *composite) NBasisInput() []int {
	return append(append([]int(nil), c.basis1.NBasisInput()...), c.basis2.NBasisInput()...)
}

// SetInputShape forwards k[:basis1.NInputs()] to basis1 and the rest to
// basis2. A child shared between both sides takes the last shape set.
func (c *composite) SetInputShape(k ...int) error {
	if len(k) != c.NInputs() {
		return errors.NewTypeError(c.typeName+".SetInputShape", fmt.Sprintf(
			"expected %d input shapes, %d provided", c.NInputs(), len(k)))
	}
	n1 := c.basis1.NInputs()
	saved := c.basis1.NBasisInput()
	if err := c.basis1.SetInputShape(k[:n1]...); err != nil {
		return err
	}
	if err := c.basis2.SetInputShape(k[n1:]...); err != nil {
		_ = c.basis1.SetInputShape(saved...)
		return err
	}
	return nil
}

// Mode is Conv when either child convolves.
func (c *composite) Mode() Mode {
	if c.basis1.Mode() == Conv || c.basis2.Mode() == Conv {
		return Conv
	}
	return Eval
}

// Basis1 and Basis2 return the children.
func (c *composite) Basis1() Basis { return c.basis1 }
func (c *composite) Basis2() Basis { return c.basis2 }

// split divides xs between the children: by input for evaluate, by input
// column for ComputeFeatures.
func (c *composite) split(xs [][]float64, eval bool) ([][]float64, [][]float64) {
	n1 := c.basis1.NInputs()
	if !eval {
		n1 = nColumns(c.basis1)
	}
	return xs[:n1], xs[n1:]
}

func (c *composite) axisBounds() [][2]float64 {
	return append(append([][2]float64(nil), c.basis1.axisBounds()...), c.basis2.axisBounds()...)
}

// GetParams returns the children and their parameters as child__param.
func (c *composite) GetParams() map[string]interface{} {
	p := map[string]interface{}{
		"basis1": c.basis1,
		"basis2": c.basis2,
	}
	for name, child := range map[string]Basis{"basis1": c.basis1, "basis2": c.basis2} {
		for k, v := range child.GetParams() {
			p[name+"__"+k] = v
		}
	}
	return p
}

// SetParams replaces children first, then forwards child__param keys.
func (c *composite) SetParams(params map[string]interface{}) error {
	saved1, saved2 := c.basis1, c.basis2
	nested := map[string]map[string]interface{}{}
	for key, value := range params {
		name, sub, isNested := strings.Cut(key, "__")
		if isNested {
			if name != "basis1" && name != "basis2" {
				c.basis1, c.basis2 = saved1, saved2
				return errors.NewValidationError(key, "unknown parameter for "+c.typeName, value)
			}
			if nested[name] == nil {
				nested[name] = map[string]interface{}{}
			}
			nested[name][sub] = value
			continue
		}
		b, ok := value.(Basis)
		if !ok || (key != "basis1" && key != "basis2") {
			c.basis1, c.basis2 = saved1, saved2
			return errors.NewValidationError(key, "unknown parameter for "+c.typeName, value)
		}
		if key == "basis1" {
			c.basis1 = b
		} else {
			c.basis2 = b
		}
	}

	before := map[string]map[string]interface{}{}
	children := map[string]Basis{"basis1": c.basis1, "basis2": c.basis2}
	for name, sub := range nested {
		child := children[name]
		before[name] = child.GetParams()
		if err := child.SetParams(sub); err != nil {
			for done, p := range before {
				if done != name {
					_ = children[done].SetParams(p)
				}
			}
			c.basis1, c.basis2 = saved1, saved2
			return err
		}
	}
	return nil
}

func (c *composite) childFeatures(xs [][]float64, eval bool) (*mat.Dense, *mat.Dense, error) {
	x1, x2 := c.split(xs, eval)
	var a, b *mat.Dense
	var err error
	if eval {
		a, err = c.basis1.evaluate(x1)
	} else {
		a, err = c.basis1.ComputeFeatures(x1...)
	}
	if err != nil {
		return nil, nil, err
	}
	if eval {
		b, err = c.basis2.evaluate(x2)
	} else {
		b, err = c.basis2.ComputeFeatures(x2...)
	}
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// --- AdditiveBasis ---

func (a *AdditiveBasis) clone() Basis { return Add(a.basis1.clone(), a.basis2.clone()) }

func (a *AdditiveBasis) NBasisFuncs() int {
	return a.basis1.NBasisFuncs() + a.basis2.NBasisFuncs()
}

func (a *AdditiveBasis) NOutputFeatures() int {
	return a.basis1.NOutputFeatures() + a.basis2.NOutputFeatures()
}

func (a *AdditiveBasis) Evaluate(x ...[]float64) (*mat.Dense, error) { return evaluateChecked(a, x) }

func (a *AdditiveBasis) EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error) {
	return evaluateOnGrid(a, n)
}

func (a *AdditiveBasis) ComputeFeatures(x ...[]float64) (*mat.Dense, error) {
	if err := checkColumns(a, x); err != nil {
		return nil, err
	}
	f1, f2, err := a.childFeatures(x, false)
	if err != nil {
		return nil, err
	}
	return hstack(f1, f2), nil
}

func (a *AdditiveBasis) evaluate(xs [][]float64) (*mat.Dense, error) {
	f1, f2, err := a.childFeatures(xs, true)
	if err != nil {
		return nil, err
	}
	return hstack(f1, f2), nil
}

func (a *AdditiveBasis) blocks() []block {
	return append(append([]block(nil), a.basis1.blocks()...), a.basis2.blocks()...)
}

// --- MultiplicativeBasis ---

func (m *MultiplicativeBasis) clone() Basis { return Mul(m.basis1.clone(), m.basis2.clone()) }

func (m *MultiplicativeBasis) NBasisFuncs() int {
	return m.basis1.NBasisFuncs() * m.basis2.NBasisFuncs()
}

// NOutputFeatures is the product of the children's output widths.
func (m *MultiplicativeBasis) NOutputFeatures() int {
	return m.basis1.NOutputFeatures() * m.basis2.NOutputFeatures()
}

func (m *MultiplicativeBasis) Evaluate(x ...[]float64) (*mat.Dense, error) {
	return evaluateChecked(m, x)
}

func (m *MultiplicativeBasis) EvaluateOnGrid(n ...int) ([][]float64, *mat.Dense, error) {
	return evaluateOnGrid(m, n)
}

func (m *MultiplicativeBasis) ComputeFeatures(x ...[]float64) (*mat.Dense, error) {
	if err := checkColumns(m, x); err != nil {
		return nil, err
	}
	f1, f2, err := m.childFeatures(x, false)
	if err != nil {
		return nil, err
	}
	return rowWiseKron(f1, f2), nil
}

func (m *MultiplicativeBasis) evaluate(xs [][]float64) (*mat.Dense, error) {
	f1, f2, err := m.childFeatures(xs, true)
	if err != nil {
		return nil, err
	}
	return rowWiseKron(f1, f2), nil
}

func (m *MultiplicativeBasis) blocks() []block {
	return []block{{label: m.Label(), width: m.NOutputFeatures()}}
}

// hstack concatenates a and b column-wise.
func hstack(a, b *mat.Dense) *mat.Dense {
	r, ca := a.Dims()
	_, cb := b.Dims()
	out := mat.NewDense(r, ca+cb, nil)
	out.Slice(0, r, 0, ca).(*mat.Dense).Copy(a)
	out.Slice(0, r, ca, ca+cb).(*mat.Dense).Copy(b)
	return out
}

// rowWiseKron returns out[i, j*cb+k] = a[i, j]·b[i, k].
func rowWiseKron(a, b *mat.Dense) *mat.Dense {
	r, ca := a.Dims()
	_, cb := b.Dims()
	return evalRows(r, ca*cb, func(i int, row []float64) {
		ra, rb := a.RawRowView(i), b.RawRowView(i)
		for j, va := range ra {
			for k, vb := range rb {
				row[j*cb+k] = va * vb
			}
		}
	})
}
