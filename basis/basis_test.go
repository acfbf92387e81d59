package basis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

func rowSum(m *mat.Dense, i int) float64 {
	s := 0.0
	for _, v := range m.RawRowView(i) {
		s += v
	}
	return s
}

func allBases(t *testing.T) []Basis {
	t.Helper()
	bs, err := NewBSpline(6)
	require.NoError(t, err)
	ms, err := NewMSpline(6, WithOrder(3))
	require.NoError(t, err)
	cs, err := NewCyclicBSpline(8)
	require.NoError(t, err)
	rl, err := NewRaisedCosineLinear(5)
	require.NoError(t, err)
	rg, err := NewRaisedCosineLog(5, WithTimeScaling(10))
	require.NoError(t, err)
	oe, err := NewOrthExponential(3, []float64{1, 2, 3})
	require.NoError(t, err)
	return []Basis{bs, ms, cs, rl, rg, oe, Add(bs, cs), Mul(rl, ms)}
}

func TestCyclicBSplineIsPeriodic(t *testing.T) {
	b, err := NewCyclicBSpline(10)
	require.NoError(t, err)

	grid, values, err := b.EvaluateOnGrid(100)
	require.NoError(t, err)
	require.Len(t, grid, 1)
	assert.Equal(t, 0.0, grid[0][0])
	assert.Equal(t, 1.0, grid[0][99])

	r, c := values.Dims()
	assert.Equal(t, 100, r)
	assert.Equal(t, 10, c)
	for j := 0; j < c; j++ {
		assert.InDelta(t, values.At(0, j), values.At(99, j), 1e-8, "element %d", j)
	}
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, rowSum(values, i), 1e-10)
	}
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	for _, order := range []int{1, 2, 4} {
		b, err := NewBSpline(7, WithOrder(order))
		require.NoError(t, err)
		_, values, err := b.EvaluateOnGrid(57)
		require.NoError(t, err)
		for i := 0; i < 57; i++ {
			assert.InDelta(t, 1.0, rowSum(values, i), 1e-10, "order %d row %d", order, i)
		}
		// 右端は最後の要素だけが 1
		assert.InDelta(t, 1.0, values.At(56, 6), 1e-12)
	}
}

func TestMSplineIntegratesToOne(t *testing.T) {
	b, err := NewMSpline(5)
	require.NoError(t, err)
	n := 20001
	grid, values, err := b.EvaluateOnGrid(n)
	require.NoError(t, err)
	h := grid[0][1] - grid[0][0]
	for j := 0; j < 5; j++ {
		integral := 0.0
		for i := 0; i < n-1; i++ {
			integral += 0.5 * h * (values.At(i, j) + values.At(i+1, j))
		}
		assert.InDelta(t, 1.0, integral, 1e-3, "element %d", j)
	}
}

func TestRaisedCosine(t *testing.T) {
	b, err := NewRaisedCosineLinear(5)
	require.NoError(t, err)
	values, err := b.Evaluate([]float64{0, 0.25, 0.5, 0.75, 1})
	require.NoError(t, err)
	// ピークで 1
	for j := 0; j < 5; j++ {
		assert.InDelta(t, 1.0, values.At(j, j), 1e-12)
	}
	// width 1 のとき隣接要素の和は 1
	require.NoError(t, b.SetWidth(1))
	_, grid, err := b.EvaluateOnGrid(33)
	require.NoError(t, err)
	for i := 0; i < 33; i++ {
		assert.InDelta(t, 1.0, rowSum(grid, i), 1e-10)
	}

	_, err = NewRaisedCosineLinear(5, WithWidth(1.25))
	assert.Error(t, err)
	_, err = NewRaisedCosineLog(1)
	assert.Error(t, err)
	_, err = NewRaisedCosineLog(4, WithTimeScaling(0))
	assert.Error(t, err)
}

func TestOrthExponentialIsOrthonormal(t *testing.T) {
	b, err := NewOrthExponential(4, []float64{0.5, 1, 2, 4})
	require.NoError(t, err)
	x := Linspace(0, 10, 200)
	values, err := b.Evaluate(x)
	require.NoError(t, err)
	_, c := values.Dims()
	require.Equal(t, 4, c)

	var gram mat.Dense
	gram.Mul(values.T(), values)
	for i := 0; i < c; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, gram.At(i, j), 1e-8)
		}
	}

	_, err = b.Evaluate([]float64{0, 1, 2})
	assert.Error(t, err, "fewer samples than elements")

	_, err = NewOrthExponential(3, []float64{1, 1, 2})
	assert.Error(t, err)
	_, err = NewOrthExponential(3, []float64{1, 2})
	assert.Error(t, err)
}

func TestOrthExponentialOutOfBoundsRowsAreNaN(t *testing.T) {
	b, err := NewOrthExponential(2, []float64{1, 2}, WithBounds(0, 1))
	require.NoError(t, err)
	values, err := b.Evaluate([]float64{0, 0.3, 0.6, 1, 2})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(values.At(4, 0)))
	assert.False(t, math.IsNaN(values.At(3, 0)))
}

func TestProductBasisSize(t *testing.T) {
	a, err := NewBSpline(5)
	require.NoError(t, err)
	b, err := NewCyclicBSpline(4, WithOrder(3))
	require.NoError(t, err)

	prod := Mul(a, b)
	assert.Equal(t, 20, prod.NBasisFuncs())
	assert.Equal(t, 2, prod.NInputs())
	assert.Equal(t, "(BSpline * CyclicBSpline)", prod.Label())

	x := Linspace(0, 1, 30)
	values, err := prod.Evaluate(x, x)
	require.NoError(t, err)
	r, c := values.Dims()
	assert.Equal(t, 30, r)
	assert.Equal(t, 20, c)

	va, _ := a.Evaluate(x)
	vb, _ := b.Evaluate(x)
	assert.InDelta(t, va.At(7, 2)*vb.At(7, 3), values.At(7, 2*4+3), 1e-12)

	grid, gv, err := prod.EvaluateOnGrid(6, 7)
	require.NoError(t, err)
	require.Len(t, grid, 2)
	gr, gc := gv.Dims()
	assert.Equal(t, 42, gr)
	assert.Equal(t, 20, gc)
	// ij 順序: 2 番目の軸が速く動く
	assert.Equal(t, 0.0, grid[0][6])
	assert.Equal(t, 1.0, grid[1][6])
	assert.Equal(t, 0.2, grid[0][7])
}

func TestAdditiveAndPow(t *testing.T) {
	a, _ := NewBSpline(5, WithLabel("position"))
	b, _ := NewRaisedCosineLinear(3, WithLabel("speed"))
	sum := Add(a, b)
	assert.Equal(t, 8, sum.NBasisFuncs())
	assert.Equal(t, "(position + speed)", sum.Label())

	x := Linspace(0, 1, 10)
	values, err := sum.Evaluate(x, x)
	require.NoError(t, err)
	_, c := values.Dims()
	assert.Equal(t, 8, c)

	p, err := Pow(a, 3)
	require.NoError(t, err)
	assert.Equal(t, 125, p.NBasisFuncs())
	assert.Equal(t, 3, p.NInputs())

	same, err := Pow(a, 1)
	require.NoError(t, err)
	assert.Same(t, a, same)

	_, err = Pow(a, 0)
	assert.Error(t, err)
}

func TestLabelIsImmutable(t *testing.T) {
	b, err := NewBSpline(5, WithLabel("X"))
	require.NoError(t, err)

	err = b.SetLabel("Y")
	require.Error(t, err)
	var attrErr *errors.AttributeError
	require.True(t, errors.As(err, &attrErr))
	assert.Equal(t, "label", attrErr.Attribute)
	assert.Equal(t, "X", b.Label())

	err = b.SetParams(map[string]interface{}{"label": "Y", "order": 3})
	assert.True(t, errors.As(err, &attrErr))
	assert.Equal(t, "X", b.Label())
	assert.Equal(t, 4, b.Order(), "rejected SetParams must not apply other keys")

	sum := Add(b, b)
	assert.Error(t, sum.SetLabel("Z"))
	assert.Equal(t, "(X + X)", sum.Label())
}

func TestStructuralParamsValidatedAtSetTime(t *testing.T) {
	b, err := NewBSpline(5)
	require.NoError(t, err)

	assert.Error(t, b.SetOrder(6))
	assert.Equal(t, 4, b.Order())
	assert.Error(t, b.SetOrder(0))
	assert.Error(t, b.SetNBasisFuncs(3))
	assert.Equal(t, 5, b.NBasisFuncs())

	require.NoError(t, b.SetOrder(2))
	require.NoError(t, b.SetNBasisFuncs(3))
	assert.Equal(t, 3, b.NBasisFuncs())

	// 両方を同時に変更するのは SetParams で
	require.NoError(t, b.SetParams(map[string]interface{}{"n_basis_funcs": 10, "order": 6}))
	assert.Equal(t, 6, b.Order())

	c, err := NewCyclicBSpline(5, WithOrder(2))
	require.NoError(t, err)
	assert.Error(t, c.SetOrder(1))

	_, err = NewBSpline(3, WithOrder(4))
	assert.Error(t, err)

	_, err = NewBSpline(5, WithMode(Conv))
	assert.Error(t, err, "conv mode requires window_size")
}

func TestSetParamsOfGetParamsIsNoop(t *testing.T) {
	for _, b := range allBases(t) {
		before := b.GetParams()
		require.NoError(t, b.SetParams(b.GetParams()), b.Label())
		assert.Equal(t, before, b.GetParams(), b.Label())
	}
}

func TestCompositeNestedParams(t *testing.T) {
	a, _ := NewBSpline(5)
	b, _ := NewCyclicBSpline(6)
	prod := Mul(a, b)

	require.NoError(t, prod.SetParams(map[string]interface{}{"basis1__n_basis_funcs": 7}))
	assert.Equal(t, 42, prod.NBasisFuncs())

	err := prod.SetParams(map[string]interface{}{"basis2__order": 10})
	assert.Error(t, err)
	assert.Equal(t, 4, b.Order())

	assert.Error(t, prod.SetNBasisFuncs(3))
}

func TestInputValidation(t *testing.T) {
	a, _ := NewBSpline(5)
	b, _ := NewBSpline(4)
	prod := Mul(a, b)

	_, err := a.Evaluate([]float64{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "All sample provided must be non empty.")

	_, err = prod.Evaluate([]float64{0, 1}, []float64{0, 0.5, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sample size mismatch. Input elements have inconsistent sample sizes.")

	_, err = prod.Evaluate([]float64{0, 1})
	var typeErr *errors.TypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Contains(t, err.Error(), "Input dimensionality mismatch")

	_, _, err = a.EvaluateOnGrid(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "All sample counts provided must be greater than zero.")

	_, _, err = a.EvaluateOnGrid(10, 10)
	assert.True(t, errors.As(err, &typeErr))
}

func TestMinMaxRescaleSamples(t *testing.T) {
	out, scaling, err := MinMaxRescaleSamples([]float64{2, 4, 6}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, out)
	assert.Equal(t, 4.0, scaling)

	out, _, err = MinMaxRescaleSamples([]float64{-1, 0.5, 3}, []float64{0, 1})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, 0.5, out[1])
	assert.True(t, math.IsNaN(out[2]))

	out, scaling, err = MinMaxRescaleSamples([]float64{3, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, out)
	assert.Equal(t, 1.0, scaling)

	_, _, err = MinMaxRescaleSamples([]float64{5, 6}, []float64{0, 1})
	assert.Error(t, err)

	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(nil)
	x := make([]float64, 20)
	for i := range x {
		x[i] = 10
	}
	x[0] = 0.5
	_, _, err = MinMaxRescaleSamples(x, []float64{0, 1})
	require.NoError(t, err)
	require.Len(t, warned, 1)
	var conv *errors.DataConversionWarning
	assert.True(t, errors.As(warned[0], &conv))
}

func TestConvMode(t *testing.T) {
	b, err := NewRaisedCosineLog(3, WithMode(Conv), WithWindowSize(4))
	require.NoError(t, err)

	kernel, err := b.Kernel()
	require.NoError(t, err)
	kr, kc := kernel.Dims()
	assert.Equal(t, 4, kr)
	assert.Equal(t, 3, kc)

	x := []float64{1, 0, 0, 0, 0, 2, 0, 0, 0, 0}
	features, err := b.ComputeFeatures(x)
	require.NoError(t, err)
	r, c := features.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 3, c)
	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(features.At(i, 0)), "row %d", i)
	}
	// t=6 は x[5]=2 を kernel の 0 行目で重み付け
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 2*kernel.At(0, k), features.At(6, k), 1e-12)
		assert.InDelta(t, 2*kernel.At(3, k), features.At(9, k), 1e-12)
	}

	// eval モードでは ComputeFeatures は Evaluate と同じ
	e, _ := NewBSpline(4)
	x = Linspace(0, 1, 9)
	f1, err := e.ComputeFeatures(x)
	require.NoError(t, err)
	f2, _ := e.Evaluate(x)
	assert.True(t, mat.Equal(f1, f2))
}

func TestApplyIdentifiabilityConstraints(t *testing.T) {
	b, _ := NewBSpline(6)
	X, err := b.Evaluate(Linspace(0, 1, 50))
	require.NoError(t, err)

	constrained := ApplyIdentifiabilityConstraints(X)
	r, c := constrained.Dims()
	assert.Equal(t, 50, r)
	assert.Equal(t, 5, c, "B-splines sum to one so one column is dropped")
	for j := 0; j < c; j++ {
		assert.InDelta(t, 0, mat.Sum(constrained.ColView(j))/50, 1e-12)
	}
}

func TestSplitByFeature(t *testing.T) {
	a, _ := NewBSpline(4, WithLabel("pos"))
	b, _ := NewRaisedCosineLinear(3, WithLabel("pos"))
	c, _ := NewCyclicBSpline(5, WithLabel("phase"))
	d, _ := NewBSpline(2, WithLabel("speed"), WithOrder(2))
	full := Add(Add(a, b), Mul(c, d))

	x := Linspace(0, 1, 12)
	X, err := full.Evaluate(x, x, x, x)
	require.NoError(t, err)

	parts, err := SplitByFeature(full, X)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	_, c1 := parts["pos"].Dims()
	_, c2 := parts["pos-1"].Dims()
	_, c3 := parts["(phase * speed)"].Dims()
	assert.Equal(t, 4, c1)
	assert.Equal(t, 3, c2)
	assert.Equal(t, 10, c3)
	assert.Equal(t, X.At(5, 4), parts["pos-1"].At(5, 0))

	_, err = SplitByFeature(full, mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestTransformerBasis(t *testing.T) {
	a, _ := NewBSpline(4)
	b, _ := NewCyclicBSpline(3, WithOrder(2))
	tr := NewTransformerBasis(Mul(a, b))

	X := mat.NewDense(6, 2, []float64{
		0, 0, 0.2, 0.1, 0.4, 0.3, 0.6, 0.5, 0.8, 0.7, 1, 1,
	})
	out, err := tr.FitTransform(X)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 12, c)

	_, err = tr.Transform(mat.NewDense(6, 1, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	clone := tr.Clone()
	require.NoError(t, clone.SetParams(map[string]interface{}{"basis1__n_basis_funcs": 6}))
	assert.Equal(t, 18, clone.Basis().NBasisFuncs())
	assert.Equal(t, 12, tr.Basis().NBasisFuncs(), "clone must not share state")

	before := tr.GetParams()
	require.NoError(t, tr.SetParams(tr.GetParams()))
	assert.Equal(t, before, tr.GetParams())
}

func reversed(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}

func TestInputShapeThroughAdd(t *testing.T) {
	a, _ := NewBSpline(4, WithLabel("pos"))
	b, _ := NewRaisedCosineLinear(3, WithLabel("speed"))
	require.NoError(t, a.SetInputShape(2))
	assert.Equal(t, []int{2}, a.NBasisInput())
	assert.Equal(t, 4, a.NBasisFuncs())
	assert.Equal(t, 8, a.NOutputFeatures())

	sum := Add(a, b)
	assert.Equal(t, []int{2, 1}, sum.NBasisInput())
	assert.Equal(t, 11, sum.NOutputFeatures())
	assert.Equal(t, 7, sum.NBasisFuncs())

	x0 := Linspace(0, 1, 10)
	x1 := reversed(x0)
	s := Linspace(0, 1, 10)
	X, err := sum.ComputeFeatures(x0, x1, s)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 11, c)

	f0, _ := a.Evaluate(x0)
	f1, _ := a.Evaluate(x1)
	fs, _ := b.Evaluate(s)
	for i := 0; i < r; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, f0.At(i, j), X.At(i, j), 1e-12)
			assert.InDelta(t, f1.At(i, j), X.At(i, 4+j), 1e-12)
		}
		for j := 0; j < 3; j++ {
			assert.InDelta(t, fs.At(i, j), X.At(i, 8+j), 1e-12)
		}
	}

	parts, err := SplitByFeature(sum, X)
	require.NoError(t, err)
	_, cp := parts["pos"].Dims()
	_, cs := parts["speed"].Dims()
	assert.Equal(t, 8, cp)
	assert.Equal(t, 3, cs)

	// 列数が足りない
	_, err = sum.ComputeFeatures(x0, s)
	var typeErr *errors.TypeError
	assert.True(t, errors.As(err, &typeErr))

	// Evaluate は入力ごとに 1 本
	v, err := sum.Evaluate(x0, s)
	require.NoError(t, err)
	_, vc := v.Dims()
	assert.Equal(t, 7, vc)
}

func TestInputShapeThroughMul(t *testing.T) {
	a, _ := NewBSpline(3)
	b, _ := NewCyclicBSpline(4, WithOrder(2))
	prod := Mul(a, b)
	require.NoError(t, prod.SetInputShape(2, 1))
	assert.Equal(t, []int{2, 1}, prod.NBasisInput())
	assert.Equal(t, 12, prod.NBasisFuncs())
	assert.Equal(t, 24, prod.NOutputFeatures())

	x0 := Linspace(0, 1, 10)
	x1 := reversed(x0)
	p := Linspace(0, 1, 10)
	X, err := prod.ComputeFeatures(x0, x1, p)
	require.NoError(t, err)
	_, c := X.Dims()
	require.Equal(t, 24, c)

	fa, err := a.ComputeFeatures(x0, x1)
	require.NoError(t, err)
	fb, err := b.ComputeFeatures(p)
	require.NoError(t, err)
	assert.InDelta(t, fa.At(5, 4)*fb.At(5, 2), X.At(5, 4*4+2), 1e-12)

	parts, err := SplitByFeature(prod, X)
	require.NoError(t, err)
	_, cp := parts[prod.Label()].Dims()
	assert.Equal(t, 24, cp)

	tr := NewTransformerBasis(prod)
	in := mat.NewDense(10, 3, nil)
	for i := 0; i < 10; i++ {
		in.SetRow(i, []float64{x0[i], x1[i], p[i]})
	}
	out, err := tr.FitTransform(in)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, out, 1e-12))
	_, err = tr.Transform(mat.NewDense(10, 2, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	// 失敗した設定は両方の子を元に戻す
	assert.Error(t, prod.SetInputShape(3, 0))
	assert.Equal(t, []int{2, 1}, prod.NBasisInput())
	assert.Error(t, prod.SetInputShape(1))
	assert.Error(t, a.SetInputShape(0))
}

func TestInputShapeConvMode(t *testing.T) {
	b, err := NewRaisedCosineLog(3, WithMode(Conv), WithWindowSize(4))
	require.NoError(t, err)
	require.NoError(t, b.SetInputShape(2))

	x := []float64{1, 0, 0, 0, 0, 2, 0, 0, 0, 0}
	x2 := make([]float64, len(x))
	for i, v := range x {
		x2[i] = 2 * v
	}
	f, err := b.ComputeFeatures(x, x2)
	require.NoError(t, err)
	_, c := f.Dims()
	require.Equal(t, 6, c)
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 2*f.At(6, k), f.At(6, 3+k), 1e-12)
	}
	assert.True(t, math.IsNaN(f.At(0, 5)))
}

func TestOrthExponentialRejectsDependentRates(t *testing.T) {
	_, err := NewOrthExponential(2, []float64{1, 1 + 1e-15})
	require.Error(t, err)
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	b, err := NewOrthExponential(2, []float64{1, 2}, WithBounds(0, 1))
	require.NoError(t, err)
	assert.Error(t, b.SetDecayRates([]float64{1, 1 + 1e-15}))
	assert.Equal(t, []float64{1, 2}, b.DecayRates())

	// 有効なサンプルが 1 点しかない
	_, err = b.Evaluate([]float64{0.3, 0.3, 0.3, 5})
	require.Error(t, err)
	assert.True(t, errors.As(err, &valErr))

	values, err := b.Evaluate([]float64{0, 0.2, 0.5, 0.9})
	require.NoError(t, err)
	_, c := values.Dims()
	assert.Equal(t, b.NBasisFuncs(), c)
	assert.Equal(t, b.NOutputFeatures(), c)
}
