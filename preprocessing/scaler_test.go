package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})
	s := NewStandardScalerDefault()
	Xs, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	if math.Abs(s.Mean[0]-2.5) > 1e-12 {
		t.Errorf("Mean[0] = %v, want 2.5", s.Mean[0])
	}
	// 定数特徴量はスケール1、平均を引くだけ
	if s.Scale[1] != 1 {
		t.Errorf("Scale[1] = %v, want 1", s.Scale[1])
	}
	col := mat.Col(nil, 0, Xs)
	sum, sq := 0.0, 0.0
	for _, v := range col {
		sum += v
		sq += v * v
	}
	if math.Abs(sum) > 1e-12 || math.Abs(sq/4-1) > 1e-12 {
		t.Errorf("standardised column has mean %v, variance %v", sum/4, sq/4)
	}

	back, err := s.InverseTransform(Xs)
	if err != nil {
		t.Fatalf("InverseTransform() error = %v", err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Errorf("InverseTransform() did not restore X")
	}
}

func TestStandardScalerIgnoresNaN(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{math.NaN(), 1, 3})
	s := NewStandardScalerDefault()
	Xs, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	if s.Mean[0] != 2 || s.Scale[0] != 1 {
		t.Errorf("Mean, Scale = %v, %v, want 2, 1", s.Mean[0], s.Scale[0])
	}
	if !math.IsNaN(Xs.At(0, 0)) {
		t.Errorf("NaN row should stay NaN, got %v", Xs.At(0, 0))
	}
}

func TestScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()
	_, err := s.Transform(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("Transform() before Fit error = %v, want NotFittedError", err)
	}

	if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	}
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var dim *errors.DimensionError
	if !errors.As(err, &dim) {
		t.Errorf("Transform() with wrong width error = %v, want DimensionError", err)
	}

	if err := s.SetParams(map[string]interface{}{"with_mean": 1}); err == nil {
		t.Error("SetParams() expected error for non-boolean value")
	}
	if err := s.SetParams(s.GetParams()); err != nil {
		t.Errorf("SetParams(GetParams()) error = %v", err)
	}
	if _, err := s.Transform(mat.NewDense(1, 2, nil)); err != nil {
		t.Errorf("SetParams(GetParams()) should keep the fitted state: %v", err)
	}
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})
	m := NewMinMaxScaler([2]float64{-1, 1})
	Xs, err := m.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	want := []float64{-1, 0, 1}
	for i, w := range want {
		if math.Abs(Xs.At(i, 0)-w) > 1e-12 {
			t.Errorf("Xs[%d,0] = %v, want %v", i, Xs.At(i, 0), w)
		}
	}

	back, err := m.InverseTransform(Xs)
	if err != nil {
		t.Fatalf("InverseTransform() error = %v", err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Errorf("InverseTransform() did not restore X")
	}

	c := m.CloneTransformer()
	if _, err := c.Transform(X); err == nil {
		t.Error("clone should be unfitted")
	}
	if err := m.SetParams(map[string]interface{}{"feature_range": [2]float64{1, 0}}); err == nil {
		t.Error("SetParams() expected error for inverted range")
	}
}
