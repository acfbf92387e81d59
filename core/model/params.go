package model

import (
	"gonum.org/v1/gonum/mat"
)

// Params are the fitted parameters of a linear-predictor model.
type Params struct {
	Coef      []float64
	Intercept float64
}

// NewParams returns zero coefficients for nFeatures features.
func NewParams(nFeatures int, intercept float64) Params {
	return Params{Coef: make([]float64, nFeatures), Intercept: intercept}
}

// Flatten packs params into the solver layout: coefficients followed by the intercept.
func (p Params) Flatten() []float64 {
	flat := make([]float64, len(p.Coef)+1)
	copy(flat, p.Coef)
	flat[len(p.Coef)] = p.Intercept
	return flat
}

// ParamsFromFlat is the inverse of Flatten. The slice is copied.
func ParamsFromFlat(flat []float64) Params {
	n := len(flat) - 1
	if n < 0 {
		return Params{}
	}
	coef := make([]float64, n)
	copy(coef, flat[:n])
	return Params{Coef: coef, Intercept: flat[n]}
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	coef := make([]float64, len(p.Coef))
	copy(coef, p.Coef)
	return Params{Coef: coef, Intercept: p.Intercept}
}

// IsZero reports whether params were never set.
func (p Params) IsZero() bool {
	return p.Coef == nil
}

// LinearPredictor computes X·coef + intercept.
func (p Params) LinearPredictor(X mat.Matrix) *mat.VecDense {
	r, _ := X.Dims()
	eta := mat.NewVecDense(r, nil)
	eta.MulVec(X, mat.NewVecDense(len(p.Coef), p.Coef))
	for i := 0; i < r; i++ {
		eta.SetVec(i, eta.AtVec(i)+p.Intercept)
	}
	return eta
}
