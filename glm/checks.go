package glm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// CheckInputDimensionality validates shapes before any solver call:
// X must be a non-empty 2-D matrix and y must have one entry per row.
func (g *GLM) CheckInputDimensionality(X mat.Matrix, y mat.Vector) error {
	if X == nil {
		return errors.NewValueError("GLM", "X must not be nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("GLM", "empty data", errors.ErrEmptyData)
	}
	if y == nil {
		return nil
	}
	if y.Len() != r {
		return errors.NewDimensionError("GLM", r, y.Len(), 0)
	}
	return nil
}

// CheckParams validates a parameter set on its own.
func (g *GLM) CheckParams(params model.Params) error {
	if params.Coef == nil {
		return errors.NewValueError("GLM", "params must contain coefficients")
	}
	if err := errors.CheckNumericalStability("GLM.CheckParams", params.Coef, 0); err != nil {
		return err
	}
	return errors.CheckScalar("GLM.CheckParams", params.Intercept, 0)
}

// CheckInputAndParamsConsistency checks that params match the number of columns of X.
func (g *GLM) CheckInputAndParamsConsistency(params model.Params, X mat.Matrix, y mat.Vector) error {
	_, c := X.Dims()
	if len(params.Coef) != c {
		return errors.NewDimensionError("GLM", len(params.Coef), c, 1)
	}
	return nil
}

// validSamples drops rows where X or y has a NaN, as produced by
// convolutional features near the start of a recording. Infinite values
// are an error.
func validSamples(op string, X mat.Matrix, y mat.Vector) (*mat.Dense, *mat.VecDense, error) {
	r, c := X.Dims()
	keep := make([]int, 0, r)
	for i := 0; i < r; i++ {
		ok := !math.IsNaN(y.AtVec(i))
		if math.IsInf(y.AtVec(i), 0) {
			return nil, nil, errors.NewValueError(op, "y contains infinite values")
		}
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsInf(v, 0) {
				return nil, nil, errors.NewValueError(op, "X contains infinite values")
			}
			if math.IsNaN(v) {
				ok = false
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, nil, errors.NewValueError(op, "every sample contains NaN")
	}
	Xv := mat.NewDense(len(keep), c, nil)
	yv := mat.NewVecDense(len(keep), nil)
	for k, i := range keep {
		for j := 0; j < c; j++ {
			Xv.Set(k, j, X.At(i, j))
		}
		yv.SetVec(k, y.AtVec(i))
	}
	return Xv, yv, nil
}

// prepare runs the check hooks and returns the valid samples.
func (g *GLM) prepare(op string, X mat.Matrix, y mat.Vector) (*mat.Dense, *mat.VecDense, error) {
	if err := g.CheckInputDimensionality(X, y); err != nil {
		return nil, nil, err
	}
	if y == nil {
		return nil, nil, errors.NewValueError(op, "y must not be nil")
	}
	Xv, yv, err := validSamples(op, X, y)
	if err != nil {
		return nil, nil, err
	}
	if err := g.observation.CheckResponse(yv.RawVector().Data); err != nil {
		return nil, nil, err
	}
	return Xv, yv, nil
}
