// Package metrics は回帰モデルの評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// pair は yTrue と yPred を検証してスライスに変換する
func pair(op string, yTrue, yPred mat.Vector) ([]float64, []float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = yTrue.AtVec(i)
		b[i] = yPred.AtVec(i)
	}
	return a, b, nil
}

// DropNaN は yTrue か yPred が NaN の行を除いたコピーを返す
func DropNaN(yTrue, yPred mat.Vector) (*mat.VecDense, *mat.VecDense) {
	n := min(yTrue.Len(), yPred.Len())
	a := make([]float64, 0, n)
	b := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		if math.IsNaN(t) || math.IsNaN(p) {
			continue
		}
		a = append(a, t)
		b = append(b, p)
	}
	if len(a) == 0 {
		return &mat.VecDense{}, &mat.VecDense{}
	}
	return mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b)
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	floats.Sub(a, b)
	return floats.Dot(a, a) / float64(len(a)), nil
}

// RMSE は平方根平均二乗誤差を計算する
func RMSE(yTrue, yPred mat.Vector) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算する
func MAE(yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	floats.Sub(a, b)
	return floats.Norm(a, 1) / float64(len(a)), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := stat.Mean(a, nil)
	var tss, rss float64
	for i := range a {
		tss += (a[i] - mean) * (a[i] - mean)
		rss += (a[i] - b[i]) * (a[i] - b[i])
	}
	// すべての yTrue が同じ値
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差。yTrue == 0 のサンプルは無視する
func MAPE(yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	valid := 0
	for i := range a {
		if a[i] != 0 {
			sum += math.Abs(a[i]-b[i]) / math.Abs(a[i])
			valid++
		}
	}
	if valid == 0 {
		return 0, errors.Newf("MAPE: all yTrue values are zero")
	}
	return sum / float64(valid) * 100, nil
}

// ExplainedVarianceScore は 1 - Var(yTrue - yPred) / Var(yTrue)
func ExplainedVarianceScore(yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	_, varTrue := stat.PopMeanVariance(a, nil)
	_, varDiff := stat.PopMeanVariance(diff, nil)
	if varTrue == 0 {
		return 0, errors.Newf("ExplainedVarianceScore: no variance in yTrue")
	}
	return 1 - varDiff/varTrue, nil
}

// PoissonDeviance は平均 Poisson deviance。yTrue >= 0、yPred > 0 が必要
func PoissonDeviance(yTrue, yPred mat.Vector) (float64, error) {
	return meanDeviance("PoissonDeviance", observation.NewPoisson(), yTrue, yPred)
}

// GammaDeviance は平均 Gamma deviance。yTrue > 0、yPred > 0 が必要
func GammaDeviance(yTrue, yPred mat.Vector) (float64, error) {
	return meanDeviance("GammaDeviance", observation.NewGamma(1), yTrue, yPred)
}

func meanDeviance(op string, m observation.Model, yTrue, yPred mat.Vector) (float64, error) {
	a, b, err := pair(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := m.CheckResponse(a); err != nil {
		return 0, err
	}
	for _, v := range b {
		if !(v > 0) {
			return 0, errors.NewValueError(op, "yPred must be strictly positive")
		}
	}
	return stat.Mean(m.Deviance(a, b), nil), nil
}
