// Package preprocessing は特徴量のスケーリングを提供する。
// どちらのスケーラーも NaN を無視して統計量を計算し、変換では NaN をそのまま通す。
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/core/parallel"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// 定数特徴量とみなす範囲
const constantTol = 1e-8

// StandardScaler はデータを平均0、標準偏差1に変換する
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// finiteColumn は列 j の NaN でない値を返す
func finiteColumn(X mat.Matrix, j int) []float64 {
	r, _ := X.Dims()
	out := make([]float64, 0, r)
	for i := 0; i < r; i++ {
		if v := X.At(i, j); !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Fit は訓練データから平均と標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		col := finiteColumn(X, j)
		if len(col) == 0 {
			return errors.NewValueError("StandardScaler.Fit", fmt.Sprintf("feature %d has no finite values", j))
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if s.WithStd {
			if sd := math.Sqrt(variance); sd >= constantTol {
				s.Scale[j] = sd
			}
		}
	}

	s.state.SetFitted(c, r, 0, "")
	return nil
}

// apply computes f(value, j) element-wise, in parallel over rows.
func apply(X mat.Matrix, f func(v float64, j int) float64) *mat.Dense {
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, f(X.At(i, j), j))
			}
		}
	})
	return result
}

func (s *StandardScaler) check(X mat.Matrix, method string) error {
	if err := s.state.RequireFitted("StandardScaler", method); err != nil {
		return err
	}
	nFeatures, _ := s.state.GetDimensions()
	if _, c := X.Dims(); c != nFeatures {
		return errors.NewDimensionError("StandardScaler."+method, nFeatures, c, 1)
	}
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X, "Transform"); err != nil {
		return nil, err
	}
	return apply(X, func(v float64, j int) float64 { return (v - s.Mean[j]) / s.Scale[j] }), nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X, "InverseTransform"); err != nil {
		return nil, err
	}
	return apply(X, func(v float64, j int) float64 { return v*s.Scale[j] + s.Mean[j] }), nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams は with_mean / with_std を更新する。値が変わると学習済みの状態は破棄される
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	withMean, withStd := s.WithMean, s.WithStd
	for k, v := range params {
		b, ok := v.(bool)
		switch {
		case !ok:
			return errors.NewValidationError(k, "must be a boolean", v)
		case k == "with_mean":
			withMean = b
		case k == "with_std":
			withStd = b
		default:
			return errors.NewValidationError(k, "unknown parameter for StandardScaler", v)
		}
	}
	if withMean != s.WithMean || withStd != s.WithStd {
		s.WithMean, s.WithStd = withMean, withStd
		s.state.Reset()
	}
	return nil
}

// CloneTransformer は未学習のコピーを返す
func (s *StandardScaler) CloneTransformer() model.TransformerStep {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.state.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, nFeatures)
}

// MinMaxScaler はデータを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin と DataMax は学習データの最小値・最大値
	DataMin []float64
	DataMax []float64

	// Scale は各特徴量のスケール (max - min)
	Scale []float64

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{state: model.NewStateManager(), FeatureRange: featureRange}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if !(m.FeatureRange[0] < m.FeatureRange[1]) {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}

	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		col := finiteColumn(X, j)
		if len(col) == 0 {
			return errors.NewValueError("MinMaxScaler.Fit", fmt.Sprintf("feature %d has no finite values", j))
		}
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		m.DataMin[j], m.DataMax[j] = lo, hi
		// 定数特徴量はスケール1
		m.Scale[j] = 1
		if hi-lo >= constantTol {
			m.Scale[j] = hi - lo
		}
	}

	m.state.SetFitted(c, r, 0, "")
	return nil
}

func (m *MinMaxScaler) check(X mat.Matrix, method string) error {
	if err := m.state.RequireFitted("MinMaxScaler", method); err != nil {
		return err
	}
	nFeatures, _ := m.state.GetDimensions()
	if _, c := X.Dims(); c != nFeatures {
		return errors.NewDimensionError("MinMaxScaler."+method, nFeatures, c, 1)
	}
	return nil
}

// Transform は X_std·(max - min) + min、X_std = (X - data_min) / (data_max - data_min)
func (m *MinMaxScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := m.check(X, "Transform"); err != nil {
		return nil, err
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return apply(X, func(v float64, j int) float64 {
		return (v-m.DataMin[j])/m.Scale[j]*width + m.FeatureRange[0]
	}), nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := m.check(X, "InverseTransform"); err != nil {
		return nil, err
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return apply(X, func(v float64, j int) float64 {
		return (v-m.FeatureRange[0])/width*m.Scale[j] + m.DataMin[j]
	}), nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

// SetParams は feature_range を更新する
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "feature_range" {
			return errors.NewValidationError(k, "unknown parameter for MinMaxScaler", v)
		}
		fr, ok := v.([2]float64)
		if !ok || !(fr[0] < fr[1]) {
			return errors.NewValidationError(k, "must be [2]float64 with min < max", v)
		}
		if fr != m.FeatureRange {
			m.FeatureRange = fr
			m.state.Reset()
		}
	}
	return nil
}

// CloneTransformer は未学習のコピーを返す
func (m *MinMaxScaler) CloneTransformer() model.TransformerStep {
	return NewMinMaxScaler(m.FeatureRange)
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	if !m.state.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])",
			m.FeatureRange[0], m.FeatureRange[1])
	}
	nFeatures, _ := m.state.GetDimensions()
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_features=%d)",
		m.FeatureRange[0], m.FeatureRange[1], nFeatures)
}

var (
	_ model.TransformerStep = (*StandardScaler)(nil)
	_ model.TransformerStep = (*MinMaxScaler)(nil)
)
