// Package observation は GLM の観測モデル（ノイズ分布）を提供する。
//
// すべてのモデルは log リンク（逆リンクは exp）を使う。損失はサンプル平均の
// 負の対数尤度で、線形予測子 eta に関する微分を EtaGrad が返す。
package observation

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// PseudoR2 の種類
const (
	McFadden = "mcfadden"
	Cohen    = "cohen"
)

// Model は観測モデルのインターフェース
type Model interface {
	Name() string
	// InverseLink は eta を平均（発火率）に写す
	InverseLink(eta float64) float64
	// NegLogLikelihood はパラメータに依存しない定数項を除いた平均負対数尤度
	NegLogLikelihood(y, eta []float64) float64
	// EtaGrad は各サンプルの負対数尤度の eta 微分を grad に書き込む（平均化なし）
	EtaGrad(grad, y, eta []float64)
	// LogLikelihood は定数項を含む完全な対数尤度の合計
	LogLikelihood(y, rate []float64) float64
	// Deviance はサンプルごとの deviance
	Deviance(y, rate []float64) []float64
	// Sample は rate を平均とする応答を 1 つずつ生成する
	Sample(src rand.Source, rate []float64) []float64
	// CheckResponse は y が分布の台に入っているか検証する
	CheckResponse(y []float64) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Model{
		"Poisson": func() Model { return NewPoisson() },
		"Gamma":   func() Model { return NewGamma(1) },
	}
)

// Register は観測モデルを登録する
func Register(key string, ctor func() Model) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = ctor
}

// Keys は登録済みのキーを返す
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New は key から観測モデルを生成する
func New(key string) (Model, error) {
	registryMu.RLock()
	ctor, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewConfigurationError("observation model", key, Keys())
	}
	return ctor(), nil
}

// Resolve は Model、キー文字列、nil（Poisson）を受け付ける
func Resolve(v interface{}) (Model, error) {
	switch m := v.(type) {
	case nil:
		return NewPoisson(), nil
	case Model:
		return m, nil
	case string:
		return New(m)
	default:
		return nil, errors.NewValidationError("observation_model", "must be a Model or a registry key", v)
	}
}

// PseudoR2 は McFadden または Cohen の擬似決定係数を計算する。
// null モデルは y の平均を定数予測とする。
func PseudoR2(m Model, y, rate []float64, kind string) (float64, error) {
	if len(y) != len(rate) {
		return 0, errors.NewDimensionError("observation.PseudoR2", len(y), len(rate), 0)
	}
	if len(y) == 0 {
		return 0, errors.ErrEmptyData
	}
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	null := make([]float64, len(y))
	for i := range null {
		null[i] = mean
	}

	switch kind {
	case McFadden, "":
		llModel := m.LogLikelihood(y, rate)
		llNull := m.LogLikelihood(y, null)
		if llNull == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("pseudo-r2", "null log-likelihood is zero", math.NaN()))
			return math.NaN(), nil
		}
		return 1 - llModel/llNull, nil
	case Cohen:
		devModel, devNull := sum(m.Deviance(y, rate)), sum(m.Deviance(y, null))
		if devNull == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("pseudo-r2", "null deviance is zero", math.NaN()))
			return math.NaN(), nil
		}
		return 1 - devModel/devNull, nil
	default:
		return 0, errors.NewConfigurationError("score type", kind, []string{McFadden, Cohen})
	}
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

// xlogy は x*log(y) で x == 0 のとき 0 を返す
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
