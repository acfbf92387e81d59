package observation

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Gamma は正の連続値（カルシウム蛍光など）用のモデル。Shape は固定。
type Gamma struct {
	Shape float64
}

// NewGamma は shape を持つ Gamma モデルを返す。shape <= 0 のときは 1。
func NewGamma(shape float64) *Gamma {
	if shape <= 0 {
		shape = 1
	}
	return &Gamma{Shape: shape}
}

func (*Gamma) Name() string { return "Gamma" }

func (*Gamma) InverseLink(eta float64) float64 { return errors.StabilizeExp(eta) }

// NegLogLikelihood は mean(shape·(y/rate + eta))
func (g *Gamma) NegLogLikelihood(y, eta []float64) float64 {
	s := 0.0
	for i := range y {
		s += y[i]/g.InverseLink(eta[i]) + eta[i]
	}
	return g.Shape * s / float64(len(y))
}

func (g *Gamma) EtaGrad(grad, y, eta []float64) {
	for i := range y {
		grad[i] = g.Shape * (1 - y[i]/g.InverseLink(eta[i]))
	}
}

func (g *Gamma) LogLikelihood(y, rate []float64) float64 {
	k := g.Shape
	lgk, _ := math.Lgamma(k)
	s := 0.0
	for i := range y {
		s += k*math.Log(k) - lgk + (k-1)*math.Log(y[i]) - k*math.Log(rate[i]) - k*y[i]/rate[i]
	}
	return s
}

// Deviance は 2·(-log(y/rate) + (y - rate)/rate)
func (*Gamma) Deviance(y, rate []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = 2 * (-math.Log(y[i]/rate[i]) + (y[i]-rate[i])/rate[i])
	}
	return out
}

// Sample は平均 rate、形状 Shape の Gamma 分布から生成する
func (g *Gamma) Sample(src rand.Source, rate []float64) []float64 {
	out := make([]float64, len(rate))
	for i, r := range rate {
		if !(r > 0) || math.IsInf(r, 1) {
			out[i] = math.NaN()
			continue
		}
		out[i] = distuv.Gamma{Alpha: g.Shape, Beta: g.Shape / r, Src: src}.Rand()
	}
	return out
}

func (*Gamma) CheckResponse(y []float64) error {
	for i, v := range y {
		if !(v > 0) {
			return errors.NewValidationError("y", "Gamma responses must be strictly positive", i)
		}
	}
	return nil
}
