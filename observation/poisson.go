package observation

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Poisson はカウントデータ（スパイク数）用のモデル
type Poisson struct{}

// NewPoisson は Poisson モデルを返す
func NewPoisson() *Poisson { return &Poisson{} }

func (*Poisson) Name() string { return "Poisson" }

func (*Poisson) InverseLink(eta float64) float64 { return errors.StabilizeExp(eta) }

// NegLogLikelihood は mean(rate - y·eta)
func (p *Poisson) NegLogLikelihood(y, eta []float64) float64 {
	s := 0.0
	for i := range y {
		s += p.InverseLink(eta[i]) - y[i]*eta[i]
	}
	return s / float64(len(y))
}

func (p *Poisson) EtaGrad(grad, y, eta []float64) {
	for i := range y {
		grad[i] = p.InverseLink(eta[i]) - y[i]
	}
}

func (*Poisson) LogLikelihood(y, rate []float64) float64 {
	s := 0.0
	for i := range y {
		lg, _ := math.Lgamma(y[i] + 1)
		s += xlogy(y[i], rate[i]) - rate[i] - lg
	}
	return s
}

// Deviance は 2·(y·log(y/rate) - (y - rate))
func (*Poisson) Deviance(y, rate []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = 2 * (xlogy(y[i], y[i]/rate[i]) - (y[i] - rate[i]))
	}
	return out
}

func (*Poisson) Sample(src rand.Source, rate []float64) []float64 {
	out := make([]float64, len(rate))
	for i, r := range rate {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			out[i] = math.NaN()
			continue
		}
		if r <= 0 {
			continue
		}
		out[i] = distuv.Poisson{Lambda: r, Src: src}.Rand()
	}
	return out
}

func (*Poisson) CheckResponse(y []float64) error {
	for i, v := range y {
		if v < 0 || math.IsNaN(v) {
			return errors.NewValidationError("y", "Poisson responses must be non-negative", i)
		}
	}
	return nil
}
