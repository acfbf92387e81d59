package main

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/config"
	"github.com/YuminosukeSato/glmgo/observation"
)

// 合成 place cell の真のチューニング
const (
	fieldCenter = 0.6
	fieldWidth  = 0.1
	fieldGain   = 1.5
	phaseGain   = 0.5
	speedGain   = 0.02
	maxSpeed    = 30.0
)

type session struct {
	Position []float64
	Phase    []float64
	Speed    []float64
	Rate     []float64
	Y        []float64
}

// simulateSession samples position, theta phase and running speed, and
// draws responses from obs around a Gaussian place field.
func simulateSession(d config.DataConfig, obs observation.Model) *session {
	src := rand.NewPCG(d.Seed, d.Seed^0x5deece66d)
	rng := rand.New(src)
	s := &session{
		Position: make([]float64, d.Samples),
		Phase:    make([]float64, d.Samples),
		Speed:    make([]float64, d.Samples),
		Rate:     make([]float64, d.Samples),
	}
	for i := 0; i < d.Samples; i++ {
		pos := rng.Float64()
		phase := 2 * math.Pi * rng.Float64()
		speed := maxSpeed * rng.Float64()
		field := fieldGain * math.Exp(-(pos-fieldCenter)*(pos-fieldCenter)/(2*fieldWidth*fieldWidth))
		s.Position[i], s.Phase[i], s.Speed[i] = pos, phase, speed
		s.Rate[i] = d.BaseRate * math.Exp(field+phaseGain*math.Cos(phase)+speedGain*speed)
	}
	s.Y = obs.Sample(src, s.Rate)
	return s
}

func (s *session) column(input string) []float64 {
	switch input {
	case config.InputPhase:
		return s.Phase
	case config.InputSpeed:
		return s.Speed
	default:
		return s.Position
	}
}

// design lays out one column per basis input over rows [lo, hi).
func (s *session) design(inputs []string, lo, hi int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(hi-lo, len(inputs), nil)
	for j, in := range inputs {
		col := s.column(in)
		for i := lo; i < hi; i++ {
			X.Set(i-lo, j, col[i])
		}
	}
	return X, mat.NewVecDense(hi-lo, append([]float64(nil), s.Y[lo:hi]...))
}
