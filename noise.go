package goreflcore

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NoiseModel resynthesizes a signal for one Monte-Carlo trial. Apply must not
// modify signal.
type NoiseModel interface {
	Apply(signal []float64, src rand.Source) []float64
}

// MonitorNoise models counting statistics of an incident beam with the given
// monitor counts: each point moves by a uniformly scaled Poisson deviate.
type MonitorNoise struct {
	Monitor float64
	Scale   float64
}

func (n MonitorNoise) Apply(signal []float64, src rand.Source) []float64 {
	u := distuv.Uniform{Min: -1, Max: 1, Src: src}
	out := make([]float64, len(signal))
	for i, r := range signal {
		a := math.Abs(r)
		var p float64
		if lambda := n.Monitor * a; lambda > 0 {
			p = distuv.Poisson{Lambda: lambda, Src: src}.Rand()/n.Monitor - a
		}
		out[i] = r + n.Scale*u.Rand()*p
	}
	return out
}

// GaussianNoise shifts the whole signal by one normal deviate per trial,
// scaled at each point by the supplied uncertainty.
type GaussianNoise struct {
	Sigma []float64
	Scale float64
}

func (n GaussianNoise) Apply(signal []float64, src rand.Source) []float64 {
	d := distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand() * n.Scale
	out := make([]float64, len(signal))
	for i, r := range signal {
		out[i] = r + d*n.Sigma[i]
	}
	return out
}

// RelativeNoise is GaussianNoise with a width of Fraction*|signal|.
type RelativeNoise struct {
	Fraction float64
	Scale    float64
}

func (n RelativeNoise) Apply(signal []float64, src rand.Source) []float64 {
	d := distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand() * n.Scale * n.Fraction
	out := make([]float64, len(signal))
	for i, r := range signal {
		out[i] = r + d*math.Abs(r)
	}
	return out
}

// resample draws each point from Normal(signal[i], sigma[i]).
func resample(signal, sigma []float64, src rand.Source) []float64 {
	out := make([]float64, len(signal))
	for i, r := range signal {
		out[i] = distuv.Normal{Mu: r, Sigma: sigma[i], Src: src}.Rand()
	}
	return out
}

// trialSource returns the random stream of one trial.
func trialSource(seed uint64, trial int) rand.Source {
	return rand.NewPCG(seed, uint64(trial))
}
