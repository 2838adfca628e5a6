package goreflcore

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Stack describes a layered sample for the forward model. The first entry is
// the incident medium and the last the substrate; their depths are ignored.
// SLD and absorption are in units of 10^-6 inv A^2.
type Stack struct {
	Depth []float64
	Rho   []float64

	// Mu is the absorption per layer. Empty means none, one value is
	// broadcast over all layers.
	Mu []float64

	// Sigma is the roughness of the interface between layer i and i+1. It
	// needs n-1 entries (an n-th is ignored), or one value to broadcast.
	Sigma []float64

	// Wavelength per Q point, or a single broadcast value. Empty means 1.
	Wavelength []float64
}

// Reversed returns the stack seen from the substrate side.
func (s Stack) Reversed() Stack {
	n := len(s.Rho)
	r := Stack{
		Depth:      reversed(s.Depth),
		Rho:        reversed(s.Rho),
		Mu:         reversed(s.Mu),
		Wavelength: s.Wavelength,
	}
	if len(s.Sigma) > 1 && len(s.Sigma) >= n-1 {
		r.Sigma = reversed(s.Sigma[:n-1])
	} else {
		r.Sigma = s.Sigma
	}
	return r
}

// Reflect computes the complex reflection amplitude of the stack at each Q
// using the Abeles matrix formalism.
//
// Negative Q measures the stack from the substrate side. Points with
// |Q/2| below 1e-6 are the total reflection limit and return -1.
func Reflect(q []float64, s Stack) ([]complex128, error) {
	n := len(s.Rho)
	if n == 0 {
		return nil, fmt.Errorf("reflect: %w", ErrEmptyData)
	}
	if len(s.Depth) != n {
		return nil, fmt.Errorf("reflect: depth has %d entries for %d layers: %w", len(s.Depth), n, ErrLengthMismatch)
	}

	mu, err := broadcast(s.Mu, n, 0)
	if err != nil {
		return nil, fmt.Errorf("reflect: absorption: %w", err)
	}
	sigmaLen := n - 1
	if len(s.Sigma) == n {
		sigmaLen = n
	}
	sigma, err := broadcast(s.Sigma, sigmaLen, 0)
	if err != nil {
		return nil, fmt.Errorf("reflect: roughness: %w", err)
	}
	lambda, err := broadcast(s.Wavelength, len(q), 1)
	if err != nil {
		return nil, fmt.Errorf("reflect: wavelength: %w", err)
	}

	rho := make([]float64, n)
	for i := range rho {
		rho[i] = s.Rho[i] * 1e-6
		mu[i] *= 1e-6
	}

	front := layers{depth: s.Depth, rho: rho, mu: mu, sigma: sigma}
	back := layers{
		depth: reversed(s.Depth),
		rho:   reversed(rho),
		mu:    reversed(mu),
		sigma: reversed(sigma[:n-1]),
	}

	res := make([]complex128, len(q))
	for i, qz := range q {
		kz := qz / 2
		switch {
		case math.Abs(kz) < 1e-6:
			res[i] = -1
		case kz >= 0:
			res[i] = front.amplitude(kz, lambda[i])
		default:
			res[i] = back.amplitude(-kz, lambda[i])
		}
	}
	return res, nil
}

type layers struct {
	depth, rho, mu, sigma []float64
}

// amplitude runs the matrix recursion for one kz >= 0. The index of
// refraction is taken relative to the incident medium.
func (l layers) amplitude(kz, lambda float64) complex128 {
	kzSq := complex(kz*kz+4*math.Pi*l.rho[0], 0)
	k := complex(kz, 0)

	var (
		b11, b22 complex128 = 1, 1
		b12, b21 complex128 = 0, 0
	)
	for i := 0; i < len(l.rho)-1; i++ {
		kNext := cmplx.Sqrt(kzSq - complex(4*math.Pi*l.rho[i+1], 2*math.Pi*l.mu[i+1]/lambda))
		f := (k - kNext) / (k + kNext)
		f *= cmplx.Exp(-2 * k * kNext * complex(l.sigma[i]*l.sigma[i], 0))

		var m11, m22 complex128 = 1, 1
		if i > 0 {
			m11 = cmplx.Exp(1i * k * complex(l.depth[i], 0))
			m22 = cmplx.Exp(-1i * k * complex(l.depth[i], 0))
		}
		m21 := f * m11
		m12 := f * m22

		b11, b21 = b11*m11+b21*m12, b11*m21+b21*m22
		b12, b22 = b12*m11+b22*m12, b12*m21+b22*m22
		k = kNext
	}
	return b12 / b11
}

// broadcast expands an optional per-item parameter to n values.
func broadcast(v []float64, n int, def float64) ([]float64, error) {
	out := make([]float64, n)
	switch {
	case len(v) == 0:
		for i := range out {
			out[i] = def
		}
	case len(v) == 1:
		for i := range out {
			out[i] = v[0]
		}
	case len(v) >= n:
		copy(out, v[:n])
	default:
		return nil, fmt.Errorf("need %d values, got %d: %w", n, len(v), ErrLengthMismatch)
	}
	return out, nil
}

func reversed(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}
