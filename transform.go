package goreflcore

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// interpolator is a piecewise polynomial through (x, y) that holds the end
// values outside the knots. Only linear pieces are implemented.
type interpolator struct {
	x, y []float64
}

func newInterpolator(x, y []float64, order int) (*interpolator, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("interpolator: x has %d points and y %d: %w", len(x), len(y), ErrLengthMismatch)
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("interpolator: %w", ErrEmptyData)
	}
	if err := checkOrder(order); err != nil {
		return nil, err
	}
	return &interpolator{x: x, y: y}, nil
}

func checkOrder(order int) error {
	if order < 0 || order > 6 {
		return fmt.Errorf("order %d: %w", order, ErrInterpolationOrder)
	}
	if order != 1 {
		return fmt.Errorf("order %d: %w", order, ErrUnsupportedOrder)
	}
	return nil
}

func (p *interpolator) at(v float64) float64 {
	return interpAt(v, p.x, p.y, p.y[0], p.y[len(p.y)-1])
}

// cosineTransform returns the bound state corrected cosine transform of a
// real amplitude sampled on an even grid from 0 to qmax:
//
//	ctf(x) = raw(x) - exp(-kappa x) raw(0),  kappa = sqrt(bse 1e-6)
//
// raw interpolates the FFT of the zero padded signal on 2*rhopoints depths.
func (inv *Inverter) cosineTransform(signal []float64) (func(x float64) float64, error) {
	cfg := inv.cfg
	dK := 0.5 * inv.qmax / float64(len(signal))
	kappa := math.Sqrt(cfg.BSE * 1e-6)
	dx := cfg.Thickness / float64(cfg.RhoPoints)
	nx := 2 * cfg.RhoPoints
	dim := int(2 * math.Pi / (dx * dK))
	if dim < nx {
		return nil, fmt.Errorf("inverter: fft length %d below %d depths: %w", dim, nx, ErrQSpacing)
	}

	padded := make([]float64, dim)
	copy(padded, signal)
	coef := fourier.NewFFT(dim).Coefficients(nil, padded)

	norm := math.Sqrt(float64(dim))
	convertfac := 2 * dK / math.Pi * norm * cfg.Thickness
	xs, ct := make([]float64, nx), make([]float64, nx)
	for k := range xs {
		xs[k] = dx * float64(k)
		// Coefficients holds the first half of a real spectrum.
		c := coef[min(k, dim-k)]
		ct[k] = convertfac * real(c) / norm
	}

	raw, err := newInterpolator(xs, ct, cfg.InterpolationOrder)
	if err != nil {
		return nil, err
	}
	raw0 := raw.at(0)
	return func(x float64) float64 {
		return raw.at(x) - math.Exp(-kappa*x)*raw0
	}, nil
}

// invert runs the layer stripping recursion on the cosine transform and
// returns the potential after every iteration; the last one is the answer.
func (inv *Inverter) invert(ctf func(x float64) float64) ([]IterationStep, error) {
	cfg := inv.cfg
	dz := 2 / float64(cfg.CalcPoints*cfg.RhoPoints)
	npts := int(math.Ceil(2 / dz))
	maxm := npts
	if maxm%2 == 0 {
		maxm++
	}
	mx := int(float64(maxm)/2 + 0.5)
	h := 2 / float64(2*mx-3)

	g := make([]float64, npts+2)
	for i := 0; i < npts-1; i++ {
		g[i] = ctf(float64(i) * dz * cfg.Thickness)
	}
	q := make([]float64, npts-1)
	for i := range q {
		q[i] = 2 * (g[i+1] - g[i]) / h
	}
	q[len(q)-1] = 0

	ut := make([]float64, 2*mx-2)
	for i := range ut {
		ut[i] = float64(i) * h * cfg.Thickness / 2
	}
	if cfg.CtfWindow > 0 {
		n := min(len(ut), len(q))
		p, err := newInterpolator(ut[:n], q[:n], cfg.InterpolationOrder)
		if err != nil {
			return nil, err
		}
		du := cfg.CtfWindow * h * cfg.Thickness / 2
		q = make([]float64, len(ut))
		for i, u := range ut {
			q[i] = (p.at(u-du) + p.at(u) + p.at(u+du)) / 3
		}
	}
	q = append(q, 0)

	first := make([]float64, len(q))
	for i, v := range q {
		first[i] = -2 * v * inv.rhoscale
	}
	steps := []IterationStep{{Ut: ut, Q: first}}

	// delta persists across iterations.
	delta := make([][]float64, mx)
	for m := range delta {
		delta[m] = make([]float64, 2*mx)
	}
	for it := 0; it < cfg.Iters; it++ {
		for m := 2; m < mx; m++ {
			prev, prev2 := delta[m-1], delta[m-2]
			for n := m; n < 2*mx-(m+1); n++ {
				delta[m][n] = h*h*q[m-1]*(g[m+n]+prev[n]) + prev[n+1] + prev[n-1] - prev2[n]
			}
		}

		udiag := make([]float64, mx-1)
		for i := range udiag {
			udiag[i] = -g[2*i] - delta[i][i]
		}
		mup := len(udiag) - 2
		h = 1 / float64(mup)

		ut := make([]float64, mup)
		qn := make([]float64, mup)
		scaled := make([]float64, mup)
		for i := range qn {
			ut[i] = float64(i) * h * cfg.Thickness
			qn[i] = 2 * (udiag[i+1] - udiag[i]) / h
			scaled[i] = inv.rhoscale * qn[i]
		}
		steps = append(steps, IterationStep{Ut: ut, Q: scaled})
		q = append(qn, 0, 0)
	}
	return steps, nil
}
