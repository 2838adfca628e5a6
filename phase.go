package goreflcore

import (
	"context"
	"fmt"
	"log"
	"math"
)

// PhaseConfig configures the surround variation reconstruction. SLDs are in
// 10^-6 inv A^2.
type PhaseConfig struct {
	// Substrate is the uniform medium the beam enters through.
	Substrate float64
	// Surround holds the two varying media v1 and v2.
	Surround [2]float64
	// Stages is the number of Monte-Carlo trials used when dR is known.
	Stages  int
	Seed    uint64
	Workers int
}

// DefaultPhaseConfig returns the default trial settings.
func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{Stages: 100, Seed: 1}
}

func (c PhaseConfig) Validate() error {
	if c.Stages < 1 {
		return fmt.Errorf("phase: stages %d < 1: %w", c.Stages, ErrInvalidConfig)
	}
	if c.Surround[0] == c.Surround[1] {
		return fmt.Errorf("phase: surrounds must differ, both are %g: %w", c.Surround[0], ErrInvalidConfig)
	}
	return nil
}

// SurroundVariation reconstructs the complex reflection amplitude of a film
// from two back reflectivity measurements that differ only in the surround.
type SurroundVariation struct {
	cfg    PhaseConfig
	q, dq  []float64
	r1, r2 []float64
	dr1    []float64
	dr2    []float64
	logger *log.Logger
}

// NewSurroundVariation checks that both measurements share one Q grid.
func NewSurroundVariation(m1, m2 Measurement, cfg PhaseConfig) (*SurroundVariation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, m := range []Measurement{m1, m2} {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if !sameGrid(m1.Q, m2.Q) {
		return nil, fmt.Errorf("surround variation: %w", ErrQMismatch)
	}
	s := &SurroundVariation{
		cfg: cfg,
		q:   m1.Q,
		dq:  m1.DQ,
		r1:  m1.R,
		r2:  m2.R,
	}
	if m1.HasUncertainty() && m2.HasUncertainty() {
		s.dr1, s.dr2 = m1.DR, m2.DR
	}
	return s, nil
}

// SetLogger enables trial logging.
func (s *SurroundVariation) SetLogger(l *log.Logger) {
	s.logger = l
}

// Q returns the input grid.
func (s *SurroundVariation) Q() []float64 {
	return s.q
}

// Input returns the two reflectivities.
func (s *SurroundVariation) Input() (r1, r2 []float64) {
	return s.r1, s.r2
}

// Run reconstructs the amplitude. Without dR the closed form is evaluated
// once; with dR the result is the masked mean and spread of Stages resampled
// trials. Non-finite points are removed, so the result may be shorter than
// the input.
func (s *SurroundVariation) Run(ctx context.Context) (*Amplitude, error) {
	u, v1, v2 := s.cfg.Substrate, s.cfg.Surround[0], s.cfg.Surround[1]
	re, im := PhaseReconstruction(s.q, s.r1, s.r2, u, v1, v2)
	amp := &Amplitude{Q: append([]float64(nil), s.q...), RealR: re, ImagR: im}

	if s.dr1 != nil {
		stages := s.cfg.Stages
		res, ims := make([][]float64, stages), make([][]float64, stages)
		err := runTrials(ctx, stages, s.cfg.Workers, func(i int) error {
			src := trialSource(s.cfg.Seed, i)
			r1 := resample(s.r1, s.dr1, src)
			r2 := resample(s.r2, s.dr2, src)
			res[i], ims[i] = PhaseReconstruction(s.q, r1, r2, u, v1, v2)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("surround variation: %w", err)
		}
		amp.RealR, amp.DRealR = columnStats(res, true)
		amp.ImagR, amp.DImagR = columnStats(ims, true)
		if s.logger != nil {
			s.logger.Printf("surround variation: %d trials over %d points", stages, len(s.q))
		}
	}

	amp.Clean()
	return amp, nil
}

// PhaseReconstruction is the closed form solution for two reflectivities
// measured through substrate u with surrounds v1 and v2. Points below a
// critical edge or in total reflection come out non-finite.
func PhaseReconstruction(q, r1, r2 []float64, u, v1, v2 float64) (re, im []float64) {
	re, im = make([]float64, len(q)), make([]float64, len(q))
	for i, qi := range q {
		qsq := qi*qi + 16*math.Pi*u*1e-6
		usq := 1 - 16*math.Pi*u*1e-6/qsq
		v1sq := 1 - 16*math.Pi*v1*1e-6/qsq
		v2sq := 1 - 16*math.Pi*v2*1e-6/qsq

		sigma1 := 2 * math.Sqrt(v1sq*usq) * (1 + r1[i]) / (1 - r1[i])
		sigma2 := 2 * math.Sqrt(v2sq*usq) * (1 + r2[i]) / (1 - r2[i])

		alpha := usq * (sigma1 - sigma2) / (v1sq - v2sq)
		beta := (v2sq*sigma1 - v1sq*sigma2) / (v2sq - v1sq)
		gamma := math.Sqrt(alpha*beta - usq*usq)

		den := 2*usq + alpha + beta
		re[i] = (alpha - beta) / den
		im[i] = -2 * gamma / den
	}
	return re, im
}

// Refl returns the reflectivities the two measurements would show for the
// film (z, rho) placed between the surrounds and the substrate.
func (s *SurroundVariation) Refl(z, rho []float64) (r1, r2 []float64, err error) {
	w, layers, err := filmStack(z, rho)
	if err != nil {
		return nil, nil, err
	}
	q := negated(s.q)
	for k, v := range s.cfg.Surround {
		layers[0], layers[len(layers)-1] = v, s.cfg.Substrate
		r, err := Reflect(q, Stack{Depth: w, Rho: layers})
		if err != nil {
			return nil, nil, fmt.Errorf("surround variation: %w", err)
		}
		if k == 0 {
			r1 = squaredModulus(r)
		} else {
			r2 = squaredModulus(r)
		}
	}
	return r1, r2, nil
}

// FreeFilm returns the amplitude of the film (z, rho) embedded in the
// substrate on both sides, which is what Run reconstructs.
func (s *SurroundVariation) FreeFilm(z, rho []float64) (re, im []float64, err error) {
	w, layers, err := filmStack(z, rho)
	if err != nil {
		return nil, nil, err
	}
	layers[0], layers[len(layers)-1] = s.cfg.Substrate, s.cfg.Substrate
	r, err := Reflect(s.q, Stack{Depth: w, Rho: layers})
	if err != nil {
		return nil, nil, fmt.Errorf("surround variation: %w", err)
	}
	re, im = make([]float64, len(r)), make([]float64, len(r))
	for i, v := range r {
		re[i], im[i] = real(v), imag(v)
	}
	return re, im, nil
}

// filmStack turns a sampled profile into slab widths and an SLD list with
// free slots for the two bounding media.
func filmStack(z, rho []float64) (w, layers []float64, err error) {
	if len(z) < 2 || len(rho) != len(z) {
		return nil, nil, fmt.Errorf("film profile with %d depths and %d slds: %w", len(z), len(rho), ErrLengthMismatch)
	}
	w = append(append([]float64{0}, diff(z)...), 0)
	layers = append(append([]float64{0}, rho[1:]...), 0)
	return w, layers, nil
}

func negated(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}
