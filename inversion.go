package goreflcore

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"sync"
)

// InversionConfig controls the profile inversion. SLD values are in
// 10^-6 inv A^2 and lengths in A.
type InversionConfig struct {
	Substrate float64
	Thickness float64

	// CalcPoints is the internal oversampling of the output grid.
	CalcPoints int
	RhoPoints  int

	// Data outside [QMin, QMax] is dropped before inversion. QMax is +Inf
	// when unset.
	QMin float64
	QMax float64

	Iters  int
	Stages int

	// CtfWindow is the width in grid steps of a 3 point smoothing of the
	// transform; 0 disables it.
	CtfWindow float64

	// BackRefl reverses the output so depth 0 is at the substrate side.
	BackRefl bool

	// Noise scales the synthetic noise; 0 disables the noise trials.
	Noise float64
	// BSE is the bound state energy of the transform correction.
	BSE float64
	// Monitor selects counting noise for this many incident counts; 0 means unset.
	Monitor float64

	InterpolationOrder int
	Seed               uint64
	Workers            int
}

func DefaultInversionConfig() InversionConfig {
	return InversionConfig{
		Thickness:          400,
		CalcPoints:         4,
		RhoPoints:          128,
		QMax:               math.Inf(1),
		Iters:              6,
		Stages:             10,
		BackRefl:           true,
		Noise:              1,
		InterpolationOrder: 1,
		Seed:               1,
	}
}

// Validate reports the first invalid field.
func (c InversionConfig) Validate() error {
	switch {
	case !(c.Thickness > 0):
		return fmt.Errorf("inversion: thickness %g must be positive: %w", c.Thickness, ErrInvalidConfig)
	case c.RhoPoints <= 0 || c.CalcPoints <= 0:
		return fmt.Errorf("inversion: rhopoints %d and calcpoints %d must be positive: %w", c.RhoPoints, c.CalcPoints, ErrInvalidConfig)
	case c.RhoPoints*c.CalcPoints < 8:
		return fmt.Errorf("inversion: grid of %d points is too coarse: %w", c.RhoPoints*c.CalcPoints, ErrInvalidConfig)
	case c.Iters < 0:
		return fmt.Errorf("inversion: iters %d: %w", c.Iters, ErrInvalidConfig)
	case c.Stages < 1:
		return fmt.Errorf("inversion: stages %d: %w", c.Stages, ErrInvalidConfig)
	case c.BSE < 0:
		return fmt.Errorf("inversion: bound state energy %g: %w", c.BSE, ErrInvalidConfig)
	case c.Monitor < 0:
		return fmt.Errorf("inversion: monitor %g: %w", c.Monitor, ErrInvalidConfig)
	case !(c.QMax > c.QMin):
		return fmt.Errorf("inversion: Qmax %g must exceed Qmin %g: %w", c.QMax, c.QMin, ErrInvalidConfig)
	case c.CtfWindow < 0:
		return fmt.Errorf("inversion: ctf window %g: %w", c.CtfWindow, ErrInvalidConfig)
	}
	return checkOrder(c.InterpolationOrder)
}

// InversionData is the (Q, Re r[, dRe r]) input of an inversion.
type InversionData struct {
	Q      []float64
	RealR  []float64
	DRealR []float64
}

// DepthProfile is an inverted SLD profile. DRho is the spread over noise
// trials.
type DepthProfile struct {
	Z    []float64
	Rho  []float64
	DRho []float64
}

// IterationStep is the potential estimate after one iteration.
type IterationStep struct {
	Ut []float64
	Q  []float64
}

type inversionRun struct {
	profile    DepthProfile
	signal     InversionData
	iterations []IterationStep
}

// Inverter turns the real part of a free film reflection amplitude into a
// depth profile. The input is resampled onto an even grid from Q = 0 at
// construction; Run may then be called any number of times.
type Inverter struct {
	cfg      InversionConfig
	rhoscale float64

	q, realR, dRealR []float64
	qmax             float64

	logger *log.Logger

	mu   sync.RWMutex
	last *inversionRun
}

// NewInverter validates cfg and meshes data.
func NewInverter(data InversionData, cfg InversionConfig) (*Inverter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(data.RealR) != len(data.Q) {
		return nil, fmt.Errorf("inverter: %d Q and %d RealR values: %w", len(data.Q), len(data.RealR), ErrLengthMismatch)
	}
	if data.DRealR != nil && len(data.DRealR) != len(data.Q) {
		return nil, fmt.Errorf("inverter: %d Q and %d dRealR values: %w", len(data.Q), len(data.DRealR), ErrLengthMismatch)
	}

	inv := &Inverter{
		cfg:      cfg,
		rhoscale: 1e6 / (4 * math.Pi * cfg.Thickness * cfg.Thickness),
	}
	if err := inv.remesh(data); err != nil {
		return nil, err
	}
	dK := 0.5 * inv.qmax / float64(len(inv.realR))
	dx := cfg.Thickness / float64(cfg.RhoPoints)
	if dim := int(2 * math.Pi / (dx * dK)); dim < 2*cfg.RhoPoints {
		return nil, fmt.Errorf("inverter: thickness %g with Qmax %g: %w", cfg.Thickness, inv.qmax, ErrQSpacing)
	}
	return inv, nil
}

// remesh trims to [QMin, QMax] and resamples onto an even grid from 0 with
// about the same spacing, zero filled below the data.
func (inv *Inverter) remesh(data InversionData) error {
	var q, rer, drer []float64
	for i, v := range data.Q {
		if v < inv.cfg.QMin || v > inv.cfg.QMax {
			continue
		}
		q = append(q, v)
		rer = append(rer, data.RealR[i])
		if data.DRealR != nil {
			drer = append(drer, data.DRealR[i])
		}
	}
	if len(q) < 2 {
		return fmt.Errorf("inverter: %d points in [%g, %g]: %w", len(q), inv.cfg.QMin, inv.cfg.QMax, ErrEmptyData)
	}

	last := q[len(q)-1]
	dq := (last - q[0]) / float64(len(q)-1)
	if !(dq > 0) {
		return fmt.Errorf("inverter: Q is not increasing: %w", ErrQSpacing)
	}
	npts := int(last/dq + 1.5)
	mq, mr := Remesh(q, rer, 0, last, npts, 0, 0)
	if len(mq) < 2 {
		return fmt.Errorf("inverter: %d finite points: %w", len(mq), ErrEmptyData)
	}
	inv.q, inv.realR, inv.qmax = mq, mr, last
	if drer != nil {
		_, inv.dRealR = Remesh(q, drer, 0, last, len(mq), 0, 0)
	}
	return nil
}

// SetLogger enables stage logging.
func (inv *Inverter) SetLogger(l *log.Logger) {
	inv.logger = l
}

func (inv *Inverter) Config() InversionConfig {
	return inv.cfg
}

// Input returns the meshed signal the trials start from.
func (inv *Inverter) Input() InversionData {
	return InversionData{Q: inv.q, RealR: inv.realR, DRealR: inv.dRealR}
}

// noiseModel picks the trial noise: counting statistics when a monitor is
// set, the supplied uncertainty when present and 5% of |Re r| otherwise.
func (inv *Inverter) noiseModel() NoiseModel {
	switch {
	case inv.cfg.Monitor > 0:
		return MonitorNoise{Monitor: inv.cfg.Monitor, Scale: inv.cfg.Noise}
	case inv.dRealR != nil:
		return GaussianNoise{Sigma: inv.dRealR, Scale: inv.cfg.Noise}
	default:
		return RelativeNoise{Fraction: 0.05, Scale: inv.cfg.Noise}
	}
}

// Run inverts the meshed signal and Stages-1 noisy copies of it. Trial 0 is
// always the unperturbed signal; with Noise <= 0 it is the only one. The
// returned profile is the trial mean plus the substrate, with the population
// spread as DRho.
func (inv *Inverter) Run(ctx context.Context) (*DepthProfile, error) {
	stages := inv.cfg.Stages
	if inv.cfg.Noise <= 0 {
		stages = 1
	}
	noise := inv.noiseModel()

	signals := make([][]float64, stages)
	profiles := make([][]float64, stages)
	var (
		z     []float64
		iters []IterationStep
	)
	err := runTrials(ctx, stages, inv.cfg.Workers, func(i int) error {
		signal := slices.Clone(inv.realR)
		if i > 0 {
			signal = noise.Apply(inv.realR, trialSource(inv.cfg.Seed, i))
		}
		ctf, err := inv.cosineTransform(signal)
		if err != nil {
			return err
		}
		steps, err := inv.invert(ctf)
		if err != nil {
			return err
		}
		final := steps[len(steps)-1]
		tz, rho := RemeshClamped(final.Ut, final.Q, 0, inv.cfg.Thickness, inv.cfg.RhoPoints)
		if !inv.cfg.BackRefl {
			tz, rho = reversed(tz), reversed(rho)
		}
		signals[i], profiles[i] = signal, rho
		if i == 0 {
			z, iters = tz, steps
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inverter: %w", err)
	}
	for i, p := range profiles {
		if len(p) != len(z) {
			return nil, fmt.Errorf("inverter: trial %d gave %d of %d depths: %w", i, len(p), len(z), ErrLengthMismatch)
		}
	}

	run := &inversionRun{iterations: iters}
	mean, std := columnStats(profiles, false)
	for i := range mean {
		mean[i] += inv.cfg.Substrate
	}
	run.profile = DepthProfile{Z: z, Rho: mean, DRho: std}
	sigMean, sigStd := columnStats(signals, false)
	run.signal = InversionData{Q: inv.q, RealR: sigMean, DRealR: sigStd}

	if inv.logger != nil {
		inv.logger.Printf("inverter: %d stages, %d iterations, %d depths", stages, inv.cfg.Iters, len(z))
	}

	inv.mu.Lock()
	inv.last = run
	inv.mu.Unlock()

	out := run.profile
	return &out, nil
}

func (inv *Inverter) result() (*inversionRun, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if inv.last == nil {
		return nil, fmt.Errorf("inverter: no completed run: %w", ErrEmptyData)
	}
	return inv.last, nil
}

// Profile returns the profile of the last run.
func (inv *Inverter) Profile() (DepthProfile, error) {
	r, err := inv.result()
	if err != nil {
		return DepthProfile{}, err
	}
	return r.profile, nil
}

// Signal returns the trial mean and spread of the signals of the last run.
func (inv *Inverter) Signal() (InversionData, error) {
	r, err := inv.result()
	if err != nil {
		return InversionData{}, err
	}
	return r.signal, nil
}

// Iterations returns the potential after each iteration of the unperturbed trial.
func (inv *Inverter) Iterations() ([]IterationStep, error) {
	r, err := inv.result()
	if err != nil {
		return nil, err
	}
	return r.iterations, nil
}

// Refl returns the amplitude of the inverted film embedded in the substrate
// on both sides, to compare with the input. A nil q uses the meshed grid.
func (inv *Inverter) Refl(q []float64) ([]complex128, error) {
	return inv.refl(q, inv.cfg.Substrate, true)
}

// ReflSurround returns the amplitude of the inverted film between the given
// surround and the substrate.
func (inv *Inverter) ReflSurround(q []float64, surround float64) ([]complex128, error) {
	return inv.refl(q, surround, false)
}

func (inv *Inverter) refl(q []float64, surround float64, free bool) ([]complex128, error) {
	r, err := inv.result()
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = r.signal.Q
	}
	Q := slices.Clone(q)
	// Back reflectivity is measured at -Q; the free film is reversed again.
	if inv.cfg.BackRefl != free {
		for i := range Q {
			Q[i] = -Q[i]
		}
	}
	p := r.profile
	depth := append(append([]float64{0}, diff(p.Z)...), 0)
	rho := append(append([]float64{surround}, p.Rho[1:]...), inv.cfg.Substrate)
	amp, err := Reflect(Q, Stack{Depth: depth, Rho: rho})
	if err != nil {
		return nil, fmt.Errorf("inverter: %w", err)
	}
	return amp, nil
}

// ChiSq is the mean squared normalized residual between the averaged input
// and the real amplitude of the inverted film, over points with a spread
// above 1e-15.
func (inv *Inverter) ChiSq() (float64, error) {
	r, err := inv.result()
	if err != nil {
		return 0, err
	}
	var q, rer, drer []float64
	for i, d := range r.signal.DRealR {
		if d > 1e-15 {
			q = append(q, r.signal.Q[i])
			rer = append(rer, r.signal.RealR[i])
			drer = append(drer, d)
		}
	}
	if len(q) == 0 {
		return 0, fmt.Errorf("inverter: no points with uncertainty: %w", ErrEmptyData)
	}
	amp, err := inv.Refl(q)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, a := range amp {
		d := (rer[i] - real(a)) / drer[i]
		sum += d * d
	}
	return sum / float64(len(q)), nil
}
