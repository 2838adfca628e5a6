package processing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kacperjurak/goreflcore"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
)

// Pipeline reconstructs the phase of a surround pair and inverts the real
// part of the recovered amplitude into a depth profile.
type Pipeline struct {
	config *config.Config
	logger *log.Logger
}

// Result holds every stage of one reconstruction.
type Result struct {
	Amplitude *goreflcore.Amplitude
	Inverter  *goreflcore.Inverter
	Profile   *goreflcore.DepthProfile

	// ChiSquare is zero when the run carried no uncertainty.
	ChiSquare float64
}

// NewPipeline creates a pipeline with the given defaults.
func NewPipeline(cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pipeline{config: cfg, logger: log.Default()}
}

// SetLogger replaces the logger; nil silences the pipeline.
func (p *Pipeline) SetLogger(l *log.Logger) {
	p.logger = l
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.logger != nil && !p.config.Run.Quiet {
		p.logger.Printf(format, args...)
	}
}

// stageLogger is handed to the core only in verbose mode.
func (p *Pipeline) stageLogger() *log.Logger {
	if p.config.Run.Verbose && !p.config.Run.Quiet {
		return p.logger
	}
	return nil
}

// Reconstruct runs the surround variation on m1 and m2 and inverts the
// result. The inversion always uses the substrate of the phase step since
// the free film is embedded in it.
func (p *Pipeline) Reconstruct(ctx context.Context, m1, m2 goreflcore.Measurement, phase goreflcore.PhaseConfig, inv goreflcore.InversionConfig) (*Result, error) {
	sv, err := goreflcore.NewSurroundVariation(m1, m2, phase)
	if err != nil {
		return nil, fmt.Errorf("phase reconstruction: %w", err)
	}
	sv.SetLogger(p.stageLogger())

	amp, err := sv.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase reconstruction: %w", err)
	}
	if amp.Len() < len(m1.Q) {
		p.logf("⚠️  %d of %d points dropped from the reconstructed phase", len(m1.Q)-amp.Len(), len(m1.Q))
	}

	inv.Substrate = phase.Substrate
	res, err := p.Invert(ctx, amp.RealPart(), inv)
	if err != nil {
		return nil, err
	}
	res.Amplitude = amp
	return res, nil
}

// Invert turns a real amplitude into a depth profile.
func (p *Pipeline) Invert(ctx context.Context, data goreflcore.InversionData, cfg goreflcore.InversionConfig) (*Result, error) {
	inv, err := goreflcore.NewInverter(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("inversion: %w", err)
	}
	inv.SetLogger(p.stageLogger())

	start := time.Now()
	profile, err := inv.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("inversion: %w", err)
	}

	res := &Result{Inverter: inv, Profile: profile}
	chi, err := inv.ChiSq()
	switch {
	case err == nil:
		res.ChiSquare = chi
	case errors.Is(err, goreflcore.ErrEmptyData):
		// noise free run
	default:
		return nil, fmt.Errorf("inversion: %w", err)
	}
	p.logf("✅ Inverted %d points into %d depths in %v", len(data.Q), len(profile.Z), time.Since(start))
	return res, nil
}

// Process runs a request with the pipeline defaults merged with the request
// overrides.
func (p *Pipeline) Process(ctx context.Context, req models.ReconstructRequest) (models.ProfileResponse, error) {
	if len(req.Measurements) != 2 {
		return models.ProfileResponse{}, fmt.Errorf("need two measurements, got %d: %w", len(req.Measurements), goreflcore.ErrInvalidConfig)
	}
	m1, err := measurement(req.Measurements[0])
	if err != nil {
		return models.ProfileResponse{}, err
	}
	m2, err := measurement(req.Measurements[1])
	if err != nil {
		return models.ProfileResponse{}, err
	}

	phase, inv, err := p.configs(req)
	if err != nil {
		return models.ProfileResponse{}, err
	}
	res, err := p.Reconstruct(ctx, m1, m2, phase, inv)
	if err != nil {
		return models.ProfileResponse{}, err
	}
	return Response(req.ID, res), nil
}

func (p *Pipeline) configs(req models.ReconstructRequest) (goreflcore.PhaseConfig, goreflcore.InversionConfig, error) {
	phase := p.config.PhaseConfig()
	inv := p.config.InversionConfig()
	if req.Substrate != nil {
		phase.Substrate = *req.Substrate
	}
	switch len(req.Surround) {
	case 0:
	case 2:
		phase.Surround = [2]float64{req.Surround[0], req.Surround[1]}
	default:
		return phase, inv, fmt.Errorf("need two surround values, got %d: %w", len(req.Surround), goreflcore.ErrInvalidConfig)
	}
	if req.Thickness != nil {
		inv.Thickness = *req.Thickness
	}
	if req.QMax != nil {
		inv.QMax = *req.QMax
	}
	return phase, inv, nil
}

func measurement(d models.MeasurementData) (goreflcore.Measurement, error) {
	m := goreflcore.Measurement{Name: d.Name, Q: d.Q, R: d.R}
	if len(d.DR) > 0 {
		m.DR = d.DR
	}
	return m, m.Validate()
}

// Response flattens a result into its JSON form.
func Response(id string, res *Result) models.ProfileResponse {
	out := models.ProfileResponse{
		ID:        id,
		Z:         res.Profile.Z,
		Rho:       res.Profile.Rho,
		DRho:      res.Profile.DRho,
		ChiSquare: res.ChiSquare,
	}
	if amp := res.Amplitude; amp != nil {
		out.Q, out.RealR, out.ImagR = amp.Q, amp.RealR, amp.ImagR
		out.DRealR, out.DImagR = amp.DRealR, amp.DImagR
	}
	return out
}
