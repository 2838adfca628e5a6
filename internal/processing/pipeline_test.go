package processing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/goreflcore"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
)

const substrate = 2.1

// surroundPair measures a (5, 100 A) / (2, 200 A) film through the
// substrate with the surrounds -0.53 and 2.3.
func surroundPair(t *testing.T) []models.MeasurementData {
	t.Helper()
	q := goreflcore.Linspace(0, 0.3, 151)
	back := make([]float64, len(q))
	for i, v := range q {
		back[i] = -v
	}
	var out []models.MeasurementData
	for _, v := range []float64{-0.53, 2.3} {
		r, err := goreflcore.Reflect(back, goreflcore.Stack{
			Depth: []float64{0, 100, 200, 0},
			Rho:   []float64{v, 5, 2, substrate},
		})
		require.NoError(t, err)
		refl := make([]float64, len(r))
		for i, x := range r {
			refl[i] = real(x)*real(x) + imag(x)*imag(x)
		}
		out = append(out, models.MeasurementData{Q: q, R: refl})
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Phase.Substrate = substrate
	cfg.Phase.Surround = []float64{-0.53, 2.3}
	cfg.Inversion.Stages = 3
	cfg.Run.Quiet = true
	return cfg
}

func TestProcessMatchesCore(t *testing.T) {
	cfg := testConfig()
	p := NewPipeline(cfg)
	p.SetLogger(nil)

	data := surroundPair(t)
	resp, err := p.Process(context.Background(), models.ReconstructRequest{ID: "abc", Measurements: data})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.ID)
	require.Len(t, resp.Z, cfg.Inversion.RhoPoints)
	require.Len(t, resp.Rho, cfg.Inversion.RhoPoints)
	require.Len(t, resp.RealR, len(resp.Q))
	assert.Nil(t, resp.DRealR)

	m1, err := goreflcore.NewMeasurement(data[0].Q, data[0].R, nil)
	require.NoError(t, err)
	m2, err := goreflcore.NewMeasurement(data[1].Q, data[1].R, nil)
	require.NoError(t, err)
	sv, err := goreflcore.NewSurroundVariation(m1, m2, cfg.PhaseConfig())
	require.NoError(t, err)
	amp, err := sv.Run(context.Background())
	require.NoError(t, err)
	invCfg := cfg.InversionConfig()
	invCfg.Substrate = substrate
	inv, err := goreflcore.NewInverter(amp.RealPart(), invCfg)
	require.NoError(t, err)
	want, err := inv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, amp.Q, resp.Q)
	assert.Equal(t, want.Z, resp.Z)
	assert.Equal(t, want.Rho, resp.Rho)
	assert.Equal(t, want.DRho, resp.DRho)
}

func TestProcessOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Phase.Surround = nil
	p := NewPipeline(cfg)
	p.SetLogger(nil)
	data := surroundPair(t)

	_, err := p.Process(context.Background(), models.ReconstructRequest{Measurements: data})
	require.ErrorIs(t, err, goreflcore.ErrInvalidConfig)

	thickness := 350.0
	resp, err := p.Process(context.Background(), models.ReconstructRequest{
		Measurements: data,
		Surround:     []float64{-0.53, 2.3},
		Thickness:    &thickness,
	})
	require.NoError(t, err)
	assert.InDelta(t, 350, resp.Z[len(resp.Z)-1], 1e-9)
}

func TestProcessRejectsBadRequests(t *testing.T) {
	p := NewPipeline(testConfig())
	p.SetLogger(nil)
	data := surroundPair(t)

	_, err := p.Process(context.Background(), models.ReconstructRequest{Measurements: data[:1]})
	require.ErrorIs(t, err, goreflcore.ErrInvalidConfig)

	_, err = p.Process(context.Background(), models.ReconstructRequest{Measurements: data, Surround: []float64{1}})
	require.ErrorIs(t, err, goreflcore.ErrInvalidConfig)

	bad := []models.MeasurementData{data[0], {Q: data[1].Q, R: data[1].R[:3]}}
	_, err = p.Process(context.Background(), models.ReconstructRequest{Measurements: bad})
	require.ErrorIs(t, err, goreflcore.ErrLengthMismatch)
}

func TestInvertReportsChiSquare(t *testing.T) {
	cfg := testConfig()
	p := NewPipeline(cfg)
	p.SetLogger(nil)

	q := goreflcore.Linspace(0, 0.3, 151)
	r, err := goreflcore.Reflect(q, goreflcore.Stack{
		Depth: []float64{0, 100, 200, 0},
		Rho:   []float64{substrate, 5, 2, substrate},
	})
	require.NoError(t, err)
	data := goreflcore.InversionData{Q: q, RealR: make([]float64, len(q)), DRealR: make([]float64, len(q))}
	for i, v := range r {
		data.RealR[i] = real(v)
		data.DRealR[i] = 1e-3
	}
	invCfg := cfg.InversionConfig()
	invCfg.Substrate = substrate

	res, err := p.Invert(context.Background(), data, invCfg)
	require.NoError(t, err)
	assert.Greater(t, res.ChiSquare, 0.0)
	assert.Nil(t, res.Amplitude)

	invCfg.Noise = 0
	res, err = p.Invert(context.Background(), data, invCfg)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.ChiSquare)
}
