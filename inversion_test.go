package goreflcore_test

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/goreflcore"
)

// freeFilmData is the real amplitude of a (5, 100 A) / (2, 200 A) film
// embedded in the substrate, on 0 <= Q <= 0.3.
func freeFilmData(t *testing.T, withUncertainty bool) goreflcore.InversionData {
	t.Helper()
	q := goreflcore.Linspace(0, 0.3, 301)
	r, err := goreflcore.Reflect(q, goreflcore.Stack{
		Depth: []float64{0, 100, 200, 0},
		Rho:   []float64{substrateSLD, 5, 2, substrateSLD},
	})
	require.NoError(t, err)
	data := goreflcore.InversionData{Q: q, RealR: make([]float64, len(q))}
	for i, v := range r {
		data.RealR[i] = real(v)
	}
	if withUncertainty {
		data.DRealR = make([]float64, len(q))
		for i := range q {
			data.DRealR[i] = 1e-3
		}
	}
	return data
}

func quickConfig() goreflcore.InversionConfig {
	cfg := goreflcore.DefaultInversionConfig()
	cfg.Substrate = substrateSLD
	cfg.Stages = 3
	return cfg
}

func TestInversionConfigDefaults(t *testing.T) {
	cfg := goreflcore.DefaultInversionConfig()
	assert.Equal(t, 400.0, cfg.Thickness)
	assert.Equal(t, 4, cfg.CalcPoints)
	assert.Equal(t, 128, cfg.RhoPoints)
	assert.Equal(t, 6, cfg.Iters)
	assert.Equal(t, 10, cfg.Stages)
	assert.True(t, cfg.BackRefl)
	assert.True(t, math.IsInf(cfg.QMax, 1))
	require.NoError(t, cfg.Validate())
}

func TestInversionConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*goreflcore.InversionConfig)
		want   error
	}{
		{"thickness", func(c *goreflcore.InversionConfig) { c.Thickness = 0 }, goreflcore.ErrInvalidConfig},
		{"rhopoints", func(c *goreflcore.InversionConfig) { c.RhoPoints = 0 }, goreflcore.ErrInvalidConfig},
		{"coarse", func(c *goreflcore.InversionConfig) { c.RhoPoints, c.CalcPoints = 2, 2 }, goreflcore.ErrInvalidConfig},
		{"stages", func(c *goreflcore.InversionConfig) { c.Stages = 0 }, goreflcore.ErrInvalidConfig},
		{"bse", func(c *goreflcore.InversionConfig) { c.BSE = -1 }, goreflcore.ErrInvalidConfig},
		{"qrange", func(c *goreflcore.InversionConfig) { c.QMin, c.QMax = 0.2, 0.1 }, goreflcore.ErrInvalidConfig},
		{"monitor", func(c *goreflcore.InversionConfig) { c.Monitor = -5 }, goreflcore.ErrInvalidConfig},
		{"order range", func(c *goreflcore.InversionConfig) { c.InterpolationOrder = 7 }, goreflcore.ErrInterpolationOrder},
		{"order unsupported", func(c *goreflcore.InversionConfig) { c.InterpolationOrder = 3 }, goreflcore.ErrUnsupportedOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := goreflcore.DefaultInversionConfig()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), tt.want)

			_, err := goreflcore.NewInverter(freeFilmData(t, false), cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInverterZeroSignalGivesSubstrate(t *testing.T) {
	data := freeFilmData(t, false)
	for i := range data.RealR {
		data.RealR[i] = 0
	}
	inv, err := goreflcore.NewInverter(data, quickConfig())
	require.NoError(t, err)

	p, err := inv.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Z, 128)
	require.Len(t, p.Rho, 128)
	assert.Equal(t, 0.0, p.Z[0])
	assert.InDelta(t, 400, p.Z[len(p.Z)-1], 1e-9)
	for i := range p.Rho {
		assert.InDelta(t, substrateSLD, p.Rho[i], 1e-12)
		assert.InDelta(t, 0, p.DRho[i], 1e-12)
	}

	r, err := inv.Refl(nil)
	require.NoError(t, err)
	for i, q := range inv.Input().Q {
		if q > 0 {
			assert.InDelta(t, 0, cmplx.Abs(r[i]), 1e-12)
		}
	}
}

func TestInverterNoiseFreeIsIdempotent(t *testing.T) {
	cfg := quickConfig()
	cfg.Noise = 0
	cfg.Stages = 10
	inv, err := goreflcore.NewInverter(freeFilmData(t, false), cfg)
	require.NoError(t, err)

	first, err := inv.Run(context.Background())
	require.NoError(t, err)
	second, err := inv.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	for _, d := range first.DRho {
		assert.Equal(t, 0.0, d)
	}

	iters, err := inv.Iterations()
	require.NoError(t, err)
	assert.Len(t, iters, cfg.Iters+1)
}

func TestInverterSeededTrialsIgnoreWorkerCount(t *testing.T) {
	run := func(workers int) *goreflcore.DepthProfile {
		cfg := quickConfig()
		cfg.Stages = 6
		cfg.Workers = workers
		inv, err := goreflcore.NewInverter(freeFilmData(t, true), cfg)
		require.NoError(t, err)
		p, err := inv.Run(context.Background())
		require.NoError(t, err)
		return p
	}
	single := run(1)
	require.Equal(t, single, run(3))

	var spread float64
	for _, d := range single.DRho {
		spread += d
	}
	assert.Greater(t, spread, 0.0)
}

func TestInverterSignalAndChiSq(t *testing.T) {
	inv, err := goreflcore.NewInverter(freeFilmData(t, true), quickConfig())
	require.NoError(t, err)

	_, err = inv.ChiSq()
	require.ErrorIs(t, err, goreflcore.ErrEmptyData)
	_, err = inv.Profile()
	require.ErrorIs(t, err, goreflcore.ErrEmptyData)

	_, err = inv.Run(context.Background())
	require.NoError(t, err)

	sig, err := inv.Signal()
	require.NoError(t, err)
	require.Len(t, sig.RealR, len(inv.Input().Q))
	require.Len(t, sig.DRealR, len(inv.Input().Q))

	chi, err := inv.ChiSq()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(chi))
	assert.GreaterOrEqual(t, chi, 0.0)

	r, err := inv.ReflSurround([]float64{0.05, 0.1}, 0)
	require.NoError(t, err)
	assert.Len(t, r, 2)
}

func TestInverterFrontReflection(t *testing.T) {
	cfg := quickConfig()
	cfg.BackRefl = false
	cfg.Noise = 0
	inv, err := goreflcore.NewInverter(freeFilmData(t, false), cfg)
	require.NoError(t, err)
	p, err := inv.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 400, p.Z[0], 1e-9)
	assert.Equal(t, 0.0, p.Z[len(p.Z)-1])
}

func TestInverterRemesh(t *testing.T) {
	data := freeFilmData(t, true)
	cfg := quickConfig()
	cfg.QMin, cfg.QMax = 0.05, 0.2
	inv, err := goreflcore.NewInverter(data, cfg)
	require.NoError(t, err)

	in := inv.Input()
	require.Equal(t, 0.0, in.Q[0])
	assert.InDelta(t, 0.2, in.Q[len(in.Q)-1], 1.5e-3)
	require.Len(t, in.RealR, len(in.Q))
	require.Len(t, in.DRealR, len(in.Q))
	// Below the trimmed range the signal is zero filled.
	assert.Equal(t, 0.0, in.RealR[1])
}

func TestInverterQSpacing(t *testing.T) {
	data := goreflcore.InversionData{
		Q:     goreflcore.Linspace(0, 0.3, 31),
		RealR: make([]float64, 31),
	}
	cfg := quickConfig()
	cfg.Thickness = 4000
	_, err := goreflcore.NewInverter(data, cfg)
	require.ErrorIs(t, err, goreflcore.ErrQSpacing)
}

func TestInverterInputErrors(t *testing.T) {
	_, err := goreflcore.NewInverter(goreflcore.InversionData{Q: []float64{0, 1}, RealR: []float64{0}}, quickConfig())
	require.ErrorIs(t, err, goreflcore.ErrLengthMismatch)

	_, err = goreflcore.NewInverter(goreflcore.InversionData{Q: []float64{0.1}, RealR: []float64{0}}, quickConfig())
	require.ErrorIs(t, err, goreflcore.ErrEmptyData)
}

func TestInverterCancel(t *testing.T) {
	inv, err := goreflcore.NewInverter(freeFilmData(t, false), quickConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = inv.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func noiseFreeProfile(t *testing.T, modify func(*goreflcore.InversionConfig)) *goreflcore.DepthProfile {
	t.Helper()
	cfg := quickConfig()
	cfg.Noise = 0
	if modify != nil {
		modify(&cfg)
	}
	inv, err := goreflcore.NewInverter(freeFilmData(t, false), cfg)
	require.NoError(t, err)
	p, err := inv.Run(context.Background())
	require.NoError(t, err)
	return p
}

func TestInverterRecoversFilm(t *testing.T) {
	p := noiseFreeProfile(t, nil)
	layers := []struct {
		lo, hi, rho float64
	}{
		{15, 85, 5},
		{120, 280, 2},
	}
	for _, l := range layers {
		n := 0
		for i, z := range p.Z {
			if z < l.lo || z > l.hi {
				continue
			}
			n++
			assert.InDelta(t, l.rho, p.Rho[i], 0.3, "z=%g", z)
		}
		assert.NotZero(t, n, "no depths in [%g, %g]", l.lo, l.hi)
	}
}

func TestInverterCtfWindowSmooths(t *testing.T) {
	raw := noiseFreeProfile(t, func(c *goreflcore.InversionConfig) { c.Iters, c.CtfWindow = 0, 0 })
	smooth := noiseFreeProfile(t, func(c *goreflcore.InversionConfig) { c.Iters, c.CtfWindow = 0, 1 })
	require.Len(t, smooth.Rho, len(raw.Rho))
	assert.NotEqual(t, raw.Rho, smooth.Rho)
}

func TestInverterBoundStateEnergy(t *testing.T) {
	plain := noiseFreeProfile(t, nil)
	bound := noiseFreeProfile(t, func(c *goreflcore.InversionConfig) { c.BSE = 1 })
	require.Len(t, bound.Rho, len(plain.Rho))
	assert.NotEqual(t, plain.Rho, bound.Rho)
	for i, v := range bound.Rho {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "rho[%d] = %g", i, v)
	}
}
