package config

import (
	"flag"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/goreflcore"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	inv := cfg.InversionConfig()
	assert.Equal(t, goreflcore.DefaultInversionConfig(), inv)
	assert.True(t, math.IsInf(inv.QMax, 1))
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "direfl.yaml")
	cfg := DefaultConfig()
	qmax := 0.25
	cfg.Inversion.QMax = &qmax
	cfg.Inversion.Thickness = 250
	cfg.Phase.Substrate = 2.07
	cfg.Phase.Surround = []float64{0, 4.5}
	cfg.Reference.Top = true
	cfg.Run.Workers = 2

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	inv := loaded.InversionConfig()
	assert.Equal(t, 0.25, inv.QMax)
	assert.Equal(t, 250.0, inv.Thickness)
	assert.Equal(t, 2, inv.Workers)

	phase := loaded.PhaseConfig()
	assert.Equal(t, [2]float64{0, 4.5}, phase.Surround)
	assert.Equal(t, goreflcore.TopReference{}, loaded.Geometry())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phase.Surround = []float64{1}
	require.ErrorIs(t, cfg.Validate(), goreflcore.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Phase.Surround = []float64{1, 1}
	require.ErrorIs(t, cfg.Validate(), goreflcore.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Inversion.Thickness = -1
	require.ErrorIs(t, cfg.Validate(), goreflcore.ErrInvalidConfig)
}

func TestArrayFlags(t *testing.T) {
	var v ArrayFlags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&v, "v", "surround")
	require.NoError(t, fs.Parse([]string{"-v", "0", "-v", "4.5"}))
	assert.Equal(t, ArrayFlags{0, 4.5}, v)
	assert.Equal(t, "0,4.5", v.String())

	require.Error(t, v.Set("abc"))
}
