// Package config loads the reconstruction settings from YAML and the flags
// of the command line driver.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kacperjurak/goreflcore"
)

// ArrayFlags collects repeated float flags such as -v 0 -v 4.5.
type ArrayFlags []float64

func (a *ArrayFlags) String() string {
	parts := make([]string, len(*a))
	for i, v := range *a {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (a *ArrayFlags) Set(value string) error {
	if val, err := strconv.ParseFloat(value, 64); err == nil {
		*a = append(*a, val)
		return nil
	} else {
		return err
	}
}

// Config holds all settings of a reconstruction run.
type Config struct {
	// Inversion parameters
	Inversion struct {
		Thickness  float64 `yaml:"thickness"`
		Substrate  float64 `yaml:"substrate"`
		RhoPoints  int     `yaml:"rhopoints"`
		CalcPoints int     `yaml:"calcpoints"`
		Iters      int     `yaml:"iters"`
		Stages     int     `yaml:"stages"`
		QMin       float64 `yaml:"qmin"`

		// QMax and Monitor are unset when nil.
		QMax    *float64 `yaml:"qmax,omitempty"`
		Monitor *float64 `yaml:"monitor,omitempty"`

		Noise     float64 `yaml:"noise"`
		BSE       float64 `yaml:"bse"`
		CtfWindow float64 `yaml:"ctfWindow"`
		BackRefl  bool    `yaml:"backrefl"`
	} `yaml:"inversion"`

	// Surround variation parameters
	Phase struct {
		Substrate float64   `yaml:"substrate"`
		Surround  []float64 `yaml:"surround"`
		Stages    int       `yaml:"stages"`
	} `yaml:"phase"`

	// Reference layer parameters
	Reference struct {
		Fronting float64 `yaml:"fronting"`
		Backing  float64 `yaml:"backing"`
		Top      bool    `yaml:"top"`
	} `yaml:"reference"`

	// Run parameters
	Run struct {
		Seed    uint64 `yaml:"seed"`
		Workers int    `yaml:"workers"`
		Quiet   bool   `yaml:"quiet"`
		Verbose bool   `yaml:"verbose"`
	} `yaml:"run"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	inv := goreflcore.DefaultInversionConfig()
	phase := goreflcore.DefaultPhaseConfig()

	cfg := &Config{}
	cfg.Inversion.Thickness = inv.Thickness
	cfg.Inversion.Substrate = inv.Substrate
	cfg.Inversion.RhoPoints = inv.RhoPoints
	cfg.Inversion.CalcPoints = inv.CalcPoints
	cfg.Inversion.Iters = inv.Iters
	cfg.Inversion.Stages = inv.Stages
	cfg.Inversion.QMin = inv.QMin
	cfg.Inversion.Noise = inv.Noise
	cfg.Inversion.BSE = inv.BSE
	cfg.Inversion.CtfWindow = inv.CtfWindow
	cfg.Inversion.BackRefl = inv.BackRefl

	cfg.Phase.Stages = phase.Stages
	cfg.Run.Seed = phase.Seed
	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks the settings that the core configurations check, plus the
// surround pair.
func (c *Config) Validate() error {
	if err := c.InversionConfig().Validate(); err != nil {
		return err
	}
	if n := len(c.Phase.Surround); n != 0 && n != 2 {
		return fmt.Errorf("config: need two surround values, got %d: %w", n, goreflcore.ErrInvalidConfig)
	}
	if len(c.Phase.Surround) == 2 {
		return c.PhaseConfig().Validate()
	}
	return nil
}

// InversionConfig converts the inversion section.
func (c *Config) InversionConfig() goreflcore.InversionConfig {
	inv := goreflcore.DefaultInversionConfig()
	inv.Thickness = c.Inversion.Thickness
	inv.Substrate = c.Inversion.Substrate
	inv.RhoPoints = c.Inversion.RhoPoints
	inv.CalcPoints = c.Inversion.CalcPoints
	inv.Iters = c.Inversion.Iters
	inv.Stages = c.Inversion.Stages
	inv.QMin = c.Inversion.QMin
	inv.QMax = math.Inf(1)
	if c.Inversion.QMax != nil {
		inv.QMax = *c.Inversion.QMax
	}
	if c.Inversion.Monitor != nil {
		inv.Monitor = *c.Inversion.Monitor
	}
	inv.Noise = c.Inversion.Noise
	inv.BSE = c.Inversion.BSE
	inv.CtfWindow = c.Inversion.CtfWindow
	inv.BackRefl = c.Inversion.BackRefl
	inv.Seed = c.Run.Seed
	inv.Workers = c.Run.Workers
	return inv
}

// PhaseConfig converts the phase section. Surround must hold two values.
func (c *Config) PhaseConfig() goreflcore.PhaseConfig {
	phase := goreflcore.DefaultPhaseConfig()
	phase.Substrate = c.Phase.Substrate
	if len(c.Phase.Surround) == 2 {
		phase.Surround = [2]float64{c.Phase.Surround[0], c.Phase.Surround[1]}
	}
	phase.Stages = c.Phase.Stages
	phase.Seed = c.Run.Seed
	phase.Workers = c.Run.Workers
	return phase
}

// ReferenceConfig converts the reference section.
func (c *Config) ReferenceConfig() goreflcore.ReferenceConfig {
	return goreflcore.DefaultReferenceConfig(c.Reference.Fronting, c.Reference.Backing)
}

// Geometry returns the reference placement.
func (c *Config) Geometry() goreflcore.Geometry {
	if c.Reference.Top {
		return goreflcore.TopReference{}
	}
	return goreflcore.BottomReference{}
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string
	WorkerCount     int
	WebhookURL      string
	EnableProfiling bool
	ConfigPath      string

	// TimingFile receives one CSV row per finished batch when set.
	TimingFile string
}

// DefaultServerConfig returns server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WorkerCount:     5,
		WebhookURL:      "http://webplot:3001/webhook",
		EnableProfiling: false,
	}
}
