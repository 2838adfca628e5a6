// Command goreflsolver computes the scattering length density profile from
// the real part of a phase reconstructed reflectivity.
//
// It is called with a phase reconstructed dataset AMP, or with a pair of
// reduced reflectivity datasets RF1 and RF2 measured through the substrate in
// two different surrounds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kacperjurak/goreflcore"
	"github.com/kacperjurak/goreflcore/internal/processing"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/dataio"
)

var errUsage = errors.New("need real R data file or pair of reflectivities")

// options holds the parsed command line. Only the flags that were set
// override the configuration file.
type options struct {
	configPath string
	thickness  float64
	substrate  float64
	surround   config.ArrayFlags
	qmin       float64
	qmax       float64
	noise      float64
	monitor    float64
	outfile    string
	ampfile    string
	residfile  string
	rhopoints  int
	dz         float64
	calcpoints int
	stages     int
	ampOnly    bool
	quiet      bool
	verbose    bool
	seed       uint64
	workers    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("❌ %v", err)
	}
}

func newFlagSet(opts *options) *flag.FlagSet {
	def := config.DefaultConfig()
	fs := flag.NewFlagSet("goreflsolver", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: goreflsolver [options] AMP or RF1 RF2\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")

	// Sample description
	fs.Float64Var(&opts.thickness, "t", def.Inversion.Thickness, "sample thickness (A)")
	fs.Float64Var(&opts.substrate, "u", def.Inversion.Substrate, "sample substrate material (10^6 * SLD)")
	fs.Var(&opts.surround, "v", "varying material (10^6 * SLD), given twice as -v v1 -v v2 [for phase]")

	// Data description
	fs.Float64Var(&opts.qmin, "Qmin", def.Inversion.QMin, "minimum Q value to use from the data")
	fs.Float64Var(&opts.qmax, "Qmax", math.Inf(1), "maximum Q value to use from the data")
	fs.Float64Var(&opts.noise, "n", def.Inversion.Noise, "noise scaling")
	fs.Float64Var(&opts.monitor, "M", 0, "monitor counts used for measurement")

	// Outputs
	fs.StringVar(&opts.outfile, "o", "", "profile file (infile.prf), use '-' for console")
	fs.StringVar(&opts.ampfile, "ampfile", "", "amplitude file (infile.amp)")
	fs.StringVar(&opts.residfile, "resid", "", "reflectivities of the inverted profile, for phase inversion")
	fs.BoolVar(&opts.quiet, "q", false, "Quiet mode")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log trial and stage counts")

	// Calculation controls
	fs.IntVar(&opts.rhopoints, "rhopoints", def.Inversion.RhoPoints, "number of profile steps [dz=thickness/rhopoints]")
	fs.Float64Var(&opts.dz, "dz", 0, "max profile step size (A) [rhopoints=thickness/dz]")
	fs.IntVar(&opts.calcpoints, "calcpoints", def.Inversion.CalcPoints, "number of calculation points per profile step")
	fs.IntVar(&opts.stages, "stages", def.Inversion.Stages, "number of inversions to average over")
	fs.BoolVar(&opts.ampOnly, "a", false, "calculate amplitude and stop")
	fs.Uint64Var(&opts.seed, "seed", def.Run.Seed, "random seed for the noise trials")
	fs.IntVar(&opts.workers, "workers", 0, "number of trial workers (0 uses all CPUs)")
	return fs
}

// loadConfig reads the configuration file and applies the flags that were
// given explicitly.
func loadConfig(fs *flag.FlagSet, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["t"] {
		cfg.Inversion.Thickness = opts.thickness
	}
	if set["u"] {
		cfg.Inversion.Substrate = opts.substrate
		cfg.Phase.Substrate = opts.substrate
	}
	if set["v"] {
		cfg.Phase.Surround = []float64(opts.surround)
	}
	if set["Qmin"] {
		cfg.Inversion.QMin = opts.qmin
	}
	if set["Qmax"] {
		cfg.Inversion.QMax = &opts.qmax
	}
	if set["n"] {
		cfg.Inversion.Noise = opts.noise
	}
	if set["M"] {
		cfg.Inversion.Monitor = &opts.monitor
	}
	if set["rhopoints"] {
		cfg.Inversion.RhoPoints = opts.rhopoints
	}
	if set["dz"] {
		if opts.dz <= 0 {
			return nil, fmt.Errorf("dz %g must be positive: %w", opts.dz, goreflcore.ErrInvalidConfig)
		}
		cfg.Inversion.RhoPoints = int(math.Ceil(cfg.Inversion.Thickness / opts.dz))
	}
	if set["calcpoints"] {
		cfg.Inversion.CalcPoints = opts.calcpoints
	}
	if set["stages"] {
		cfg.Inversion.Stages = opts.stages
	}
	if set["seed"] {
		cfg.Run.Seed = opts.seed
	}
	if set["workers"] {
		cfg.Run.Workers = opts.workers
	}
	if set["q"] {
		cfg.Run.Quiet = opts.quiet
	}
	if set["verbose"] {
		cfg.Run.Verbose = opts.verbose
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts := &options{}
	fs := newFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) < 1 || len(files) > 2 {
		fs.Usage()
		return errUsage
	}
	cfg, err := loadConfig(fs, opts)
	if err != nil {
		return err
	}
	pipeline := processing.NewPipeline(cfg)

	var (
		data goreflcore.InversionData
		sv   *goreflcore.SurroundVariation
	)
	if len(files) == 1 {
		if data, err = dataio.LoadRealAmplitude(files[0]); err != nil {
			return err
		}
	} else {
		if len(cfg.Phase.Surround) != 2 {
			return fmt.Errorf("need two surround values for phase inversion: %w", goreflcore.ErrInvalidConfig)
		}
		amp, phase, err := reconstructPhase(ctx, cfg, files[0], files[1])
		if err != nil {
			return err
		}
		sv = phase
		if opts.ampfile != "" {
			if err := writeFile(opts.ampfile, func(w io.Writer) error { return dataio.WriteAmplitude(w, amp) }); err != nil {
				return err
			}
		}
		data = amp.RealPart()
	}
	if opts.ampOnly {
		return nil
	}

	res, err := pipeline.Invert(ctx, data, inversionConfig(cfg, sv != nil))
	if err != nil {
		return err
	}
	if !cfg.Run.Quiet && res.ChiSquare > 0 {
		log.Printf("Inverted profile chi-square: %.6e", res.ChiSquare)
	}

	outfile := opts.outfile
	if outfile == "" {
		base := filepath.Base(files[0])
		outfile = strings.TrimSuffix(base, filepath.Ext(base)) + ".prf"
	}
	writeProfile := func(w io.Writer) error { return dataio.WriteProfile(w, *res.Profile) }
	if outfile == "-" {
		err = writeProfile(stdout)
	} else {
		err = writeFile(outfile, writeProfile)
	}
	if err != nil {
		return err
	}

	if sv != nil && opts.residfile != "" {
		return writeResiduals(sv, res.Profile, opts.residfile)
	}
	return nil
}

// inversionConfig returns the inversion settings. A reconstructed amplitude
// is relative to the phase substrate, so the inversion uses it too.
func inversionConfig(cfg *config.Config, phase bool) goreflcore.InversionConfig {
	inv := cfg.InversionConfig()
	if phase {
		inv.Substrate = cfg.Phase.Substrate
	}
	return inv
}

func reconstructPhase(ctx context.Context, cfg *config.Config, rf1, rf2 string) (*goreflcore.Amplitude, *goreflcore.SurroundVariation, error) {
	m1, err := dataio.LoadMeasurement(rf1)
	if err != nil {
		return nil, nil, err
	}
	m2, err := dataio.LoadMeasurement(rf2)
	if err != nil {
		return nil, nil, err
	}
	sv, err := goreflcore.NewSurroundVariation(m1, m2, cfg.PhaseConfig())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Run.Verbose && !cfg.Run.Quiet {
		sv.SetLogger(log.Default())
	}
	amp, err := sv.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Run.Quiet {
		log.Printf("Reconstructed the phase at %d of %d points", amp.Len(), m1.Len())
	}
	return amp, sv, nil
}

// writeResiduals stores the reflectivities and the free film amplitude of
// the inverted profile next to each other.
func writeResiduals(sv *goreflcore.SurroundVariation, p *goreflcore.DepthProfile, path string) error {
	r1, r2, err := sv.Refl(p.Z, p.Rho)
	if err != nil {
		return err
	}
	re, im, err := sv.FreeFilm(p.Z, p.Rho)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return dataio.WriteInverted(w, sv.Q(), r1, r2, re, im)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
