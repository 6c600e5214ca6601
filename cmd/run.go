package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/tspanneal/internal/cities"
	"github.com/cwbudde/tspanneal/internal/config"
	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/cwbudde/tspanneal/internal/report"
	"github.com/cwbudde/tspanneal/internal/rng"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/cwbudde/tspanneal/internal/tour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFlags holds the raw run command flags. Only flags the user set
// override the config file.
type runFlags struct {
	configPath  string
	cities      string
	iters       int
	temperature float64
	cooling     float64
	restarts    int
	seed        uint64
	out         string
	format      string
	reportEvery int
	dataDir     string
	resume      string
	save        bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run [cities-file]",
	Short: "Optimize a tour through the given cities",
	Long: `Loads cities (plain "x y" lines or TSPLIB NODE_COORD_SECTION), anneals a
tour and writes the city order and its total cost.

Parameters come from defaults, then the optional --config YAML file, then
flags. A seed of 0 draws one from system entropy; the seed used is logged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOptimization,
}

func init() {
	addRunFlags(runCmd.Flags(), &runOpts)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(fs *pflag.FlagSet, f *runFlags) {
	d := config.Defaults()
	fs.StringVar(&f.configPath, "config", "", "YAML run file")
	fs.StringVar(&f.cities, "cities", "", "Cities file (or pass it as the argument)")
	fs.IntVar(&f.iters, "iters", d.MaxIterations, "Max iterations per restart")
	fs.Float64Var(&f.temperature, "temp", d.InitialTemperature, "Initial temperature")
	fs.Float64Var(&f.cooling, "cooling", d.CoolingRate, "Geometric cooling rate in (0, 1)")
	fs.IntVar(&f.restarts, "restarts", d.Restarts, "Independent parallel restarts")
	fs.Uint64Var(&f.seed, "seed", d.Seed, "Random seed (0 = entropy)")
	fs.StringVar(&f.out, "out", d.Output, "Write the report to this file instead of stdout")
	fs.StringVar(&f.format, "format", d.Format, "Report format: text, json")
	fs.IntVar(&f.reportEvery, "report-every", d.ReportEvery, "Log progress every N iterations (0 = off)")
	fs.StringVar(&f.dataDir, "data-dir", d.DataDir, "Base directory for checkpoints and traces")
	fs.StringVar(&f.resume, "resume", "", "Start from the best tour of this checkpoint job ID")
	fs.BoolVar(&f.save, "save", false, "Save a checkpoint, cost trace and tour.txt under --data-dir")
}

// resolve layers the config file and the changed flags over the defaults.
func (f *runFlags) resolve(fs *pflag.FlagSet, args []string) (config.Run, error) {
	cfg := config.Defaults()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(f.configPath); err != nil {
			return cfg, err
		}
	}

	if len(args) > 0 {
		cfg.CitiesPath = args[0]
	}
	if fs.Changed("cities") {
		cfg.CitiesPath = f.cities
	}
	if fs.Changed("iters") {
		cfg.MaxIterations = f.iters
	}
	if fs.Changed("temp") {
		cfg.InitialTemperature = f.temperature
	}
	if fs.Changed("cooling") {
		cfg.CoolingRate = f.cooling
	}
	if fs.Changed("restarts") {
		cfg.Restarts = f.restarts
	}
	if fs.Changed("seed") {
		cfg.Seed = f.seed
	}
	if fs.Changed("out") {
		cfg.Output = f.out
	}
	if fs.Changed("format") {
		cfg.Format = f.format
	}
	if fs.Changed("report-every") {
		cfg.ReportEvery = f.reportEvery
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if fs.Changed("resume") {
		cfg.Resume = f.resume
	}

	return cfg, cfg.Validate()
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := runOpts.resolve(cmd.Flags(), args)
	if err != nil {
		return fmt.Errorf("invalid run configuration: %w", err)
	}
	_, err = executeRun(cmd.Context(), cfg, runOpts.save, cmd.OutOrStdout())
	return err
}

// executeRun loads the cities, anneals and writes the report to cfg.Output or
// stdout. With save the result is also persisted as a checkpoint job.
func executeRun(ctx context.Context, cfg config.Run, save bool, stdout io.Writer) (*opt.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	set, err := cities.Load(cfg.CitiesPath)
	if err != nil {
		return nil, err
	}

	src, err := rng.FromSeed(cfg.Seed)
	if err != nil {
		return nil, err
	}

	var fsStore *store.FSStore
	if save || cfg.Resume != "" {
		if fsStore, err = store.NewFSStore(cfg.DataDir); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}

	start, err := resumeTour(fsStore, cfg, len(set.Cities))
	if err != nil {
		return nil, err
	}

	jobID := ""
	var trace *store.TraceWriter
	if save {
		jobID = uuid.New().String()
		if trace, err = store.NewTraceWriter(fsStore.BaseDir(), jobID, false); err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()
	}

	var opts []opt.Option
	// A saved run always traces at least the final snapshot of each restart
	if cfg.ReportEvery > 0 || trace != nil {
		opts = append(opts, opt.WithObserver(cfg.ReportEvery, progressLogger(trace)))
	}
	if cfg.Convergence.Enabled {
		opts = append(opts, opt.WithConvergence(cfg.Convergence))
	}
	annealer := opt.NewAnnealer(cfg.Params(), opts...)

	slog.Info("Starting optimization",
		"cities", len(set.Cities),
		"iterations", cfg.MaxIterations,
		"initial_temperature", cfg.InitialTemperature,
		"cooling_rate", cfg.CoolingRate,
		"restarts", cfg.Restarts,
		"seed", src.Seed(),
		"resumed", start != nil,
	)

	began := time.Now()
	var res *opt.Result
	if start != nil {
		res, err = opt.RunRestartsFrom(ctx, annealer, set.Cities, start, cfg.Restarts, src)
	} else {
		res, err = opt.RunRestarts(ctx, annealer, set.Cities, cfg.Restarts, src)
	}
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(began)

	if err := writeReport(cfg.Output, stdout, format, res); err != nil {
		return nil, err
	}

	if save {
		if err := saveRun(fsStore, jobID, cfg, src.Seed(), len(set.Cities), res); err != nil {
			return nil, err
		}
	}

	slog.Info("Optimization complete",
		"elapsed", elapsed,
		"initial_cost", res.InitialCost,
		"best_cost", res.Cost,
		"improvement", res.InitialCost-res.Cost,
		"iterations", res.Iterations,
		"accepted", res.Accepted,
		"final_temperature", res.FinalTemperature,
		"seed", src.Seed(),
	)
	return res, nil
}

// resumeTour returns the starting tour from the checkpoint named by cfg.Resume,
// or nil for a fresh shuffle.
func resumeTour(fsStore *store.FSStore, cfg config.Run, cityCount int) (tour.Tour, error) {
	if cfg.Resume == "" {
		return nil, nil
	}
	checkpoint, err := fsStore.LoadCheckpoint(cfg.Resume)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint %s: %w", cfg.Resume, err)
	}
	if err := checkpoint.IsCompatible(cfg.CitiesPath, cityCount); err != nil {
		return nil, fmt.Errorf("checkpoint %s cannot seed this run: %w", cfg.Resume, err)
	}
	slog.Info("Resuming from checkpoint",
		"job_id", cfg.Resume,
		"best_cost", checkpoint.BestCost,
		"iteration", checkpoint.Iteration,
	)
	return checkpoint.BestTour, nil
}

// progressLogger logs observer snapshots at debug level and appends them to trace.
func progressLogger(trace *store.TraceWriter) opt.Observer {
	return func(p opt.Progress) {
		slog.Debug("Progress",
			"restart", p.Restart,
			"iteration", p.Iteration,
			"current_cost", p.CurrentCost,
			"best_cost", p.BestCost,
			"temperature", p.Temperature,
			"accepted", p.Accepted,
		)
		if trace == nil {
			return
		}
		err := trace.Write(store.TraceEntry{
			Iteration:   p.Iteration,
			Restart:     p.Restart,
			Cost:        p.BestCost,
			CurrentCost: p.CurrentCost,
			Temperature: p.Temperature,
			Timestamp:   time.Now(),
		})
		if err != nil {
			slog.Warn("Failed to write trace entry", "error", err)
		}
	}
}

func writeReport(path string, stdout io.Writer, format report.Format, res *opt.Result) error {
	if path == "" {
		return report.Write(stdout, format, res.Tour, res.Cost)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", report.ErrOutputFailure, err)
	}
	if err := report.Write(f, format, res.Tour, res.Cost); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", report.ErrOutputFailure, err)
	}
	slog.Info("Wrote report", "path", path)
	return nil
}

func saveRun(fsStore *store.FSStore, jobID string, cfg config.Run, seed uint64, cityCount int, res *opt.Result) error {
	jobConfig := store.JobConfig{
		CitiesPath:         cfg.CitiesPath,
		Iters:              cfg.MaxIterations,
		InitialTemperature: cfg.InitialTemperature,
		CoolingRate:        cfg.CoolingRate,
		Restarts:           cfg.Restarts,
		Seed:               seed,
	}
	checkpoint := store.NewCheckpoint(jobID, res.Tour, res.Cost, res.InitialCost, res.Iterations, res.FinalTemperature, jobConfig)
	if checkpoint.CityCount != cityCount {
		return fmt.Errorf("result tour has %d cities, expected %d", checkpoint.CityCount, cityCount)
	}
	if err := fsStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	err := fsStore.SaveArtifact(jobID, "tour.txt", func(w io.Writer) error {
		return report.WriteText(w, res.Tour, res.Cost)
	})
	if err != nil {
		return fmt.Errorf("failed to save tour artifact: %w", err)
	}
	slog.Info("Checkpoint saved", "job_id", jobID, "best_cost", res.Cost, "data_dir", fsStore.BaseDir())
	return nil
}
