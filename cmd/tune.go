package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cwbudde/tspanneal/internal/cities"
	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	tuneCities     string
	tuneMayflyIter int
	tunePopSize    int
	tuneSeed       int64
	tuneCfg        = opt.DefaultTuneConfig()
)

var tuneCmd = &cobra.Command{
	Use:   "tune [cities-file]",
	Short: "Search an annealing schedule for a city set",
	Long: `Searches initial temperature and cooling rate with the mayfly optimizer.
Each candidate schedule is scored by the mean best cost of short seeded
annealing runs. The winning schedule is printed as YAML that can be merged
into a run file for --config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().StringVar(&tuneCities, "cities", "", "Cities file (or pass it as the argument)")
	tuneCmd.Flags().IntVar(&tuneMayflyIter, "iters", 30, "Mayfly iterations")
	tuneCmd.Flags().IntVar(&tunePopSize, "pop", 20, "Mayfly population size (at least 20)")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Mayfly random seed")
	tuneCmd.Flags().IntVar(&tuneCfg.TrialIterations, "trial-iters", tuneCfg.TrialIterations, "Annealing iterations per trial run")
	tuneCmd.Flags().IntVar(&tuneCfg.Trials, "trials", tuneCfg.Trials, "Trial runs averaged per candidate")
	tuneCmd.Flags().Uint64Var(&tuneCfg.Seed, "trial-seed", tuneCfg.Seed, "Seed of the trial annealing runs")
	tuneCmd.Flags().Float64Var(&tuneCfg.MinTemperature, "min-temp", tuneCfg.MinTemperature, "Lower bound of the initial temperature")
	tuneCmd.Flags().Float64Var(&tuneCfg.MaxTemperature, "max-temp", tuneCfg.MaxTemperature, "Upper bound of the initial temperature")
	tuneCmd.Flags().Float64Var(&tuneCfg.MinCoolingRate, "min-cooling", tuneCfg.MinCoolingRate, "Lower bound of the cooling rate")
	tuneCmd.Flags().Float64Var(&tuneCfg.MaxCoolingRate, "max-cooling", tuneCfg.MaxCoolingRate, "Upper bound of the cooling rate")
	rootCmd.AddCommand(tuneCmd)
}

// tunedSchedule is the YAML rendering of a tuning result. Its keys match the
// run file so the output can be pasted into one.
type tunedSchedule struct {
	InitialTemperature float64 `yaml:"initialTemperature"`
	CoolingRate        float64 `yaml:"coolingRate"`
}

func runTune(cmd *cobra.Command, args []string) error {
	path := tuneCities
	if len(args) > 0 && path == "" {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("a cities file is required")
	}
	_, err := executeTune(path, tuneCfg, tuneMayflyIter, tunePopSize, tuneSeed, cmd.OutOrStdout())
	return err
}

func executeTune(path string, cfg opt.TuneConfig, mayflyIters, popSize int, seed int64, w io.Writer) (*opt.TuneResult, error) {
	if popSize < 20 {
		return nil, fmt.Errorf("mayfly population size must be at least 20, got %d", popSize)
	}
	if mayflyIters <= 0 {
		return nil, fmt.Errorf("mayfly iterations must be positive, got %d", mayflyIters)
	}

	set, err := cities.Load(path)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting tuning",
		"cities", len(set.Cities),
		"mayfly_iterations", mayflyIters,
		"population", popSize,
		"trial_iterations", cfg.TrialIterations,
		"trials", cfg.Trials,
	)

	start := time.Now()
	res, err := opt.Tune(set.Cities, opt.NewMayfly(mayflyIters, popSize, seed), cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Tuning finished", "elapsed", time.Since(start), "evaluations", res.Evaluations, "mean_cost", res.Cost)

	enc := yaml.NewEncoder(w)
	if err := enc.Encode(tunedSchedule{
		InitialTemperature: res.Params.InitialTemperature,
		CoolingRate:        res.Params.CoolingRate,
	}); err != nil {
		return nil, fmt.Errorf("failed to write schedule: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to write schedule: %w", err)
	}
	return res, nil
}
