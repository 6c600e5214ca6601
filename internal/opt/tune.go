package opt

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/tspanneal/internal/rng"
	"github.com/cwbudde/tspanneal/internal/tour"
)

// TuneConfig bounds the annealing parameter search.
type TuneConfig struct {
	// TrialIterations is the iteration budget of each evaluated annealing run.
	TrialIterations int
	// Trials is the number of seeded runs averaged per evaluation.
	Trials int
	// MinTemperature and MaxTemperature bound the initial temperature; the
	// search is logarithmic in temperature.
	MinTemperature, MaxTemperature float64
	// MinCoolingRate and MaxCoolingRate bound the cooling rate.
	MinCoolingRate, MaxCoolingRate float64
	// Seed fixes the annealing streams so every evaluation is deterministic.
	Seed uint64
}

// DefaultTuneConfig returns a search box around the stock schedule.
func DefaultTuneConfig() TuneConfig {
	return TuneConfig{
		TrialIterations: 2000,
		Trials:          2,
		MinTemperature:  1,
		MaxTemperature:  1e5,
		MinCoolingRate:  0.9,
		MaxCoolingRate:  0.99999,
		Seed:            1,
	}
}

// Validate checks the search box.
func (c TuneConfig) Validate() error {
	if c.TrialIterations <= 0 {
		return fmt.Errorf("trial iterations must be positive, got %d", c.TrialIterations)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", c.Trials)
	}
	if !(c.MinTemperature > 0 && c.MinTemperature <= c.MaxTemperature) {
		return fmt.Errorf("invalid temperature range [%g, %g]", c.MinTemperature, c.MaxTemperature)
	}
	if !(c.MinCoolingRate > 0 && c.MinCoolingRate <= c.MaxCoolingRate && c.MaxCoolingRate < 1) {
		return fmt.Errorf("invalid cooling rate range [%g, %g]", c.MinCoolingRate, c.MaxCoolingRate)
	}
	return nil
}

// TuneResult is the best schedule found and the cost it reached.
type TuneResult struct {
	Params      Params
	Cost        float64
	Evaluations int
}

// Tune searches initial temperature and cooling rate for the given cities with
// optimizer. The search space is the unit square: x[0] maps log-linearly to the
// temperature range and x[1] linearly to the cooling rate range. The returned
// Params keep maxIterations unset; the caller chooses the production budget.
func Tune(cities []tour.City, optimizer Optimizer, cfg TuneConfig) (*TuneResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cities) < 2 {
		return nil, fmt.Errorf("tuning needs at least 2 cities, got %d", len(cities))
	}

	evaluations := 0
	eval := func(x []float64) float64 {
		evaluations++
		p := cfg.decode(x)
		a := NewAnnealer(p)
		var total float64
		for k := 0; k < cfg.Trials; k++ {
			total += a.Run(cities, rng.New(cfg.Seed).Derive(uint64(k))).Cost
		}
		return total / float64(cfg.Trials)
	}

	lower := []float64{0, 0}
	upper := []float64{1, 1}
	best, cost := optimizer.Run(eval, lower, upper, 2)
	params := cfg.decode(best)
	params.MaxIterations = 0

	slog.Info("Tuning complete",
		"initial_temperature", params.InitialTemperature,
		"cooling_rate", params.CoolingRate,
		"mean_cost", cost,
		"evaluations", evaluations,
	)

	return &TuneResult{Params: params, Cost: cost, Evaluations: evaluations}, nil
}

func (c TuneConfig) decode(x []float64) Params {
	u := clampUnit(x[0])
	v := clampUnit(x[1])
	logT := math.Log(c.MinTemperature) + u*(math.Log(c.MaxTemperature)-math.Log(c.MinTemperature))
	return Params{
		MaxIterations:      c.TrialIterations,
		InitialTemperature: math.Exp(logT),
		CoolingRate:        c.MinCoolingRate + v*(c.MaxCoolingRate-c.MinCoolingRate),
	}
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
