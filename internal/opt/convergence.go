package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting a stalled search
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patience is the number of consecutive report windows with no significant
	// improvement of the best cost before stopping
	Patience int `json:"patience" yaml:"patience"`

	// Threshold is the minimum relative improvement required to count as progress
	// Example: 0.001 = 0.1% improvement required
	// Relative improvement = (oldCost - newCost) / oldCost
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConvergenceConfig returns the defaults used when early stopping is requested
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  5,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks best-cost history and detects when the search has stalled
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		costHistory:     []float64{},
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new cost value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)

	if cost < c.bestCost {
		c.bestCost = cost
	}

	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	// a zero-cost tour cannot improve further
	if c.lastSignificant == 0 {
		c.staleCount++
		return c.staleCount >= c.config.Patience
	}

	relativeImprovement := (c.lastSignificant - cost) / c.lastSignificant

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant cost improvement",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}

	return false
}

// BestCost returns the best cost seen so far
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns the full cost history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the current number of windows without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
