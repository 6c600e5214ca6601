package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the mayfly library to conform to the Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// mayfly requires popSize >= 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization.
// The library takes scalar bounds, so only lower[0] and upper[0] are used;
// callers normalize their search space to a common box.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, falling back to box midpoint", "error", err)
		mid := make([]float64, dim)
		for i := range mid {
			mid[i] = (lower[0] + upper[0]) / 2
		}
		return mid, eval(mid)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost
}
