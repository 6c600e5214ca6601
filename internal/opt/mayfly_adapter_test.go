package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bowl has its minimum at (0.3, 0.7) inside the unit square Tune searches.
func bowl(x []float64) float64 {
	dx, dy := x[0]-0.3, x[1]-0.7
	return dx*dx + dy*dy
}

func TestMayflyAdapterOnUnitSquare(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	best, cost := optimizer.Run(bowl, []float64{0, 0}, []float64{1, 1}, 2)

	require.Len(t, best, 2)
	assert.Less(t, cost, 0.01)
	assert.InDelta(t, 0.3, best[0], 0.1)
	assert.InDelta(t, 0.7, best[1], 0.1)
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	// popSize must be >= 20 for mayfly v0.1.0
	_, cost1 := NewMayfly(30, 20, 123).Run(bowl, []float64{0, 0}, []float64{1, 1}, 2)
	_, cost2 := NewMayfly(30, 20, 123).Run(bowl, []float64{0, 0}, []float64{1, 1}, 2)

	assert.Equal(t, cost1, cost2)
}
