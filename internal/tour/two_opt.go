package tour

import (
	"github.com/cwbudde/tspanneal/internal/rng"
	"golang.org/x/exp/slices"
)

// Reverse reverses the segment t[i..j] in place. Requires 0 <= i <= j < len(t).
func Reverse(t Tour, i, j int) {
	slices.Reverse(t[i : j+1])
}

// TwoOpt applies one random 2-opt move to t in place.
//
// Two positions are drawn independently and uniformly from [0, n-1]; they may
// coincide, in which case the tour is unchanged. The segment between them is
// reversed, which replaces the two edges at its ends. The chosen bounds are
// returned for callers that want to log or replay the move.
func TwoOpt(t Tour, src *rng.Source) (i, j int) {
	last := len(t) - 1
	if last <= 0 {
		return 0, 0
	}
	i = src.IntRange(0, last)
	j = src.IntRange(0, last)
	if i > j {
		i, j = j, i
	}
	Reverse(t, i, j)
	return i, j
}
