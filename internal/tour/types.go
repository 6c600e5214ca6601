// Package tour holds the Euclidean TSP data model: cities, tours, the tour
// cost model and the 2-opt neighbor move.
package tour

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// City is an immutable 2-D coordinate identified by its index in the input.
//
// Coordinates are assumed to stay below 1e150 in magnitude so squared
// differences fit in a float64.
type City struct {
	X, Y float64
}

// Tour is an ordering of city indices. A valid tour is a permutation of [0, n)
// and is read as a cycle: the last city connects back to the first.
type Tour []int

// ErrNotPermutation is returned by Validate when a tour repeats or omits an index.
var ErrNotPermutation = errors.New("tour: not a permutation")

// Identity returns the tour 0, 1, ..., n-1.
func Identity(n int) Tour {
	t := make(Tour, n)
	for i := range t {
		t[i] = i
	}
	return t
}

// Clone returns an independent copy of t.
func (t Tour) Clone() Tour {
	return slices.Clone(t)
}

// Validate checks that t is a permutation of [0, n).
func (t Tour) Validate(n int) error {
	if len(t) != n {
		return fmt.Errorf("%w: length %d, want %d", ErrNotPermutation, len(t), n)
	}
	seen := make([]bool, n)
	for pos, v := range t {
		if v < 0 || v >= n {
			return fmt.Errorf("%w: index %d out of range at position %d", ErrNotPermutation, v, pos)
		}
		if seen[v] {
			return fmt.Errorf("%w: index %d repeated at position %d", ErrNotPermutation, v, pos)
		}
		seen[v] = true
	}
	return nil
}
