package tour

import "math"

// Distance returns the Euclidean distance between a and b.
func Distance(a, b City) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// CostFunc scores a tour over a fixed city set.
type CostFunc func(t Tour) float64

// Cost returns the cyclic length of t over cities, including the edge from the
// last city back to the first. A single-city tour costs 0.
//
// t must be a permutation of indices into cities and cities must be non-empty.
func Cost(t Tour, cities []City) float64 {
	n := len(t)
	var total float64
	for i := 0; i < n-1; i++ {
		total += Distance(cities[t[i]], cities[t[i+1]])
	}
	total += Distance(cities[t[n-1]], cities[t[0]])
	return total
}

// CostOver binds Cost to a city set.
func CostOver(cities []City) CostFunc {
	return func(t Tour) float64 {
		return Cost(t, cities)
	}
}
