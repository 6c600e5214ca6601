// Package opt implements the simulated annealing scheduler for the tour model
// and the search tooling built around it.
package opt

import (
	"log/slog"
	"math"

	"github.com/cwbudde/tspanneal/internal/rng"
	"github.com/cwbudde/tspanneal/internal/tour"
)

// expClamp bounds the exponent of the acceptance probability so math.Exp never
// overflows or underflows.
const expClamp = 700.0

// Result holds the output of an annealing run
type Result struct {
	Tour             tour.Tour `json:"tour"`
	Cost             float64   `json:"cost"`
	InitialCost      float64   `json:"initialCost"`
	Iterations       int       `json:"iterations"`
	Accepted         int       `json:"accepted"`
	FinalTemperature float64   `json:"finalTemperature"`
	Seed             uint64    `json:"seed"`
}

// Progress is a snapshot of the search state handed to an Observer.
// Current and Best are copies owned by the receiver.
type Progress struct {
	Restart     int
	Iteration   int
	InitialCost float64
	Current     tour.Tour
	CurrentCost float64
	Best        tour.Tour
	BestCost    float64
	Temperature float64
	Accepted    int
	Done        bool
}

// Observer receives progress snapshots. It must not block for long: it runs on
// the search goroutine. With parallel restarts it is called concurrently.
type Observer func(Progress)

// Annealer runs simulated annealing with the 2-opt neighbor move.
type Annealer struct {
	params      Params
	observer    Observer
	reportEvery int
	convergence ConvergenceConfig
	restart     int
}

// Option configures an Annealer.
type Option func(*Annealer)

// WithObserver reports progress every n iterations and once at termination.
// With n <= 0 only the final snapshot is reported.
func WithObserver(n int, obs Observer) Option {
	return func(a *Annealer) {
		a.observer = obs
		a.reportEvery = n
	}
}

// WithConvergence stops the run early when the best cost stalls across report
// windows. Without it the run always spends its full iteration budget.
func WithConvergence(cfg ConvergenceConfig) Option {
	return func(a *Annealer) {
		a.convergence = cfg
	}
}

// NewAnnealer creates an annealer for the given parameters.
func NewAnnealer(params Params, opts ...Option) *Annealer {
	a := &Annealer{
		params:      params,
		convergence: DisabledConvergenceConfig(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Params returns the parameters the annealer was built with.
func (a *Annealer) Params() Params {
	return a.params
}

// Run anneals from a uniformly shuffled starting tour.
func (a *Annealer) Run(cities []tour.City, src *rng.Source) *Result {
	current := tour.Identity(len(cities))
	src.Shuffle(current)
	return a.search(cities, current, src)
}

// RunFrom anneals from the given starting tour instead of a shuffle.
// start must be a permutation of the city indices; it is not modified.
func (a *Annealer) RunFrom(cities []tour.City, start tour.Tour, src *rng.Source) *Result {
	return a.search(cities, start.Clone(), src)
}

func (a *Annealer) search(cities []tour.City, current tour.Tour, src *rng.Source) *Result {
	n := len(cities)
	if n == 0 {
		return &Result{Tour: tour.Tour{}, Seed: src.Seed()}
	}

	cost := tour.CostOver(cities)
	currentCost := cost(current)
	best := current.Clone()
	bestCost := currentCost
	initialCost := currentCost
	temperature := a.params.InitialTemperature

	var tracker *ConvergenceTracker
	if a.convergence.Enabled && a.reportEvery > 0 {
		tracker = NewConvergenceTracker(a.convergence)
	}

	candidate := make(tour.Tour, n)
	accepted := 0
	iter := 0
	for iter < a.params.MaxIterations {
		copy(candidate, current)
		tour.TwoOpt(candidate, src)
		candidateCost := cost(candidate)

		p := acceptanceProbability(currentCost, candidateCost, temperature)
		if candidateCost < currentCost || src.Float64() < p {
			current, candidate = candidate, current
			currentCost = candidateCost
			accepted++

			if currentCost < bestCost {
				copy(best, current)
				bestCost = currentCost
			}
		}

		temperature *= a.params.CoolingRate
		iter++

		if a.reportEvery > 0 && iter%a.reportEvery == 0 && iter < a.params.MaxIterations {
			a.notify(iter, initialCost, current, currentCost, best, bestCost, temperature, accepted, false)
			if tracker != nil && tracker.Update(bestCost) {
				slog.Info("Stopping early on stalled best cost",
					"restart", a.restart,
					"iteration", iter,
					"windows", len(tracker.History()),
					"stale_windows", tracker.StaleCount(),
					"best_cost", tracker.BestCost(),
				)
				break
			}
		}
	}

	a.notify(iter, initialCost, current, currentCost, best, bestCost, temperature, accepted, true)

	return &Result{
		Tour:             best,
		Cost:             bestCost,
		InitialCost:      initialCost,
		Iterations:       iter,
		Accepted:         accepted,
		FinalTemperature: temperature,
		Seed:             src.Seed(),
	}
}

func (a *Annealer) notify(iter int, initialCost float64, current tour.Tour, currentCost float64, best tour.Tour, bestCost, temperature float64, accepted int, done bool) {
	if a.observer == nil {
		return
	}
	a.observer(Progress{
		Restart:     a.restart,
		Iteration:   iter,
		InitialCost: initialCost,
		Current:     current.Clone(),
		CurrentCost: currentCost,
		Best:        best.Clone(),
		BestCost:    bestCost,
		Temperature: temperature,
		Accepted:    accepted,
		Done:        done,
	})
}

// acceptanceProbability is exp((current-candidate)/T) with the exponent
// clamped to [-700, 700].
func acceptanceProbability(currentCost, candidateCost, temperature float64) float64 {
	x := (currentCost - candidateCost) / temperature
	x = math.Max(-expClamp, math.Min(expClamp, x))
	return math.Exp(x)
}
