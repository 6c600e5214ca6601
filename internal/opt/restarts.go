package opt

import (
	"context"
	"log/slog"

	"github.com/cwbudde/tspanneal/internal/rng"
	"github.com/cwbudde/tspanneal/internal/tour"
	"golang.org/x/sync/errgroup"
)

// RunRestarts runs independent annealing runs concurrently and returns the
// best tour found by any of them.
//
// Restart k draws from src.Derive(k); restarts share no state. Ties on cost go
// to the lowest restart index so a fixed seed gives a fixed answer. With a
// single restart the run uses src directly and is identical to a.Run.
//
// Cancellation is only checked before a restart starts; a running restart
// always completes its budget.
func RunRestarts(ctx context.Context, a *Annealer, cities []tour.City, restarts int, src *rng.Source) (*Result, error) {
	return runRestarts(ctx, a, cities, nil, restarts, src)
}

// RunRestartsFrom is RunRestarts with every restart annealing from start
// instead of a shuffle.
func RunRestartsFrom(ctx context.Context, a *Annealer, cities []tour.City, start tour.Tour, restarts int, src *rng.Source) (*Result, error) {
	return runRestarts(ctx, a, cities, start, restarts, src)
}

func runRestarts(ctx context.Context, a *Annealer, cities []tour.City, start tour.Tour, restarts int, src *rng.Source) (*Result, error) {
	run := func(w *Annealer, s *rng.Source) *Result {
		if start != nil {
			return w.RunFrom(cities, start, s)
		}
		return w.Run(cities, s)
	}

	if restarts <= 1 {
		return run(a, src), nil
	}

	results := make([]*Result, restarts)
	g, ctx := errgroup.WithContext(ctx)
	for k := 0; k < restarts; k++ {
		k := k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			worker := *a
			worker.restart = k
			results[k] = run(&worker, src.Derive(uint64(k)))
			slog.Debug("Restart finished", "restart", k, "best_cost", results[k].Cost)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Cost < best.Cost {
			best = r
		}
	}
	return best, nil
}
