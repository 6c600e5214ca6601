package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/tspanneal/internal/cities"
	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/cwbudde/tspanneal/internal/report"
	"github.com/cwbudde/tspanneal/internal/rng"
	"github.com/cwbudde/tspanneal/internal/store"
)

// progressSamples is roughly how many observer callbacks one restart makes.
const progressSamples = 200

// baseDirStore is implemented by stores that live in a local directory, which
// is where the cost trace is written.
type baseDirStore interface {
	BaseDir() string
}

// runJob executes an optimization job in the background.
// If checkpointStore is not nil a final checkpoint and tour.txt are saved, and
// with checkpointInterval > 0 periodic checkpoints as well.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Check for cancellation before loading anything
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}
	jm.metrics.JobsRunning.Inc()
	defer jm.metrics.JobsRunning.Dec()

	slog.Info("Starting job", "job_id", jobID, "cities", job.Config.CitiesPath, "restarts", job.Config.Restarts)

	set, err := cities.Load(job.Config.CitiesPath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load cities: %w", err))
		return err
	}

	src, err := rng.FromSeed(job.Config.Seed)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	// Record the effective seed so the checkpoint reproduces the run
	job.Config.Seed = src.Seed()
	jm.UpdateJob(jobID, func(j *Job) {
		j.CityCount = len(set.Cities)
		j.Config.Seed = src.Seed()
		j.Temperature = job.Config.InitialTemperature
	})

	var trace *store.TraceWriter
	if ds, ok := checkpointStore.(baseDirStore); ok {
		trace, err = store.NewTraceWriter(ds.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Failed to open trace, continuing without", "job_id", jobID, "error", err)
			trace = nil
		} else {
			defer trace.Close()
		}
	}

	observer := newJobObserver(jm, jobID, trace)
	params := opt.Params{
		MaxIterations:      job.Config.Iters,
		InitialTemperature: job.Config.InitialTemperature,
		CoolingRate:        job.Config.CoolingRate,
	}
	annealer := opt.NewAnnealer(params, opt.WithObserver(reportInterval(params.MaxIterations), observer.observe))

	start := time.Now()
	done := make(chan struct{})
	var monitors sync.WaitGroup

	monitors.Add(1)
	go func() {
		defer monitors.Done()
		monitorProgress(ctx, jm, jobID, done)
	}()

	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		monitors.Add(1)
		go func() {
			defer monitors.Done()
			monitorCheckpoints(ctx, jm, checkpointStore, jobID, done)
		}()
	}

	result, err := opt.RunRestarts(ctx, annealer, set.Cities, job.Config.Restarts, src)
	close(done)
	monitors.Wait()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
			return err
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	// Check for cancellation after optimization
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	elapsed := time.Since(start)
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestTour = result.Tour.Clone()
		j.BestCost = result.Cost
		j.InitialCost = result.InitialCost
		j.Iterations = result.Iterations
		j.Temperature = result.FinalTemperature
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	jm.metrics.JobsFinished.WithLabelValues(string(StateCompleted)).Inc()
	jm.metrics.JobDuration.Observe(elapsed.Seconds())

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"initial_cost", result.InitialCost,
		"best_cost", result.Cost,
		"iterations", result.Iterations,
		"seed", result.Seed,
	)

	final, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(eventFromJob(final))
	return nil
}

// reportInterval spaces observer callbacks so a run makes about progressSamples of them.
func reportInterval(iters int) int {
	return max(1, iters/progressSamples)
}

// jobObserver folds annealer progress into the job record, the metrics and the trace.
// It is called concurrently by parallel restarts.
type jobObserver struct {
	jm    *JobManager
	jobID string
	trace *store.TraceWriter

	mu   sync.Mutex
	last map[int]int // restart -> last reported iteration
}

func newJobObserver(jm *JobManager, jobID string, trace *store.TraceWriter) *jobObserver {
	return &jobObserver{
		jm:    jm,
		jobID: jobID,
		trace: trace,
		last:  make(map[int]int),
	}
}

func (o *jobObserver) observe(p opt.Progress) {
	o.mu.Lock()
	delta := p.Iteration - o.last[p.Restart]
	o.last[p.Restart] = p.Iteration
	o.mu.Unlock()

	if delta > 0 {
		o.jm.metrics.Iterations.Add(float64(delta))
	}

	o.jm.UpdateJob(o.jobID, func(j *Job) {
		if p.Iteration >= j.Iterations {
			j.Iterations = p.Iteration
			j.Temperature = p.Temperature
		}
		// InitialCost follows the restart that holds the best tour
		if len(j.BestTour) == 0 || p.BestCost < j.BestCost {
			j.BestTour = p.Best
			j.BestCost = p.BestCost
			j.InitialCost = p.InitialCost
		}
	})

	if o.trace != nil {
		entry := store.TraceEntry{
			Iteration:   p.Iteration,
			Restart:     p.Restart,
			Cost:        p.BestCost,
			CurrentCost: p.CurrentCost,
			Temperature: p.Temperature,
			Timestamp:   time.Now(),
		}
		if err := o.trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "job_id", o.jobID, "error", err)
		}
	}
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(eventFromJob(job))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.metrics.JobsFinished.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.metrics.JobsFinished.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

// monitorCheckpoints periodically saves checkpoints during optimization
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done <-chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint and the tour.txt artifact for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if len(job.BestTour) == 0 {
		slog.Debug("Skipping checkpoint, no best tour yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestTour,
		job.BestCost,
		job.InitialCost,
		job.Iterations,
		job.Temperature,
		job.Config,
	)

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	jm.metrics.Checkpoints.Inc()

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)

	// The report artifact is a convenience; the checkpoint is what matters
	err := checkpointStore.SaveArtifact(jobID, "tour.txt", func(w io.Writer) error {
		return report.WriteText(w, job.BestTour, job.BestCost)
	})
	if err != nil {
		slog.Warn("Failed to save tour artifact", "job_id", jobID, "error", err)
	}

	return nil
}
