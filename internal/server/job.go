package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job has stopped and will not change again.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// DefaultJobConfig returns the parameters applied to fields a request omits.
func DefaultJobConfig() JobConfig {
	p := opt.DefaultParams()
	return JobConfig{
		Iters:              p.MaxIterations,
		InitialTemperature: p.InitialTemperature,
		CoolingRate:        p.CoolingRate,
		Restarts:           1,
	}
}

// Job represents an optimization job
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      JobConfig  `json:"config"`
	CityCount   int        `json:"cityCount"`
	BestTour    []int      `json:"bestTour,omitempty"`
	BestCost    float64    `json:"bestCost"`
	InitialCost float64    `json:"initialCost"`
	Iterations  int        `json:"iterations"`
	Temperature float64    `json:"temperature"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// snapshot returns a copy that does not share the tour slice.
func (j *Job) snapshot() *Job {
	c := *j
	c.BestTour = slices.Clone(j.BestTour)
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return &c
}

// Elapsed returns the wall time the job has been alive, up to its end.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
	metrics     *Metrics
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
		metrics:     NewMetrics(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jm.metrics.JobsCreated.Inc()
	return job.snapshot()
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}
