package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/tspanneal/internal/tour"
)

// JobConfig holds configuration for an optimization job (checkpoint copy).
// This avoids import cycles with server package.
type JobConfig struct {
	CitiesPath         string  `json:"citiesPath" validate:"required"`
	Iters              int     `json:"iters" validate:"gte=1"`
	InitialTemperature float64 `json:"initialTemperature" validate:"gt=0"`
	CoolingRate        float64 `json:"coolingRate" validate:"gt=0,lt=1"`
	Restarts           int     `json:"restarts" validate:"gte=1,lte=1024"`
	Seed               uint64  `json:"seed"`                         // 0 = entropy
	CheckpointInterval int     `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = disabled)
}

// Checkpoint represents a saved search state that can seed a later run.
//
// Only the best tour is saved, not the current tour or the random stream.
// A resumed run starts annealing from BestTour with a fresh temperature
// schedule, so it is a restart from a good tour rather than a continuation.
// The best cost never gets worse across a resume because the starting tour
// is the previous best.
type Checkpoint struct {
	// JobID is the unique identifier for this optimization job
	JobID string `json:"jobId"`

	// BestTour is the lowest-cost tour found so far
	BestTour []int `json:"bestTour"`

	// BestCost is the cyclic length of BestTour
	BestCost float64 `json:"bestCost"`

	// InitialCost is the cost of the shuffled starting tour
	InitialCost float64 `json:"initialCost"`

	// Iteration is the iteration count when this checkpoint was created
	Iteration int `json:"iteration"`

	// Temperature is the annealing temperature at Iteration
	Temperature float64 `json:"temperature"`

	// CityCount is the number of cities of the instance
	CityCount int `json:"cityCount"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during resume
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the tour.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	BestCost    float64   `json:"bestCost"`
	InitialCost float64   `json:"initialCost"`
	Iteration   int       `json:"iteration"`
	Timestamp   time.Time `json:"timestamp"`
	CityCount   int       `json:"cityCount"`
	CitiesPath  string    `json:"citiesPath"`
}

// Gain is the relative cost reduction from InitialCost to BestCost in percent.
func (i CheckpointInfo) Gain() float64 {
	if i.InitialCost <= 0 {
		return 0
	}
	return 100 * (i.InitialCost - i.BestCost) / i.InitialCost
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, bestTour []int, bestCost, initialCost float64, iteration int, temperature float64, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		BestTour:    bestTour,
		BestCost:    bestCost,
		InitialCost: initialCost,
		Iteration:   iteration,
		Temperature: temperature,
		CityCount:   len(bestTour),
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		BestCost:    c.BestCost,
		InitialCost: c.InitialCost,
		Iteration:   c.Iteration,
		Timestamp:   c.Timestamp,
		CityCount:   c.CityCount,
		CitiesPath:  c.Config.CitiesPath,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestTour) == 0 {
		return &ValidationError{Field: "BestTour", Reason: "cannot be empty"}
	}
	if c.CityCount != len(c.BestTour) {
		return &ValidationError{
			Field:  "BestTour",
			Reason: fmt.Sprintf("length mismatch: expected %d cities, got %d", c.CityCount, len(c.BestTour)),
		}
	}
	if err := tour.Tour(c.BestTour).Validate(c.CityCount); err != nil {
		return &ValidationError{Field: "BestTour", Reason: err.Error()}
	}
	if c.BestCost < 0 {
		return &ValidationError{Field: "BestCost", Reason: "cannot be negative"}
	}
	if c.InitialCost < 0 {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.CitiesPath == "" {
		return &ValidationError{Field: "Config.CitiesPath", Reason: "cannot be empty"}
	}
	if c.Config.Iters <= 0 {
		return &ValidationError{Field: "Config.Iters", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can seed a run over cityCount cities
// loaded from citiesPath.
func (c *Checkpoint) IsCompatible(citiesPath string, cityCount int) error {
	if c.Config.CitiesPath != citiesPath {
		return &CompatibilityError{
			Field:    "CitiesPath",
			Expected: c.Config.CitiesPath,
			Actual:   citiesPath,
		}
	}
	if c.CityCount != cityCount {
		return &CompatibilityError{
			Field:    "CityCount",
			Expected: fmt.Sprintf("%d", c.CityCount),
			Actual:   fmt.Sprintf("%d", cityCount),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
