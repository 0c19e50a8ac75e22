package models

import (
	"sync"
	"time"
)

// RunStatus represents the status of a calibration run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusConverged RunStatus = "converged"
	// RunStatusMaxIterations marks a run that stopped at the iteration cap without converging
	RunStatusMaxIterations RunStatus = "max_iterations_reached"
	RunStatusFailed        RunStatus = "failed"
	RunStatusCancelled     RunStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change state
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusConverged, RunStatusMaxIterations, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run represents a calibration run
type Run struct {
	ID         string            `json:"id"`
	Status     RunStatus         `json:"status"`
	ConfigYAML string            `json:"config_yaml,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time,omitempty"`
	Duration   time.Duration     `json:"duration,omitempty"`
	Result     *RunResult        `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RunResult is the outcome of a finished calibration
type RunResult struct {
	BestValue     float64   `json:"best_objective"`
	BestVariables []float64 `json:"best_variables"`
	Heights       []float64 `json:"contact_heights_m"`
	Stiffnesses   []float64 `json:"contact_stiffnesses"`
	Iterations    int       `json:"iterations"`
	Evaluations   int64     `json:"evaluations"`
	Converged     bool      `json:"converged"`
	Reason        string    `json:"reason,omitempty"`
	ElapsedMs     float64   `json:"elapsed_ms"`
}

// ProgressPoint is one optimizer iteration as reported to API clients
type ProgressPoint struct {
	Iteration      int       `json:"iteration"`
	BestValue      float64   `json:"best_objective"`
	BestVariables  []float64 `json:"best_variables,omitempty"`
	PopulationBest float64   `json:"population_best"`
	PopulationMean float64   `json:"population_mean"`
	PopulationStd  float64   `json:"population_std"`
	Failures       int       `json:"failures"`
	Sigma          float64   `json:"sigma"`
	Evaluations    int64     `json:"evaluations"`
	ElapsedMs      float64   `json:"elapsed_ms"`
}

// ProgressLog accumulates progress points for one run. Safe for concurrent use.
type ProgressLog struct {
	points []ProgressPoint
	mu     sync.RWMutex
}

// Append adds a point to the log (thread-safe)
func (l *ProgressLog) Append(p ProgressPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = append(l.points, p)
}

// Points returns a copy of all points (thread-safe)
func (l *ProgressLog) Points() []ProgressPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ProgressPoint, len(l.points))
	copy(out, l.points)
	return out
}

// Since returns the points with an iteration strictly greater than after
func (l *ProgressLog) Since(after int) []ProgressPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []ProgressPoint
	for _, p := range l.points {
		if p.Iteration > after {
			out = append(out, p)
		}
	}
	return out
}

// Latest returns the most recent point
func (l *ProgressLog) Latest() (ProgressPoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.points) == 0 {
		return ProgressPoint{}, false
	}
	return l.points[len(l.points)-1], true
}

// Len returns the number of points (thread-safe)
func (l *ProgressLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.points)
}

// ComparisonPoint is one row of the simulated vs measured force table
type ComparisonPoint struct {
	Time       float64 `json:"time"`
	Simulation float64 `json:"simulation"`
	Experiment float64 `json:"experiment"`
}

// MetricsSummary represents a summary of a run's progress series
type MetricsSummary struct {
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Duration     time.Duration           `json:"duration"`
	Metrics      map[string][]float64    `json:"metrics"` // series name -> values per iteration
	Aggregations map[string]*Aggregation `json:"aggregations,omitempty"`
}

// StepTimeAsymmetry compares how long each foot leads while loaded during a gait trial
type StepTimeAsymmetry struct {
	LeftStepTime  float64 `json:"left_step_time_s"`
	RightStepTime float64 `json:"right_step_time_s"`
	// Asymmetry is (right - left) / (right + left); positive when the right step is longer
	Asymmetry float64 `json:"asymmetry"`
	Target    float64 `json:"target"`
	// Error is the squared distance of Asymmetry from Target
	Error float64 `json:"error"`
}

// Aggregation represents aggregated statistics for a series
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}
