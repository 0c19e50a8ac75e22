package calibration

import (
	"errors"
	"fmt"
)

// ErrAllCandidatesFailed is wrapped by the RunError returned when no candidate of an
// iteration could be evaluated.
var ErrAllCandidatesFailed = errors.New("every candidate in the population failed evaluation")

// ConfigurationError reports inconsistent dimensions, empty inputs or malformed bounds.
// It is raised before any evaluation starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid calibration configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid calibration configuration: %s: %s", e.Field, e.Reason)
}

// ModelEvaluationError reports that the forward simulation of one candidate failed.
// State is the trajectory index that failed, or -1 when the failure happened while
// applying parameters.
type ModelEvaluationError struct {
	WorkerID int
	State    int
	Time     float64
	Err      error
}

func (e *ModelEvaluationError) Error() string {
	if e.State < 0 {
		return fmt.Sprintf("worker %d: model evaluation failed: %v", e.WorkerID, e.Err)
	}
	return fmt.Sprintf("worker %d: model evaluation failed at state %d (t=%g): %v", e.WorkerID, e.State, e.Time, e.Err)
}

func (e *ModelEvaluationError) Unwrap() error { return e.Err }

// NumericalError reports a non-finite objective from an otherwise successful simulation
type NumericalError struct {
	Value  float64
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("objective is not finite (%g): %s", e.Value, e.Reason)
}

// PoolInitializationError reports that a worker's model clone could not be created or
// initialized. It is fatal to the run.
type PoolInitializationError struct {
	WorkerID int
	Err      error
}

func (e *PoolInitializationError) Error() string {
	return fmt.Sprintf("failed to initialize model for worker %d: %v", e.WorkerID, e.Err)
}

func (e *PoolInitializationError) Unwrap() error { return e.Err }

// RunError is the terminal failure of a calibration run, carrying the iteration it
// stopped at and the best objective seen up to then.
type RunError struct {
	Iteration int
	BestValue float64
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("calibration failed at iteration %d (best objective %g): %v", e.Iteration, e.BestValue, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// IsCandidateFailure reports whether err only invalidates the candidate being evaluated.
func IsCandidateFailure(err error) bool {
	var me *ModelEvaluationError
	var ne *NumericalError
	return errors.As(err, &me) || errors.As(err, &ne)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var ce *ConfigurationError
	var pe *PoolInitializationError
	var re *RunError
	return errors.As(err, &ce) || errors.As(err, &pe) || errors.As(err, &re)
}
