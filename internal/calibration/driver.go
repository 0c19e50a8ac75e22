package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// Status is the state of a calibration run
type Status string

const (
	StatusInitialized   Status = "initialized"
	StatusIterating     Status = "iterating"
	StatusConverged     Status = "converged"
	StatusMaxIterations Status = "max_iterations_reached"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no further transitions can happen
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusMaxIterations || s == StatusFailed
}

// OptimizerSettings configures the search
type OptimizerSettings struct {
	// PopulationSize is lambda; 0 selects DefaultPopulationSize
	PopulationSize  int
	InitialStepSize float64
	// InitialPoint seeds the search mean; nil starts every variable at 0.5
	InitialPoint []float64
	Tolerance    float64
	// StallIterations is the convergence window; 0 selects DefaultStallWindow
	StallIterations  int
	MaxIterations    int
	Parallelism      int // 0 selects runtime.NumCPU()
	Mode             Mode
	Seed             int64
	Convergence      string
	DiagnosticsLevel int
}

// DefaultOptimizerSettings mirrors the CMA-ES setup of the gait calibration
func DefaultOptimizerSettings() OptimizerSettings {
	return OptimizerSettings{
		InitialStepSize:  0.5,
		Tolerance:        1e-3,
		MaxIterations:    3000,
		Mode:             ModeThreads,
		Seed:             1,
		DiagnosticsLevel: 1,
	}
}

// Validate checks the settings against a problem of dimension dim
func (s OptimizerSettings) Validate(dim int) error {
	if s.PopulationSize < 0 {
		return &ConfigurationError{Field: "optimizer.population_size", Reason: "cannot be negative"}
	}
	if !utils.IsFinite(s.InitialStepSize) || s.InitialStepSize <= 0 {
		return &ConfigurationError{Field: "optimizer.initial_step_size", Reason: fmt.Sprintf("must be positive, got %g", s.InitialStepSize)}
	}
	if !utils.IsFinite(s.Tolerance) || s.Tolerance < 0 {
		return &ConfigurationError{Field: "optimizer.tolerance", Reason: "must be a non-negative number"}
	}
	if s.StallIterations < 0 {
		return &ConfigurationError{Field: "optimizer.stall_iterations", Reason: "cannot be negative"}
	}
	if s.MaxIterations < 1 {
		return &ConfigurationError{Field: "optimizer.max_iterations", Reason: "must be at least 1"}
	}
	if s.Parallelism < 0 {
		return &ConfigurationError{Field: "optimizer.parallelism", Reason: "cannot be negative"}
	}
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	if s.InitialPoint != nil && len(s.InitialPoint) != dim {
		return &ConfigurationError{Field: "optimizer.initial_point", Reason: fmt.Sprintf("expected %d variables, got %d", dim, len(s.InitialPoint))}
	}
	if !utils.AllFinite(s.InitialPoint) {
		return &ConfigurationError{Field: "optimizer.initial_point", Reason: "every component must be finite"}
	}
	return nil
}

// Result is the outcome of a calibration run
type Result struct {
	Best        []float64        `json:"best"`
	BestParams  PhysicalParams   `json:"best_params"`
	BestValue   float64          `json:"best_objective"`
	Iterations  int              `json:"iterations"`
	Evaluations int64            `json:"evaluations"`
	Elapsed     time.Duration    `json:"elapsed_ns"`
	Status      Status           `json:"status"`
	Converged   bool             `json:"converged"`
	Reason      string           `json:"reason,omitempty"`
	History     []ProgressRecord `json:"history,omitempty"`
}

// Driver runs the search loop: ask a population, evaluate it through the dispatcher,
// rank it, adapt the search distribution and check for convergence.
type Driver struct {
	objective   *Objective
	settings    OptimizerSettings
	dispatcher  *Dispatcher
	convergence ConvergenceStrategy
	strategy    SearchStrategy
	progress    ProgressFunc
	logger      *slog.Logger

	mu        sync.RWMutex
	status    Status
	iteration int
	best      []float64
	bestValue float64
	history   []ProgressRecord
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithLogger sets the driver logger
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithProgress registers a callback invoked after every iteration
func WithProgress(fn ProgressFunc) DriverOption {
	return func(d *Driver) { d.progress = fn }
}

// WithConvergence replaces the convergence strategy selected by the settings
func WithConvergence(c ConvergenceStrategy) DriverOption {
	return func(d *Driver) { d.convergence = c }
}

// WithSearchStrategy replaces the CMA-ES search. The strategy must produce vectors of
// the objective's dimension.
func WithSearchStrategy(s SearchStrategy) DriverOption {
	return func(d *Driver) { d.strategy = s }
}

// NewDriver validates settings and prepares a run. Nothing is evaluated until Run.
func NewDriver(objective *Objective, settings OptimizerSettings, opts ...DriverOption) (*Driver, error) {
	if objective == nil {
		return nil, &ConfigurationError{Field: "objective", Reason: "objective is nil"}
	}
	dim := objective.Dim()
	if err := settings.Validate(dim); err != nil {
		return nil, err
	}
	if settings.Mode == "" {
		settings.Mode = ModeThreads
	}
	if settings.Parallelism == 0 {
		settings.Parallelism = runtime.NumCPU()
	}
	if settings.StallIterations == 0 {
		settings.StallIterations = DefaultStallWindow(dim, settings.PopulationSize)
	}
	if settings.InitialPoint == nil {
		settings.InitialPoint = make([]float64, dim)
		for i := range settings.InitialPoint {
			settings.InitialPoint[i] = 0.5
		}
	}

	d := &Driver{
		objective: objective,
		settings:  settings,
		logger:    logger.Default,
		status:    StatusInitialized,
		bestValue: penalty,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.convergence == nil {
		c, err := NewConvergenceStrategy(settings.Convergence, &ConvergenceConfig{
			Tolerance:       settings.Tolerance,
			StallIterations: settings.StallIterations,
			MinIterations:   2,
			SpreadTolerance: 1e-6,
		})
		if err != nil {
			return nil, err
		}
		d.convergence = c
	}
	if d.strategy == nil {
		s, err := NewCMAES(CMAESConfig{
			Start:          settings.InitialPoint,
			StepSize:       settings.InitialStepSize,
			PopulationSize: settings.PopulationSize,
			Lower:          0,
			Upper:          1,
			Seed:           settings.Seed,
		})
		if err != nil {
			return nil, err
		}
		d.strategy = s
	}
	d.dispatcher = NewDispatcher(objective, settings.Mode, settings.Parallelism)
	return d, nil
}

// Settings returns the effective settings after defaults were applied
func (d *Driver) Settings() OptimizerSettings {
	s := d.settings
	s.InitialPoint = utils.CopyFloat64s(d.settings.InitialPoint)
	return s
}

// Status returns the current run status. Safe to call while Run is in progress.
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Progress returns a copy of the progress history so far
func (d *Driver) Progress() []ProgressRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ProgressRecord, len(d.history))
	copy(out, d.history)
	return out
}

// Run executes the search until convergence, the iteration cap, or a fatal error.
// Reaching the cap is not an error: the best vector so far is returned with
// Converged == false. Cancelling ctx stops the run between iterations with a *RunError.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	d.mu.Lock()
	if d.status != StatusInitialized {
		d.mu.Unlock()
		return nil, errors.New("driver has already run")
	}
	d.status = StatusIterating
	d.mu.Unlock()

	start := time.Now()
	d.logger.Info("calibration started",
		"variables", d.objective.Dim(),
		"population_size", d.strategy.PopulationSize(),
		"mode", string(d.settings.Mode),
		"workers", d.dispatcher.Workers(),
		"max_iterations", d.settings.MaxIterations)

	for iteration := 1; iteration <= d.settings.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return d.fail(iteration, err)
		}

		candidates := d.strategy.Ask()
		values, errs, err := d.dispatcher.Evaluate(ctx, candidates)
		if err != nil {
			return d.fail(iteration, err)
		}

		failures := 0
		var firstErr error
		for i, evalErr := range errs {
			if evalErr == nil {
				if d.settings.DiagnosticsLevel >= 3 {
					d.logger.Debug("candidate evaluated", "iteration", iteration, "candidate", i, "objective", values[i])
				}
				continue
			}
			failures++
			if firstErr == nil {
				firstErr = evalErr
			}
			values[i] = penalty
			if d.settings.DiagnosticsLevel >= 2 {
				d.logger.Warn("candidate failed", "iteration", iteration, "candidate", i, "error", evalErr)
			}
		}
		if failures == len(candidates) {
			return d.fail(iteration, fmt.Errorf("%w: %w", ErrAllCandidatesFailed, firstErr))
		}

		if err := d.strategy.Tell(values); err != nil {
			return d.fail(iteration, fmt.Errorf("search update failed: %w", err))
		}

		record := d.record(iteration, candidates, values, failures, time.Since(start))
		if d.progress != nil {
			d.progress(record)
		}
		if d.settings.DiagnosticsLevel >= 1 {
			d.logger.Info("calibration iteration",
				"iteration", iteration,
				"best_objective", record.BestValue,
				"population_best", record.PopulationBest,
				"sigma", record.Sigma,
				"failures", failures,
				"evaluations", record.Evaluations)
		}

		d.mu.RLock()
		converged, reason := d.convergence.CheckConvergence(d.history)
		d.mu.RUnlock()
		if converged {
			return d.finish(StatusConverged, reason, start), nil
		}
	}

	return d.finish(StatusMaxIterations, fmt.Sprintf("reached %d iterations without meeting tolerance", d.settings.MaxIterations), start), nil
}

// record updates best-so-far and appends the iteration to the history
func (d *Driver) record(iteration int, candidates [][]float64, values []float64, failures int, elapsed time.Duration) ProgressRecord {
	popBest, popMean, popStd, _ := populationStats(values)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.iteration = iteration
	for i, v := range values {
		if v < d.bestValue {
			d.bestValue = v
			d.best = utils.CopyFloat64s(candidates[i])
		}
	}
	r := ProgressRecord{
		Iteration:      iteration,
		BestValue:      d.bestValue,
		BestVariables:  utils.CopyFloat64s(d.best),
		PopulationSize: len(candidates),
		PopulationBest: popBest,
		PopulationMean: popMean,
		PopulationStd:  popStd,
		Failures:       failures,
		Sigma:          d.strategy.Sigma(),
		Evaluations:    d.objective.Evaluations(),
		Elapsed:        elapsed,
	}
	d.history = append(d.history, r)
	return r
}

func (d *Driver) fail(iteration int, cause error) (*Result, error) {
	d.mu.Lock()
	d.status = StatusFailed
	best := d.bestValue
	d.mu.Unlock()

	d.logger.Error("calibration failed", "iteration", iteration, "best_objective", best, "error", cause)
	return nil, &RunError{Iteration: iteration, BestValue: best, Err: cause}
}

func (d *Driver) finish(status Status, reason string, start time.Time) *Result {
	d.mu.Lock()
	d.status = status
	res := &Result{
		Best:        utils.CopyFloat64s(d.best),
		BestValue:   d.bestValue,
		Iterations:  d.iteration,
		Evaluations: d.objective.Evaluations(),
		Elapsed:     time.Since(start),
		Status:      status,
		Converged:   status == StatusConverged,
		Reason:      reason,
		History:     make([]ProgressRecord, len(d.history)),
	}
	copy(res.History, d.history)
	d.mu.Unlock()

	if params, err := d.objective.Mapping().Map(res.Best); err == nil {
		res.BestParams = params
	}
	d.logger.Info("calibration finished",
		"status", string(status),
		"best_objective", res.BestValue,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"elapsed", res.Elapsed.String(),
		"reason", reason)
	return res
}

// ExportComparison simulates best on a private model clone and writes the simulated and
// reference force at every state to sink.
func (d *Driver) ExportComparison(ctx context.Context, best []float64, sink ComparisonSink) error {
	return ExportComparison(ctx, d.objective, best, sink)
}

// ExportComparison is the driver-independent form of Driver.ExportComparison
func ExportComparison(ctx context.Context, objective *Objective, best []float64, sink ComparisonSink) error {
	if sink == nil {
		return errors.New("comparison sink is nil")
	}
	rows, err := objective.Simulate(ctx, best)
	if err != nil {
		return fmt.Errorf("failed to simulate best parameters: %w", err)
	}
	if err := sink.WriteComparison(ctx, rows); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}
	return nil
}
