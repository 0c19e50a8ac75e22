package calibd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/export"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/problem"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

// RunExecutor manages asynchronous calibration runs and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	db       *export.SQLiteStore
	notifier *Notifier
	log      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// ExecutorOption configures a RunExecutor
type ExecutorOption func(*RunExecutor)

// WithPersistence mirrors runs, progress and comparisons into db
func WithPersistence(db *export.SQLiteStore) ExecutorOption {
	return func(e *RunExecutor) { e.db = db }
}

// WithNotifier sends completion callbacks through n
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *RunExecutor) { e.notifier = n }
}

// WithExecutorLogger sets the logger runs log through
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *RunExecutor) { e.log = l }
}

func NewRunExecutor(store *RunStore, opts ...ExecutorOption) *RunExecutor {
	e := &RunExecutor{
		store:   store,
		cancels: make(map[string]context.CancelFunc),
		done:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Default
	}
	return e
}

// Start begins executing a run asynchronously.
// Returns the updated run state (running) or an error.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status == models.RunStatusRunning {
		return rec, nil
	}
	if rec.Run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	if old, exists := e.cancels[runID]; exists {
		old()
	}
	e.cancels[runID] = cancel
	e.done[runID] = done
	e.mu.Unlock()

	updated, err := e.store.SetStatus(runID, models.RunStatusRunning, "")
	if err != nil {
		e.cleanup(runID)
		return nil, err
	}
	e.persist(runID)

	go e.runCalibration(ctx, runID, done)
	return updated, nil
}

// Stop requests cancellation for a running run and marks it cancelled.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	updated, err := e.store.SetStatus(runID, models.RunStatusCancelled, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	e.persist(runID)
	e.notify(runID)
	e.log.Info("run cancelled", "run_id", runID)
	return updated, nil
}

// Wait blocks until the goroutine of a started run has returned. A run that already
// finished returns immediately.
func (e *RunExecutor) Wait(ctx context.Context, runID string) error {
	e.mu.Lock()
	done, ok := e.done[runID]
	e.mu.Unlock()
	if !ok {
		if rec, found := e.store.Get(runID); found && rec.Run.Status.IsTerminal() {
			return nil
		}
		return fmt.Errorf("%w: %s was never started", ErrRunNotFound, runID)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to return
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id := range e.cancels {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := e.Stop(id); err != nil && !errors.Is(err, ErrRunTerminal) {
			errs = append(errs, err)
		}
	}
	for _, id := range ids {
		if err := e.Wait(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cleanup drops the bookkeeping of a run whose goroutine is returning or never started
func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	delete(e.done, runID)
	e.mu.Unlock()
}

func (e *RunExecutor) runCalibration(ctx context.Context, runID string, done chan struct{}) {
	defer close(done)
	defer e.cleanup(runID)

	rec, ok := e.store.Get(runID)
	if !ok {
		e.log.Error("run not found", "run_id", runID)
		return
	}
	log := e.log.With("run_id", runID)

	p, err := problem.Build(rec.Config)
	if err != nil {
		e.fail(runID, fmt.Sprintf("invalid calibration problem: %v", err))
		return
	}
	log.LogAttrs(ctx, slog.LevelInfo, "calibration problem built", p.LogAttrs()...)

	rec.Collector.Start()
	rec.Collector.SetStepTimeAsymmetry(p.Asymmetry)
	driver, err := p.NewDriver(
		calibration.WithLogger(log),
		calibration.WithProgress(e.progressFunc(runID, rec)),
	)
	if err != nil {
		e.fail(runID, fmt.Sprintf("driver setup failed: %v", err))
		return
	}

	res, err := driver.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("calibration cancelled")
			return
		}
		e.fail(runID, err.Error())
		return
	}

	if err := e.store.SetResult(runID, problem.RunResult(res)); err != nil {
		log.Error("failed to store result", "error", err)
	}

	sink := export.Multi(
		calibration.ComparisonSinkFunc(func(_ context.Context, rows []calibration.ComparisonRow) error {
			return e.store.SetComparison(runID, problem.ComparisonPoints(rows))
		}),
		e.comparisonSink(runID),
	)
	if err := driver.ExportComparison(ctx, res.Best, sink); err != nil {
		log.Warn("comparison export failed", "error", err)
	}

	if _, err := e.store.SetStatus(runID, problem.RunStatus(res.Status), ""); err != nil {
		// a concurrent Stop won
		log.Info("run finished after cancellation", "error", err)
		return
	}
	e.persist(runID)
	e.notify(runID)
	log.Info("run completed",
		"status", string(res.Status),
		"best_objective", res.BestValue,
		"iterations", res.Iterations)
}

func (e *RunExecutor) progressFunc(runID string, rec *RunRecord) calibration.ProgressFunc {
	return func(pr calibration.ProgressRecord) {
		rec.Progress.Append(problem.ProgressPoint(pr))
		rec.Collector.ObserveProgress(pr)
		if e.db != nil {
			if err := e.db.RecordProgress(context.Background(), runID, pr); err != nil {
				e.log.Warn("failed to persist progress", "run_id", runID, "iteration", pr.Iteration, "error", err)
			}
		}
	}
}

func (e *RunExecutor) comparisonSink(runID string) calibration.ComparisonSink {
	if e.db == nil {
		return nil
	}
	return e.db.ComparisonSink(runID)
}

func (e *RunExecutor) fail(runID, msg string) {
	e.log.Error("calibration failed", "run_id", runID, "error", msg)
	if _, err := e.store.SetStatus(runID, models.RunStatusFailed, msg); err != nil {
		e.log.Error("failed to set failed status", "run_id", runID, "error", err)
		return
	}
	e.persist(runID)
	e.notify(runID)
}

func (e *RunExecutor) persist(runID string) {
	if e.db == nil {
		return
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return
	}
	if err := e.db.SaveRun(context.Background(), rec.Run); err != nil {
		e.log.Warn("failed to persist run", "run_id", runID, "error", err)
	}
}

func (e *RunExecutor) notify(runID string) {
	if e.notifier == nil {
		return
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return
	}
	e.notifier.Notify(rec.Callback.URL, rec.Callback.Secret, rec)
}
