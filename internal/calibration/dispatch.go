package calibration

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Mode selects how a population is evaluated
type Mode string

const (
	// ModeThreads evaluates candidates on a bounded set of worker goroutines
	ModeThreads Mode = "threads"
	// ModeSerial evaluates candidates one after another as worker 0
	ModeSerial Mode = "serial"
)

// ParseMode maps a config value onto a Mode. Empty selects ModeThreads.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeThreads:
		return ModeThreads, nil
	case ModeSerial:
		return ModeSerial, nil
	default:
		return "", &ConfigurationError{Field: "optimizer.mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}

// Evaluator scores a parameter vector on the model owned by workerID
type Evaluator interface {
	Evaluate(ctx context.Context, workerID int, x []float64) (float64, error)
}

// Dispatcher evaluates whole populations. Results are stored at the index of their
// candidate, so completion order never changes which candidate a value belongs to.
type Dispatcher struct {
	eval        Evaluator
	mode        Mode
	parallelism int
}

// NewDispatcher creates a dispatcher. Parallelism below 1 is treated as 1.
func NewDispatcher(eval Evaluator, mode Mode, parallelism int) *Dispatcher {
	if parallelism < 1 {
		parallelism = 1
	}
	if mode == ModeSerial {
		parallelism = 1
	}
	return &Dispatcher{eval: eval, mode: mode, parallelism: parallelism}
}

// Workers returns the number of worker identities the dispatcher uses
func (d *Dispatcher) Workers() int { return d.parallelism }

// Evaluate scores every candidate and blocks until all are done. Candidate failures are
// returned per index in errs; a fatal error or cancellation of ctx aborts the population
// and is returned as err.
func (d *Dispatcher) Evaluate(ctx context.Context, candidates [][]float64) (values []float64, errs []error, err error) {
	values = make([]float64, len(candidates))
	errs = make([]error, len(candidates))

	if d.mode == ModeSerial || d.parallelism == 1 {
		for i, x := range candidates {
			v, evalErr := d.eval.Evaluate(ctx, 0, x)
			if evalErr != nil && IsFatal(evalErr) {
				return nil, nil, evalErr
			}
			values[i], errs[i] = v, evalErr
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		return values, errs, nil
	}

	workers := d.parallelism
	if workers > len(candidates) {
		workers = len(candidates)
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range candidates {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			for idx := range jobs {
				v, evalErr := d.eval.Evaluate(gctx, workerID, candidates[idx])
				if evalErr != nil && IsFatal(evalErr) {
					return evalErr
				}
				values[idx], errs[idx] = v, evalErr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	// A cancelled parent leaves some candidates unsent.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return values, errs, nil
}
