package calibration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type funcEvaluator func(ctx context.Context, workerID int, x []float64) (float64, error)

func (f funcEvaluator) Evaluate(ctx context.Context, workerID int, x []float64) (float64, error) {
	return f(ctx, workerID, x)
}

func TestDispatcherKeepsCandidateOrder(t *testing.T) {
	candidates := make([][]float64, 12)
	for i := range candidates {
		candidates[i] = []float64{float64(i)}
	}
	var mu sync.Mutex
	workers := map[int]bool{}
	eval := funcEvaluator(func(_ context.Context, workerID int, x []float64) (float64, error) {
		mu.Lock()
		workers[workerID] = true
		mu.Unlock()
		// later candidates finish first
		time.Sleep(time.Duration(12-int(x[0])) * time.Millisecond)
		return x[0] * 10, nil
	})

	d := NewDispatcher(eval, ModeThreads, 4)
	values, errs, err := d.Evaluate(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for i := range candidates {
		if errs[i] != nil || values[i] != float64(i)*10 {
			t.Fatalf("candidate %d got value %v err %v", i, values[i], errs[i])
		}
	}
	for id := range workers {
		if id < 0 || id >= 4 {
			t.Fatalf("worker id %d outside 0..3", id)
		}
	}
}

func TestDispatcherSerialUsesWorkerZero(t *testing.T) {
	eval := funcEvaluator(func(_ context.Context, workerID int, x []float64) (float64, error) {
		if workerID != 0 {
			t.Errorf("serial mode used worker %d", workerID)
		}
		return x[0], nil
	})
	d := NewDispatcher(eval, ModeSerial, 8)
	if d.Workers() != 1 {
		t.Fatalf("serial dispatcher should report one worker, got %d", d.Workers())
	}
	values, _, err := d.Evaluate(context.Background(), [][]float64{{1}, {2}, {3}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if values[2] != 3 {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestDispatcherCandidateFailuresStayLocal(t *testing.T) {
	eval := funcEvaluator(func(_ context.Context, workerID int, x []float64) (float64, error) {
		if x[0] == 1 {
			return 0, &ModelEvaluationError{WorkerID: workerID, State: 2, Err: errors.New("blew up")}
		}
		return x[0], nil
	})
	for _, mode := range []Mode{ModeSerial, ModeThreads} {
		values, errs, err := NewDispatcher(eval, mode, 3).Evaluate(context.Background(), [][]float64{{0}, {1}, {2}})
		if err != nil {
			t.Fatalf("%s: candidate failure must not abort: %v", mode, err)
		}
		if errs[1] == nil || errs[0] != nil || errs[2] != nil || values[2] != 2 {
			t.Fatalf("%s: unexpected results %v %v", mode, values, errs)
		}
	}
}

func TestDispatcherFatalErrorAborts(t *testing.T) {
	eval := funcEvaluator(func(_ context.Context, workerID int, x []float64) (float64, error) {
		if x[0] == 3 {
			return 0, &PoolInitializationError{WorkerID: workerID, Err: errors.New("clone failed")}
		}
		return x[0], nil
	})
	candidates := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}}
	for _, mode := range []Mode{ModeSerial, ModeThreads} {
		_, _, err := NewDispatcher(eval, mode, 2).Evaluate(context.Background(), candidates)
		var pe *PoolInitializationError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected PoolInitializationError, got %v", mode, err)
		}
	}
}

func TestDispatcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eval := funcEvaluator(func(ctx context.Context, _ int, x []float64) (float64, error) {
		return x[0], nil
	})
	_, _, err := NewDispatcher(eval, ModeThreads, 2).Evaluate(ctx, [][]float64{{0}, {1}, {2}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeThreads {
		t.Fatalf("empty mode should default to threads, got %v %v", m, err)
	}
	if _, err := ParseMode("fibers"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
