package calibration

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/reference"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

func constantProblem(t *testing.T) *Objective {
	t.Helper()
	model := newFakeModel(1)
	model.constant = 1

	times := utils.Linspace(0, 1, 10)
	states := make([]contact.State, len(times))
	for i, ts := range times {
		states[i] = contact.State{Time: ts, Q: []float64{0}, U: []float64{0}}
	}
	traj, err := contact.NewTrajectory(states)
	if err != nil {
		t.Fatalf("NewTrajectory: %v", err)
	}
	ref, err := reference.Constant("fy", times, 100)
	if err != nil {
		t.Fatalf("Constant: %v", err)
	}
	obj, err := NewObjective(NewModelPool(model), testMapping(1), traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}
	return obj
}

func TestObjectiveConstantReference(t *testing.T) {
	obj := constantProblem(t)
	ctx := context.Background()

	// m * |g| * N = 1 * 10 * 10
	if got := obj.NormalizationConstant(); got != 100 {
		t.Fatalf("normalization = %v, want 100", got)
	}

	v, err := obj.Evaluate(ctx, 0, []float64{0.5, 1})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 0 {
		t.Fatalf("exact reproduction should cost 0, got %v", v)
	}

	v, err = obj.Evaluate(ctx, 0, []float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := 10 * 50.0 * 50.0 / obj.NormalizationConstant()
	if v != want {
		t.Fatalf("half stiffness should cost %v, got %v", want, v)
	}
	if obj.Evaluations() != 2 {
		t.Fatalf("expected 2 evaluations, got %d", obj.Evaluations())
	}
}

func TestObjectiveZeroAtTruth(t *testing.T) {
	model := newFakeModel(2)
	mapping := testMapping(2)
	traj := fakeTrajectory(2, 25)
	truth := []float64{0.3, 0.7, 0.4, 0.6}
	ref := truthReference(model, mapping, traj, truth)

	obj, err := NewObjective(NewModelPool(model), mapping, traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}
	v, err := obj.Evaluate(context.Background(), 0, truth)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 0 {
		t.Fatalf("objective at truth = %v, want 0", v)
	}
	off, err := obj.Evaluate(context.Background(), 0, []float64{0.5, 0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if off <= 0 {
		t.Fatalf("objective away from truth should be positive, got %v", off)
	}
}

func TestObjectiveDeterministicAcrossWorkers(t *testing.T) {
	model := newFakeModel(2)
	mapping := testMapping(2)
	traj := fakeTrajectory(2, 40)
	ref := truthReference(model, mapping, traj, []float64{0.3, 0.7, 0.4, 0.6})
	obj, err := NewObjective(NewModelPool(model), mapping, traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}

	x := []float64{0.11, 0.52, 0.93, 0.27}
	serial, err := obj.Evaluate(context.Background(), 0, x)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	const workers = 8
	const rounds = 20
	results := make([]float64, workers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				// interleave another vector to dirty the worker's clone
				if _, err := obj.Evaluate(context.Background(), w, []float64{0.9, 0.1, 0.2, 0.3}); err != nil {
					t.Errorf("Evaluate: %v", err)
				}
				v, err := obj.Evaluate(context.Background(), w, x)
				if err != nil {
					t.Errorf("Evaluate: %v", err)
				}
				results[w*rounds+r] = v
			}
		}(w)
	}
	wg.Wait()

	for i, v := range results {
		if v != serial {
			t.Fatalf("result %d = %v differs from serial %v", i, v, serial)
		}
	}
	if got, want := obj.Evaluations(), int64(1+2*workers*rounds); got != want {
		t.Fatalf("evaluations = %d, want %d", got, want)
	}
}

func TestObjectiveModelFailure(t *testing.T) {
	model := newFakeModel(1)
	model.failAbove = 0.0
	traj := fakeTrajectory(1, 5)
	ref, _ := reference.Constant("fy", traj.Times(), 1)
	obj, err := NewObjective(NewModelPool(model), testMapping(1), traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}

	_, err = obj.Evaluate(context.Background(), 0, []float64{0.9, 0.5})
	var me *ModelEvaluationError
	if !errors.As(err, &me) {
		t.Fatalf("expected ModelEvaluationError, got %v", err)
	}
	if me.State != 0 || !IsCandidateFailure(err) || IsFatal(err) {
		t.Fatalf("unexpected classification of %v", err)
	}

	// The same worker recovers on the next candidate.
	if _, err := obj.Evaluate(context.Background(), 0, []float64{0.1, 0.5}); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestObjectiveNumericalOverflow(t *testing.T) {
	model := newFakeModel(1)
	model.constant = 1e200
	traj := fakeTrajectory(1, 5)
	ref, _ := reference.Constant("fy", traj.Times(), 0)
	obj, err := NewObjective(NewModelPool(model), testMapping(1), traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}
	_, err = obj.Evaluate(context.Background(), 0, []float64{0.5, 1})
	var ne *NumericalError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NumericalError, got %v", err)
	}
	if !IsCandidateFailure(err) {
		t.Fatal("numerical errors are candidate failures")
	}
}

func TestObjectiveEvaluationTimeout(t *testing.T) {
	model := newFakeModel(1)
	model.delay = 20 * time.Millisecond
	traj := fakeTrajectory(1, 10)
	ref, _ := reference.Constant("fy", traj.Times(), 0)
	obj, err := NewObjective(NewModelPool(model), testMapping(1), traj, ref, WithEvaluationTimeout(5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}
	_, err = obj.Evaluate(context.Background(), 0, []float64{0.5, 0.5})
	if !errors.Is(err, context.DeadlineExceeded) || !IsCandidateFailure(err) {
		t.Fatalf("expected deadline candidate failure, got %v", err)
	}
}

func TestObjectivePoolFailureIsFatal(t *testing.T) {
	model := newFakeModel(1)
	model.initErr = errors.New("no")
	traj := fakeTrajectory(1, 3)
	ref, _ := reference.Constant("fy", traj.Times(), 0)
	obj, err := NewObjective(NewModelPool(model), testMapping(1), traj, ref)
	if err != nil {
		t.Fatalf("NewObjective: %v", err)
	}
	_, err = obj.Evaluate(context.Background(), 0, []float64{0.5, 0.5})
	if !IsFatal(err) {
		t.Fatalf("expected fatal pool error, got %v", err)
	}
}

func TestNewObjectiveConfigurationErrors(t *testing.T) {
	model := newFakeModel(2)
	traj := fakeTrajectory(2, 5)
	ref, _ := reference.Constant("fy", traj.Times(), 0)
	var ce *ConfigurationError

	if _, err := NewObjective(NewModelPool(model), testMapping(2), contact.Trajectory{}, ref); !errors.As(err, &ce) {
		t.Fatalf("empty trajectory: expected ConfigurationError, got %v", err)
	}
	if _, err := NewObjective(NewModelPool(model), testMapping(3), traj, ref); !errors.As(err, &ce) {
		t.Fatalf("contact mismatch: expected ConfigurationError, got %v", err)
	}
	if _, err := NewObjective(NewModelPool(model), ParameterMapping{NumContacts: 2, HeightLower: 1, HeightUpper: 0, StiffnessScale: 1}, traj, ref); !errors.As(err, &ce) {
		t.Fatalf("bad bounds: expected ConfigurationError, got %v", err)
	}
	if _, err := NewObjective(NewModelPool(model), testMapping(2), traj, nil); !errors.As(err, &ce) {
		t.Fatalf("nil reference: expected ConfigurationError, got %v", err)
	}
	short, _ := reference.Constant("fy", traj.Times()[:3], 0)
	if _, err := NewObjective(NewModelPool(model), testMapping(2), traj, short); !errors.As(err, &ce) || ce.Field != "reference" {
		t.Fatalf("reference ends before the motion: expected reference ConfigurationError, got %v", err)
	}
	weightless := newFakeModel(2)
	weightless.mass = 0
	if _, err := NewObjective(NewModelPool(weightless), testMapping(2), traj, ref); !errors.As(err, &ce) {
		t.Fatalf("zero mass: expected ConfigurationError, got %v", err)
	}
}

func TestObjectiveSimulate(t *testing.T) {
	obj := constantProblem(t)
	rows, err := obj.Simulate(context.Background(), []float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Simulated != 50 || r.Reference != 100 {
			t.Fatalf("unexpected row %+v", r)
		}
	}
	if rows[9].Time != 1 || math.Abs(rows[1].Time-1.0/9) > 1e-15 {
		t.Fatalf("unexpected times %v %v", rows[1].Time, rows[9].Time)
	}
	if obj.Evaluations() != 0 {
		t.Fatal("Simulate must not count as an evaluation")
	}
}
