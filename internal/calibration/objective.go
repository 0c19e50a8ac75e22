package calibration

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/reference"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// Objective scores a normalized parameter vector by the squared error between the
// simulated vertical contact force and the reference force over the trajectory:
//
//	f(x) = sum_i (Fy_sim(t_i) - Fy_ref(t_i))^2 / (m * |g| * N)
//
// where m is the total model mass, g gravity and N the number of states.
type Objective struct {
	pool       *ModelPool
	mapping    ParameterMapping
	trajectory contact.Trajectory
	reference  *reference.Signal

	// referenceAt[i] is the interpolated reference at trajectory state i.
	referenceAt   []float64
	normalization float64
	timeout       time.Duration

	evaluations atomic.Int64
}

// ObjectiveOption configures an Objective
type ObjectiveOption func(*Objective)

// WithEvaluationTimeout bounds the wall time of a single evaluation. Zero disables the bound.
func WithEvaluationTimeout(d time.Duration) ObjectiveOption {
	return func(o *Objective) { o.timeout = d }
}

// NewObjective validates the calibration inputs and fixes the normalization constant.
// The constant is derived once from the prototype and never recomputed, so that every
// evaluation of a run is divided by the same value.
func NewObjective(pool *ModelPool, mapping ParameterMapping, trajectory contact.Trajectory, ref *reference.Signal, opts ...ObjectiveOption) (*Objective, error) {
	if pool == nil {
		return nil, &ConfigurationError{Field: "model", Reason: "model pool is nil"}
	}
	if ref == nil {
		return nil, &ConfigurationError{Field: "reference", Reason: "reference signal is nil"}
	}
	if trajectory.Len() == 0 {
		return nil, &ConfigurationError{Field: "trajectory", Reason: "trajectory has no states"}
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	o := &Objective{
		pool:       pool,
		mapping:    mapping,
		trajectory: trajectory,
		reference:  ref,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout < 0 {
		return nil, &ConfigurationError{Field: "optimizer.evaluation_timeout", Reason: "cannot be negative"}
	}

	err := pool.inspect(func(m ForwardModel) error {
		if m.NumContacts() != mapping.NumContacts {
			return &ConfigurationError{
				Field:  "mapping.num_contacts",
				Reason: fmt.Sprintf("model has %d contacts, mapping expects %d", m.NumContacts(), mapping.NumContacts),
			}
		}
		weight := m.TotalMass() * m.Gravity().Norm()
		if !utils.IsFinite(weight) || weight <= 0 {
			return &ConfigurationError{Field: "model", Reason: fmt.Sprintf("model weight must be positive, got %g", weight)}
		}
		o.normalization = weight * float64(trajectory.Len())
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.referenceAt = make([]float64, trajectory.Len())
	for i := 0; i < trajectory.Len(); i++ {
		t := trajectory.At(i).Time
		if !ref.Covers(t) {
			start, end := ref.Span()
			return nil, &ConfigurationError{
				Field:  "reference",
				Reason: fmt.Sprintf("state %d at t=%g lies outside the reference span [%g, %g]", i, t, start, end),
			}
		}
		o.referenceAt[i] = ref.Value(t)
	}
	return o, nil
}

// Dim is the length of the parameter vectors the objective accepts
func (o *Objective) Dim() int { return o.mapping.Dim() }

// Mapping returns the parameter mapping
func (o *Objective) Mapping() ParameterMapping { return o.mapping }

// NormalizationConstant returns m * |g| * N
func (o *Objective) NormalizationConstant() float64 { return o.normalization }

// Evaluations returns the number of completed Evaluate calls
func (o *Objective) Evaluations() int64 { return o.evaluations.Load() }

// Evaluate scores x on the model owned by workerID. Only that worker's clone is mutated.
// A failing simulation yields a *ModelEvaluationError, a non-finite score a
// *NumericalError; a *PoolInitializationError or *ConfigurationError is fatal.
func (o *Objective) Evaluate(ctx context.Context, workerID int, x []float64) (float64, error) {
	defer o.evaluations.Add(1)

	model, err := o.pool.Acquire(workerID)
	if err != nil {
		return 0, err
	}
	params, err := o.mapping.Map(x)
	if err != nil {
		return 0, err
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var sum float64
	err = o.simulate(ctx, workerID, model, params, func(_ int, _, simulated, ref float64) {
		d := simulated - ref
		sum += d * d
	})
	if err != nil {
		return 0, err
	}
	value := sum / o.normalization
	if !utils.IsFinite(value) {
		return 0, &NumericalError{Value: value, Reason: "squared force error overflowed"}
	}
	return value, nil
}

// Simulate runs x on a private clone and returns simulated and reference force at
// every trajectory state.
func (o *Objective) Simulate(ctx context.Context, x []float64) ([]ComparisonRow, error) {
	params, err := o.mapping.Map(x)
	if err != nil {
		return nil, err
	}
	model, err := o.pool.Detached()
	if err != nil {
		return nil, err
	}
	rows := make([]ComparisonRow, 0, o.trajectory.Len())
	err = o.simulate(ctx, -1, model, params, func(_ int, t, simulated, ref float64) {
		rows = append(rows, ComparisonRow{Time: t, Simulated: simulated, Reference: ref})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *Objective) simulate(ctx context.Context, workerID int, model ForwardModel, params PhysicalParams, visit func(i int, t, simulated, ref float64)) error {
	if err := model.Apply(params); err != nil {
		return &ModelEvaluationError{WorkerID: workerID, State: -1, Err: fmt.Errorf("apply parameters: %w", err)}
	}
	if err := model.Initialize(); err != nil {
		return &ModelEvaluationError{WorkerID: workerID, State: -1, Err: fmt.Errorf("initialize: %w", err)}
	}
	for i := 0; i < o.trajectory.Len(); i++ {
		state := o.trajectory.At(i)
		if err := ctx.Err(); err != nil {
			return &ModelEvaluationError{WorkerID: workerID, State: i, Time: state.Time, Err: err}
		}
		if err := model.Realize(state); err != nil {
			return &ModelEvaluationError{WorkerID: workerID, State: i, Time: state.Time, Err: err}
		}
		fy := contact.VerticalForce(model)
		if !utils.IsFinite(fy) {
			return &ModelEvaluationError{WorkerID: workerID, State: i, Time: state.Time, Err: fmt.Errorf("contact force is not finite (%g)", fy)}
		}
		visit(i, state.Time, fy, o.referenceAt[i])
	}
	return nil
}

// penalty is assigned to candidates whose evaluation failed so that they rank last
const penalty = math.MaxFloat64
