package contact

import (
	"errors"
	"fmt"
)

// ErrEmptyTrajectory is returned when a trajectory has no states
var ErrEmptyTrajectory = errors.New("trajectory has no states")

// Trajectory is an immutable, time-ordered sequence of states. It is shared read-only
// by every evaluation of a calibration run.
type Trajectory struct {
	states []State
}

// NewTrajectory copies states into a trajectory after checking that times strictly
// increase and every state has the same dimensions.
func NewTrajectory(states []State) (Trajectory, error) {
	if len(states) == 0 {
		return Trajectory{}, ErrEmptyTrajectory
	}
	nq, nu := len(states[0].Q), len(states[0].U)
	out := make([]State, len(states))
	for i, s := range states {
		if err := s.validate(nq, nu); err != nil {
			return Trajectory{}, fmt.Errorf("state %d: %w", i, err)
		}
		if i > 0 && s.Time <= states[i-1].Time {
			return Trajectory{}, fmt.Errorf("state %d: time %g does not increase (previous %g)", i, s.Time, states[i-1].Time)
		}
		q := make([]float64, nq)
		u := make([]float64, nu)
		copy(q, s.Q)
		copy(u, s.U)
		out[i] = State{Time: s.Time, Q: q, U: u}
	}
	return Trajectory{states: out}, nil
}

// Len returns the number of states
func (t Trajectory) Len() int {
	return len(t.states)
}

// At returns state i. The returned slices must not be modified.
func (t Trajectory) At(i int) State {
	return t.states[i]
}

// Front returns the first state
func (t Trajectory) Front() State {
	return t.states[0]
}

// Times returns a fresh slice of the state times
func (t Trajectory) Times() []float64 {
	out := make([]float64, len(t.states))
	for i, s := range t.states {
		out[i] = s.Time
	}
	return out
}

// Dims returns the number of coordinates and speeds per state
func (t Trajectory) Dims() (nq, nu int) {
	if len(t.states) == 0 {
		return 0, 0
	}
	return len(t.states[0].Q), len(t.states[0].U)
}
