package dataio

import (
	"fmt"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/reference"
)

// StateLayout names the coordinate and speed columns of a model's states
type StateLayout struct {
	Coordinates []string
	Speeds      []string
}

// Columns returns the full column list of a states table, time first
func (l StateLayout) Columns() []string {
	cols := make([]string, 0, 1+len(l.Coordinates)+len(l.Speeds))
	cols = append(cols, TimeColumn)
	cols = append(cols, l.Coordinates...)
	return append(cols, l.Speeds...)
}

// LayoutFor returns the state columns of a built-in model kind
func LayoutFor(kind string) (StateLayout, error) {
	switch kind {
	case "foot":
		return StateLayout{
			Coordinates: []string{"tx", "ty", "rz"},
			Speeds:      []string{"vx", "vy", "wz"},
		}, nil
	case "ball":
		return StateLayout{Coordinates: []string{"y"}, Speeds: []string{"vy"}}, nil
	default:
		return StateLayout{}, fmt.Errorf("no state layout for model kind %q", kind)
	}
}

// StatesFromTable builds a trajectory by picking the layout's columns from t
func StatesFromTable(t *Table, layout StateLayout) (contact.Trajectory, error) {
	times, err := t.Time()
	if err != nil {
		return contact.Trajectory{}, err
	}
	pick := func(labels []string) ([][]float64, error) {
		cols := make([][]float64, len(labels))
		for i, label := range labels {
			col, err := t.Column(label)
			if err != nil {
				return nil, err
			}
			cols[i] = col
		}
		return cols, nil
	}
	qs, err := pick(layout.Coordinates)
	if err != nil {
		return contact.Trajectory{}, err
	}
	us, err := pick(layout.Speeds)
	if err != nil {
		return contact.Trajectory{}, err
	}

	states := make([]contact.State, len(times))
	for i, tm := range times {
		q := make([]float64, len(qs))
		for j := range qs {
			q[j] = qs[j][i]
		}
		u := make([]float64, len(us))
		for j := range us {
			u[j] = us[j][i]
		}
		states[i] = contact.State{Time: tm, Q: q, U: u}
	}
	traj, err := contact.NewTrajectory(states)
	if err != nil {
		return contact.Trajectory{}, fmt.Errorf("table %q: %w", t.Name, err)
	}
	return traj, nil
}

// TableFromStates is the inverse of StatesFromTable
func TableFromStates(name string, traj contact.Trajectory, layout StateLayout) (*Table, error) {
	nq, nu := traj.Dims()
	if nq != len(layout.Coordinates) || nu != len(layout.Speeds) {
		return nil, fmt.Errorf("trajectory has %d coordinates and %d speeds, layout names %d and %d",
			nq, nu, len(layout.Coordinates), len(layout.Speeds))
	}
	table := NewTable(name, layout.Columns()...)
	for i := 0; i < traj.Len(); i++ {
		s := traj.At(i)
		row := make([]float64, 0, 1+nq+nu)
		row = append(row, s.Time)
		row = append(row, s.Q...)
		row = append(row, s.U...)
		if err := table.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// SignalFromTable fits a reference signal to one column of t against its time column
func SignalFromTable(t *Table, column string, kind reference.Interpolation) (*reference.Signal, error) {
	times, err := t.Time()
	if err != nil {
		return nil, err
	}
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	return reference.NewSignal(column, times, values, kind)
}

// ForceTable builds a two-column table of a sampled force, as written for synthetic data
func ForceTable(name, column string, times, force []float64) (*Table, error) {
	if len(times) != len(force) {
		return nil, fmt.Errorf("%d times and %d force samples", len(times), len(force))
	}
	table := NewTable(name, TimeColumn, column)
	for i := range times {
		if err := table.AppendRow(times[i], force[i]); err != nil {
			return nil, err
		}
	}
	return table, nil
}
