package contact

import (
	"fmt"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// SynthesisOptions controls generated motions and measured-force stand-ins
type SynthesisOptions struct {
	Duration        float64 // s
	Samples         int
	PeakPenetration float64 // m, foot only
	SlideSpeed      float64 // m/s, foot only
	RollStart       float64 // rad, foot only
	RollEnd         float64 // rad, foot only
	DropHeight      float64 // m, ball only
	NoiseStd        float64 // N, added to the synthesized force
	Seed            int64
}

// DefaultSynthesisOptions returns options for a 0.6 s stance sampled at 100 Hz
func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Duration:        0.6,
		Samples:         61,
		PeakPenetration: 0.015,
		SlideSpeed:      0.02,
		RollStart:       0.15,
		RollEnd:         -0.35,
		DropHeight:      1.0,
		Seed:            1,
	}
}

func (o SynthesisOptions) withDefaults() SynthesisOptions {
	d := DefaultSynthesisOptions()
	if o.Duration <= 0 {
		o.Duration = d.Duration
	}
	if o.Samples < 2 {
		o.Samples = d.Samples
	}
	if o.PeakPenetration <= 0 {
		o.PeakPenetration = d.PeakPenetration
	}
	if o.RollStart == 0 && o.RollEnd == 0 {
		o.RollStart, o.RollEnd = d.RollStart, d.RollEnd
	}
	if o.DropHeight == 0 {
		o.DropHeight = d.DropHeight
	}
	return o
}

// Synthesis is a generated calibration problem: a motion and the vertical force the
// model produces along it under the ground-truth parameters.
type Synthesis struct {
	Trajectory Trajectory
	Times      []float64
	Force      []float64
	Truth      Params
}

// Synthesize generates a motion for truth and measures the vertical contact force along
// it on a private clone of m. The prototype m is not modified.
func Synthesize(m Model, truth Params, opts SynthesisOptions) (*Synthesis, error) {
	synth, ok := m.(Synthesizer)
	if !ok {
		return nil, fmt.Errorf("model kind %q cannot synthesize motion", m.Kind())
	}
	traj, err := synth.SynthesizeMotion(truth, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize motion: %w", err)
	}
	force, err := MeasureVerticalForce(m, truth, traj)
	if err != nil {
		return nil, err
	}
	if opts.NoiseStd > 0 {
		rng := utils.NewRandSource(opts.Seed)
		for i := range force {
			force[i] += rng.NormFloat64(0, opts.NoiseStd)
		}
	}
	return &Synthesis{Trajectory: traj, Times: traj.Times(), Force: force, Truth: truth.Clone()}, nil
}

// MeasureVerticalForce applies p to a clone of m and returns the summed vertical contact
// force at every state of traj.
func MeasureVerticalForce(m Model, p Params, traj Trajectory) ([]float64, error) {
	clone, err := m.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone model: %w", err)
	}
	if err := clone.Apply(p); err != nil {
		return nil, fmt.Errorf("failed to apply params: %w", err)
	}
	if err := clone.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize model: %w", err)
	}
	out := make([]float64, traj.Len())
	for i := 0; i < traj.Len(); i++ {
		if err := clone.Realize(traj.At(i)); err != nil {
			return nil, fmt.Errorf("state %d: %w", i, err)
		}
		out[i] = VerticalForce(clone)
	}
	return out, nil
}
