package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

// GaitSamples holds the two feet of a gait trial on a shared time base. Forces are the
// contact forces along the loading direction; positions are along the walking direction.
type GaitSamples struct {
	Times         []float64
	LeftForce     []float64
	RightForce    []float64
	LeftPosition  []float64
	RightPosition []float64
}

// AsymmetryOptions configures StepTimeAsymmetry
type AsymmetryOptions struct {
	// ForceThreshold is the force (N) above which a foot counts as loaded
	ForceThreshold float64
	// Smoothing is the sharpness of the tanh switches. 0 uses hard switches.
	Smoothing float64
	// Target is the asymmetry the trial is compared against
	Target float64
}

var errNoSteps = errors.New("no loaded leading foot in the trial")

// StepTimeAsymmetry integrates, for each foot, the time it is both loaded and ahead of
// the other foot, and compares the two step times.
func StepTimeAsymmetry(g GaitSamples, opts AsymmetryOptions) (*models.StepTimeAsymmetry, error) {
	n := len(g.Times)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 samples, got %d", n)
	}
	for name, s := range map[string][]float64{
		"left force": g.LeftForce, "right force": g.RightForce,
		"left position": g.LeftPosition, "right position": g.RightPosition,
	} {
		if len(s) != n {
			return nil, fmt.Errorf("%s has %d samples, want %d", name, len(s), n)
		}
	}
	for i := 1; i < n; i++ {
		if !(g.Times[i] > g.Times[i-1]) {
			return nil, fmt.Errorf("time must be strictly increasing at sample %d", i)
		}
	}
	if opts.Smoothing < 0 {
		return nil, fmt.Errorf("smoothing cannot be negative, got %g", opts.Smoothing)
	}

	left := make([]float64, n)
	right := make([]float64, n)
	for i := range n {
		lead := g.LeftPosition[i] - g.RightPosition[i]
		left[i] = opts.on(g.LeftForce[i]-opts.ForceThreshold) * opts.on(lead)
		right[i] = opts.on(g.RightForce[i]-opts.ForceThreshold) * opts.on(-lead)
	}
	l := integrate.Trapezoidal(g.Times, left)
	r := integrate.Trapezoidal(g.Times, right)
	if l+r <= 0 {
		return nil, errNoSteps
	}
	asym := (r - l) / (r + l)
	return &models.StepTimeAsymmetry{
		LeftStepTime:  l,
		RightStepTime: r,
		Asymmetry:     asym,
		Target:        opts.Target,
		Error:         (asym - opts.Target) * (asym - opts.Target),
	}, nil
}

// on switches from 0 to 1 as v crosses zero
func (o AsymmetryOptions) on(v float64) float64 {
	if o.Smoothing == 0 {
		if v > 0 {
			return 1
		}
		return 0
	}
	return 0.5 + 0.5*math.Tanh(o.Smoothing*v)
}

// SetStepTimeAsymmetry attaches a gait asymmetry measure to the run summary
func (c *Collector) SetStepTimeAsymmetry(a *models.StepTimeAsymmetry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asymmetry = a
}

// StepTimeAsymmetry returns the attached gait asymmetry measure, nil if none
func (c *Collector) StepTimeAsymmetry() *models.StepTimeAsymmetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.asymmetry == nil {
		return nil
	}
	out := *c.asymmetry
	return &out
}
