// Package reference wraps measured time series in a smooth interpolant that can be
// queried at arbitrary times.
package reference

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Interpolation selects the interpolant fitted to the samples
type Interpolation string

const (
	// NaturalCubic is a C2 cubic spline with zero second derivative at both ends
	NaturalCubic Interpolation = "natural_cubic"
	// Akima is less prone to overshoot around outliers than NaturalCubic
	Akima Interpolation = "akima"
	// FritschButland is monotone between samples
	FritschButland Interpolation = "fritsch_butland"
	// Linear interpolates straight segments between samples
	Linear Interpolation = "linear"
)

// ErrTooFewSamples is returned when fewer than two samples are supplied
var ErrTooFewSamples = errors.New("reference signal needs at least two samples")

// ParseInterpolation maps a config value onto an Interpolation. Empty selects NaturalCubic.
func ParseInterpolation(s string) (Interpolation, error) {
	switch Interpolation(strings.ToLower(strings.TrimSpace(s))) {
	case "", NaturalCubic:
		return NaturalCubic, nil
	case Akima:
		return Akima, nil
	case FritschButland:
		return FritschButland, nil
	case Linear:
		return Linear, nil
	default:
		return "", fmt.Errorf("unknown interpolation %q", s)
	}
}

// Signal is an immutable, time-stamped scalar series with a fitted interpolant.
// Value is safe for concurrent use.
type Signal struct {
	name      string
	kind      Interpolation
	times     []float64
	values    []float64
	predictor interp.Predictor
}

// NewSignal copies the samples and fits the chosen interpolant. Times must strictly
// increase and every sample must be finite.
func NewSignal(name string, times, values []float64, kind Interpolation) (*Signal, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("reference %q: %d times but %d values", name, len(times), len(values))
	}
	if len(times) < 2 {
		return nil, ErrTooFewSamples
	}
	for i := range times {
		if math.IsNaN(times[i]) || math.IsInf(times[i], 0) {
			return nil, fmt.Errorf("reference %q: time %d is not finite", name, i)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, fmt.Errorf("reference %q: value at t=%g is not finite", name, times[i])
		}
		if i > 0 && times[i] <= times[i-1] {
			return nil, fmt.Errorf("reference %q: time %g does not increase (previous %g)", name, times[i], times[i-1])
		}
	}

	s := &Signal{
		name:   name,
		times:  append([]float64(nil), times...),
		values: append([]float64(nil), values...),
	}
	if kind == "" {
		kind = NaturalCubic
	}
	s.kind = kind

	var fp interp.FittablePredictor
	switch kind {
	case NaturalCubic:
		fp = &interp.NaturalCubic{}
	case Akima:
		fp = &interp.AkimaSpline{}
	case FritschButland:
		fp = &interp.FritschButland{}
	case Linear:
		fp = &interp.PiecewiseLinear{}
	default:
		return nil, fmt.Errorf("unknown interpolation %q", kind)
	}
	if err := fp.Fit(s.times, s.values); err != nil {
		return nil, fmt.Errorf("reference %q: failed to fit %s interpolant: %w", name, kind, err)
	}
	s.predictor = fp
	return s, nil
}

// Constant builds a signal holding value at the given times. Mostly useful in tests.
func Constant(name string, times []float64, value float64) (*Signal, error) {
	values := make([]float64, len(times))
	for i := range values {
		values[i] = value
	}
	return NewSignal(name, times, values, Linear)
}

// Value returns the interpolated value at t. Outside the sampled range it holds the
// nearest end sample.
func (s *Signal) Value(t float64) float64 {
	return s.predictor.Predict(t)
}

// Name returns the signal name, typically the source column
func (s *Signal) Name() string { return s.name }

// Interpolation returns the fitted interpolant kind
func (s *Signal) Interpolation() Interpolation { return s.kind }

// Len returns the number of samples
func (s *Signal) Len() int { return len(s.times) }

// Times returns a copy of the sample times
func (s *Signal) Times() []float64 {
	return append([]float64(nil), s.times...)
}

// Values returns a copy of the sample values
func (s *Signal) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// Span returns the first and last sample time
func (s *Signal) Span() (start, end float64) {
	return s.times[0], s.times[len(s.times)-1]
}

// Covers reports whether t lies inside the sampled range
func (s *Signal) Covers(t float64) bool {
	start, end := s.Span()
	return t >= start && t <= end
}
