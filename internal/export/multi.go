package export

import (
	"context"
	"errors"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
)

// MultiSink fans a comparison out to several sinks. Every sink is attempted; the
// returned error joins the individual failures.
type MultiSink struct {
	sinks []calibration.ComparisonSink
}

// Multi builds a MultiSink, dropping nil entries
func Multi(sinks ...calibration.ComparisonSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// WriteComparison implements calibration.ComparisonSink
func (m *MultiSink) WriteComparison(ctx context.Context, rows []calibration.ComparisonRow) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteComparison(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
