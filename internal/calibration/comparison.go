package calibration

import "context"

// ComparisonRow pairs the simulated and reference vertical force at one state
type ComparisonRow struct {
	Time      float64 `json:"time"`
	Simulated float64 `json:"simulation"`
	Reference float64 `json:"experiment"`
}

// ComparisonSink receives the simulated-versus-reference series of a calibrated model
type ComparisonSink interface {
	WriteComparison(ctx context.Context, rows []ComparisonRow) error
}

// ComparisonSinkFunc adapts a function to ComparisonSink
type ComparisonSinkFunc func(ctx context.Context, rows []ComparisonRow) error

// WriteComparison implements ComparisonSink
func (f ComparisonSinkFunc) WriteComparison(ctx context.Context, rows []ComparisonRow) error {
	return f(ctx, rows)
}
