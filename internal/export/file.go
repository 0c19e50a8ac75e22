// Package export persists calibration output: the simulated versus measured force
// comparison, per-iteration progress and run records.
package export

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/dataio"
)

// ComparisonTableName is the name written into .sto comparison headers
const ComparisonTableName = "contact_comparison"

// Comparison column labels
const (
	ColumnSimulation = "simulation"
	ColumnExperiment = "experiment"
)

// ComparisonTable converts comparison rows into a time, simulation, experiment table
func ComparisonTable(rows []calibration.ComparisonRow) *dataio.Table {
	table := dataio.NewTable(ComparisonTableName, dataio.TimeColumn, ColumnSimulation, ColumnExperiment)
	for _, r := range rows {
		table.Rows = append(table.Rows, []float64{r.Time, r.Simulated, r.Reference})
	}
	return table
}

// FileSink writes the comparison table to Path. The extension selects the format:
// .sto and .mot produce an OpenSim storage file, .csv a comma separated file.
type FileSink struct {
	Path string
}

// NewFileSink creates a file sink
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// WriteComparison implements calibration.ComparisonSink
func (s *FileSink) WriteComparison(ctx context.Context, rows []calibration.ComparisonRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dataio.WriteTable(s.Path, ComparisonTable(rows)); err != nil {
		return fmt.Errorf("failed to write comparison to %s: %w", s.Path, err)
	}
	return nil
}
