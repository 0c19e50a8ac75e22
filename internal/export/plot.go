package export

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
)

var (
	simulationColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	experimentColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotSink renders the simulated and measured vertical force on one chart. The image
// format follows the file extension (png, svg, pdf).
type PlotSink struct {
	Path   string
	Title  string
	Width  vg.Length
	Height vg.Length
}

// NewPlotSink creates a plot sink with a 10x5 inch canvas
func NewPlotSink(path string) *PlotSink {
	return &PlotSink{
		Path:   path,
		Title:  "Vertical ground reaction force",
		Width:  10 * vg.Inch,
		Height: 5 * vg.Inch,
	}
}

// WriteComparison implements calibration.ComparisonSink
func (s *PlotSink) WriteComparison(ctx context.Context, rows []calibration.ComparisonRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no comparison rows to plot")
	}

	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Force (N)"

	simPts := make(plotter.XYs, len(rows))
	expPts := make(plotter.XYs, len(rows))
	for i, r := range rows {
		simPts[i] = plotter.XY{X: r.Time, Y: r.Simulated}
		expPts[i] = plotter.XY{X: r.Time, Y: r.Reference}
	}

	simLine, err := plotter.NewLine(simPts)
	if err != nil {
		return err
	}
	simLine.Color = simulationColor
	simLine.Width = vg.Points(1.5)

	expLine, err := plotter.NewLine(expPts)
	if err != nil {
		return err
	}
	expLine.Color = experimentColor
	expLine.Width = vg.Points(1)
	expLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), simLine, expLine)
	p.Legend.Add(ColumnSimulation, simLine)
	p.Legend.Add(ColumnExperiment, expLine)
	p.Legend.Top = true

	return savePlot(p, s.Width, s.Height, s.Path)
}

// PlotProgress draws the best objective value per iteration
func PlotProgress(path string, records []calibration.ProgressRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("no progress records to plot")
	}
	p := plot.New()
	p.Title.Text = "Calibration progress"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Best objective"

	pts := make(plotter.XYs, len(records))
	for i, r := range records {
		pts[i] = plotter.XY{X: float64(r.Iteration), Y: r.BestValue}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = simulationColor
	line.Width = vg.Points(1)
	p.Add(plotter.NewGrid(), line)

	return savePlot(p, 8*vg.Inch, 4*vg.Inch, path)
}

func savePlot(p *plot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plot directory: %w", err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
