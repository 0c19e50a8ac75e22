package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
)

// ProgressLog appends one CSV row per iteration: counters, objective statistics and the
// best variables so far. Rows are flushed as they are written so the log can be tailed.
type ProgressLog struct {
	mu      sync.Mutex
	w       *csv.Writer
	closer  io.Closer
	wrote   bool
	lastErr error
}

// NewProgressLog writes progress rows to w
func NewProgressLog(w io.Writer) *ProgressLog {
	return &ProgressLog{w: csv.NewWriter(w)}
}

// CreateProgressLog creates (or truncates) path and returns a log writing to it
func CreateProgressLog(path string) (*ProgressLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create progress directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress log: %w", err)
	}
	l := NewProgressLog(f)
	l.closer = f
	return l, nil
}

// Record writes rec. It matches calibration.ProgressFunc; write errors are kept and
// reported by Err and Close.
func (l *ProgressLog) Record(rec calibration.ProgressRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastErr != nil {
		return
	}
	if !l.wrote {
		header := []string{"iteration", "evaluations", "elapsed_s", "best_objective",
			"population_best", "population_mean", "population_std", "failures", "sigma"}
		for i := range rec.BestVariables {
			header = append(header, fmt.Sprintf("x%d", i))
		}
		if err := l.w.Write(header); err != nil {
			l.lastErr = err
			return
		}
		l.wrote = true
	}
	row := []string{
		strconv.Itoa(rec.Iteration),
		strconv.FormatInt(rec.Evaluations, 10),
		fmt.Sprintf("%.6f", rec.Elapsed.Seconds()),
		formatFloat(rec.BestValue),
		formatFloat(rec.PopulationBest),
		formatFloat(rec.PopulationMean),
		formatFloat(rec.PopulationStd),
		strconv.Itoa(rec.Failures),
		formatFloat(rec.Sigma),
	}
	for _, v := range rec.BestVariables {
		row = append(row, formatFloat(v))
	}
	if err := l.w.Write(row); err != nil {
		l.lastErr = err
		return
	}
	l.w.Flush()
	l.lastErr = l.w.Error()
}

// Err returns the first write error
func (l *ProgressLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Close flushes and closes the underlying file when the log owns it
func (l *ProgressLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	err := l.lastErr
	if err == nil {
		err = l.w.Error()
	}
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
		l.closer = nil
	}
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
