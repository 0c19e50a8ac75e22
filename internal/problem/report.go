package problem

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// RunStatus maps a driver status onto the API run status
func RunStatus(s calibration.Status) models.RunStatus {
	switch s {
	case calibration.StatusConverged:
		return models.RunStatusConverged
	case calibration.StatusMaxIterations:
		return models.RunStatusMaxIterations
	case calibration.StatusFailed:
		return models.RunStatusFailed
	case calibration.StatusIterating:
		return models.RunStatusRunning
	default:
		return models.RunStatusPending
	}
}

// RunResult converts a driver result to its API form
func RunResult(res *calibration.Result) *models.RunResult {
	if res == nil {
		return nil
	}
	return &models.RunResult{
		BestValue:     res.BestValue,
		BestVariables: utils.CopyFloat64s(res.Best),
		Heights:       utils.CopyFloat64s(res.BestParams.Heights),
		Stiffnesses:   utils.CopyFloat64s(res.BestParams.Stiffnesses),
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		Converged:     res.Converged,
		Reason:        res.Reason,
		ElapsedMs:     float64(res.Elapsed) / float64(time.Millisecond),
	}
}

// ProgressPoint converts a progress record to its API form
func ProgressPoint(rec calibration.ProgressRecord) models.ProgressPoint {
	return models.ProgressPoint{
		Iteration:      rec.Iteration,
		BestValue:      rec.BestValue,
		BestVariables:  utils.CopyFloat64s(rec.BestVariables),
		PopulationBest: rec.PopulationBest,
		PopulationMean: rec.PopulationMean,
		PopulationStd:  rec.PopulationStd,
		Failures:       rec.Failures,
		Sigma:          rec.Sigma,
		Evaluations:    rec.Evaluations,
		ElapsedMs:      float64(rec.Elapsed) / float64(time.Millisecond),
	}
}

// ComparisonPoints converts comparison rows to their API form
func ComparisonPoints(rows []calibration.ComparisonRow) []models.ComparisonPoint {
	out := make([]models.ComparisonPoint, len(rows))
	for i, r := range rows {
		out[i] = models.ComparisonPoint{Time: r.Time, Simulation: r.Simulated, Experiment: r.Reference}
	}
	return out
}

// WriteSummary prints the objective, the optimal variables and the runtime of a run
func WriteSummary(w io.Writer, res *calibration.Result, truth *calibration.PhysicalParams) {
	fmt.Fprintf(w, "objective: %.10g\n", res.BestValue)
	fmt.Fprintf(w, "status: %s (%d iterations, %d evaluations)\n", res.Status, res.Iterations, res.Evaluations)
	if res.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", res.Reason)
	}
	fmt.Fprintf(w, "variables: %s\n", formatVector(res.Best))
	fmt.Fprintf(w, "heights (m): %s\n", formatVector(res.BestParams.Heights))
	fmt.Fprintf(w, "stiffnesses: %s\n", formatVector(res.BestParams.Stiffnesses))
	if truth != nil {
		fmt.Fprintf(w, "truth heights (m): %s\n", formatVector(truth.Heights))
		fmt.Fprintf(w, "truth stiffnesses: %s\n", formatVector(truth.Stiffnesses))
	}
	fmt.Fprintf(w, "runtime: %s\n", res.Elapsed.Round(time.Millisecond))
}

// WriteAsymmetry prints the step time asymmetry of the reference trial
func WriteAsymmetry(w io.Writer, a *models.StepTimeAsymmetry) {
	if a == nil {
		return
	}
	fmt.Fprintf(w, "step times (s): left %.4g, right %.4g\n", a.LeftStepTime, a.RightStepTime)
	fmt.Fprintf(w, "step time asymmetry: %.4g (target %.4g, error %.4g)\n", a.Asymmetry, a.Target, a.Error)
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6g", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
