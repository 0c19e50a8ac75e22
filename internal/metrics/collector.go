// Package metrics turns calibration progress into named per-iteration series and
// summarizes them for reports and the daemon API.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

// Series names recorded by ObserveProgress
const (
	SeriesBestObjective  = "best_objective"
	SeriesPopulationBest = "population_best"
	SeriesPopulationMean = "population_mean"
	SeriesPopulationStd  = "population_std"
	SeriesSigma          = "sigma"
	SeriesFailures       = "failures"
	SeriesEvalRate       = "evaluations_per_second"
)

// Collector collects per-iteration series during a calibration run
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	series map[string][]float64

	lastEvaluations int64
	lastElapsed     time.Duration

	// cached aggregations, dropped on every write
	aggregations map[string]*models.Aggregation

	asymmetry *models.StepTimeAsymmetry
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:    time.Now(),
		series:       make(map[string][]float64),
		aggregations: make(map[string]*models.Aggregation),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record appends a value to the named series
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(name, value)
}

func (c *Collector) recordLocked(name string, value float64) {
	c.series[name] = append(c.series[name], value)
	delete(c.aggregations, name)
}

// ObserveProgress records one iteration. It has the calibration.ProgressFunc shape.
// Population statistics are skipped for iterations in which every candidate failed.
func (c *Collector) ObserveProgress(rec calibration.ProgressRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recordLocked(SeriesBestObjective, rec.BestValue)
	c.recordLocked(SeriesSigma, rec.Sigma)
	c.recordLocked(SeriesFailures, float64(rec.Failures))
	if rec.Failures < rec.PopulationSize || rec.PopulationSize == 0 {
		c.recordLocked(SeriesPopulationBest, rec.PopulationBest)
		c.recordLocked(SeriesPopulationMean, rec.PopulationMean)
		c.recordLocked(SeriesPopulationStd, rec.PopulationStd)
	}

	dt := rec.Elapsed - c.lastElapsed
	if dn := rec.Evaluations - c.lastEvaluations; dt > 0 && dn > 0 {
		c.recordLocked(SeriesEvalRate, float64(dn)/dt.Seconds())
	}
	c.lastEvaluations = rec.Evaluations
	c.lastElapsed = rec.Elapsed
}

// Series returns a copy of the named series
func (c *Collector) Series(name string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := c.series[name]
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// GetAggregation calculates and returns aggregated statistics for a series
func (c *Collector) GetAggregation(name string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return calculateAggregation(c.series[name])
}

// GetOrComputeAggregation gets a cached aggregation or computes it
func (c *Collector) GetOrComputeAggregation(name string) *models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if agg, ok := c.aggregations[name]; ok {
		return agg
	}
	agg := calculateAggregation(c.series[name])
	if agg != nil {
		c.aggregations[name] = agg
	}
	return agg
}

// GetSummary returns a summary of all collected series
func (c *Collector) GetSummary() *models.MetricsSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &models.MetricsSummary{
		StartTime:    c.startTime,
		EndTime:      end,
		Duration:     end.Sub(c.startTime),
		Metrics:      make(map[string][]float64, len(c.series)),
		Aggregations: make(map[string]*models.Aggregation, len(c.series)),
	}
	for name, values := range c.series {
		summary.Metrics[name] = append([]float64(nil), values...)
		if agg := calculateAggregation(values); agg != nil {
			summary.Aggregations[name] = agg
		}
	}
	return summary
}

// GetMetricNames returns the recorded series names in sorted order
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops all collected series
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string][]float64)
	c.aggregations = make(map[string]*models.Aggregation)
	c.lastEvaluations = 0
	c.lastElapsed = 0
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// calculateAggregation summarizes the finite values of a series. Returns nil when none
// are finite.
func calculateAggregation(values []float64) *models.Aggregation {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil
	}
	sort.Float64s(finite)

	agg := &models.Aggregation{
		Count: int64(len(finite)),
		Sum:   floats.Sum(finite),
		Min:   finite[0],
		Max:   finite[len(finite)-1],
		P50:   stat.Quantile(0.50, stat.Empirical, finite, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, finite, nil),
	}
	if len(finite) > 1 {
		agg.Mean, agg.Std = stat.MeanStdDev(finite, nil)
	} else {
		agg.Mean = finite[0]
	}
	return agg
}

// Improvement returns the relative reduction of the best objective from the first to the
// last recorded iteration, in [0, 1]. Zero when fewer than two iterations were recorded.
func (c *Collector) Improvement() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	best := c.series[SeriesBestObjective]
	if len(best) < 2 || best[0] == 0 {
		return 0
	}
	return (best[0] - best[len(best)-1]) / math.Abs(best[0])
}
