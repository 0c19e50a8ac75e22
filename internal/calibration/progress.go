package calibration

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// ProgressRecord summarizes one completed iteration
type ProgressRecord struct {
	Iteration      int           `json:"iteration"`
	BestValue      float64       `json:"best_objective"`
	BestVariables  []float64     `json:"best_variables"`
	PopulationSize int           `json:"population_size"`
	PopulationBest float64       `json:"population_best"`
	PopulationMean float64       `json:"population_mean"`
	PopulationStd  float64       `json:"population_std"`
	Failures       int           `json:"failures"`
	Sigma          float64       `json:"sigma"`
	Evaluations    int64         `json:"evaluations"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// ProgressFunc receives a record after every iteration. It runs on the driving goroutine.
type ProgressFunc func(ProgressRecord)

// populationStats returns min, mean and standard deviation of the values that are not
// failure penalties. ok is false when every value is a penalty.
func populationStats(values []float64) (best, mean, std float64, ok bool) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if v != penalty {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return penalty, 0, 0, false
	}
	best = valid[0]
	for _, v := range valid[1:] {
		if v < best {
			best = v
		}
	}
	if len(valid) == 1 {
		return best, valid[0], 0, true
	}
	mean, std = stat.MeanStdDev(valid, nil)
	return best, mean, std, true
}
