package calibration

import "math"

// SearchStrategy proposes populations of normalized parameter vectors and adapts its
// search distribution from their ranked objective values.
type SearchStrategy interface {
	// Ask returns the next population. Every vector lies inside the box bounds.
	Ask() [][]float64
	// Tell reports the objective of each vector from the last Ask, in the same order.
	Tell(values []float64) error
	// Mean is the centre of the current search distribution
	Mean() []float64
	// Sigma is the current global step size
	Sigma() float64
	// PopulationSize is the number of vectors returned by Ask
	PopulationSize() int
}

// DefaultPopulationSize is the usual CMA-ES population 4 + floor(3 ln n)
func DefaultPopulationSize(dim int) int {
	if dim <= 0 {
		return 4
	}
	return 4 + int(3*math.Log(float64(dim)))
}
