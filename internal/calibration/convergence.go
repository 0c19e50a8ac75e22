package calibration

import (
	"fmt"
	"math"
)

// ConvergenceStrategy decides from the progress history whether the search has converged
type ConvergenceStrategy interface {
	// CheckConvergence returns true and a reason once the history shows convergence
	CheckConvergence(history []ProgressRecord) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// ConvergenceConfig holds thresholds for convergence detection
type ConvergenceConfig struct {
	// Tolerance is the best-objective improvement below which an iteration counts as stalled
	Tolerance float64
	// StallIterations is the number of consecutive stalled iterations that means convergence
	StallIterations int
	// MinIterations is the minimum number of iterations before convergence can be detected
	MinIterations int
	// SpreadTolerance bounds the relative population spread for the spread strategy
	SpreadTolerance float64
}

// MinStallWindow is the smallest stall window DefaultStallWindow selects
const MinStallWindow = 50

// DefaultStallWindow sizes the stall window from the problem: 10 + ceil(30·dim/lambda)
// iterations, the history length CMA-ES uses for its flat-fitness stop, and never fewer
// than MinStallWindow. lambda <= 0 selects DefaultPopulationSize(dim).
func DefaultStallWindow(dim, lambda int) int {
	if lambda <= 0 {
		lambda = DefaultPopulationSize(dim)
	}
	window := 10 + int(math.Ceil(30*float64(dim)/float64(lambda)))
	return max(window, MinStallWindow)
}

// DefaultConvergenceConfig returns the tolerance and stall window of the gait calibration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		Tolerance:       1e-3,
		StallIterations: MinStallWindow,
		MinIterations:   2,
		SpreadTolerance: 1e-6,
	}
}

// StallStrategy converges once the best objective improved by less than Tolerance for
// StallIterations consecutive iterations.
type StallStrategy struct {
	config *ConvergenceConfig
}

// NewStallStrategy creates a stall strategy
func NewStallStrategy(config *ConvergenceConfig) *StallStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &StallStrategy{config: config}
}

func (s *StallStrategy) Name() string {
	return "stall"
}

func (s *StallStrategy) CheckConvergence(history []ProgressRecord) (bool, string) {
	window := s.config.StallIterations
	if window <= 0 || len(history) < s.config.MinIterations || len(history) < window+1 {
		return false, ""
	}
	recent := history[len(history)-window-1:]
	for i := 1; i < len(recent); i++ {
		if recent[i-1].BestValue-recent[i].BestValue >= s.config.Tolerance {
			return false, ""
		}
	}
	total := recent[0].BestValue - recent[len(recent)-1].BestValue
	return true, fmt.Sprintf("best objective improved by %.3g over the last %d iterations (tolerance %g per iteration)",
		total, window, s.config.Tolerance)
}

// PlateauStrategy converges when the best objective has not moved at all over the stall
// window.
type PlateauStrategy struct {
	config *ConvergenceConfig
}

// NewPlateauStrategy creates a plateau strategy
func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []ProgressRecord) (bool, string) {
	window := s.config.StallIterations
	if window <= 0 || len(history) < s.config.MinIterations || len(history) < window {
		return false, ""
	}
	recent := history[len(history)-window:]
	first := recent[0].BestValue
	for _, r := range recent[1:] {
		if r.BestValue != first {
			return false, ""
		}
	}
	return true, fmt.Sprintf("best objective unchanged at %g for %d iterations", first, window)
}

// SpreadStrategy converges when the population objectives collapse onto the best value,
// measured relative to the best objective.
type SpreadStrategy struct {
	config *ConvergenceConfig
}

// NewSpreadStrategy creates a population-spread strategy
func NewSpreadStrategy(config *ConvergenceConfig) *SpreadStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &SpreadStrategy{config: config}
}

func (s *SpreadStrategy) Name() string {
	return "spread"
}

func (s *SpreadStrategy) CheckConvergence(history []ProgressRecord) (bool, string) {
	if len(history) < s.config.MinIterations || len(history) == 0 {
		return false, ""
	}
	last := history[len(history)-1]
	if last.PopulationSize < 2 || last.Failures > 0 {
		return false, ""
	}
	scale := math.Max(math.Abs(last.BestValue), 1e-12)
	if rel := last.PopulationStd / scale; rel < s.config.SpreadTolerance {
		return true, fmt.Sprintf("population spread collapsed (relative stddev %.3g)", rel)
	}
	return false, ""
}

// CombinedStrategy converges when any of its strategies does, reporting the first one
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewConvergenceStrategy selects a strategy by name: "stall" (default) or "combined"
func NewConvergenceStrategy(name string, config *ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "", "stall":
		return NewStallStrategy(config), nil
	case "plateau":
		return NewPlateauStrategy(config), nil
	case "spread":
		return NewSpreadStrategy(config), nil
	case "combined":
		return NewCombinedStrategy(config), nil
	default:
		return nil, &ConfigurationError{Field: "optimizer.convergence", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
}

// NewCombinedStrategy combines stall, plateau and spread detection
func NewCombinedStrategy(config *ConvergenceConfig) *CombinedStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	s := &CombinedStrategy{}
	s.AddStrategy(NewStallStrategy(config))
	s.AddStrategy(NewPlateauStrategy(config))
	s.AddStrategy(NewSpreadStrategy(config))
	return s
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(history []ProgressRecord) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(history); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// AddStrategy appends a strategy. Strategies are checked in the order they were added.
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}
