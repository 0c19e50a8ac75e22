package calibration

import (
	"math"
	"testing"
)

func bestHistory(values ...float64) []ProgressRecord {
	h := make([]ProgressRecord, len(values))
	for i, v := range values {
		h[i] = ProgressRecord{Iteration: i + 1, BestValue: v, PopulationSize: 8, PopulationStd: 1}
	}
	return h
}

func TestStallStrategy(t *testing.T) {
	strategy := NewStallStrategy(&ConvergenceConfig{Tolerance: 0.01, StallIterations: 3, MinIterations: 2})

	converged, reason := strategy.CheckConvergence(bestHistory(10, 5, 4.999, 4.995, 4.994))
	if !converged {
		t.Fatalf("expected convergence after three stalled iterations")
	}
	if reason == "" {
		t.Fatalf("expected convergence reason")
	}

	converged, _ = strategy.CheckConvergence(bestHistory(10, 5, 4.999, 4.5, 4.499))
	if converged {
		t.Fatalf("an improvement inside the window should reset the stall")
	}

	converged, _ = strategy.CheckConvergence(bestHistory(5, 5, 5))
	if converged {
		t.Fatalf("window of 3 stalled steps needs 4 records")
	}
}

func TestPlateauStrategy(t *testing.T) {
	strategy := NewPlateauStrategy(&ConvergenceConfig{StallIterations: 3, MinIterations: 2})
	if converged, _ := strategy.CheckConvergence(bestHistory(9, 7, 7, 7)); !converged {
		t.Fatalf("expected plateau convergence")
	}
	if converged, _ := strategy.CheckConvergence(bestHistory(9, 7, 7, 6.9999)); converged {
		t.Fatalf("tiny improvement breaks a plateau")
	}
}

func TestSpreadStrategy(t *testing.T) {
	strategy := NewSpreadStrategy(&ConvergenceConfig{MinIterations: 1, SpreadTolerance: 1e-3})

	h := bestHistory(2, 1)
	h[1].PopulationStd = 1e-6
	if converged, _ := strategy.CheckConvergence(h); !converged {
		t.Fatalf("expected spread convergence")
	}

	h[1].PopulationSize = 1
	if converged, _ := strategy.CheckConvergence(h); converged {
		t.Fatalf("a single candidate has no spread")
	}

	h[1].PopulationSize = 8
	h[1].Failures = 1
	if converged, _ := strategy.CheckConvergence(h); converged {
		t.Fatalf("populations with failures should not count as collapsed")
	}
}

func TestCombinedStrategy(t *testing.T) {
	cfg := &ConvergenceConfig{Tolerance: 1e-9, StallIterations: 3, MinIterations: 2, SpreadTolerance: 1e-12}
	strategy := NewCombinedStrategy(cfg)

	converged, reason := strategy.CheckConvergence(bestHistory(3, 2, 2, 2, 2))
	if !converged {
		t.Fatalf("expected combined convergence")
	}
	if reason[:5] != "stall" {
		t.Fatalf("expected stall to fire first, got %q", reason)
	}

	if converged, _ := strategy.CheckConvergence(bestHistory(3, 2, 1)); converged {
		t.Fatalf("did not expect convergence")
	}
}

func TestNewConvergenceStrategy(t *testing.T) {
	for _, name := range []string{"", "stall", "plateau", "spread", "combined"} {
		if _, err := NewConvergenceStrategy(name, nil); err != nil {
			t.Errorf("NewConvergenceStrategy(%q): %v", name, err)
		}
	}
	if _, err := NewConvergenceStrategy("never", nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestDefaultStallWindow(t *testing.T) {
	tests := []struct {
		dim, lambda, want int
	}{
		{2, 0, MinStallWindow},   // ball: 10 + ceil(60/6) = 20
		{12, 0, MinStallWindow},  // foot: 10 + ceil(360/11) = 43
		{12, 11, MinStallWindow}, // explicit lambda
		{60, 8, 235},             // 10 + ceil(1800/8)
		{40, 0, 10 + int(math.Ceil(1200.0/float64(DefaultPopulationSize(40))))},
	}
	for _, tt := range tests {
		if got := DefaultStallWindow(tt.dim, tt.lambda); got != tt.want {
			t.Errorf("DefaultStallWindow(%d, %d) = %d, want %d", tt.dim, tt.lambda, got, tt.want)
		}
	}
}
