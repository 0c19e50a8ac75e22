package contact

import (
	"math"
	"testing"
)

func TestBallForceLinearLaw(t *testing.T) {
	m, err := NewBallModel(DefaultBallConfig())
	if err != nil {
		t.Fatalf("NewBallModel: %v", err)
	}
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Realize(State{Q: []float64{-0.02}, U: []float64{0}}); err != nil {
		t.Fatalf("Realize: %v", err)
	}
	want := 3180*0.02 + 0.02
	if got := VerticalForce(m); math.Abs(got-want) > 1e-12 {
		t.Fatalf("force = %v, want %v", got, want)
	}
}

func TestBallSynthesizeBounces(t *testing.T) {
	m, err := NewBallModel(DefaultBallConfig())
	if err != nil {
		t.Fatalf("NewBallModel: %v", err)
	}
	truth := Params{Heights: []float64{0}, Stiffnesses: []float64{3180}}
	syn, err := Synthesize(m, truth, SynthesisOptions{Duration: 1.25, Samples: 126})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	peak := 0.0
	for _, f := range syn.Force {
		peak = math.Max(peak, f)
	}
	if peak < 50*9.81 {
		t.Fatalf("expected contact force to exceed body weight during impact, peak %v", peak)
	}
}

func TestBallCloneResetsInitialization(t *testing.T) {
	m, _ := NewBallModel(DefaultBallConfig())
	_ = m.Initialize()
	c, _ := m.Clone()
	if err := c.Realize(State{Q: []float64{0}, U: []float64{0}}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized on fresh clone, got %v", err)
	}
}

func TestNewBallModelValidation(t *testing.T) {
	if _, err := NewBallModel(BallConfig{MassKg: 0, Gravity: -9.81}); err == nil {
		t.Fatal("expected mass error")
	}
	if _, err := NewBallModel(BallConfig{MassKg: 1, Gravity: 0}); err == nil {
		t.Fatal("expected gravity error")
	}
}
