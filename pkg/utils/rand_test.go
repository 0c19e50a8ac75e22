package utils

import (
	"math"
	"testing"
)

func TestNewRandSourceSeed(t *testing.T) {
	rng := NewRandSource(12345)
	if rng.Seed() != 12345 {
		t.Fatalf("expected seed 12345, got %d", rng.Seed())
	}
	if NewRandSource(0).Seed() == 0 {
		t.Fatal("zero seed should be replaced by a time-based seed")
	}
}

func TestRandSourceDeterministic(t *testing.T) {
	a := NewRandSource(7)
	b := NewRandSource(7)
	for i := 0; i < 50; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("sequences diverged at %d", i)
		}
	}
}

func TestRandSourceFloat64Range(t *testing.T) {
	rng := NewRandSource(12345)
	for i := 0; i < 100; i++ {
		val := rng.Float64()
		if val < 0 || val >= 1.0 {
			t.Errorf("Float64() returned value outside [0, 1): %f", val)
		}
	}
}

func TestStandardNormals(t *testing.T) {
	rng := NewRandSource(99)
	samples := rng.StandardNormals(make([]float64, 20000))

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))

	if math.Abs(mean) > 0.05 {
		t.Errorf("mean too far from 0: %f", mean)
	}
	if math.Abs(variance-1) > 0.05 {
		t.Errorf("variance too far from 1: %f", variance)
	}
}
