package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator. It is not safe for concurrent use;
// the search strategy owns one and only touches it from the driving goroutine.
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed selects a time-based seed, which makes the run non-reproducible.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with
func (r *RandSource) Seed() int64 {
	return r.seed
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// StandardNormals fills dst with independent N(0,1) samples and returns it.
func (r *RandSource) StandardNormals(dst []float64) []float64 {
	for i := range dst {
		dst[i] = r.rng.NormFloat64()
	}
	return dst
}
