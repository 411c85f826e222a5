// Package util provides utility functions for the OracleRouter application.
package util

import (
	"hash/fnv"
	"math/rand/v2"
)

// SeedFromKey derives a stable 64-bit seed from an arbitrary key such as a request id.
func SeedFromKey(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// NewSeededRand returns a PCG generator seeded from the key.
// The same key always yields the same sequence.
func NewSeededRand(key string) *rand.Rand {
	seed := SeedFromKey(key)
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SeededUnitFloat returns a deterministic value in [0,1) for the key.
func SeededUnitFloat(key string) float64 {
	return NewSeededRand(key).Float64()
}

// SeededChance reports whether the key falls within the given probability.
// Probabilities <= 0 never fire and >= 1 always fire.
func SeededChance(key string, probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return SeededUnitFloat(key) < probability
}

// ShardFor maps a key onto one of n shards. n must be positive.
func ShardFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(SeedFromKey(key) % uint64(n))
}
