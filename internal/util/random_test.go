package util

import (
	"strconv"
	"testing"
)

func TestSeededUnitFloatDeterministic(t *testing.T) {
	keys := []string{"", "req-1", "req-2", "3f2c0b6e-9a8d-4a57-8f0e-1b2c3d4e5f60"}
	for _, key := range keys {
		a := SeededUnitFloat(key)
		b := SeededUnitFloat(key)
		if a != b {
			t.Errorf("SeededUnitFloat(%q) not deterministic: %v vs %v", key, a, b)
		}
		if a < 0 || a >= 1 {
			t.Errorf("SeededUnitFloat(%q) = %v out of [0,1)", key, a)
		}
	}
}

func TestSeededUnitFloatSpreads(t *testing.T) {
	const n = 1000
	below := 0
	for i := 0; i < n; i++ {
		if SeededUnitFloat("request-"+strconv.Itoa(i)) < 0.6 {
			below++
		}
	}
	// Loose bounds; the generator only needs to be roughly uniform.
	if below < 450 || below > 750 {
		t.Errorf("expected roughly 60%% of keys below 0.6, got %d/%d", below, n)
	}
}

func TestSeededChanceBounds(t *testing.T) {
	if SeededChance("anything", 0) {
		t.Error("probability 0 should never fire")
	}
	if !SeededChance("anything", 1) {
		t.Error("probability 1 should always fire")
	}
}

func TestShardFor(t *testing.T) {
	for _, key := range []string{"u1", "u2", "user-with-long-id"} {
		s := ShardFor(key, 8)
		if s < 0 || s >= 8 {
			t.Errorf("ShardFor(%q, 8) = %d out of range", key, s)
		}
		if s != ShardFor(key, 8) {
			t.Errorf("ShardFor(%q) not stable", key)
		}
	}
	if ShardFor("u1", 1) != 0 || ShardFor("u1", 0) != 0 {
		t.Error("single shard should always be 0")
	}
}
