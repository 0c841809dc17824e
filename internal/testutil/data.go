// Package testutil holds deterministic helpers shared by tests.
package testutil

import "math/rand"

// Rand returns a generator seeded with seed. Tests that need random data
// use a fixed seed so failures reproduce.
func Rand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Int8s returns n values drawn uniformly from the full int8 range.
func Int8s(r *rand.Rand, n int) []int8 {
	out := make([]int8, n)
	for i := range out {
		out[i] = int8(r.Intn(256) - 128)
	}
	return out
}

// Int8sIn returns n values drawn uniformly from [lo, hi].
func Int8sIn(r *rand.Rand, n int, lo, hi int8) []int8 {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := int(hi) - int(lo) + 1
	out := make([]int8, n)
	for i := range out {
		out[i] = int8(int(lo) + r.Intn(span))
	}
	return out
}

// Int16s returns n values drawn uniformly from the full int16 range.
func Int16s(r *rand.Rand, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(r.Intn(1<<16) - 1<<15)
	}
	return out
}
