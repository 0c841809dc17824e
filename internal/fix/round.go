// Package fix implements the DPU fixed-point requantization pipeline:
// shift, nonlinear approximation, rounding and clamping.
//
// All arithmetic is done in float64. Accumulators of 8- and 16-bit
// products stay far below 2^53, and every scale factor is a power of two
// or a small dyadic rational, so the float64 results are exact.
package fix

import (
	"fmt"
	"math"
)

// RoundMode selects the tie-breaking rule of the rounder.
type RoundMode int

const (
	// RoundDPU rounds halves toward +inf: x - floor(x) >= 0.5 takes the
	// ceiling. This is the hardware rounder.
	RoundDPU RoundMode = iota
	// RoundStd rounds halves away from zero.
	RoundStd
	// RoundPy3 rounds halves to even.
	RoundPy3
)

var roundNames = map[RoundMode]string{
	RoundDPU: "DPU_ROUND",
	RoundStd: "STD_ROUND",
	RoundPy3: "PY3_ROUND",
}

func (m RoundMode) String() string {
	if s, ok := roundNames[m]; ok {
		return s
	}
	return fmt.Sprintf("RoundMode(%d)", int(m))
}

// ParseRoundMode accepts DPU_ROUND, STD_ROUND or PY3_ROUND.
func ParseRoundMode(s string) (RoundMode, error) {
	for m, name := range roundNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown round mode %q", s)
}

// Round rounds x to an integer using m.
func (m RoundMode) Round(x float64) float64 {
	switch m {
	case RoundStd:
		return math.Round(x)
	case RoundPy3:
		return math.RoundToEven(x)
	default:
		if x-math.Floor(x) >= 0.5 {
			return math.Ceil(x)
		}
		return math.Floor(x)
	}
}

// Range is the representable output interval.
type Range struct {
	Min, Max float64
}

// RangeFor returns the range of an integer of the given width.
func RangeFor(bits int, signed bool) Range {
	if signed {
		return Range{
			Min: -math.Ldexp(1, bits-1),
			Max: math.Ldexp(1, bits-1) - 1,
		}
	}
	return Range{Min: 0, Max: math.Ldexp(1, bits) - 1}
}

// Int8Range is the range of a signed 8-bit value.
var Int8Range = RangeFor(8, true)

// Clamp limits x to [r.Min, r.Max].
func (r Range) Clamp(x float64) float64 {
	return math.Min(r.Max, math.Max(r.Min, x))
}

// RoundClamp rounds x and then clamps it. Clamping never precedes rounding.
func RoundClamp(m RoundMode, r Range, x float64) float64 {
	return r.Clamp(m.Round(x))
}
