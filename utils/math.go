// Package utils contains small numeric, error and goroutine helpers shared by every motionkit package.
package utils

import (
	"math"
	"math/rand"
)

// Epsilon is the default tolerance used when comparing floats.
const Epsilon = 1e-8

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// Clamp returns v limited to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Square returns n*n. Math.pow( x, 2 ) is slow, this is faster.
func Square(n float64) float64 {
	return n * n
}

// SampleRandomFloatRange returns a uniformly distributed float in [lo, hi).
func SampleRandomFloatRange(lo, hi float64, r *rand.Rand) float64 {
	return lo + r.Float64()*(hi-lo)
}
