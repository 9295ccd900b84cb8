package compute

import (
	"math"
	"sort"
)

// Arcminute thresholds reported alongside the elevation RMS, in degrees.
const (
	sixArcmin    = 6.0 / 60
	thirtyArcmin = 30.0 / 60
)

// Median returns the median of xs, or NaN when xs is empty. xs is not
// modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Mean returns the arithmetic mean of xs, or NaN when xs is empty.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Sum returns the sum of xs.
func Sum(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum
}

// ElevationStats summarises how far core antennas sit from the median
// elevation.
type ElevationStats struct {
	// N is the number of samples used.
	N int
	// Median elevation in degrees.
	Median float64
	// RMS of |el - median| in degrees.
	RMS float64
	// Frac6 and Frac30 are the fractions of samples more than 6 and 30
	// arcminutes from the median.
	Frac6  float64
	Frac30 float64
}

// Elevation computes ElevationStats over the samples whose antenna number is
// below coreLimit. nums and els are parallel slices. N is zero when no core
// samples exist.
func Elevation(nums, els []float64, coreLimit int) ElevationStats {
	core := make([]float64, 0, len(els))
	for i, el := range els {
		if i < len(nums) && nums[i] < float64(coreLimit) {
			core = append(core, el)
		}
	}
	if len(core) == 0 {
		return ElevationStats{}
	}

	med := Median(core)
	var sq float64
	var n6, n30 int
	for _, el := range core {
		d := math.Abs(el - med)
		sq += d * d
		if d > sixArcmin {
			n6++
		}
		if d > thirtyArcmin {
			n30++
		}
	}
	n := float64(len(core))
	return ElevationStats{
		N:      len(core),
		Median: med,
		RMS:    math.Sqrt(sq / n),
		Frac6:  float64(n6) / n,
		Frac30: float64(n30) / n,
	}
}
