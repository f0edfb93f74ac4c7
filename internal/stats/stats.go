// Package stats summarizes numeric samples of QoR metrics.
package stats

import (
	"math"
	"sort"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summarize computes the distribution summary of xs. The standard deviation
// is the population one. Percentiles interpolate linearly between the two
// nearest ranks. An empty sample yields NaN everywhere.
func Summarize(xs []float64) hls.Summary {
	if len(xs) == 0 {
		nan := math.NaN()
		return hls.Summary{Mean: nan, StdDev: nan, Median: nan, P25: nan, P75: nan, Min: nan, Max: nan}
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	return hls.Summary{
		Mean:   mean,
		StdDev: std,
		Median: Percentile(sorted, 50),
		P25:    Percentile(sorted, 25),
		P75:    Percentile(sorted, 75),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
}

// Percentile returns the p-th percentile (0..100) of an ascending sample.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
