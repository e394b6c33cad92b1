// Package reduce implements the per-pixel time-series reductions used by the
// climate index engine. Every function consumes one time series and returns a
// single value; NaN marks a missing sample on input and a missing result on
// output. Nothing in this package does I/O or knows about chunking.
package reduce

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// RunMode selects how ConsecutiveRunEventCount treats runs longer than the minimum length
type RunMode string

const (
	// RunCountEveryMultiple counts an event every time the run length reaches a
	// multiple of the minimum length. This is the default.
	RunCountEveryMultiple RunMode = "every_multiple"
	// RunCountOnce counts one event when a run reaches the minimum length; longer runs add nothing
	RunCountOnce RunMode = "once"
)

// DefaultTrusted is the |Z| cutoff for a two-sided test at the 5% level
const DefaultTrusted = 1.96

// HasMissing reports whether any sample is NaN
func HasMissing(series []float64) bool {
	return floats.HasNaN(series)
}

// Max returns the largest sample, or NaN if the series is empty or has a missing sample
func Max(series []float64) float64 {
	if len(series) == 0 || HasMissing(series) {
		return math.NaN()
	}
	return floats.Max(series)
}

// Min returns the smallest sample, or NaN if the series is empty or has a missing sample
func Min(series []float64) float64 {
	if len(series) == 0 || HasMissing(series) {
		return math.NaN()
	}
	return floats.Min(series)
}

// CountAbove counts samples strictly greater than threshold
func CountAbove(series []float64, threshold float64) float64 {
	if HasMissing(series) {
		return math.NaN()
	}
	n := 0
	for _, v := range series {
		if v > threshold {
			n++
		}
	}
	return float64(n)
}

// CountBelow counts samples strictly less than threshold
func CountBelow(series []float64, threshold float64) float64 {
	if HasMissing(series) {
		return math.NaN()
	}
	n := 0
	for _, v := range series {
		if v < threshold {
			n++
		}
	}
	return float64(n)
}

// Percentile returns the p-th percentile (p in [0,100]) of a series without
// missing samples, interpolating linearly between the closest ranks.
func Percentile(series []float64, p float64) float64 {
	if len(series) == 0 || p < 0 || p > 100 || math.IsNaN(p) {
		return math.NaN()
	}
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// PercentileExceedanceCount counts samples strictly above the series' own p-th percentile
func PercentileExceedanceCount(series []float64, p float64) float64 {
	if len(series) == 0 || HasMissing(series) {
		return math.NaN()
	}
	threshold := Percentile(series, p)
	if math.IsNaN(threshold) {
		return math.NaN()
	}
	return CountAbove(series, threshold)
}

// ConsecutiveRunEventCount counts runs of consecutive samples strictly above
// threshold that reach minRunLength. A sample at or below threshold resets the
// run. An empty mode counts every multiple of minRunLength. Any missing sample
// invalidates the whole series.
func ConsecutiveRunEventCount(series []float64, threshold float64, minRunLength int, mode RunMode) float64 {
	if HasMissing(series) {
		return math.NaN()
	}
	if minRunLength < 1 {
		minRunLength = 1
	}

	events, run := 0, 0
	for _, v := range series {
		if v <= threshold {
			run = 0
			continue
		}
		run++
		switch mode {
		case RunCountOnce:
			if run == minRunLength {
				events++
			}
		default:
			if run%minRunLength == 0 {
				events++
			}
		}
	}
	return float64(events)
}

// validSamples returns the non-missing samples in order
func validSamples(series []float64) []float64 {
	valid := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	return valid
}

// SenSlope returns the median of all pairwise slopes (x[j]-x[i])/(j-i), j>i,
// over the non-missing samples. Indices are positions in the compacted series.
func SenSlope(series []float64) float64 {
	return senSlope(validSamples(series))
}

func senSlope(valid []float64) float64 {
	n := len(valid)
	if n < 2 {
		return math.NaN()
	}

	slopes := make(stats.Float64Data, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (valid[j]-valid[i])/float64(j-i))
		}
	}

	median, err := stats.Median(slopes)
	if err != nil {
		return math.NaN()
	}
	return median
}

// MannKendallS returns the sum of sign(x[j]-x[i]) over all pairs i<j of non-missing samples
func MannKendallS(series []float64) int {
	return mannKendallS(validSamples(series))
}

func mannKendallS(valid []float64) int {
	s := 0
	n := len(valid)
	for k := 0; k < n-1; k++ {
		for j := k + 1; j < n; j++ {
			switch {
			case valid[j] > valid[k]:
				s++
			case valid[j] < valid[k]:
				s--
			}
		}
	}
	return s
}

// VarianceS returns the tie-corrected variance of the Mann-Kendall S statistic
// over the non-missing samples; 0 when fewer than 2 samples are present.
func VarianceS(series []float64) float64 {
	return varianceS(validSamples(series))
}

func varianceS(valid []float64) float64 {
	n := len(valid)
	if n < 2 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, valid)
	sort.Float64s(sorted)

	var tieSum float64
	t := 1
	for i := 1; i <= n; i++ {
		if i < n && sorted[i] == sorted[i-1] {
			t++
			continue
		}
		if t > 1 {
			ft := float64(t)
			tieSum += ft * (ft - 1) * (2*ft + 5)
		}
		t = 1
	}

	fn := float64(n)
	return (fn*(fn-1)*(2*fn+5) - tieSum) / 18.0
}

// MannKendallZ converts S and its variance into the continuity-corrected Z score
func MannKendallZ(s int, varS float64) float64 {
	switch {
	case s > 0:
		return float64(s-1) / math.Sqrt(varS)
	case s < 0:
		return float64(s+1) / math.Sqrt(varS)
	default:
		return 0
	}
}

// MannKendallP returns the two-sided p-value of a Z score
func MannKendallP(z float64) float64 {
	if math.IsNaN(z) {
		return math.NaN()
	}
	return 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
}

// TrustedThreshold returns the |Z| cutoff of a two-sided test at significance level alpha
func TrustedThreshold(alpha float64) float64 {
	if alpha <= 0 || alpha >= 1 {
		return DefaultTrusted
	}
	return distuv.UnitNormal.Quantile(1 - alpha/2)
}

// TrendResult holds the per-pixel outcome of a trend test
type TrendResult struct {
	Slope       float64
	Z           float64
	Significant float64
}

// Trend computes Sen's slope, the Mann-Kendall Z score and the slope filtered
// by |Z| >= trusted. All three are NaN when fewer than 2 samples are valid.
func Trend(series []float64, trusted float64) TrendResult {
	valid := validSamples(series)
	if len(valid) < 2 {
		return TrendResult{Slope: math.NaN(), Z: math.NaN(), Significant: math.NaN()}
	}

	slope := senSlope(valid)
	z := MannKendallZ(mannKendallS(valid), varianceS(valid))

	significant := math.NaN()
	if math.Abs(z) >= trusted {
		significant = slope
	}
	return TrendResult{Slope: slope, Z: z, Significant: significant}
}
