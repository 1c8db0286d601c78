package metrics

import (
	"math"
	"sort"
)

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// Median returns the middle value, averaging the two middles for an even count
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := sortedCopy(values)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// Mean returns the arithmetic mean
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values)), true
}

// Percentile returns the p-th percentile (0-100) by linear interpolation between
// the closest ranks: k = (p/100)(n-1) over the zero-indexed sorted data.
func Percentile(values []float64, p float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := sortedCopy(values)
	k := (p / 100) * float64(n-1)
	if k <= 0 {
		return sorted[0], true
	}
	if k >= float64(n-1) {
		return sorted[n-1], true
	}
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)], true
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f), true
}

// Min and Max of a series
func Min(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return sortedCopy(values)[0], true
}

func Max(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return sortedCopy(values)[len(values)-1], true
}

func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// rounded wraps a (value, ok) statistic as a nullable two-decimal figure
func rounded(value float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	r := round(value, 2)
	return &r
}

func roundPtr(value *float64, places int) *float64 {
	if value == nil {
		return nil
	}
	r := round(*value, places)
	return &r
}
