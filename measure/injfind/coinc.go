package injfind

import (
	"slices"
	"sort"
)

// MeanTimes returns the element-wise mean of two detectors' trigger times.
func MeanTimes(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, ErrLength
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out, nil
}

// PairCoincidences forms the foreground times of a detector pair: the mean
// time of every pair (a_i, b_j) with b_j in [a_i-window, a_i+window). Both
// inputs must be sorted; the result is sorted.
func PairCoincidences(a, b []float64, window float64) ([]float64, error) {
	if !slices.IsSorted(a) || !slices.IsSorted(b) {
		return nil, ErrUnsorted
	}
	if window < 0 {
		return nil, ErrInvalidWindow
	}
	var out []float64
	for _, ta := range a {
		lo := sort.SearchFloat64s(b, ta-window)
		hi := sort.SearchFloat64s(b, ta+window)
		for _, tb := range b[lo:hi] {
			out = append(out, (ta+tb)/2)
		}
	}
	slices.Sort(out)
	return out, nil
}
