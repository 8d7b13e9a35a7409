// Package cluster implements the time-window clustering rule shared by the
// in-segment pass of the filter engine and the cross-segment pass of the
// event accumulator.
//
// A sample survives when no other sample closer than window (|dt| < window)
// outranks it. Samples rank by magnitude, ties going to the earlier index.
// Because widening the window only adds competitors, the survivor set shrinks
// monotonically with the window, and re-clustering a survivor set with the
// same window removes nothing.
package cluster

// Window returns the positions, ascending, of the samples that survive
// clustering. times must be sorted ascending and parallel to mags. A window
// of 0 or 1 keeps every sample.
func Window(times []int64, mags []float64, window int64) []int {
	keep := make([]int, 0, len(times))
	if window <= 1 {
		for i := range times {
			keep = append(keep, i)
		}
		return keep
	}

	for i := range times {
		if survives(times, mags, window, i) {
			keep = append(keep, i)
		}
	}
	return keep
}

func survives(times []int64, mags []float64, window int64, i int) bool {
	for j := i - 1; j >= 0 && times[i]-times[j] < window; j-- {
		if outranks(times, mags, j, i) {
			return false
		}
	}
	for j := i + 1; j < len(times) && times[j]-times[i] < window; j++ {
		if outranks(times, mags, j, i) {
			return false
		}
	}
	return true
}

// outranks reports whether sample j beats sample i.
func outranks(times []int64, mags []float64, j, i int) bool {
	if mags[j] != mags[i] {
		return mags[j] > mags[i]
	}
	if times[j] != times[i] {
		return times[j] < times[i]
	}
	return j < i
}
