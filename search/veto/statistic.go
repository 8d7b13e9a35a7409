package veto

import "math"

// Statistic is one chi-squared value with its degrees of freedom.
type Statistic struct {
	Value float64
	DOF   int
	Valid bool
}

// Absent is the value reported by a disabled veto.
func Absent() Statistic {
	return Statistic{Value: math.NaN()}
}

// Reduced returns Value/DOF, or NaN for an absent statistic.
func (s Statistic) Reduced() float64 {
	if !s.Valid || s.DOF <= 0 {
		return math.NaN()
	}
	return s.Value / float64(s.DOF)
}

// Series is random access to a complex SNR time series. Indices wrap around
// Len.
type Series interface {
	Len() int
	At(i int) complex128
}

func absent(n int) []Statistic {
	out := make([]Statistic, n)
	for i := range out {
		out[i] = Absent()
	}
	return out
}
