package injfind

import (
	"slices"
	"sort"
)

// Segment is the half-open time interval [Start, End).
type Segment struct {
	Start float64
	End   float64
}

// Contains reports whether t lies in [Start, End).
func (s Segment) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

// SegmentList is a list of intervals. Coalesce it before calling Contains.
type SegmentList []Segment

// Coalesce returns the sorted union of l with overlapping or abutting
// intervals merged and empty intervals dropped. l is not modified.
func (l SegmentList) Coalesce() SegmentList {
	segs := make(SegmentList, 0, len(l))
	for _, s := range l {
		if s.End > s.Start {
			segs = append(segs, s)
		}
	}
	slices.SortFunc(segs, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := segs[:0]
	for _, s := range segs {
		if n := len(out); n > 0 && s.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}

// Contains reports whether t lies in any interval of the coalesced list.
func (l SegmentList) Contains(t float64) bool {
	i := sort.Search(len(l), func(i int) bool { return l[i].End > t })
	return i < len(l) && l[i].Contains(t)
}

// Duration returns the total length of the coalesced list.
func (l SegmentList) Duration() float64 {
	var d float64
	for _, s := range l {
		d += s.End - s.Start
	}
	return d
}
