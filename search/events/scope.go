package events

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/cluster"
)

type scopeState int

const (
	scopeOpen scopeState = iota
	scopeFinalized
	scopeDiscarded
)

// Scope collects one template's candidates per detector. A Scope belongs to
// a single worker and is not safe for concurrent use.
type Scope struct {
	acc    *Accumulator
	record TemplateRecord
	sets   map[core.DetectorID][]Candidate
	state  scopeState
}

// Index returns the template index of the scope.
func (s *Scope) Index() int { return s.record.Index }

// SetSigmaSq records the template norm against det's PSD.
func (s *Scope) SetSigmaSq(det core.DetectorID, sigmaSq float64, psdRef string) error {
	if s.state != scopeOpen {
		return fmt.Errorf("%w: template %d", ErrScopeClosed, s.record.Index)
	}
	s.record.SigmaSq[det] = sigmaSq
	s.record.PSDRef[det] = psdRef
	return nil
}

// AddEvents appends a batch of candidates for det. Batches may arrive in any
// order; time indices must be global.
func (s *Scope) AddEvents(det core.DetectorID, cands []Candidate) error {
	if s.state != scopeOpen {
		return fmt.Errorf("%w: template %d", ErrScopeClosed, s.record.Index)
	}
	for _, c := range cands {
		c.Detector = det
		s.sets[det] = append(s.sets[det], c)
	}
	return nil
}

// ClusterSingleDetector sorts det's candidates by time and clusters them
// across segment boundaries with window samples. Candidates sharing a time
// index collapse to the loudest one even when window keeps everything. It
// returns the number of candidates removed.
func (s *Scope) ClusterSingleDetector(det core.DetectorID, window int) (int, error) {
	if s.state != scopeOpen {
		return 0, fmt.Errorf("%w: template %d", ErrScopeClosed, s.record.Index)
	}
	before := len(s.sets[det])
	set := uniqueTimes(sortByTime(s.sets[det]))
	times := make([]int64, len(set))
	mags := make([]float64, len(set))
	for i, c := range set {
		times[i] = c.TimeIndex
		mags[i] = c.Abs()
	}
	keep := cluster.Window(times, mags, int64(window))
	out := make([]Candidate, len(keep))
	for i, k := range keep {
		out[i] = set[k]
	}
	s.sets[det] = out
	return before - len(out), nil
}

// Events returns a copy of det's candidates in their current order.
func (s *Scope) Events(det core.DetectorID) []Candidate {
	return slices.Clone(s.sets[det])
}

// Len returns the number of candidates across all detectors.
func (s *Scope) Len() int {
	n := 0
	for _, set := range s.sets {
		n += len(set)
	}
	return n
}

// Discard drops everything the scope collected. Nothing is committed.
func (s *Scope) Discard() {
	if s.state == scopeOpen {
		s.state = scopeDiscarded
		s.sets = nil
	}
}

func sortByTime(set []Candidate) []Candidate {
	slices.SortStableFunc(set, func(a, b Candidate) int {
		switch {
		case a.TimeIndex < b.TimeIndex:
			return -1
		case a.TimeIndex > b.TimeIndex:
			return 1
		}
		return 0
	})
	return set
}

// uniqueTimes keeps the loudest candidate of each run of equal time indices
// in a sorted set, the earliest on ties.
func uniqueTimes(set []Candidate) []Candidate {
	out := set[:0]
	for _, c := range set {
		if n := len(out); n > 0 && out[n-1].TimeIndex == c.TimeIndex {
			if c.Abs() > out[n-1].Abs() {
				out[n-1] = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
