package events

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/template"
)

var (
	// ErrScopeClosed is returned when a finalised or discarded scope is used.
	ErrScopeClosed = errors.New("events: template scope is closed")
	// ErrForeignScope is returned when a scope is finalised into another
	// accumulator than the one that opened it.
	ErrForeignScope = errors.New("events: scope belongs to another accumulator")
	// ErrDuplicateTemplate is returned when a template index is finalised twice.
	ErrDuplicateTemplate = errors.New("events: template already finalised")
)

// Accumulator owns the global trigger table of one run. Use Reset between
// runs. All methods are safe for concurrent use.
type Accumulator struct {
	mu        sync.Mutex
	triggers  []Trigger
	templates map[int]TemplateRecord
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{templates: make(map[int]TemplateRecord)}
}

// NewTemplate opens a scope for template index.
func (a *Accumulator) NewTemplate(index int, params template.Params) *Scope {
	return &Scope{
		acc: a,
		record: TemplateRecord{
			Index:   index,
			Params:  params,
			SigmaSq: make(map[core.DetectorID]float64),
			PSDRef:  make(map[core.DetectorID]string),
		},
		sets: make(map[core.DetectorID][]Candidate),
	}
}

// FinalizeTemplate freezes s and merges its candidates into the table.
func (a *Accumulator) FinalizeTemplate(s *Scope) error {
	if s.acc != a {
		return ErrForeignScope
	}
	if s.state != scopeOpen {
		return fmt.Errorf("%w: template %d", ErrScopeClosed, s.record.Index)
	}

	dets := slices.Sorted(maps.Keys(s.sets))
	batch := make([]Trigger, 0, s.Len())
	for _, det := range dets {
		for _, c := range uniqueTimes(sortByTime(s.sets[det])) {
			batch = append(batch, Trigger{Template: s.record.Index, Candidate: c})
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.templates[s.record.Index]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateTemplate, s.record.Index)
	}
	a.templates[s.record.Index] = s.record.clone()
	a.triggers = append(a.triggers, batch...)

	s.state = scopeFinalized
	s.sets = nil
	return nil
}

// Reset empties the accumulator for the next run.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggers = nil
	a.templates = make(map[int]TemplateRecord)
}

// Len returns the number of triggers in the table.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.triggers)
}

// Triggers returns a copy of the table ordered by template, detector and
// time index.
func (a *Accumulator) Triggers() []Trigger {
	a.mu.Lock()
	out := slices.Clone(a.triggers)
	a.mu.Unlock()

	slices.SortStableFunc(out, func(x, y Trigger) int {
		if x.Template != y.Template {
			return x.Template - y.Template
		}
		if x.Detector != y.Detector {
			return int(x.Detector) - int(y.Detector)
		}
		switch {
		case x.TimeIndex < y.TimeIndex:
			return -1
		case x.TimeIndex > y.TimeIndex:
			return 1
		}
		return 0
	})
	return out
}

// Templates returns the finalised template records ordered by index.
func (a *Accumulator) Templates() []TemplateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TemplateRecord, 0, len(a.templates))
	for _, idx := range slices.Sorted(maps.Keys(a.templates)) {
		out = append(out, a.templates[idx].clone())
	}
	return out
}

// ThresholdChisq removes triggers whose power chisq exceeds
// threshold * (1 + (snr/delta)^2) * numBins and returns how many it removed.
// numBins <= 0 disables the cut; delta <= 0 drops the SNR term. Triggers
// without a power chisq are kept.
func (a *Accumulator) ThresholdChisq(threshold float64, numBins int, delta float64) int {
	if numBins <= 0 {
		return 0
	}
	return a.removeIf(func(t Trigger) bool {
		if !t.Chisq.Valid {
			return false
		}
		limit := threshold * float64(numBins)
		if delta > 0 {
			r := t.Abs() / delta
			limit *= 1 + r*r
		}
		return t.Chisq.Value > limit
	})
}

// ThresholdNewSNR removes triggers whose re-weighted SNR is below threshold
// and returns how many it removed.
func (a *Accumulator) ThresholdNewSNR(threshold float64) int {
	return a.removeIf(func(t Trigger) bool {
		return t.NewSNR() < threshold
	})
}

func (a *Accumulator) removeIf(drop func(Trigger) bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	before := len(a.triggers)
	a.triggers = slices.DeleteFunc(a.triggers, drop)
	return before - len(a.triggers)
}
