package injfind

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
)

// Errors returned by the classifier.
var (
	ErrUnsorted      = errors.New("injfind: trigger times are not sorted")
	ErrInvalidWindow = errors.New("injfind: window must be finite and >= 0")
	ErrLength        = errors.New("injfind: time arrays differ in length")
)

// Injection is one simulated signal of the catalog.
type Injection struct {
	// Time is the geocentric end time in seconds.
	Time     float64
	Mass1    float64
	Mass2    float64
	Spin1z   float64
	Spin2z   float64
	Distance float64
}

// Options configures Classify.
type Options struct {
	// Window is the half width W of the match window [t-W, t+W).
	Window float64
	// Analyzed restricts the found and missed sets. Nil means every
	// injection was analysed.
	Analyzed SegmentList
	// Vetoes holds the vetoed intervals per detector label.
	Vetoes map[string]SegmentList
	// Logger receives ambiguity warnings; nil uses the global logger.
	Logger logger.Logger
	// Metrics counts outcomes; nil disables counting.
	Metrics *metrics.Manager
}

// AmbiguousMatch is the warning raised when more than one trigger falls in
// an injection's window. Triggers [First, Last) of the sorted trigger array
// matched.
type AmbiguousMatch struct {
	Injection int
	Time      float64
	First     int
	Last      int
}

func (a AmbiguousMatch) String() string {
	return fmt.Sprintf("injection %d at %.6f matched triggers [%d, %d)", a.Injection, a.Time, a.First, a.Last)
}

// Columns copies the injection parameters for downstream plotting.
type Columns struct {
	Time     []float64
	Mass1    []float64
	Mass2    []float64
	Spin1z   []float64
	Spin2z   []float64
	Distance []float64
}

// Report is the injection-scoring table. Index sets are ascending indices
// into the injection slice given to Classify.
type Report struct {
	FoundAll  []int
	MissedAll []int
	// Ambiguous is also contained in MissedAll.
	Ambiguous []int

	FoundAnalyzed  []int
	MissedAnalyzed []int

	FoundAfterVetoes  []int
	MissedAfterVetoes []int

	Warnings []AmbiguousMatch
	Columns  Columns
}

// Classify matches injections against sorted trigger times. It stops with
// ctx's error when ctx is cancelled between injections.
func Classify(ctx context.Context, triggerTimes []float64, injections []Injection, opts Options) (*Report, error) {
	if !slices.IsSorted(triggerTimes) {
		return nil, ErrUnsorted
	}
	if opts.Window < 0 || math.IsNaN(opts.Window) || math.IsInf(opts.Window, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, opts.Window)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("injfind")
	}

	rep := &Report{Columns: columns(injections)}
	found := make([]bool, len(injections))
	for i, inj := range injections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo := sort.SearchFloat64s(triggerTimes, inj.Time-opts.Window)
		hi := sort.SearchFloat64s(triggerTimes, inj.Time+opts.Window)
		switch hi - lo {
		case 0:
			rep.MissedAll = append(rep.MissedAll, i)
		case 1:
			found[i] = true
			rep.FoundAll = append(rep.FoundAll, i)
		default:
			w := AmbiguousMatch{Injection: i, Time: inj.Time, First: lo, Last: hi}
			rep.Warnings = append(rep.Warnings, w)
			rep.Ambiguous = append(rep.Ambiguous, i)
			rep.MissedAll = append(rep.MissedAll, i)
			log.Warn(ctx, "ambiguous injection match",
				logger.Int("injection", i),
				logger.Float64("time", inj.Time),
				logger.Int("first_trigger", lo),
				logger.Int("last_trigger", hi))
		}
	}

	var analyzed SegmentList
	if opts.Analyzed != nil {
		analyzed = opts.Analyzed.Coalesce()
	}
	vetoes := make([]SegmentList, 0, len(opts.Vetoes))
	for _, det := range slices.Sorted(maps.Keys(opts.Vetoes)) {
		vetoes = append(vetoes, opts.Vetoes[det].Coalesce())
	}

	for i, inj := range injections {
		if analyzed != nil && !analyzed.Contains(inj.Time) {
			continue
		}
		if found[i] {
			rep.FoundAnalyzed = append(rep.FoundAnalyzed, i)
		} else {
			rep.MissedAnalyzed = append(rep.MissedAnalyzed, i)
		}
		if vetoed(vetoes, inj.Time) {
			continue
		}
		if found[i] {
			rep.FoundAfterVetoes = append(rep.FoundAfterVetoes, i)
		} else {
			rep.MissedAfterVetoes = append(rep.MissedAfterVetoes, i)
		}
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordInjections(metrics.ClassFound, len(rep.FoundAll))
		opts.Metrics.RecordInjections(metrics.ClassMissed, len(rep.MissedAll)-len(rep.Ambiguous))
		opts.Metrics.RecordInjections(metrics.ClassAmbiguous, len(rep.Ambiguous))
	}
	return rep, nil
}

func vetoed(lists []SegmentList, t float64) bool {
	for _, l := range lists {
		if l.Contains(t) {
			return true
		}
	}
	return false
}

func columns(injections []Injection) Columns {
	c := Columns{
		Time:     make([]float64, len(injections)),
		Mass1:    make([]float64, len(injections)),
		Mass2:    make([]float64, len(injections)),
		Spin1z:   make([]float64, len(injections)),
		Spin2z:   make([]float64, len(injections)),
		Distance: make([]float64, len(injections)),
	}
	for i, inj := range injections {
		c.Time[i] = inj.Time
		c.Mass1[i] = inj.Mass1
		c.Mass2[i] = inj.Mass2
		c.Spin1z[i] = inj.Spin1z
		c.Spin2z[i] = inj.Spin2z
		c.Distance[i] = inj.Distance
	}
	return c
}
