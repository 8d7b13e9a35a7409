package main

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/dsp/signal"
	"github.com/cwbudde/algo-inspiral/internal/config"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
	"github.com/cwbudde/algo-inspiral/internal/storage"
	"github.com/cwbudde/algo-inspiral/measure/injfind"
	"github.com/cwbudde/algo-inspiral/search/cluster"
	"github.com/cwbudde/algo-inspiral/search/events"
	"github.com/cwbudde/algo-inspiral/search/pipeline"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

const (
	// coincWindow bounds the H1/L1 arrival time difference in seconds.
	coincWindow = 0.02
	// l1Delay is the arrival delay applied to every L1 injection in seconds.
	l1Delay = 0.005
	// vetoHalfWidth is the half width in seconds of a synthetic veto interval.
	vetoHalfWidth = 0.25
)

var detectors = []core.Detector{
	{ID: 0, Name: "H1"},
	{ID: 1, Name: "L1"},
}

// demo describes the synthetic data of one run.
type demo struct {
	// Segments is the number of whole segments of strain per detector.
	Segments   int
	Injections int
	// Vetoed is the number of trailing injections covered by an L1 veto.
	Vetoed int
	SNR    float64
	Seed   int64
	// PSDLevel is the flat one-sided noise PSD.
	PSDLevel float64
	// Masses spans the template bank grid (m1 >= m2).
	Masses []float64
}

func defaultDemo() demo {
	return demo{
		Segments:   3,
		Injections: 4,
		Vetoed:     1,
		SNR:        12,
		Seed:       1,
		PSDLevel:   1,
		Masses:     []float64{10, 15, 20, 25},
	}
}

// outcome summarises a finished run.
type outcome struct {
	RunID      string
	Templates  int
	Triggers   int
	Foreground []float64
	Injections []injfind.Injection
	Report     *injfind.Report
}

func (d demo) bankParams() []template.Params {
	var out []template.Params
	for i, m1 := range d.Masses {
		for _, m2 := range d.Masses[:i+1] {
			out = append(out, template.Params{
				Mass1:       m1,
				Mass2:       m2,
				PhaseOrder:  template.MaxPhaseOrder,
				Approximant: template.TaylorF2,
			})
		}
	}
	return out
}

// run generates noise plus injections in every detector, searches it, stores
// the triggers and scores the injections against the coincident foreground.
func run(ctx context.Context, cfg *config.Config, d demo, m *metrics.Manager) (*outcome, error) {
	log := logger.Named("inspiral")
	geom := cfg.Geometry()
	n := geom.SegmentLength
	stride := n - 2*cfg.SegmentPad
	samples := n + (d.Segments-1)*stride
	dt := geom.DeltaT()

	bank, err := template.NewBank(geom, d.bankParams())
	if err != nil {
		return nil, err
	}

	// Injections are spread evenly over the analysed span.
	lo := int64(cfg.SegmentPad)
	hi := lo + int64(d.Segments*stride)
	injections := make([]injfind.Injection, d.Injections)
	at := make([]int64, d.Injections)
	for i := range injections {
		at[i] = lo + int64(i+1)*(hi-lo)/int64(d.Injections+1)
		p := bank.Params(i % bank.Len())
		injections[i] = injfind.Injection{
			Time:  float64(at[i])*dt + l1Delay/2,
			Mass1: p.Mass1,
			Mass2: p.Mass2,
		}
	}

	spectra := make([]*segment.Spectrum, len(detectors))
	psds := make([]*segment.PSD, len(detectors))
	tmpl := template.New(geom)
	for di, det := range detectors {
		psd := segment.FlatPSD(det, geom, d.PSDLevel)
		psd.Ref = fmt.Sprintf("%s-flat-%g", det.Name, d.PSDLevel)
		psds[di] = psd

		gen := signal.NewGeneratorWithOptions([]core.GeometryOption{
			core.WithSampleRate(geom.SampleRate),
			core.WithSegmentLength(geom.SegmentLength),
			core.WithLowFrequency(geom.LowFrequency),
		}, signal.WithSeed(d.Seed+int64(det.ID)))
		strain, err := gen.GaussianNoise(d.PSDLevel, samples)
		if err != nil {
			return nil, err
		}

		delay := int64(0)
		if det.Name == "L1" {
			delay = int64(math.Round(l1Delay / dt))
		}
		for i := range injections {
			if err := bank.Generate(i%bank.Len(), tmpl); err != nil {
				return nil, err
			}
			sigmaSq := template.SigmaSq(tmpl.Data, psd, geom.KMin(), tmpl.KMax)
			if !(sigmaSq > 0) {
				continue
			}
			if err := gen.Inject(strain, tmpl.Data, at[i]+delay, d.SNR/math.Sqrt(sigmaSq)); err != nil {
				return nil, err
			}
		}

		spectra[di], err = segment.FromTimeSeries(det, strain, geom, segment.WithPads(cfg.SegmentPad, cfg.SegmentPad))
		if err != nil {
			return nil, err
		}
	}

	p, err := pipeline.New(cfg, bank, spectra, psds, pipeline.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	acc, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runID := storage.NewRunID()
	if err := db.SaveRun(runID, storage.RunSummary{
		Geometry:      geom,
		SNRThreshold:  cfg.SNRThreshold,
		ClusterWindow: cfg.ClusterWindow,
		Note:          fmt.Sprintf("synthetic: %d injections at snr %g", d.Injections, d.SNR),
	}); err != nil {
		return nil, err
	}
	if err := db.SaveTriggers(ctx, runID, acc); err != nil {
		return nil, err
	}

	triggers := acc.Triggers()
	h1 := detectorTimes(triggers, detectors[0].ID, int64(cfg.ClusterWindow), dt)
	l1 := detectorTimes(triggers, detectors[1].ID, int64(cfg.ClusterWindow), dt)
	foreground, err := injfind.PairCoincidences(h1, l1, coincWindow)
	if err != nil {
		return nil, err
	}

	analyzed := make(injfind.SegmentList, 0, len(spectra[0].Segments))
	for _, seg := range spectra[0].Segments {
		analyzed = append(analyzed, injfind.Segment{
			Start: float64(seg.GlobalIndex(seg.AnalyzeStart)) * dt,
			End:   float64(seg.GlobalIndex(seg.AnalyzeEnd)) * dt,
		})
	}
	rep, err := injfind.Classify(ctx, foreground, injections, injfind.Options{
		Window:   cfg.InjectionWindow,
		Analyzed: analyzed,
		Vetoes:   d.vetoes(injections),
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}
	if err := db.SaveInjectionReport(ctx, runID, injections, rep); err != nil {
		return nil, err
	}

	log.Info(ctx, "run complete",
		logger.String("run", runID),
		logger.Int("templates", bank.Len()),
		logger.Int("triggers", len(triggers)),
		logger.Int("foreground", len(foreground)),
		logger.Int("found", len(rep.FoundAll)),
		logger.Int("missed", len(rep.MissedAll)),
		logger.Int("ambiguous", len(rep.Ambiguous)),
		logger.Int("found_after_vetoes", len(rep.FoundAfterVetoes)))

	return &outcome{
		RunID:      runID,
		Templates:  bank.Len(),
		Triggers:   len(triggers),
		Foreground: foreground,
		Injections: injections,
		Report:     rep,
	}, nil
}

// vetoes builds one synthetic veto list per detector. L1 vetoes the last
// d.Vetoed injections; H1 vetoes nothing.
func (d demo) vetoes(injections []injfind.Injection) map[string]injfind.SegmentList {
	out := map[string]injfind.SegmentList{
		detectors[0].Name: {},
		detectors[1].Name: {},
	}
	for i := max(len(injections)-d.Vetoed, 0); i < len(injections); i++ {
		t := injections[i].Time
		out[detectors[1].Name] = append(out[detectors[1].Name], injfind.Segment{Start: t - vetoHalfWidth, End: t + vetoHalfWidth})
	}
	return out
}

// detectorTimes clusters det's triggers across the whole bank and returns
// the surviving times in seconds, sorted.
func detectorTimes(trs []events.Trigger, det core.DetectorID, window int64, dt float64) []float64 {
	var set []events.Trigger
	for _, tr := range trs {
		if tr.Detector == det {
			set = append(set, tr)
		}
	}
	slices.SortStableFunc(set, func(a, b events.Trigger) int {
		switch {
		case a.TimeIndex < b.TimeIndex:
			return -1
		case a.TimeIndex > b.TimeIndex:
			return 1
		}
		return 0
	})
	times := make([]int64, len(set))
	mags := make([]float64, len(set))
	for i, tr := range set {
		times[i] = tr.TimeIndex
		mags[i] = tr.Abs()
	}
	keep := cluster.Window(times, mags, window)
	out := make([]float64, len(keep))
	for i, j := range keep {
		out[i] = float64(times[j]) * dt
	}
	slices.Sort(out)
	return out
}
