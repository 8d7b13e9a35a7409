// Package testutil holds tolerance helpers and synthetic search fixtures
// shared by the package tests.
package testutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/dsp/signal"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

// Detectors used by the fixtures.
var (
	H1 = core.Detector{ID: 0, Name: "H1"}
	L1 = core.Detector{ID: 1, Name: "L1"}
)

// Geometry is a small run geometry: 4 s segments at 512 Hz from 30 Hz.
func Geometry() core.Geometry {
	return core.Geometry{SampleRate: 512, SegmentLength: 2048, LowFrequency: 30}
}

// HeavyParams returns a 20+20 solar-mass system whose chirp is well under a
// second from 30 Hz, so it fits the fixture segments.
func HeavyParams() template.Params {
	return template.Params{Mass1: 20, Mass2: 20, PhaseOrder: template.MaxPhaseOrder, Approximant: template.TaylorF2}
}

// SignalOptions describes one synthetic segment.
type SignalOptions struct {
	Detector core.Detector
	Params   template.Params
	// At is the segment-relative sample where the SNR peaks.
	At int
	// SNR is the optimal SNR of the embedded signal; 0 gives pure noise.
	SNR float64
	// Offset is the global index of sample 0.
	Offset int64
	// Pad is excluded from both ends of the analysis range.
	Pad int
	// Noise is the per-component standard deviation of white complex noise
	// added to every bin above the cutoff, in units of the signal bins.
	Noise float64
	Seed  int64
}

// Fixture is an overwhitened single-segment spectrum plus its template.
type Fixture struct {
	Geometry core.Geometry
	PSD      *segment.PSD
	Spectrum *segment.Spectrum
	Segment  *segment.Segment
	Template *template.Template
	Bank     *template.Bank
}

// SignalSegment builds a flat-PSD segment carrying the template delayed to
// opts.At and scaled to opts.SNR.
func SignalSegment(tb testing.TB, geom core.Geometry, opts SignalOptions) *Fixture {
	tb.Helper()

	bank, tmpl := generate(tb, geom, opts.Params)
	psd := segment.FlatPSD(opts.Detector, geom, 1)
	seg := segment.NewSegment(opts.Detector, signalData(geom, tmpl, psd, opts), opts.Offset, opts.Pad, geom.SegmentLength-opts.Pad)
	sp := segment.New(opts.Detector, geom, []*segment.Segment{seg})
	if err := sp.Overwhiten(psd); err != nil {
		tb.Fatalf("Overwhiten() error = %v", err)
	}

	return &Fixture{
		Geometry: geom,
		PSD:      psd,
		Spectrum: sp,
		Segment:  seg,
		Template: tmpl,
		Bank:     bank,
	}
}

// RawSegment is SignalSegment without the whitening, for callers that
// assemble and whiten their own spectra against a flat PSD of 1.
func RawSegment(tb testing.TB, geom core.Geometry, opts SignalOptions) *segment.Segment {
	tb.Helper()

	_, tmpl := generate(tb, geom, opts.Params)
	psd := segment.FlatPSD(opts.Detector, geom, 1)
	return segment.NewSegment(opts.Detector, signalData(geom, tmpl, psd, opts), opts.Offset, opts.Pad, geom.SegmentLength-opts.Pad)
}

func generate(tb testing.TB, geom core.Geometry, p template.Params) (*template.Bank, *template.Template) {
	tb.Helper()

	bank, err := template.NewBank(geom, []template.Params{p})
	if err != nil {
		tb.Fatalf("NewBank() error = %v", err)
	}
	tmpl := template.New(geom)
	if err := bank.Generate(0, tmpl); err != nil {
		tb.Fatalf("Generate() error = %v", err)
	}
	return bank, tmpl
}

func signalData(geom core.Geometry, tmpl *template.Template, psd *segment.PSD, opts SignalOptions) []complex128 {
	kmin := geom.KMin()
	sigmaSq := template.SigmaSq(tmpl.Data, psd, kmin, tmpl.KMax)
	amp := 0.0
	if sigmaSq > 0 {
		amp = opts.SNR / math.Sqrt(sigmaSq)
	}

	data := signal.TimeShift(nil, tmpl.Data, float64(opts.At)*geom.DeltaT(), geom.DeltaF())
	for k := range data {
		data[k] *= complex(amp, 0)
	}
	if opts.Noise > 0 {
		rng := rand.New(rand.NewSource(opts.Seed))
		for k := kmin; k < len(data); k++ {
			data[k] += complex(rng.NormFloat64()*opts.Noise, rng.NormFloat64()*opts.Noise)
		}
	}
	return data
}
