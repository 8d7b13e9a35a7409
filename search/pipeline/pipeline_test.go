package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/internal/config"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
	"github.com/cwbudde/algo-inspiral/internal/testutil"
	"github.com/cwbudde/algo-inspiral/search/events"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

const pad = 64

func testConfig() *config.Config {
	geom := testutil.Geometry()
	cfg := config.New()
	cfg.SampleRate = geom.SampleRate
	cfg.SegmentLength = geom.SegmentLength
	cfg.LowFrequency = geom.LowFrequency
	cfg.SegmentPad = pad
	cfg.ClusterWindow = 512
	cfg.Workers = 2
	return cfg
}

func testBank(t *testing.T, params ...template.Params) *template.Bank {
	t.Helper()
	bank, err := template.NewBank(testutil.Geometry(), params)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}
	return bank
}

// spectrum builds one detector's spectrum with one segment per signal.
func spectrum(t *testing.T, det core.Detector, signals ...testutil.SignalOptions) (*segment.Spectrum, *segment.PSD) {
	t.Helper()
	geom := testutil.Geometry()
	segs := make([]*segment.Segment, len(signals))
	for i, opts := range signals {
		opts.Detector = det
		opts.Pad = pad
		if opts.Params.Mass1 == 0 {
			opts.Params = testutil.HeavyParams()
		}
		segs[i] = testutil.RawSegment(t, geom, opts)
	}
	return segment.New(det, geom, segs), segment.FlatPSD(det, geom, 1)
}

func newTestMetrics() (*metrics.Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.NewManager(metrics.WithPrometheusRegistry(reg)), reg
}

// counter sums the samples of the named family whose label matches value.
func counter(reg *prometheus.Registry, name, label, value string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if matched {
				sum += m.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func triggersOf(acc *events.Accumulator, tmpl int) []events.Trigger {
	var out []events.Trigger
	for _, tr := range acc.Triggers() {
		if tr.Template == tmpl {
			out = append(out, tr)
		}
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	Convey("Given a single-detector run with one loud signal", t, func() {
		cfg := testConfig()
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		m, reg := newTestMetrics()
		p, err := New(cfg, testBank(t, testutil.HeavyParams()), []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		Convey("Run should return one trigger at the signal time", func() {
			acc, err := p.Run(context.Background())
			So(err, ShouldBeNil)
			So(acc, ShouldEqual, p.Accumulator())

			trs := acc.Triggers()
			So(trs, ShouldHaveLength, 1)
			So(trs[0].Template, ShouldEqual, 0)
			So(trs[0].Detector, ShouldEqual, testutil.H1.ID)
			So(trs[0].TimeIndex, ShouldBeBetweenOrEqual, 699, 701)
			So(trs[0].Abs(), ShouldAlmostEqual, 12, 0.1)

			Convey("And the power chisq should be computed and small", func() {
				So(trs[0].Chisq.Valid, ShouldBeTrue)
				So(trs[0].Chisq.DOF, ShouldEqual, 2*cfg.ChisqBins-2)
				So(trs[0].Chisq.Value, ShouldBeLessThan, 1e-3)
				So(trs[0].BankChisq.Valid, ShouldBeFalse)
				So(trs[0].AutoChisq.Valid, ShouldBeFalse)
			})

			Convey("And the template record should carry the detector norm", func() {
				recs := acc.Templates()
				So(recs, ShouldHaveLength, 1)
				So(recs[0].SigmaSq[testutil.H1.ID], ShouldBeGreaterThan, 0)
				So(recs[0].PSDRef[testutil.H1.ID], ShouldEqual, psd.Ref)
			})

			Convey("And metrics should count the template and segment", func() {
				So(counter(reg, "inspiral_search_templates_processed_total", "", ""), ShouldEqual, 1.0)
				So(counter(reg, "inspiral_search_segments_filtered_total", "detector", "H1"), ShouldEqual, 1.0)
			})

			Convey("And the spectrum should have been whitened", func() {
				So(sp.PSD(), ShouldEqual, psd)
			})
		})
	})
}

func TestPipelineDetectorsAndSegments(t *testing.T) {
	Convey("Given two detectors and two segments per detector", t, func() {
		cfg := testConfig()
		cfg.ChisqBins = 0
		cfg.ClusterWindow = 1024
		h1, h1psd := spectrum(t, testutil.H1,
			testutil.SignalOptions{At: 700, SNR: 12},
			testutil.SignalOptions{At: 600, SNR: 8, Offset: 512},
		)
		l1, l1psd := spectrum(t, testutil.L1,
			testutil.SignalOptions{At: 900, SNR: 9},
			testutil.SignalOptions{At: 900, SNR: 10, Offset: 4096},
		)
		m, reg := newTestMetrics()
		p, err := New(cfg, testBank(t, testutil.HeavyParams()),
			[]*segment.Spectrum{h1, l1}, []*segment.PSD{h1psd, l1psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		acc, err := p.Run(context.Background())
		So(err, ShouldBeNil)
		trs := acc.Triggers()

		Convey("Cross-segment clustering should keep the louder H1 peak only", func() {
			var h1Trs, l1Trs []events.Trigger
			for _, tr := range trs {
				switch tr.Detector {
				case testutil.H1.ID:
					h1Trs = append(h1Trs, tr)
				case testutil.L1.ID:
					l1Trs = append(l1Trs, tr)
				}
			}
			So(h1Trs, ShouldHaveLength, 1)
			So(h1Trs[0].TimeIndex, ShouldBeBetweenOrEqual, 699, 701)

			Convey("While distant L1 peaks both survive", func() {
				So(l1Trs, ShouldHaveLength, 2)
				So(l1Trs[0].TimeIndex, ShouldBeBetweenOrEqual, 899, 901)
				So(l1Trs[1].TimeIndex, ShouldBeBetweenOrEqual, 4995, 4997)
			})
		})

		Convey("Clustering removals should be counted", func() {
			So(counter(reg, "inspiral_search_candidates_clustered_total", "detector", "H1"), ShouldBeGreaterThan, 0)
		})
	})
}

func TestPipelineWorkers(t *testing.T) {
	Convey("Given a bank larger than the worker count", t, func() {
		params := make([]template.Params, 6)
		for i := range params {
			params[i] = testutil.HeavyParams()
			params[i].Mass1 = 18 + float64(i)
		}
		cfg := testConfig()
		cfg.Workers = 3
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})

		m, _ := newTestMetrics()
		p, err := New(cfg, testBank(t, params...), []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		acc, err := p.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("Every template should be finalised exactly once", func() {
			recs := acc.Templates()
			So(recs, ShouldHaveLength, len(params))
			for i, rec := range recs {
				So(rec.Index, ShouldEqual, i)
				So(rec.Params, ShouldResemble, params[i])
			}
		})

		Convey("The exact template should find the signal", func() {
			exact := triggersOf(acc, 2)
			So(exact, ShouldNotBeEmpty)
			found := false
			for _, tr := range exact {
				if tr.TimeIndex >= 699 && tr.TimeIndex <= 701 {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}

func TestPipelineCuts(t *testing.T) {
	Convey("Given a newsnr threshold above the signal SNR", t, func() {
		cfg := testConfig()
		cfg.NewSNRThreshold = 20
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		m, reg := newTestMetrics()
		p, err := New(cfg, testBank(t, testutil.HeavyParams()), []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		acc, err := p.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("The trigger should be cut and counted", func() {
			So(acc.Len(), ShouldEqual, 0)
			So(acc.Templates(), ShouldHaveLength, 1)
			So(counter(reg, "inspiral_search_triggers_cut_total", "cut", metrics.CutNewSNR), ShouldEqual, 1.0)
			So(counter(reg, "inspiral_search_triggers_cut_total", "cut", metrics.CutChisq), ShouldEqual, 0.0)
		})
	})
}

func TestPipelineVetoes(t *testing.T) {
	Convey("Given the bank veto and autochisq enabled", t, func() {
		params := []template.Params{testutil.HeavyParams(), testutil.HeavyParams()}
		params[1].Mass1 = 25
		cfg := testConfig()
		cfg.BankVetoTemplates = 2
		cfg.AutochiPoints = 4
		cfg.AutochiStride = 2
		cfg.ChisqThreshold = 0
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		m, _ := newTestMetrics()
		p, err := New(cfg, testBank(t, params...), []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		acc, err := p.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("Every trigger should carry all three statistics", func() {
			trs := triggersOf(acc, 0)
			So(trs, ShouldHaveLength, 1)
			So(trs[0].Chisq.Valid, ShouldBeTrue)
			So(trs[0].BankChisq.Valid, ShouldBeTrue)
			So(trs[0].BankChisq.DOF, ShouldEqual, 4)
			So(trs[0].AutoChisq.Valid, ShouldBeTrue)
			So(trs[0].AutoChisq.DOF, ShouldEqual, 16)
			So(trs[0].AutoChisq.Value, ShouldBeLessThan, 1e-3)
		})
	})
}

func TestPipelineFailure(t *testing.T) {
	Convey("Given a bank whose second template cannot be generated", t, func() {
		errBroken := errors.New("broken generator")
		broken := template.GeneratorFunc(func(template.Params, core.Geometry, *template.Template) error {
			return errBroken
		})
		params := []template.Params{testutil.HeavyParams(), testutil.HeavyParams(), testutil.HeavyParams()}
		params[1].Approximant = "Broken"
		bank, err := template.NewBank(testutil.Geometry(), params, template.WithGenerator("Broken", broken))
		So(err, ShouldBeNil)

		cfg := testConfig()
		cfg.Workers = 1
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		m, reg := newTestMetrics()
		p, err := New(cfg, bank, []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		acc, err := p.Run(context.Background())

		Convey("Run should abort with the generator error", func() {
			So(errors.Is(err, errBroken), ShouldBeTrue)
			So(counter(reg, "inspiral_search_templates_failed_total", "", ""), ShouldEqual, 1.0)
		})

		Convey("Templates finalised before the failure should remain", func() {
			recs := acc.Templates()
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Index, ShouldEqual, 0)
			So(triggersOf(acc, 0), ShouldHaveLength, 1)
		})
	})

	Convey("Given a cancelled context", t, func() {
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		m, _ := newTestMetrics()
		p, err := New(testConfig(), testBank(t, testutil.HeavyParams()), []*segment.Spectrum{sp}, []*segment.PSD{psd},
			WithMetrics(m), WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		acc, err := p.Run(ctx)

		Convey("Run should stop without finalising anything", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(acc.Templates(), ShouldBeEmpty)
		})
	})
}

func TestNewValidation(t *testing.T) {
	Convey("Given invalid run inputs", t, func() {
		sp, psd := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
		bank := testBank(t, testutil.HeavyParams())
		spectra := []*segment.Spectrum{sp}
		psds := []*segment.PSD{psd}

		Convey("A nil bank should be rejected", func() {
			_, err := New(testConfig(), nil, spectra, psds)
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("An invalid configuration should be rejected", func() {
			cfg := testConfig()
			cfg.Workers = 0
			_, err := New(cfg, bank, spectra, psds)
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("A missing PSD should be rejected", func() {
			_, err := New(testConfig(), bank, spectra, nil)
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("A PSD of another detector should be rejected", func() {
			other := segment.FlatPSD(testutil.L1, testutil.Geometry(), 1)
			_, err := New(testConfig(), bank, spectra, []*segment.PSD{other})
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("A geometry mismatch should be rejected", func() {
			cfg := testConfig()
			cfg.SampleRate = 1024
			_, err := New(cfg, bank, spectra, psds)
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("Duplicate detectors should be rejected", func() {
			again, againPSD := spectrum(t, testutil.H1, testutil.SignalOptions{At: 700, SNR: 12})
			_, err := New(testConfig(), bank, []*segment.Spectrum{sp, again}, []*segment.PSD{psd, againPSD})
			So(errors.Is(err, core.ErrConfiguration), ShouldBeTrue)
		})

		Convey("Nothing should have been whitened", func() {
			So(sp.PSD(), ShouldBeNil)
		})
	})
}
