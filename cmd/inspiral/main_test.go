package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/cwbudde/algo-inspiral/internal/config"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
	"github.com/cwbudde/algo-inspiral/internal/storage"
	"github.com/cwbudde/algo-inspiral/measure/injfind"
)

func smallConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.SampleRate = 512
	cfg.SegmentLength = 2048
	cfg.LowFrequency = 30
	cfg.SegmentPad = 256
	cfg.ClusterWindow = 256
	cfg.Workers = 2
	cfg.DatabasePath = filepath.Join(t.TempDir(), "runs", "inspiral.db")
	return cfg
}

func TestBankParams(t *testing.T) {
	convey.Convey("Given the demo mass grid", t, func() {
		d := defaultDemo()
		params := d.bankParams()

		convey.Convey("Then every m1 >= m2 pair should appear once", func() {
			n := len(d.Masses)
			convey.So(params, convey.ShouldHaveLength, n*(n+1)/2)
			for _, p := range params {
				convey.So(p.Mass1, convey.ShouldBeGreaterThanOrEqualTo, p.Mass2)
			}
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a small synthetic run with three loud injections", t, func() {
		cfg := smallConfig(t)
		d := defaultDemo()
		d.Injections = 3
		d.SNR = 15
		d.Masses = []float64{20, 25}
		m := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))

		out, err := run(context.Background(), cfg, d, m)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then every injection should be found in coincidence", func() {
			convey.So(out.Templates, convey.ShouldEqual, 3)
			convey.So(out.Report.FoundAll, convey.ShouldResemble, []int{0, 1, 2})
			convey.So(out.Report.Ambiguous, convey.ShouldBeEmpty)
			convey.So(out.Report.FoundAnalyzed, convey.ShouldResemble, []int{0, 1, 2})
			convey.So(len(out.Foreground), convey.ShouldBeGreaterThanOrEqualTo, 3)
		})

		convey.Convey("And the last injection should be removed by the L1 veto", func() {
			convey.So(out.Report.FoundAfterVetoes, convey.ShouldResemble, []int{0, 1})
			convey.So(out.Report.MissedAfterVetoes, convey.ShouldBeEmpty)
		})

		convey.Convey("And the run should be stored", func() {
			db, err := storage.Open(cfg.DatabasePath)
			convey.So(err, convey.ShouldBeNil)
			defer db.Close()

			run, err := db.LoadRun(out.RunID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(run.Triggers, convey.ShouldEqual, out.Triggers)

			trs, err := db.LoadTriggers(out.RunID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(trs, convey.ShouldHaveLength, out.Triggers)

			scores, err := db.LoadInjectionScores(out.RunID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(scores, convey.ShouldHaveLength, 3)
			for _, s := range scores {
				convey.So(s.Found, convey.ShouldBeTrue)
				convey.So(s.FoundAfterVetoes, convey.ShouldEqual, s.InjectionIndex < 2)
			}
		})
	})
}

func TestVetoes(t *testing.T) {
	convey.Convey("Given three injections and two vetoed", t, func() {
		d := defaultDemo()
		d.Vetoed = 2
		injs := []injfind.Injection{{Time: 1}, {Time: 2}, {Time: 3}}
		v := d.vetoes(injs)

		convey.Convey("Then L1 covers the last two and H1 nothing", func() {
			convey.So(v["H1"], convey.ShouldBeEmpty)
			convey.So(v["L1"], convey.ShouldHaveLength, 2)
			convey.So(v["L1"].Contains(1), convey.ShouldBeFalse)
			convey.So(v["L1"].Contains(2), convey.ShouldBeTrue)
			convey.So(v["L1"].Contains(3), convey.ShouldBeTrue)
		})

		convey.Convey("Then asking for more vetoes than injections covers them all", func() {
			d.Vetoed = 5
			convey.So(d.vetoes(injs)["L1"], convey.ShouldHaveLength, 3)
		})
	})
}

func TestDetectorTimes(t *testing.T) {
	convey.Convey("Given nothing to cluster", t, func() {
		convey.So(detectorTimes(nil, 0, 10, 0.5), convey.ShouldBeEmpty)
	})
}
