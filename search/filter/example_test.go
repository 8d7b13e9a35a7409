package filter_test

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/dsp/signal"
	"github.com/cwbudde/algo-inspiral/search/filter"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

func ExampleEngine_FilterAndCluster() {
	geom := core.Geometry{SampleRate: 512, SegmentLength: 2048, LowFrequency: 30}
	det := core.Detector{ID: 0, Name: "H1"}

	bank, err := template.NewBank(geom, []template.Params{{Mass1: 20, Mass2: 20, PhaseOrder: 4}})
	if err != nil {
		panic(err)
	}
	tmpl := template.New(geom)
	if err := bank.Generate(0, tmpl); err != nil {
		panic(err)
	}

	// Embed the template 700 samples into the segment at an SNR of 12.
	psd := segment.FlatPSD(det, geom, 1)
	amp := 12 / math.Sqrt(template.SigmaSq(tmpl.Data, psd, geom.KMin(), tmpl.KMax))
	data := signal.TimeShift(nil, tmpl.Data, 700*geom.DeltaT(), geom.DeltaF())
	for k := range data {
		data[k] *= complex(amp, 0)
	}
	seg := segment.NewSegment(det, data, 0, 256, 1792)
	if err := segment.New(det, geom, []*segment.Segment{seg}).Overwhiten(psd); err != nil {
		panic(err)
	}

	e, err := filter.New(geom, filter.WithThreshold(6))
	if err != nil {
		panic(err)
	}
	res, err := e.FilterAndCluster(seg, tmpl, 512)
	if err != nil {
		panic(err)
	}
	defer res.Release()
	fmt.Printf("%d %.1f\n", res.Indices[0], cmplx.Abs(res.SNR[0]))
	// Output: 700 12.0
}
