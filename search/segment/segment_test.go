package segment

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

var h1 = core.Detector{ID: 0, Name: "H1"}

func testGeometry() core.Geometry {
	return core.Geometry{SampleRate: 256, SegmentLength: 256, LowFrequency: 10}
}

func TestFromTimeSeriesTiling(t *testing.T) {
	geom := testGeometry()
	strain := make([]float64, 1024)
	sp, err := FromTimeSeries(h1, strain, geom, WithPads(32, 32), WithEpoch(1000))
	if err != nil {
		t.Fatalf("FromTimeSeries() error = %v", err)
	}
	// stride 192: starts at 0, 192, 384, 576, 768
	if len(sp.Segments) != 5 {
		t.Fatalf("segments = %d, want 5", len(sp.Segments))
	}
	for i, seg := range sp.Segments {
		if len(seg.Data) != geom.FreqLen() {
			t.Fatalf("segment %d has %d bins", i, len(seg.Data))
		}
		if seg.Offset != 1000+int64(i*192) {
			t.Fatalf("segment %d offset = %d", i, seg.Offset)
		}
		if i > 0 {
			prev := sp.Segments[i-1]
			if prev.GlobalIndex(prev.AnalyzeEnd) != seg.GlobalIndex(seg.AnalyzeStart) {
				t.Fatalf("analysis ranges of segments %d and %d do not abut", i-1, i)
			}
		}
	}
}

func TestFromTimeSeriesTransformScale(t *testing.T) {
	geom := testGeometry()
	strain := make([]float64, 256)
	for i := range strain {
		strain[i] = 1
	}
	sp, err := FromTimeSeries(h1, strain, geom, WithPads(0, 0))
	if err != nil {
		t.Fatalf("FromTimeSeries() error = %v", err)
	}
	// DC bin of a unit series is N * dt = duration.
	got := sp.Segments[0].Data[0]
	if math.Abs(real(got)-geom.Duration()) > 1e-9 || math.Abs(imag(got)) > 1e-9 {
		t.Fatalf("DC bin = %v, want %v", got, geom.Duration())
	}
}

func TestFromTimeSeriesErrors(t *testing.T) {
	geom := testGeometry()
	if _, err := FromTimeSeries(h1, make([]float64, 10), geom); !errors.Is(err, core.ErrDataShape) {
		t.Fatalf("short strain error = %v, want ErrDataShape", err)
	}
	if _, err := FromTimeSeries(h1, make([]float64, 512), geom, WithPads(128, 128)); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("oversized pads error = %v, want ErrConfiguration", err)
	}
}

func TestOverwhitenOnce(t *testing.T) {
	geom := testGeometry()
	data := make([]complex128, geom.FreqLen())
	for k := range data {
		data[k] = 4 + 2i
	}
	sp := New(h1, geom, []*Segment{NewSegment(h1, data, 0, 0, geom.SegmentLength)})
	psd := FlatPSD(h1, geom, 2)

	if err := sp.Overwhiten(psd); err != nil {
		t.Fatalf("Overwhiten() error = %v", err)
	}
	if err := sp.Overwhiten(psd); err != nil {
		t.Fatalf("second Overwhiten() error = %v", err)
	}
	seg := sp.Segments[0]
	kmin := geom.KMin()
	if seg.Data[kmin-1] != 0 {
		t.Fatalf("bin below cutoff = %v, want 0", seg.Data[kmin-1])
	}
	if cmplx.Abs(seg.Data[kmin]-(2+1i)) > 1e-12 {
		t.Fatalf("whitened bin = %v, want 2+1i", seg.Data[kmin])
	}
	if !seg.Whitened() || seg.PSD() != psd {
		t.Fatal("segment not marked whitened")
	}

	other := FlatPSD(h1, geom, 3)
	if err := sp.Overwhiten(other); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("rewhiten with other psd = %v, want ErrConfiguration", err)
	}
}

func TestOverwhitenRejectsShortPSD(t *testing.T) {
	geom := testGeometry()
	sp := New(h1, geom, nil)
	psd := &PSD{Detector: h1, DeltaF: geom.DeltaF(), Values: make([]float64, 3)}
	if err := sp.Overwhiten(psd); !errors.Is(err, core.ErrDataShape) {
		t.Fatalf("Overwhiten() = %v, want ErrDataShape", err)
	}
}

func TestValidateRun(t *testing.T) {
	geom := testGeometry()
	l1 := core.Detector{ID: 1, Name: "L1"}
	a := New(h1, geom, nil)
	b := New(l1, geom, nil)
	if err := ValidateRun([]*Spectrum{a, b}); err != nil {
		t.Fatalf("ValidateRun() error = %v", err)
	}

	other := geom
	other.SampleRate = 512
	other.SegmentLength = 512
	c := New(l1, other, nil)
	if err := ValidateRun([]*Spectrum{a, c}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("mismatched rate = %v, want ErrConfiguration", err)
	}
	if err := ValidateRun([]*Spectrum{a, New(h1, geom, nil)}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("duplicate detector = %v, want ErrConfiguration", err)
	}
	if err := ValidateRun(nil); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("no detectors = %v, want ErrConfiguration", err)
	}
}

func TestFromTimeSeriesTaper(t *testing.T) {
	geom := testGeometry()
	strain := make([]float64, 512)
	for i := range strain {
		strain[i] = 1
	}
	plain, err := FromTimeSeries(h1, strain, geom, WithPads(32, 32))
	if err != nil {
		t.Fatalf("FromTimeSeries() error = %v", err)
	}
	tapered, err := FromTimeSeries(h1, strain, geom, WithPads(32, 32), WithTaper(64))
	if err != nil {
		t.Fatalf("FromTimeSeries(taper) error = %v", err)
	}
	if strain[0] != 1 {
		t.Fatal("taper modified the caller's strain")
	}
	// A constant input only has a DC bin; the taper lowers it.
	if real(tapered.Segments[0].Data[0]) >= real(plain.Segments[0].Data[0]) {
		t.Fatalf("tapered DC %v not below plain %v", tapered.Segments[0].Data[0], plain.Segments[0].Data[0])
	}

	if _, err := FromTimeSeries(h1, strain, geom, WithTaper(300)); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("oversized taper: got %v, want ErrConfiguration", err)
	}
}
