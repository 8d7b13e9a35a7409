package template

import (
	"fmt"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/segment"
)

// Template is a frequency-domain waveform with its parameters.
type Template struct {
	Index  int
	Params Params
	// Data is the one-sided waveform, length N/2+1.
	Data []complex128
	// KMax is the exclusive upper bin with support, at most len(Data).
	KMax int

	sigmaSq map[core.DetectorID]float64
}

// New allocates an empty template buffer for geom.
func New(geom core.Geometry) *Template {
	return &Template{Data: make([]complex128, geom.FreqLen())}
}

// Check verifies the waveform length against the run geometry.
func (t *Template) Check(geom core.Geometry) error {
	if len(t.Data) != geom.FreqLen() {
		return fmt.Errorf("%w: template %d has %d bins, want %d", core.ErrDataShape, t.Index, len(t.Data), geom.FreqLen())
	}
	if t.KMax < 0 || t.KMax > len(t.Data) {
		return fmt.Errorf("%w: template %d kmax %d outside [0, %d]", core.ErrDataShape, t.Index, t.KMax, len(t.Data))
	}
	return nil
}

// SigmaSq returns 4*df*sum(|h|^2/psd) over [kmin, KMax), cached per detector.
func (t *Template) SigmaSq(psd *segment.PSD, kmin int) float64 {
	if v, ok := t.sigmaSq[psd.Detector.ID]; ok {
		return v
	}
	v := SigmaSq(t.Data, psd, kmin, t.KMax)
	if t.sigmaSq == nil {
		t.sigmaSq = make(map[core.DetectorID]float64)
	}
	t.sigmaSq[psd.Detector.ID] = v
	return v
}

// CachedSigmaSq returns the cached value for det without computing it.
func (t *Template) CachedSigmaSq(det core.DetectorID) (float64, bool) {
	v, ok := t.sigmaSq[det]
	return v, ok
}

func (t *Template) resetCache() {
	for k := range t.sigmaSq {
		delete(t.sigmaSq, k)
	}
}

// SigmaSq computes 4*df*sum(|h_k|^2/psd_k) for k in [kmin, kmax).
func SigmaSq(htilde []complex128, psd *segment.PSD, kmin, kmax int) float64 {
	w := PowerWeights(nil, htilde, psd, kmin, kmax)
	var sum float64
	for _, v := range w {
		sum += v
	}
	return 4 * psd.DeltaF * sum
}

// PowerWeights writes |h_k|^2/psd_k for k in [kmin, kmax) into dst, which is
// indexed from kmin. A nil or short dst is reallocated.
func PowerWeights(dst []float64, htilde []complex128, psd *segment.PSD, kmin, kmax int) []float64 {
	if kmax > len(htilde) {
		kmax = len(htilde)
	}
	if kmin >= kmax {
		return dst[:0]
	}
	n := kmax - kmin
	dst = core.EnsureLen(dst, n)
	re := make([]float64, n)
	im := make([]float64, n)
	core.SplitComplex(re, im, htilde[kmin:kmax])
	vecmath.Power(dst, re, im)
	for i := range dst {
		p := psd.Values[kmin+i]
		if p > 0 {
			dst[i] /= p
		} else {
			dst[i] = 0
		}
	}
	return dst
}
