package segment

import (
	"fmt"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// PSD is a one-sided noise power spectral density sampled at DeltaF.
type PSD struct {
	Detector core.Detector
	// Ref identifies the estimate in output tables, e.g. a file name or epoch.
	Ref    string
	DeltaF float64
	Values []float64
}

// FlatPSD returns a white PSD of the given level for geom.
func FlatPSD(det core.Detector, geom core.Geometry, level float64) *PSD {
	return AnalyticPSD(det, geom, func(float64) float64 { return level })
}

// AnalyticPSD evaluates fn at every frequency bin of geom. Bins below the
// low-frequency cutoff are copied from the first bin above it, so that no
// value is zero.
func AnalyticPSD(det core.Detector, geom core.Geometry, fn func(f float64) float64) *PSD {
	n := geom.FreqLen()
	df := geom.DeltaF()
	kmin := geom.KMin()
	vals := make([]float64, n)
	for k := range vals {
		f := float64(k) * df
		if k < kmin {
			f = float64(kmin) * df
		}
		vals[k] = fn(f)
	}
	return &PSD{Detector: det, Ref: "analytic", DeltaF: df, Values: vals}
}

// Check verifies that the PSD matches geom.
func (p *PSD) Check(geom core.Geometry) error {
	if p == nil {
		return fmt.Errorf("%w: missing psd", core.ErrDataShape)
	}
	if len(p.Values) != geom.FreqLen() {
		return fmt.Errorf("%w: psd %s has %d bins, want %d", core.ErrDataShape, p.Detector, len(p.Values), geom.FreqLen())
	}
	if !core.NearlyEqual(p.DeltaF, geom.DeltaF(), 1e-9) {
		return fmt.Errorf("%w: psd %s delta-f %v, run delta-f %v", core.ErrConfiguration, p.Detector, p.DeltaF, geom.DeltaF())
	}
	for k := geom.KMin(); k < len(p.Values); k++ {
		if !(p.Values[k] > 0) {
			return fmt.Errorf("%w: psd %s bin %d is %v", core.ErrDataShape, p.Detector, k, p.Values[k])
		}
	}
	return nil
}
