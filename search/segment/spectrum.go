package segment

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/dsp/window"
)

// Spectrum is a detector's strain split into overlapping frequency-domain
// segments.
type Spectrum struct {
	Detector core.Detector
	Geometry core.Geometry
	Segments []*Segment
	psd      *PSD
}

type splitConfig struct {
	startPad int
	endPad   int
	epoch    int64
	taper    int
}

// Option configures FromTimeSeries.
type Option func(*splitConfig)

// WithPads sets the number of corrupted samples excluded at the start and end
// of each segment. Consecutive segments overlap by start+end samples.
func WithPads(start, end int) Option {
	return func(c *splitConfig) {
		if start >= 0 {
			c.startPad = start
		}
		if end >= 0 {
			c.endPad = end
		}
	}
}

// WithEpoch sets the global sample index of strain[0].
func WithEpoch(offset int64) Option {
	return func(c *splitConfig) {
		c.epoch = offset
	}
}

// WithTaper rolls the strain on and off over samples at each end before it
// is cut, on a copy. Zero disables it.
func WithTaper(samples int) Option {
	return func(c *splitConfig) {
		if samples >= 0 {
			c.taper = samples
		}
	}
}

// New groups externally prepared segments of one detector.
func New(det core.Detector, geom core.Geometry, segs []*Segment) *Spectrum {
	return &Spectrum{Detector: det, Geometry: geom, Segments: segs}
}

// FromTimeSeries cuts strain into segments of geom.SegmentLength samples,
// stepping by N - startPad - endPad so that the analysis ranges tile the
// strain without gaps, and transforms each segment to the frequency domain.
// Samples after the last whole segment are not analysed.
func FromTimeSeries(det core.Detector, strain []float64, geom core.Geometry, opts ...Option) (*Spectrum, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	cfg := splitConfig{startPad: geom.SegmentLength / 8, endPad: geom.SegmentLength / 8}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	n := geom.SegmentLength
	stride := n - cfg.startPad - cfg.endPad
	if stride <= 0 {
		return nil, fmt.Errorf("%w: pads %d+%d leave no analysis range in %d samples", core.ErrConfiguration, cfg.startPad, cfg.endPad, n)
	}
	if len(strain) < n {
		return nil, fmt.Errorf("%w: strain has %d samples, need at least %d", core.ErrDataShape, len(strain), n)
	}

	if cfg.taper > 0 {
		tapered := append([]float64(nil), strain...)
		if err := window.Edges(tapered, cfg.taper, cfg.taper); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		strain = tapered
	}

	fft := fourier.NewFFT(n)
	dt := complex(geom.DeltaT(), 0)
	sp := New(det, geom, nil)
	for start := 0; start+n <= len(strain); start += stride {
		coeff := fft.Coefficients(nil, strain[start:start+n])
		for k := range coeff {
			coeff[k] *= dt
		}
		seg := NewSegment(det, coeff, cfg.epoch+int64(start), cfg.startPad, n-cfg.endPad)
		sp.Segments = append(sp.Segments, seg)
	}
	return sp, nil
}

// PSD returns the PSD applied by Overwhiten, or nil.
func (s *Spectrum) PSD() *PSD { return s.psd }

// Overwhiten divides every segment by psd. It runs once; later calls with
// the same PSD are no-ops and a different PSD is rejected.
func (s *Spectrum) Overwhiten(psd *PSD) error {
	if err := psd.Check(s.Geometry); err != nil {
		return err
	}
	if s.psd != nil {
		if s.psd != psd {
			return fmt.Errorf("%w: %s already whitened with psd %q", core.ErrConfiguration, s.Detector, s.psd.Ref)
		}
		return nil
	}
	kmin := s.Geometry.KMin()
	for _, seg := range s.Segments {
		if err := seg.Check(s.Geometry); err != nil {
			return err
		}
		seg.overwhiten(psd, kmin)
	}
	s.psd = psd
	return nil
}

// ValidateRun checks that all spectra share one geometry and that detector
// ids are unique. It runs once before any filtering.
func ValidateRun(spectra []*Spectrum) error {
	if len(spectra) == 0 {
		return fmt.Errorf("%w: no detectors", core.ErrConfiguration)
	}
	ref := spectra[0].Geometry
	if err := ref.Validate(); err != nil {
		return err
	}
	seen := make(map[core.DetectorID]bool, len(spectra))
	for _, s := range spectra {
		if seen[s.Detector.ID] {
			return fmt.Errorf("%w: detector id %d used twice", core.ErrConfiguration, s.Detector.ID)
		}
		seen[s.Detector.ID] = true
		if err := ref.Compatible(s.Geometry); err != nil {
			return fmt.Errorf("%s: %w", s.Detector, err)
		}
		if s.Geometry.LowFrequency != ref.LowFrequency {
			return fmt.Errorf("%w: %s low frequency %v != %v", core.ErrConfiguration, s.Detector, s.Geometry.LowFrequency, ref.LowFrequency)
		}
		for _, seg := range s.Segments {
			if err := seg.Check(ref); err != nil {
				return fmt.Errorf("%s: %w", s.Detector, err)
			}
		}
	}
	return nil
}
