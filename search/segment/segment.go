package segment

import (
	"fmt"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// Segment is a windowed stretch of one detector's strain in the frequency
// domain. The filter engine treats it as read-only.
type Segment struct {
	Detector core.Detector
	// Data is the one-sided spectrum, length N/2+1.
	Data []complex128
	// Offset is the global sample index of time-domain sample 0.
	Offset int64
	// AnalyzeStart and AnalyzeEnd bound the valid part of the SNR series,
	// segment-relative and half-open.
	AnalyzeStart int
	AnalyzeEnd   int

	psd      *PSD
	whitened bool
}

// NewSegment wraps frequency-domain data produced by an external segmenter.
func NewSegment(det core.Detector, data []complex128, offset int64, analyzeStart, analyzeEnd int) *Segment {
	return &Segment{
		Detector:     det,
		Data:         data,
		Offset:       offset,
		AnalyzeStart: analyzeStart,
		AnalyzeEnd:   analyzeEnd,
	}
}

// PSD returns the detector PSD the segment was whitened with, or nil.
func (s *Segment) PSD() *PSD { return s.psd }

// Whitened reports whether Overwhiten has run on this segment.
func (s *Segment) Whitened() bool { return s.whitened }

// GlobalIndex converts a segment-relative sample index to the global numbering.
func (s *Segment) GlobalIndex(rel int) int64 { return s.Offset + int64(rel) }

// Check validates the segment against the run geometry.
func (s *Segment) Check(geom core.Geometry) error {
	if len(s.Data) != geom.FreqLen() {
		return fmt.Errorf("%w: segment at %d has %d bins, want %d", core.ErrDataShape, s.Offset, len(s.Data), geom.FreqLen())
	}
	if s.AnalyzeStart < 0 || s.AnalyzeEnd > geom.SegmentLength || s.AnalyzeStart >= s.AnalyzeEnd {
		return fmt.Errorf("%w: segment at %d has analysis range [%d, %d) outside [0, %d)",
			core.ErrConfiguration, s.Offset, s.AnalyzeStart, s.AnalyzeEnd, geom.SegmentLength)
	}
	return nil
}

// overwhiten divides the spectrum by psd in place. Bins below kmin are zeroed.
func (s *Segment) overwhiten(psd *PSD, kmin int) {
	if s.whitened {
		return
	}
	for k := range s.Data {
		if k < kmin || psd.Values[k] <= 0 {
			s.Data[k] = 0
			continue
		}
		s.Data[k] /= complex(psd.Values[k], 0)
	}
	s.psd = psd
	s.whitened = true
}
