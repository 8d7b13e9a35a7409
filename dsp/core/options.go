package core

import (
	"fmt"
	"math"
)

// Geometry describes the sampling shared by every detector of one run.
type Geometry struct {
	SampleRate    float64
	SegmentLength int
	LowFrequency  float64
}

// GeometryOption mutates a Geometry.
type GeometryOption func(*Geometry)

// DefaultGeometry returns 4096 Hz, 256 s segments and a 20 Hz cutoff.
func DefaultGeometry() Geometry {
	return Geometry{
		SampleRate:    4096,
		SegmentLength: 256 * 4096,
		LowFrequency:  20,
	}
}

// WithSampleRate sets the sample rate in Hz.
func WithSampleRate(sampleRate float64) GeometryOption {
	return func(g *Geometry) {
		if sampleRate > 0 {
			g.SampleRate = sampleRate
		}
	}
}

// WithSegmentLength sets the time-domain segment length in samples.
func WithSegmentLength(n int) GeometryOption {
	return func(g *Geometry) {
		if n > 0 {
			g.SegmentLength = n
		}
	}
}

// WithLowFrequency sets the lower frequency cutoff of the filter in Hz.
func WithLowFrequency(f float64) GeometryOption {
	return func(g *Geometry) {
		if f >= 0 {
			g.LowFrequency = f
		}
	}
}

// ApplyGeometryOptions applies zero or more options to the default geometry.
func ApplyGeometryOptions(opts ...GeometryOption) Geometry {
	g := DefaultGeometry()
	for _, opt := range opts {
		if opt != nil {
			opt(&g)
		}
	}
	return g
}

// FreqLen is the length of the one-sided frequency series, N/2+1.
func (g Geometry) FreqLen() int { return g.SegmentLength/2 + 1 }

// DeltaT is the sample spacing in seconds.
func (g Geometry) DeltaT() float64 { return 1 / g.SampleRate }

// DeltaF is the frequency resolution in Hz.
func (g Geometry) DeltaF() float64 { return g.SampleRate / float64(g.SegmentLength) }

// Duration is the segment length in seconds.
func (g Geometry) Duration() float64 { return float64(g.SegmentLength) / g.SampleRate }

// KMin is the first frequency bin at or above the low-frequency cutoff.
func (g Geometry) KMin() int {
	k := int(math.Ceil(g.LowFrequency/g.DeltaF() - 1e-9))
	if k < 1 {
		k = 1
	}
	return k
}

// Validate checks the geometry for internal consistency.
func (g Geometry) Validate() error {
	if g.SampleRate <= 0 || math.IsNaN(g.SampleRate) || math.IsInf(g.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrConfiguration, g.SampleRate)
	}
	if !IsPowerOfTwo(g.SegmentLength) || g.SegmentLength < 4 {
		return fmt.Errorf("%w: segment length must be a power of two >= 4, got %d", ErrConfiguration, g.SegmentLength)
	}
	if g.LowFrequency < 0 || g.LowFrequency >= g.SampleRate/2 {
		return fmt.Errorf("%w: low frequency %v outside [0, %v)", ErrConfiguration, g.LowFrequency, g.SampleRate/2)
	}
	return nil
}

// Compatible reports an ErrConfiguration when g and other cannot share a run.
func (g Geometry) Compatible(other Geometry) error {
	if g.SampleRate != other.SampleRate {
		return fmt.Errorf("%w: sample rate %v != %v", ErrConfiguration, g.SampleRate, other.SampleRate)
	}
	if g.SegmentLength != other.SegmentLength {
		return fmt.Errorf("%w: segment length %d != %d", ErrConfiguration, g.SegmentLength, other.SegmentLength)
	}
	if !NearlyEqual(g.DeltaF(), other.DeltaF(), 1e-12) {
		return fmt.Errorf("%w: delta-f %v != %v", ErrConfiguration, g.DeltaF(), other.DeltaF())
	}
	return nil
}
