// Package window provides the taper windows used on strain and on
// frequency-domain templates.
package window

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeTukey
)

// Slope controls which edge(s) of the window are tapered.
type Slope int

const (
	// SlopeSymmetric tapers both edges.
	SlopeSymmetric Slope = iota
	// SlopeLeft is the rising half only, starting at zero.
	SlopeLeft
	// SlopeRight is the falling half only, ending at zero.
	SlopeRight
)

// Option configures window generation.
type Option func(*config)

type config struct {
	alpha float64
	slope Slope
}

func defaultConfig() config {
	return config{
		alpha: 0.5,
		slope: SlopeSymmetric,
	}
}

// WithAlpha sets the tapered fraction of a Tukey window.
func WithAlpha(v float64) Option {
	return func(c *config) {
		if v >= 0 && v <= 1 {
			c.alpha = v
		}
	}
}

// WithSlope configures edge tapering mode.
func WithSlope(s Slope) Option {
	return func(c *config) {
		c.slope = s
	}
}

// Generate returns window coefficients of the given length.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	switch cfg.slope {
	case SlopeLeft:
		// w[i] = w(i / 2L): the rising half sampled without its peak.
		for i := range out {
			out[i] = evalWindow(t, float64(i)/float64(2*length), cfg.alpha)
		}
	case SlopeRight:
		for i := range out {
			out[i] = evalWindow(t, float64(length-1-i)/float64(2*length), cfg.alpha)
		}
	default:
		for i := range out {
			out[i] = evalWindow(t, samplePosition(i, length), cfg.alpha)
		}
	}
	return out
}

// Apply multiplies buf in-place by the selected window.
func Apply(t Type, buf []float64, opts ...Option) {
	if len(buf) == 0 {
		return
	}
	vecmath.MulBlockInPlace(buf, Generate(t, len(buf), opts...))
}

// ApplyComplex multiplies a complex buffer in-place by the selected window.
func ApplyComplex(t Type, buf []complex128, opts ...Option) {
	for i, w := range Generate(t, len(buf), opts...) {
		buf[i] *= complex(w, 0)
	}
}

// Edges rolls buf on over its first rise samples and off over its last fall
// samples with half-Hann slopes.
func Edges(buf []float64, rise, fall int) error {
	if rise < 0 || fall < 0 || rise+fall > len(buf) {
		return fmt.Errorf("window: edges %d+%d exceed %d samples", rise, fall, len(buf))
	}
	if rise > 0 {
		Apply(TypeHann, buf[:rise], WithSlope(SlopeLeft))
	}
	if fall > 0 {
		Apply(TypeHann, buf[len(buf)-fall:], WithSlope(SlopeRight))
	}
	return nil
}

func evalWindow(t Type, x, alpha float64) float64 {
	switch t {
	case TypeHann:
		return 0.5 * (1 - math.Cos(2*math.Pi*x))
	case TypeTukey:
		return tukeyAt(x, alpha)
	default:
		return 1
	}
}

func samplePosition(n, size int) float64 {
	if size <= 1 {
		return 0
	}
	return float64(n) / float64(size-1)
}

func tukeyAt(x, alpha float64) float64 {
	if alpha <= 0 {
		return 1
	}
	if alpha >= 1 {
		return 0.5 * (1 - math.Cos(2*math.Pi*x))
	}

	a := alpha / 2
	switch {
	case x < a:
		return 0.5 * (1 + math.Cos(math.Pi*(2*x/alpha-1)))
	case x <= 1-a:
		return 1
	default:
		return 0.5 * (1 + math.Cos(math.Pi*(2*x/alpha-2/alpha+1)))
	}
}
