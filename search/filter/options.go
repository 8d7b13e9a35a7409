package filter

import (
	"fmt"

	"github.com/cwbudde/algo-inspiral/dsp/buffer"
	"github.com/cwbudde/algo-inspiral/dsp/core"
)

const defaultThreshold = 5.5

type config struct {
	threshold float64
	factor    int
	fraction  float64
	pool      *buffer.Pool
}

// Option configures an Engine.
type Option func(*config)

// WithThreshold sets the |SNR| a sample must exceed to become a candidate.
func WithThreshold(threshold float64) Option {
	return func(c *config) {
		c.threshold = threshold
	}
}

// WithDownsample enables the coarse/fine search with decimation factor d.
// Coarse samples with |SNR| at or above fraction*threshold have their
// neighbourhood evaluated exactly. d <= 1 disables the coarse stage.
func WithDownsample(d int, fraction float64) Option {
	return func(c *config) {
		c.factor = d
		c.fraction = fraction
	}
}

// WithPool sets the scratch pool. Engines sharing a pool share its buffers.
func WithPool(p *buffer.Pool) Option {
	return func(c *config) {
		c.pool = p
	}
}

func applyOptions(geom core.Geometry, opts []Option) (config, error) {
	cfg := config{threshold: defaultThreshold, factor: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.threshold < 0 {
		return cfg, fmt.Errorf("%w: negative SNR threshold %g", core.ErrConfiguration, cfg.threshold)
	}
	if cfg.factor < 1 {
		cfg.factor = 1
	}
	if cfg.factor > 1 {
		if !core.IsPowerOfTwo(cfg.factor) || cfg.factor > geom.SegmentLength/2 {
			return cfg, fmt.Errorf("%w: downsample factor %d must be a power of two up to %d",
				core.ErrConfiguration, cfg.factor, geom.SegmentLength/2)
		}
		if cfg.fraction < 0 || cfg.fraction > 1 {
			return cfg, fmt.Errorf("%w: coarse fraction %g outside [0, 1]", core.ErrConfiguration, cfg.fraction)
		}
	}
	if cfg.pool == nil {
		cfg.pool = buffer.NewPool()
	}
	return cfg, nil
}
