package pipeline

import (
	"github.com/cwbudde/algo-inspiral/dsp/buffer"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
	"github.com/cwbudde/algo-inspiral/search/events"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records into m instead of the default manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithPool shares a scratch pool with other engines.
func WithPool(pool *buffer.Pool) Option {
	return func(p *Pipeline) {
		if pool != nil {
			p.pool = pool
		}
	}
}

// WithAccumulator collects triggers into acc. It is not reset.
func WithAccumulator(acc *events.Accumulator) Option {
	return func(p *Pipeline) {
		if acc != nil {
			p.acc = acc
		}
	}
}
