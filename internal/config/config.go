// Package config defines the search run configuration and its loading.
package config

import (
	"fmt"
	"runtime"

	"github.com/cwbudde/algo-inspiral/dsp/buffer"
	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/search/filter"
	"github.com/cwbudde/algo-inspiral/search/template"
	"github.com/cwbudde/algo-inspiral/search/veto"
)

// Config contains the run configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// SampleRate, SegmentLength and LowFrequency define the run geometry.
	SampleRate    float64 `koanf:"sample_rate"`
	SegmentLength int     `koanf:"segment_length"`
	LowFrequency  float64 `koanf:"low_frequency"`
	// SegmentPad is dropped from each end of a segment's SNR series.
	SegmentPad int `koanf:"segment_pad"`

	// SNRThreshold is the candidate |SNR| threshold.
	SNRThreshold float64 `koanf:"snr_threshold"`
	// ClusterWindow is the clustering window in samples; 0 disables it.
	ClusterWindow int `koanf:"cluster_window"`
	// Downsample and CoarseFraction configure the coarse/fine search.
	Downsample     int     `koanf:"downsample"`
	CoarseFraction float64 `koanf:"coarse_fraction"`

	// ChisqBins enables the power chisq; 0 disables it.
	ChisqBins      int     `koanf:"chisq_bins"`
	ChisqThreshold float64 `koanf:"chisq_threshold"`
	ChisqDelta     float64 `koanf:"chisq_delta"`
	// NewSNRThreshold removes triggers below this re-weighted SNR; 0 disables it.
	NewSNRThreshold float64 `koanf:"newsnr_threshold"`
	// BankVetoTemplates is the size of the bank-veto sub-bank; 0 disables it.
	BankVetoTemplates int `koanf:"bank_veto_templates"`
	// AutochiPoints enables the autochisq; 0 disables it.
	AutochiPoints   int  `koanf:"autochi_points"`
	AutochiStride   int  `koanf:"autochi_stride"`
	AutochiOneSided bool `koanf:"autochi_onesided"`

	// Workers is the number of templates filtered in parallel.
	Workers int `koanf:"workers"`

	// InjectionWindow is the injection-finding half window in seconds.
	InjectionWindow float64 `koanf:"injection_window"`

	// DatabasePath is the sqlite file for triggers and injection scores.
	DatabasePath string `koanf:"database_path"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		SampleRate:        4096,
		SegmentLength:     256 * 4096,
		LowFrequency:      30,
		SegmentPad:        8 * 4096,
		SNRThreshold:      5.5,
		ClusterWindow:     4096,
		Downsample:        1,
		CoarseFraction:    0.5,
		ChisqBins:         16,
		ChisqThreshold:    10,
		ChisqDelta:        0.2,
		NewSNRThreshold:   0,
		BankVetoTemplates: 0,
		AutochiPoints:     0,
		AutochiStride:     1,
		Workers:           runtime.NumCPU(),
		InjectionWindow:   0.1,
		DatabasePath:      "inspiral.db",
	}
}

// Geometry returns the run geometry.
func (c *Config) Geometry() core.Geometry {
	return core.Geometry{
		SampleRate:    c.SampleRate,
		SegmentLength: c.SegmentLength,
		LowFrequency:  c.LowFrequency,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	geom := c.Geometry()
	if err := geom.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if 2*c.SegmentPad >= c.SegmentLength || c.SegmentPad < 0 {
		return fmt.Errorf("%w: segment pad %d leaves no analysis range in %d samples",
			ErrInvalidConfig, c.SegmentPad, c.SegmentLength)
	}
	if c.SNRThreshold < 0 || c.ClusterWindow < 0 {
		return fmt.Errorf("%w: snr threshold and cluster window must be >= 0", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.ChisqBins == 1 || c.ChisqBins < 0 {
		return fmt.Errorf("%w: chisq bins must be 0 or >= 2, got %d", ErrInvalidConfig, c.ChisqBins)
	}
	if c.AutochiPoints < 0 || (c.AutochiPoints > 0 && c.AutochiStride < 1) {
		return fmt.Errorf("%w: autochisq points %d stride %d", ErrInvalidConfig, c.AutochiPoints, c.AutochiStride)
	}
	if c.BankVetoTemplates < 0 || c.InjectionWindow < 0 {
		return fmt.Errorf("%w: bank veto size and injection window must be >= 0", ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// FilterOptions returns the engine options for this configuration.
func (c *Config) FilterOptions(pool *buffer.Pool) []filter.Option {
	opts := []filter.Option{filter.WithThreshold(c.SNRThreshold)}
	if c.Downsample > 1 {
		opts = append(opts, filter.WithDownsample(c.Downsample, c.CoarseFraction))
	}
	if pool != nil {
		opts = append(opts, filter.WithPool(pool))
	}
	return opts
}

// VetoConfig returns the veto battery configuration. subBank holds the
// bank-veto templates and is ignored when the bank veto is disabled.
func (c *Config) VetoConfig(subBank []*template.Template) veto.Config {
	var cfg veto.Config
	if c.ChisqBins > 0 {
		cfg.Power = &veto.PowerConfig{Bins: c.ChisqBins}
	}
	if c.BankVetoTemplates > 0 && len(subBank) > 0 {
		cfg.Bank = &veto.BankConfig{Templates: subBank}
	}
	if c.AutochiPoints > 0 {
		cfg.Auto = &veto.AutoConfig{Points: c.AutochiPoints, Stride: c.AutochiStride, OneSided: c.AutochiOneSided}
	}
	return cfg
}
