package veto

import (
	"fmt"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/template"
)

// PowerConfig enables the power chi-squared with Bins frequency bins.
type PowerConfig struct {
	Bins int
}

// BankConfig enables the bank chi-squared against Templates. The templates
// are shared read-only between workers.
type BankConfig struct {
	Templates []*template.Template
}

// AutoConfig enables the autocorrelation chi-squared at Points lags spaced
// Stride samples apart on each side of the candidate, or only after it when
// OneSided is set.
type AutoConfig struct {
	Points   int
	Stride   int
	OneSided bool
}

// Config selects the vetoes to run. A nil member disables that veto.
type Config struct {
	Power *PowerConfig
	Bank  *BankConfig
	Auto  *AutoConfig
}

// Validate checks the enabled vetoes against geom.
func (c Config) Validate(geom core.Geometry) error {
	if c.Power != nil && c.Power.Bins < 2 {
		return fmt.Errorf("%w: power chisq needs at least 2 bins, got %d", core.ErrConfiguration, c.Power.Bins)
	}
	if c.Bank != nil {
		if len(c.Bank.Templates) == 0 {
			return fmt.Errorf("%w: bank veto enabled with no templates", core.ErrConfiguration)
		}
		for _, t := range c.Bank.Templates {
			if err := t.Check(geom); err != nil {
				return fmt.Errorf("bank veto template: %w", err)
			}
		}
	}
	if c.Auto != nil {
		if c.Auto.Points < 1 || c.Auto.Stride < 1 {
			return fmt.Errorf("%w: autochisq points %d and stride %d must be >= 1",
				core.ErrConfiguration, c.Auto.Points, c.Auto.Stride)
		}
		reach := c.Auto.Points * c.Auto.Stride
		if reach >= geom.SegmentLength/2 {
			return fmt.Errorf("%w: autochisq reaches %d samples, segment is %d",
				core.ErrConfiguration, reach, geom.SegmentLength)
		}
	}
	return nil
}

// lags returns the autochisq sample offsets.
func (c AutoConfig) lags() []int {
	out := make([]int, 0, 2*c.Points)
	for k := 1; k <= c.Points; k++ {
		out = append(out, k*c.Stride)
		if !c.OneSided {
			out = append(out, -k*c.Stride)
		}
	}
	return out
}
