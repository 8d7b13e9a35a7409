package template

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// MTSun is the solar mass in seconds, G*Msun/c^3.
const MTSun = 4.925490947641267e-6

// Approximant names understood by the default registry.
const (
	TaylorF2 = "TaylorF2"
)

// MaxPhaseOrder is the highest post-Newtonian phase order implemented, in
// units of 0.5PN.
const MaxPhaseOrder = 4

// Params is the immutable parameter record of one bank entry.
type Params struct {
	Mass1  float64 `json:"mass1"`
	Mass2  float64 `json:"mass2"`
	Spin1z float64 `json:"spin1z"`
	Spin2z float64 `json:"spin2z"`
	// PhaseOrder is twice the PN order of the phasing; -1 selects the maximum.
	PhaseOrder  int    `json:"phase_order"`
	Approximant string `json:"approximant"`
	// TaperFraction is the fraction of the band above the low-frequency
	// cutoff that is rolled on with a half-Hann taper. Zero disables it.
	TaperFraction float64 `json:"taper_fraction"`
}

// TotalMass returns m1+m2 in solar masses.
func (p Params) TotalMass() float64 { return p.Mass1 + p.Mass2 }

// Eta returns the symmetric mass ratio.
func (p Params) Eta() float64 {
	m := p.TotalMass()
	return p.Mass1 * p.Mass2 / (m * m)
}

// ChirpMass returns the chirp mass in solar masses.
func (p Params) ChirpMass() float64 {
	return p.TotalMass() * math.Pow(p.Eta(), 3.0/5.0)
}

// ISCOFrequency is the gravitational-wave frequency at the innermost stable
// circular orbit of a test mass around the total mass.
func (p Params) ISCOFrequency() float64 {
	return 1 / (math.Pow(6, 1.5) * math.Pi * p.TotalMass() * MTSun)
}

// ChirpTime is the leading-order time from flow to coalescence in seconds.
func (p Params) ChirpTime(flow float64) float64 {
	m := p.TotalMass() * MTSun
	v := math.Cbrt(math.Pi * m * flow)
	return 5.0 / 256.0 * m / p.Eta() * math.Pow(v, -8)
}

// Validate rejects unphysical parameters.
func (p Params) Validate() error {
	if !(p.Mass1 > 0) || !(p.Mass2 > 0) {
		return fmt.Errorf("%w: masses must be positive, got %v, %v", core.ErrConfiguration, p.Mass1, p.Mass2)
	}
	if math.Abs(p.Spin1z) > 1 || math.Abs(p.Spin2z) > 1 {
		return fmt.Errorf("%w: spins must lie in [-1, 1], got %v, %v", core.ErrConfiguration, p.Spin1z, p.Spin2z)
	}
	if p.PhaseOrder < -1 {
		return fmt.Errorf("%w: phase order %d", core.ErrConfiguration, p.PhaseOrder)
	}
	if p.TaperFraction < 0 || p.TaperFraction > 1 {
		return fmt.Errorf("%w: taper fraction %v outside [0, 1]", core.ErrConfiguration, p.TaperFraction)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%s(m1=%.3f m2=%.3f s1z=%.3f s2z=%.3f)", p.approximant(), p.Mass1, p.Mass2, p.Spin1z, p.Spin2z)
}

func (p Params) approximant() string {
	if p.Approximant == "" {
		return TaylorF2
	}
	return p.Approximant
}
