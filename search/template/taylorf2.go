package template

import (
	"math"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/dsp/window"
)

// Generator writes the waveform of p into dst for geom. dst.Data has been
// sized to geom.FreqLen() and zeroed by the caller.
type Generator interface {
	Generate(p Params, geom core.Geometry, dst *Template) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(p Params, geom core.Geometry, dst *Template) error

// Generate calls f.
func (f GeneratorFunc) Generate(p Params, geom core.Geometry, dst *Template) error {
	return f(p, geom, dst)
}

// taylorF2 is the stationary-phase inspiral waveform with coalescence at
// t=0 and zero coalescence phase. Amplitude is f^(-7/6) in arbitrary units;
// only the shape matters once the filter normalises by sigma.
type taylorF2 struct{}

func (taylorF2) Generate(p Params, geom core.Geometry, dst *Template) error {
	m := p.TotalMass() * MTSun
	eta := p.Eta()
	alpha := phasing(p)
	order := p.PhaseOrder
	if order < 0 || order > MaxPhaseOrder {
		order = MaxPhaseOrder
	}

	df := geom.DeltaF()
	kmin := geom.KMin()
	kmax := int(p.ISCOFrequency()/df) + 1
	if kmax > len(dst.Data) {
		kmax = len(dst.Data)
	}
	if kmax < kmin {
		kmax = kmin
	}

	pre := 3.0 / (128.0 * eta)
	for k := kmin; k < kmax; k++ {
		f := float64(k) * df
		v := math.Cbrt(math.Pi * m * f)
		v2 := v * v
		var sum, vi float64 = 0, 1
		for i := 0; i <= order; i++ {
			sum += alpha[i] * vi
			vi *= v
		}
		psi := pre/(v2*v2*v)*sum - math.Pi/4
		amp := math.Pow(f, -7.0/6.0)
		dst.Data[k] = complex(amp, 0) * core.Phasor(-psi)
	}

	taperOn(dst.Data, kmin, kmax, p.TaperFraction)
	dst.KMax = kmax
	return nil
}

// phasing returns the PN phase coefficients alpha_0..alpha_4 including the
// aligned-spin spin-orbit (1.5PN) and spin-spin (2PN) terms.
func phasing(p Params) [MaxPhaseOrder + 1]float64 {
	eta := p.Eta()
	mt := p.TotalMass()
	x1, x2 := p.Mass1/mt, p.Mass2/mt
	beta := (p.Spin1z*(113*x1*x1+75*eta) + p.Spin2z*(113*x2*x2+75*eta)) / 12
	sigma := eta * (721.0/48.0*p.Spin1z*p.Spin2z - 247.0/48.0*p.Spin1z*p.Spin2z)

	return [MaxPhaseOrder + 1]float64{
		1,
		0,
		3715.0/756.0 + 55.0/9.0*eta,
		-16*math.Pi + 4*beta,
		15293365.0/508032.0 + 27145.0/504.0*eta + 3085.0/72.0*eta*eta - 10*sigma,
	}
}

// taperOn multiplies the first fraction of [kmin, kmax) by a rising half-Hann.
func taperOn(data []complex128, kmin, kmax int, fraction float64) {
	width := int(fraction * float64(kmax-kmin))
	if width < 2 {
		return
	}
	window.ApplyComplex(window.TypeHann, data[kmin:kmin+width], window.WithSlope(window.SlopeLeft))
}
