package veto

import (
	"math"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/filter"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

// Input is everything the vetoes read for one segment/template pair.
type Input struct {
	Segment  *segment.Segment
	Template *template.Template
	// Relative are the segment-relative candidate samples and SNR their
	// normalised complex SNR.
	Relative []int
	SNR      []complex128
	// Corr is the frequency-domain correlation, Norm its SNR scale and
	// SigmaSq the template norm; contributing bins are [KMin, KMax).
	Corr       []complex128
	Norm       float64
	SigmaSq    float64
	KMin, KMax int
	Series     Series
}

// FromResult builds an Input from a filter result. The result must not be
// released before Compute returns.
func FromResult(seg *segment.Segment, tmpl *template.Template, r *filter.Result) Input {
	return Input{
		Segment:  seg,
		Template: tmpl,
		Relative: r.Relative,
		SNR:      r.SNR,
		Corr:     r.Corr,
		Norm:     r.Norm,
		SigmaSq:  r.SigmaSq,
		KMin:     r.KMin,
		KMax:     r.KMax,
		Series:   r.Series(),
	}
}

// Results holds one Statistic per candidate for each veto.
type Results struct {
	Power []Statistic
	Bank  []Statistic
	Auto  []Statistic
}

// Battery runs the configured vetoes. It is safe for concurrent use.
type Battery struct {
	cfg  Config
	geom core.Geometry
	// bankSigmaSq[det][b] is the norm of bank template b against det's PSD.
	bankSigmaSq map[core.DetectorID][]float64
}

// NewBattery validates cfg and precomputes bank template norms for every
// PSD given.
func NewBattery(geom core.Geometry, cfg Config, psds []*segment.PSD) (*Battery, error) {
	if err := cfg.Validate(geom); err != nil {
		return nil, err
	}
	b := &Battery{cfg: cfg, geom: geom, bankSigmaSq: make(map[core.DetectorID][]float64)}
	if cfg.Bank != nil {
		for _, psd := range psds {
			if psd == nil {
				continue
			}
			b.bankSigmaSq[psd.Detector.ID] = bankNorms(cfg.Bank.Templates, psd, geom.KMin())
		}
	}
	return b, nil
}

// Config returns the battery configuration.
func (b *Battery) Config() Config { return b.cfg }

// Compute evaluates every enabled veto at every candidate of in.
func (b *Battery) Compute(in Input) Results {
	n := len(in.Relative)
	res := Results{Power: absent(n), Bank: absent(n), Auto: absent(n)}
	if n == 0 || in.Segment == nil || in.Template == nil || in.Series == nil || !(in.SigmaSq > 0) {
		return res
	}

	if b.cfg.Power != nil {
		res.Power = PowerChisq(in, b.cfg.Power.Bins)
	}
	if b.cfg.Bank != nil {
		norms, ok := b.bankSigmaSq[in.Segment.Detector.ID]
		if !ok && in.Segment.PSD() != nil {
			norms = bankNorms(b.cfg.Bank.Templates, in.Segment.PSD(), in.KMin)
		}
		res.Bank = bankChisq(in, b.cfg.Bank.Templates, norms, b.geom.SegmentLength)
	}
	if b.cfg.Auto != nil {
		res.Auto = AutoChisq(in, *b.cfg.Auto)
	}
	return res
}

func bankNorms(bank []*template.Template, psd *segment.PSD, kmin int) []float64 {
	out := make([]float64, len(bank))
	for i, t := range bank {
		out[i] = template.SigmaSq(t.Data, psd, kmin, t.KMax)
	}
	return out
}

// PowerChisq splits [KMin, KMax) into bins of equal template power and
// compares the SNR each bin contributes with its expected share.
func PowerChisq(in Input, bins int) []Statistic {
	psd := in.Segment.PSD()
	if psd == nil || bins < 2 {
		return absent(len(in.Relative))
	}
	edges := PowerBinEdges(in.Template.Data, psd, in.KMin, in.KMax, bins)
	n := in.Series.Len()
	norm := complex(in.Norm, 0)

	out := make([]Statistic, len(in.Relative))
	for i, j := range in.Relative {
		var total complex128
		var sumSq float64
		for b := 0; b < bins; b++ {
			rb := norm * filter.PrunedSum(in.Corr, edges[b], edges[b+1], j, n)
			total += rb
			sumSq += core.AbsSq(rb)
		}
		chisq := float64(bins)*sumSq - core.AbsSq(total)
		out[i] = Statistic{Value: math.Max(chisq, 0), DOF: 2*bins - 2, Valid: true}
	}
	return out
}

// PowerBinEdges returns bins+1 ascending bin edges over [kmin, kmax) that
// split sum(|h|^2/psd) into equal parts.
func PowerBinEdges(htilde []complex128, psd *segment.PSD, kmin, kmax, bins int) []int {
	if kmax > len(htilde) {
		kmax = len(htilde)
	}
	edges := make([]int, bins+1)
	edges[0] = kmin
	edges[bins] = max(kmax, kmin)

	w := template.PowerWeights(nil, htilde, psd, kmin, kmax)
	var total float64
	for _, v := range w {
		total += v
	}
	var cum float64
	b := 1
	for i, v := range w {
		cum += v
		for b < bins && cum >= total*float64(b)/float64(bins) {
			edges[b] = kmin + i + 1
			b++
		}
	}
	for ; b < bins; b++ {
		edges[b] = edges[bins]
	}
	return edges
}

// BankVeto compares the candidate SNR with the SNR of each reference
// template at the same sample, scaled by the overlap of the two waveforms.
func BankVeto(in Input, bank []*template.Template) []Statistic {
	psd := in.Segment.PSD()
	if psd == nil || len(bank) == 0 {
		return absent(len(in.Relative))
	}
	return bankChisq(in, bank, bankNorms(bank, psd, in.KMin), in.Series.Len())
}

// bankMatchLimit is the overlap above which a reference template is too close
// to the filtered one to carry information. It then contributes its
// expectation of 2.
const bankMatchLimit = 0.99

func bankChisq(in Input, bank []*template.Template, norms []float64, n int) []Statistic {
	psd := in.Segment.PSD()
	if psd == nil || len(norms) != len(bank) {
		return absent(len(in.Relative))
	}
	df := in.Segment.PSD().DeltaF
	sigma := math.Sqrt(in.SigmaSq)

	matches := make([]complex128, len(bank))
	for b, t := range bank {
		if !(norms[b] > 0) {
			continue
		}
		kmax := min(in.KMax, t.KMax)
		dot := filter.PrunedDot(t.Data, in.Template.Data, psd.Values, in.KMin, kmax, 0, n)
		matches[b] = complex(4*df/(math.Sqrt(norms[b])*sigma), 0) * dot
	}

	out := make([]Statistic, len(in.Relative))
	for i, j := range in.Relative {
		rho := in.SNR[i]
		var chisq float64
		for b, t := range bank {
			m := matches[b]
			if !(norms[b] > 0) || core.AbsSq(m) > bankMatchLimit*bankMatchLimit {
				chisq += 2
				continue
			}
			// The segment is already divided by the PSD.
			rb := complex(4*df/math.Sqrt(norms[b]), 0) *
				filter.PrunedDot(t.Data, in.Segment.Data, nil, in.KMin, t.KMax, j, n)
			chisq += core.AbsSq(rb-m*rho) / (1 - core.AbsSq(m))
		}
		out[i] = Statistic{Value: chisq, DOF: 2 * len(bank), Valid: true}
	}
	return out
}

// autoLimit bounds 1-|a|^2 away from zero at lags where the template
// autocorrelation is still near one.
const autoLimit = 1e-6

// AutoChisq compares the SNR series around each candidate with the
// template autocorrelation scaled by the candidate SNR. Lags wrap around the
// segment.
func AutoChisq(in Input, cfg AutoConfig) []Statistic {
	psd := in.Segment.PSD()
	if psd == nil || cfg.Points < 1 || cfg.Stride < 1 {
		return absent(len(in.Relative))
	}
	lags := cfg.lags()
	n := in.Series.Len()
	acf := make([]complex128, len(lags))
	scale := complex(4*psd.DeltaF/in.SigmaSq, 0)
	for l, lag := range lags {
		acf[l] = scale * filter.PrunedDot(in.Template.Data, in.Template.Data, psd.Values, in.KMin, in.KMax, lag, n)
	}

	out := make([]Statistic, len(in.Relative))
	for i, j := range in.Relative {
		rho := in.SNR[i]
		var chisq float64
		for l, lag := range lags {
			den := 1 - core.AbsSq(acf[l])
			if den < autoLimit {
				chisq += 2
				continue
			}
			chisq += core.AbsSq(in.Series.At(j+lag)-rho*acf[l]) / den
		}
		out[i] = Statistic{Value: chisq, DOF: 2 * len(lags), Valid: true}
	}
	return out
}
