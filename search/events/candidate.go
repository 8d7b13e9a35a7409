package events

import (
	"maps"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/filter"
	"github.com/cwbudde/algo-inspiral/search/template"
	"github.com/cwbudde/algo-inspiral/search/veto"
)

// Candidate is one clustered above-threshold SNR sample.
type Candidate struct {
	// TimeIndex is the global sample index.
	TimeIndex int64
	Detector  core.DetectorID
	SNR       complex128
	Chisq     veto.Statistic
	BankChisq veto.Statistic
	AutoChisq veto.Statistic
}

// Abs returns |SNR|.
func (c Candidate) Abs() float64 { return cmplx.Abs(c.SNR) }

// NewSNR returns the candidate's re-weighted SNR using the power chisq.
func (c Candidate) NewSNR() float64 { return NewSNR(c.Abs(), c.Chisq.Reduced()) }

// NewSNR re-weights snr by the reduced chisq: unchanged while the reduced
// chisq is at most 1 (or absent), otherwise snr / ((1 + r^3)/2)^(1/6).
func NewSNR(snr, reducedChisq float64) float64 {
	if math.IsNaN(reducedChisq) || reducedChisq <= 1 {
		return snr
	}
	return snr / math.Pow((1+reducedChisq*reducedChisq*reducedChisq)/2, 1.0/6.0)
}

// Candidates zips a filter result with its veto statistics.
func Candidates(det core.DetectorID, r *filter.Result, v veto.Results) []Candidate {
	out := make([]Candidate, len(r.Indices))
	for i := range out {
		out[i] = Candidate{
			TimeIndex: r.Indices[i],
			Detector:  det,
			SNR:       r.SNR[i],
			Chisq:     statAt(v.Power, i),
			BankChisq: statAt(v.Bank, i),
			AutoChisq: statAt(v.Auto, i),
		}
	}
	return out
}

func statAt(s []veto.Statistic, i int) veto.Statistic {
	if i < len(s) {
		return s[i]
	}
	return veto.Absent()
}

// Trigger is a finalised candidate tagged with its template.
type Trigger struct {
	Template int
	Candidate
}

// TemplateRecord is the per-template metadata stored with the triggers.
type TemplateRecord struct {
	Index   int
	Params  template.Params
	SigmaSq map[core.DetectorID]float64
	PSDRef  map[core.DetectorID]string
}

func (r TemplateRecord) clone() TemplateRecord {
	r.SigmaSq = maps.Clone(r.SigmaSq)
	r.PSDRef = maps.Clone(r.PSDRef)
	return r
}
