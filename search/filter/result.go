package filter

import "github.com/cwbudde/algo-inspiral/dsp/buffer"

// Result holds the clustered candidates of one segment/template pair and the
// scratch the vetoes read from. Buffers belong to the engine pool until
// Release is called; Corr and Series are invalid afterwards.
type Result struct {
	// Indices are global sample indices, ascending.
	Indices []int64
	// Relative are the same samples as segment-relative indices.
	Relative []int
	// SNR holds the normalised complex SNR at each index.
	SNR []complex128
	// Above counts the samples that crossed threshold before clustering.
	Above int

	// Norm scales the raw correlation to SNR: 4*df/sqrt(SigmaSq).
	Norm    float64
	SigmaSq float64
	// Corr is the frequency-domain correlation conj(h_k) s_k, length n.
	Corr []complex128
	// KMin and KMax bound the bins that contribute to Corr.
	KMin, KMax int

	pool   *buffer.Pool
	corr   *buffer.Buffer
	series *buffer.Buffer
	n      int
}

// Len returns the number of clustered candidates.
func (r *Result) Len() int { return len(r.Indices) }

// Series returns a view of the full normalised SNR time series.
func (r *Result) Series() Series { return Series{r: r} }

// Release returns the scratch buffers to the pool. It is safe to call twice.
func (r *Result) Release() {
	if r.pool == nil {
		return
	}
	if r.corr != nil {
		r.pool.Put(r.corr)
		r.corr = nil
	}
	if r.series != nil {
		r.pool.Put(r.series)
		r.series = nil
	}
	r.Corr = nil
}

// Series is a read-only view of a segment's SNR time series. Indices wrap
// around the segment length. In coarse/fine mode samples are evaluated on
// demand.
type Series struct {
	r *Result
}

// Len returns the segment length in samples.
func (s Series) Len() int { return s.r.n }

// At returns the normalised SNR at segment-relative sample i.
func (s Series) At(i int) complex128 {
	i = wrap(i, s.r.n)
	if s.r.series != nil {
		return s.r.series.Samples()[i]
	}
	if s.r.Corr == nil {
		return 0
	}
	return complex(s.r.Norm, 0) * PrunedSum(s.r.Corr, s.r.KMin, s.r.KMax, i, s.r.n)
}
