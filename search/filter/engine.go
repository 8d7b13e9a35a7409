package filter

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-inspiral/dsp/buffer"
	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/search/cluster"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
)

// ErrNotWhitened is returned for a segment that has not been overwhitened.
var ErrNotWhitened = errors.New("filter: segment is not overwhitened")

// planPool hands out FFT plans of one size. Plans carry scratch state and
// are never shared between concurrent calls.
type planPool struct {
	n    int
	pool sync.Pool
}

func (p *planPool) get() (*algofft.Plan[complex128], error) {
	if v := p.pool.Get(); v != nil {
		return v.(*algofft.Plan[complex128]), nil
	}
	plan, err := algofft.NewPlan64(p.n)
	if err != nil {
		return nil, fmt.Errorf("filter: failed to create FFT plan of size %d: %w", p.n, err)
	}
	return plan, nil
}

func (p *planPool) put(plan *algofft.Plan[complex128]) {
	if plan != nil {
		p.pool.Put(plan)
	}
}

// Engine runs the matched filter for one run geometry. It is safe for
// concurrent use; each call checks its scratch out of the pool.
type Engine struct {
	geom   core.Geometry
	cfg    config
	full   *planPool
	coarse *planPool
}

// New validates geom and the options and returns an Engine.
func New(geom core.Geometry, opts ...Option) (*Engine, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	cfg, err := applyOptions(geom, opts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		geom: geom,
		cfg:  cfg,
		full: &planPool{n: geom.SegmentLength},
	}
	if cfg.factor > 1 {
		e.coarse = &planPool{n: geom.SegmentLength / cfg.factor}
	}

	for _, pp := range []*planPool{e.full, e.coarse} {
		if pp == nil {
			continue
		}
		plan, err := pp.get()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		pp.put(plan)
	}
	return e, nil
}

// Geometry returns the run geometry.
func (e *Engine) Geometry() core.Geometry { return e.geom }

// Threshold returns the candidate |SNR| threshold.
func (e *Engine) Threshold() float64 { return e.cfg.threshold }

// Pool returns the scratch pool backing Result buffers.
func (e *Engine) Pool() *buffer.Pool { return e.cfg.pool }

// FilterAndCluster correlates seg with tmpl, keeps samples in the analysis
// range whose |SNR| exceeds the threshold and clusters them with window
// (in samples). The segment is not modified. The caller must Release the
// result once the vetoes have consumed it.
func (e *Engine) FilterAndCluster(seg *segment.Segment, tmpl *template.Template, window int) (*Result, error) {
	if seg == nil || tmpl == nil {
		return nil, fmt.Errorf("%w: nil segment or template", core.ErrConfiguration)
	}
	if err := seg.Check(e.geom); err != nil {
		return nil, err
	}
	if err := tmpl.Check(e.geom); err != nil {
		return nil, err
	}
	psd := seg.PSD()
	if psd == nil || !seg.Whitened() {
		return nil, fmt.Errorf("%w: segment at %d", ErrNotWhitened, seg.Offset)
	}

	n := e.geom.SegmentLength
	kmin := e.geom.KMin()
	kmax := min(tmpl.KMax, e.geom.FreqLen())

	r := &Result{
		KMin: kmin,
		KMax: kmax,
		pool: e.cfg.pool,
		n:    n,
	}
	r.SigmaSq = tmpl.SigmaSq(psd, kmin)
	if !(r.SigmaSq > 0) {
		// No template power above the cutoff: nothing can cross threshold.
		return r, nil
	}
	r.Norm = 4 * e.geom.DeltaF() / math.Sqrt(r.SigmaSq)

	r.corr = e.cfg.pool.Get(n)
	r.Corr = r.corr.Samples()
	correlate(r.Corr, tmpl.Data, seg.Data, kmin, kmax)

	var (
		rel  []int
		vals []complex128
		err  error
	)
	if e.coarse == nil {
		rel, vals, err = e.filterFull(r, seg)
	} else {
		rel, vals, err = e.filterCoarse(r, seg)
	}
	if err != nil {
		r.Release()
		return nil, err
	}

	times := make([]int64, len(rel))
	mags := make([]float64, len(rel))
	for i, j := range rel {
		times[i] = seg.GlobalIndex(j)
		mags[i] = cmplx.Abs(vals[i])
	}
	keep := cluster.Window(times, mags, int64(window))

	r.Above = len(rel)
	r.Indices = make([]int64, len(keep))
	r.Relative = make([]int, len(keep))
	r.SNR = make([]complex128, len(keep))
	for i, p := range keep {
		r.Indices[i] = times[p]
		r.Relative[i] = rel[p]
		r.SNR[i] = vals[p]
	}
	return r, nil
}

// correlate writes conj(h_k) s_k over [kmin, kmax) into dst, which must be
// zeroed beforehand.
func correlate(dst, htilde, stilde []complex128, kmin, kmax int) {
	for k := kmin; k < kmax; k++ {
		h := htilde[k]
		dst[k] = complex(real(h), -imag(h)) * stilde[k]
	}
}

func (e *Engine) filterFull(r *Result, seg *segment.Segment) ([]int, []complex128, error) {
	n := r.n
	r.series = e.cfg.pool.Get(n)
	out := r.series.Samples()

	plan, err := e.full.get()
	if err != nil {
		return nil, nil, err
	}
	defer e.full.put(plan)

	if err := plan.Inverse(out, r.Corr); err != nil {
		return nil, nil, fmt.Errorf("filter: inverse FFT failed: %w", err)
	}
	// The inverse transform is normalised by 1/n.
	scale := complex(float64(n)*r.Norm, 0)
	for i := range out {
		out[i] *= scale
	}

	lo, hi := seg.AnalyzeStart, seg.AnalyzeEnd
	re, im := r.series.Planes(hi - lo)
	core.SplitComplex(re, im, out[lo:hi])
	pw, _ := r.corr.Planes(hi - lo)
	vecmath.Power(pw, re, im)

	thr2 := e.cfg.threshold * e.cfg.threshold
	var (
		rel  []int
		vals []complex128
	)
	for i, p := range pw {
		if p > thr2 {
			rel = append(rel, lo+i)
			vals = append(vals, out[lo+i])
		}
	}
	return rel, vals, nil
}

func (e *Engine) filterCoarse(r *Result, seg *segment.Segment) ([]int, []complex128, error) {
	n, d := r.n, e.cfg.factor
	m := n / d

	fold := e.cfg.pool.Get(m)
	defer e.cfg.pool.Put(fold)
	coarse := e.cfg.pool.Get(m)
	defer e.cfg.pool.Put(coarse)

	// Sampling the series at every d-th point aliases the spectrum modulo m.
	folded := fold.Samples()
	for k := r.KMin; k < r.KMax; k++ {
		folded[k%m] += r.Corr[k]
	}

	plan, err := e.coarse.get()
	if err != nil {
		return nil, nil, err
	}
	defer e.coarse.put(plan)

	out := coarse.Samples()
	if err := plan.Inverse(out, folded); err != nil {
		return nil, nil, fmt.Errorf("filter: coarse inverse FFT failed: %w", err)
	}

	scale := complex(float64(m)*r.Norm, 0)
	norm := complex(r.Norm, 0)
	cut := e.cfg.fraction * e.cfg.threshold
	cut2 := cut * cut
	thr2 := e.cfg.threshold * e.cfg.threshold
	lo, hi := seg.AnalyzeStart, seg.AnalyzeEnd

	var (
		rel  []int
		vals []complex128
	)
	next := lo
	for c := range out {
		if core.AbsSq(out[c]*scale) < cut2 {
			continue
		}
		start := max(c*d-d, next)
		end := min(c*d+d+1, hi)
		for j := start; j < end; j++ {
			v := norm * PrunedSum(r.Corr, r.KMin, r.KMax, j, n)
			if core.AbsSq(v) > thr2 {
				rel = append(rel, j)
				vals = append(vals, v)
			}
		}
		next = max(next, end)
	}
	return rel, vals, nil
}
