// Package pipeline drives the search: every template of a bank against every
// segment of every detector, on a template-parallel worker pool.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cwbudde/algo-inspiral/dsp/buffer"
	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/internal/config"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
	"github.com/cwbudde/algo-inspiral/search/events"
	"github.com/cwbudde/algo-inspiral/search/filter"
	"github.com/cwbudde/algo-inspiral/search/segment"
	"github.com/cwbudde/algo-inspiral/search/template"
	"github.com/cwbudde/algo-inspiral/search/veto"
)

// Pipeline holds one run's inputs. It is single use: Run overwhitens the
// spectra in place.
type Pipeline struct {
	cfg     *config.Config
	geom    core.Geometry
	bank    *template.Bank
	spectra []*segment.Spectrum
	psds    []*segment.PSD

	pool    *buffer.Pool
	acc     *events.Accumulator
	log     logger.Logger
	metrics *metrics.Manager
}

// New validates the run once: the configuration, the shared geometry of
// spectra and bank, and one PSD per spectrum (psds[i] belongs to
// spectra[i]). Nothing is filtered when validation fails.
func New(cfg *config.Config, bank *template.Bank, spectra []*segment.Spectrum, psds []*segment.PSD, opts ...Option) (*Pipeline, error) {
	if cfg == nil || bank == nil {
		return nil, fmt.Errorf("%w: nil config or bank", core.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	if err := segment.ValidateRun(spectra); err != nil {
		return nil, err
	}
	geom := cfg.Geometry()
	if err := geom.Compatible(spectra[0].Geometry); err != nil {
		return nil, fmt.Errorf("spectra: %w", err)
	}
	if err := geom.Compatible(bank.Geometry()); err != nil {
		return nil, fmt.Errorf("bank: %w", err)
	}
	if spectra[0].Geometry.LowFrequency != geom.LowFrequency || bank.Geometry().LowFrequency != geom.LowFrequency {
		return nil, fmt.Errorf("%w: low frequency of spectra %v and bank %v != %v", core.ErrConfiguration,
			spectra[0].Geometry.LowFrequency, bank.Geometry().LowFrequency, geom.LowFrequency)
	}
	if len(psds) != len(spectra) {
		return nil, fmt.Errorf("%w: %d psds for %d detectors", core.ErrConfiguration, len(psds), len(spectra))
	}
	for i, psd := range psds {
		if psd == nil {
			return nil, fmt.Errorf("%w: no psd for %s", core.ErrConfiguration, spectra[i].Detector)
		}
		if psd.Detector.ID != spectra[i].Detector.ID {
			return nil, fmt.Errorf("%w: psd for %s given for %s", core.ErrConfiguration, psd.Detector, spectra[i].Detector)
		}
		if err := psd.Check(geom); err != nil {
			return nil, fmt.Errorf("%s: %w", spectra[i].Detector, err)
		}
	}

	p := &Pipeline{
		cfg:     cfg,
		geom:    geom,
		bank:    bank,
		spectra: spectra,
		psds:    psds,
		pool:    buffer.NewPool(),
		acc:     events.NewAccumulator(),
		log:     logger.Named("pipeline"),
		metrics: metrics.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Accumulator returns the trigger table the pipeline writes to.
func (p *Pipeline) Accumulator() *events.Accumulator { return p.acc }

// Run filters every template and returns the trigger table after the
// configured post-processing cuts. On failure the returned accumulator holds
// the templates finalised before the error; the failing template is
// discarded and the run stops handing out templates.
func (p *Pipeline) Run(ctx context.Context) (*events.Accumulator, error) {
	for i, s := range p.spectra {
		if err := s.Overwhiten(p.psds[i]); err != nil {
			return p.acc, err
		}
	}

	eng, err := filter.New(p.geom, p.cfg.FilterOptions(p.pool)...)
	if err != nil {
		return p.acc, err
	}
	var subBank []*template.Template
	if p.cfg.BankVetoTemplates > 0 {
		if subBank, err = p.bank.Subset(p.cfg.BankVetoTemplates); err != nil {
			return p.acc, fmt.Errorf("bank veto templates: %w", err)
		}
	}
	battery, err := veto.NewBattery(p.geom, p.cfg.VetoConfig(subBank), p.psds)
	if err != nil {
		return p.acc, err
	}

	start := time.Now()
	p.log.Info(ctx, "search started",
		logger.Int("templates", p.bank.Len()),
		logger.Int("detectors", len(p.spectra)),
		logger.Int("workers", p.cfg.Workers))

	if err := p.runWorkers(ctx, eng, battery); err != nil {
		return p.acc, err
	}

	p.applyCuts(ctx)
	p.log.Info(ctx, "search finished",
		logger.Int("triggers", p.acc.Len()),
		logger.String("elapsed", time.Since(start).String()))
	return p.acc, nil
}

func (p *Pipeline) runWorkers(ctx context.Context, eng *filter.Engine, battery *veto.Battery) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	workers := min(p.cfg.Workers, max(p.bank.Len(), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.metrics.WorkerStarted()
			defer p.metrics.WorkerStopped()

			wlog := p.log.Named("worker-" + strconv.Itoa(id))
			tmpl := template.New(p.geom)
			for idx := range jobs {
				if err := p.processTemplate(ctx, wlog, eng, battery, tmpl, idx); err != nil {
					p.metrics.RecordTemplateFailed()
					wlog.Error(ctx, "template failed", logger.Int("template", idx), logger.Error(err))
					fail(err)
					return
				}
				p.metrics.RecordTemplateProcessed()
			}
		}(w)
	}

	it := p.bank.Iterator()
feed:
	for {
		idx, _, ok := it.Next()
		if !ok {
			break
		}
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// processTemplate filters one template against every segment, clusters
// across segment boundaries and finalises the scope. tmpl is the worker's
// reusable buffer.
func (p *Pipeline) processTemplate(ctx context.Context, log logger.Logger, eng *filter.Engine,
	battery *veto.Battery, tmpl *template.Template, idx int,
) error {
	if err := p.bank.Generate(idx, tmpl); err != nil {
		return err
	}
	scope := p.acc.NewTemplate(idx, tmpl.Params)
	kmin := p.geom.KMin()

	for i, sp := range p.spectra {
		det := sp.Detector
		psd := p.psds[i]
		if err := scope.SetSigmaSq(det.ID, tmpl.SigmaSq(psd, kmin), psd.Ref); err != nil {
			scope.Discard()
			return err
		}

		for _, seg := range sp.Segments {
			if err := ctx.Err(); err != nil {
				scope.Discard()
				return err
			}
			started := time.Now()
			res, err := eng.FilterAndCluster(seg, tmpl, p.cfg.ClusterWindow)
			if err != nil {
				scope.Discard()
				return fmt.Errorf("template %d, %s segment at %d: %w", idx, det, seg.Offset, err)
			}
			cands := events.Candidates(det.ID, res, battery.Compute(veto.FromResult(seg, tmpl, res)))
			res.Release()
			p.metrics.RecordSegment(det.Name, res.Above, res.Above-len(cands), time.Since(started))

			if err := scope.AddEvents(det.ID, cands); err != nil {
				scope.Discard()
				return err
			}
		}

		removed, err := scope.ClusterSingleDetector(det.ID, p.cfg.ClusterWindow)
		if err != nil {
			scope.Discard()
			return err
		}
		p.metrics.RecordClustered(det.Name, removed)
	}

	n := scope.Len()
	if err := p.acc.FinalizeTemplate(scope); err != nil {
		scope.Discard()
		return err
	}
	log.Debug(ctx, "template finalised", logger.Int("template", idx), logger.Int("triggers", n))
	return nil
}

func (p *Pipeline) applyCuts(ctx context.Context) {
	if p.cfg.ChisqBins > 0 && p.cfg.ChisqThreshold > 0 {
		removed := p.acc.ThresholdChisq(p.cfg.ChisqThreshold, p.cfg.ChisqBins, p.cfg.ChisqDelta)
		p.metrics.RecordCut(metrics.CutChisq, removed)
		p.log.Debug(ctx, "chisq cut", logger.Int("removed", removed))
	}
	if p.cfg.NewSNRThreshold > 0 {
		removed := p.acc.ThresholdNewSNR(p.cfg.NewSNRThreshold)
		p.metrics.RecordCut(metrics.CutNewSNR, removed)
		p.log.Debug(ctx, "newsnr cut", logger.Int("removed", removed))
	}
}
