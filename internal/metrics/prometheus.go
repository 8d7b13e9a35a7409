package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	CutChisq  = "chisq"
	CutNewSNR = "newsnr"

	ClassFound     = "found"
	ClassMissed    = "missed"
	ClassAmbiguous = "ambiguous"
)

// Manager owns the search metrics and the registry they live on.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	templatesProcessed prometheus.Counter
	templatesFailed    prometheus.Counter
	segmentsFiltered   *prometheus.CounterVec
	candidates         *prometheus.CounterVec
	clustered          *prometheus.CounterVec
	triggersCut        *prometheus.CounterVec
	injections         *prometheus.CounterVec
	filterLatency      prometheus.Histogram
	activeWorkers      prometheus.Gauge
}

var globalManager = NewManager() //nolint:gochecknoglobals // process-wide default manager

// Default returns the process-wide manager.
func Default() *Manager { return globalManager }

// NewManager creates a manager on its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "inspiral",
		subsystem:        "search",
		histogramBuckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.templatesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "templates_processed_total",
		Help:      "Templates filtered against every segment and finalised",
	})
	m.templatesFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "templates_failed_total",
		Help:      "Templates whose processing failed and was discarded",
	})
	m.segmentsFiltered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "segments_filtered_total",
		Help:      "Segment/template pairs run through the matched filter",
	}, []string{"detector"})
	m.candidates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "candidates_above_threshold_total",
		Help:      "Samples whose |SNR| crossed the threshold before clustering",
	}, []string{"detector"})
	m.clustered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "candidates_clustered_total",
		Help:      "Candidates removed by in-segment or cross-segment clustering",
	}, []string{"detector"})
	m.triggersCut = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_cut_total",
		Help:      "Finalised triggers removed by a post-processing cut",
	}, []string{"cut"})
	m.injections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "injfind",
		Name:      "injections_total",
		Help:      "Injections classified, by outcome",
	}, []string{"class"})
	m.filterLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "filter_latency_seconds",
		Help:      "Matched filter plus vetoes latency per segment/template pair",
		Buckets:   m.histogramBuckets,
	})
	m.activeWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_workers",
		Help:      "Template workers currently running",
	})
}

// Registry returns the registry for scraping.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// RecordTemplateProcessed counts a finalised template.
func (m *Manager) RecordTemplateProcessed() { m.templatesProcessed.Inc() }

// RecordTemplateFailed counts a discarded template.
func (m *Manager) RecordTemplateFailed() { m.templatesFailed.Inc() }

// RecordSegment records one filtered segment: the samples above threshold,
// how many clustering removed and how long it took.
func (m *Manager) RecordSegment(detector string, above, removed int, elapsed time.Duration) {
	m.segmentsFiltered.WithLabelValues(detector).Inc()
	m.candidates.WithLabelValues(detector).Add(float64(above))
	m.clustered.WithLabelValues(detector).Add(float64(removed))
	m.filterLatency.Observe(elapsed.Seconds())
}

// RecordClustered counts candidates removed by cross-segment clustering.
func (m *Manager) RecordClustered(detector string, removed int) {
	m.clustered.WithLabelValues(detector).Add(float64(removed))
}

// RecordCut counts triggers removed by the named cut.
func (m *Manager) RecordCut(cut string, removed int) {
	m.triggersCut.WithLabelValues(cut).Add(float64(removed))
}

// RecordInjections counts classified injections.
func (m *Manager) RecordInjections(class string, n int) {
	m.injections.WithLabelValues(class).Add(float64(n))
}

// WorkerStarted and WorkerStopped track the active worker gauge.
func (m *Manager) WorkerStarted() { m.activeWorkers.Inc() }

// WorkerStopped decrements the active worker gauge.
func (m *Manager) WorkerStopped() { m.activeWorkers.Dec() }

// RecordCut records on the default manager.
func RecordCut(cut string, removed int) { globalManager.RecordCut(cut, removed) }

// RecordInjections records on the default manager.
func RecordInjections(class string, n int) { globalManager.RecordInjections(class, n) }

// GetRegistry returns the default manager's registry.
func GetRegistry() *prometheus.Registry { return globalManager.registry }
