package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExtractionMetrics instruments the job lifecycle and the import pipeline.
// A nil *ExtractionMetrics is valid and records nothing.
type ExtractionMetrics struct {
	registry *prometheus.Registry

	jobsSubmitted  prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsInFlight   prometheus.Gauge
	queueLag       prometheus.Histogram
	tokensConsumed *prometheus.CounterVec
	costUSD        *prometheus.CounterVec
	imports        *prometheus.CounterVec
}

func NewExtractionMetrics() *ExtractionMetrics {
	registry := prometheus.NewRegistry()

	jobsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "climate",
		Subsystem: "extraction",
		Name:      "jobs_submitted_total",
		Help:      "Total extraction jobs accepted.",
	})
	jobsFinished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "extraction",
			Name:      "jobs_finished_total",
			Help:      "Extraction jobs that reached a terminal status, by status and error category.",
		},
		[]string{"status", "category"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "climate",
			Subsystem: "extraction",
			Name:      "job_duration_seconds",
			Help:      "Time from job start to terminal status.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
	jobsInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "climate",
		Subsystem: "extraction",
		Name:      "jobs_in_flight",
		Help:      "Extraction jobs currently running.",
	})
	queueLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "climate",
		Subsystem: "extraction",
		Name:      "queue_lag_seconds",
		Help:      "Delay between job creation and processing start.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})
	tokensConsumed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "extraction",
			Name:      "tokens_total",
			Help:      "Model tokens consumed, by model and direction.",
		},
		[]string{"model", "direction"},
	)
	costUSD := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "extraction",
			Name:      "estimated_cost_usd_total",
			Help:      "Estimated model spend in US dollars.",
		},
		[]string{"model"},
	)
	imports := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "import",
			Name:      "attempts_total",
			Help:      "Import attempts by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		jobsSubmitted, jobsFinished, jobDuration, jobsInFlight, queueLag, tokensConsumed, costUSD, imports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &ExtractionMetrics{
		registry:       registry,
		jobsSubmitted:  jobsSubmitted,
		jobsFinished:   jobsFinished,
		jobDuration:    jobDuration,
		jobsInFlight:   jobsInFlight,
		queueLag:       queueLag,
		tokensConsumed: tokensConsumed,
		costUSD:        costUSD,
		imports:        imports,
	}
}

func (m *ExtractionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ExtractionMetrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

func (m *ExtractionMetrics) StartJob(lag time.Duration) {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}

// EndJob pairs with StartJob on every exit, including runs whose result was
// dropped because another worker finished the job first.
func (m *ExtractionMetrics) EndJob() {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
}

// FinishJob records a terminal transition. category is empty for COMPLETED.
func (m *ExtractionMetrics) FinishJob(status, category string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status, category).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *ExtractionMetrics) ObserveUsage(model string, inputTokens, outputTokens int64, costUSD float64) {
	if m == nil || model == "" {
		return
	}
	m.tokensConsumed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.tokensConsumed.WithLabelValues(model, "output").Add(float64(outputTokens))
	if costUSD > 0 {
		m.costUSD.WithLabelValues(model).Add(costUSD)
	}
}

func (m *ExtractionMetrics) ImportFinished(outcome string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(outcome).Inc()
}
