// Package metrics defines the Prometheus collectors used by the navigator
// and exposes an HTTP handler for scraping. Every recording method is safe
// to call on a nil *Metrics, so components work unchanged when metrics are
// disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the navigator.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	RefusalsTotal        *prometheus.CounterVec
	ConfidenceTotal      *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	SectionsReturned     prometheus.Histogram
	LLMAttemptsTotal     *prometheus.CounterVec
	LLMFallbacksTotal    prometheus.Counter
	LLMRewriteDistance   prometheus.Histogram
	CacheRequestsTotal   *prometheus.CounterVec
	AuditEventsTotal     *prometheus.CounterVec
	CorpusDocuments      prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry, which keeps tests independent of each other.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_queries_total",
				Help: "Questions answered by outcome (answered, refused, no_match).",
			},
			[]string{"outcome"},
		),
		RefusalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_refusals_total",
				Help: "Refused questions by guardrail category.",
			},
			[]string{"category"},
		),
		ConfidenceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_confidence_total",
				Help: "Responses by confidence level.",
			},
			[]string{"level"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "navigator_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"stage"},
		),
		SectionsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "navigator_sections_returned",
				Help:    "Number of relevant sections per response.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		LLMAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_llm_attempts_total",
				Help: "LLM calls by model and outcome.",
			},
			[]string{"model", "outcome"},
		),
		LLMFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "navigator_llm_fallbacks_total",
				Help: "Responses that kept the deterministic summary after an LLM problem.",
			},
		),
		LLMRewriteDistance: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "navigator_llm_rewrite_distance_chars",
				Help:    "Character edit distance between the extractive and rewritten summary.",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10),
			},
		),
		CacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_cache_requests_total",
				Help: "Response cache lookups by backend and result (hit, miss, error).",
			},
			[]string{"backend", "result"},
		),
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_audit_events_total",
				Help: "Decision audit events by status (published, dropped, failed).",
			},
			[]string{"status"},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "navigator_corpus_documents",
				Help: "Number of documents in the loaded corpus.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.RefusalsTotal,
		m.ConfidenceTotal,
		m.StageDuration,
		m.SectionsReturned,
		m.LLMAttemptsTotal,
		m.LLMFallbacksTotal,
		m.LLMRewriteDistance,
		m.CacheRequestsTotal,
		m.AuditEventsTotal,
		m.CorpusDocuments,
		m.CircuitBreakerState,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns the scrape handler for the registry m was built with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Query(outcome, level string, sections int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.ConfidenceTotal.WithLabelValues(level).Inc()
	m.SectionsReturned.Observe(float64(sections))
}

func (m *Metrics) Refusal(category string) {
	if m == nil {
		return
	}
	m.RefusalsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) LLMAttempt(model, outcome string) {
	if m == nil {
		return
	}
	m.LLMAttemptsTotal.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) LLMFallback() {
	if m == nil {
		return
	}
	m.LLMFallbacksTotal.Inc()
}

func (m *Metrics) RewriteDistance(chars int) {
	if m == nil {
		return
	}
	m.LLMRewriteDistance.Observe(float64(chars))
}

func (m *Metrics) Cache(backend, result string) {
	if m == nil {
		return
	}
	m.CacheRequestsTotal.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) Audit(status string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetCorpusDocuments(n int) {
	if m == nil {
		return
	}
	m.CorpusDocuments.Set(float64(n))
}

// SetBreakerState records a circuit breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
