package telemetry

import (
	"net/http"
	"strconv"

	"github.com/mohammad-safakhou/pdfbot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeFallback  = "fallback"
)

// Metrics owns a private prometheus registry and the service's collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	answers        *prometheus.CounterVec
	modelErrors    prometheus.Counter
	ingests        *prometheus.CounterVec
	documentChunks prometheus.Gauge
	webhookEvents  *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfbot_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "path", "status"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfbot_answers_total",
			Help: "Answers produced, by channel.",
		}, []string{"channel"}),
		modelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfbot_model_errors_total",
			Help: "Failed language model calls, including retried ones.",
		}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfbot_ingests_total",
			Help: "Document ingests, by outcome.",
		}, []string{"outcome"}),
		documentChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pdfbot_document_chunks",
			Help: "Chunks in the active knowledge base.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfbot_webhook_events_total",
			Help: "Chatwoot webhook events, by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfbot_chatwoot_deliveries_total",
			Help: "Replies posted back to Chatwoot, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.answers, m.modelErrors, m.ingests,
		m.documentChunks, m.webhookEvents, m.deliveries,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) AnswerServed(channel models.Channel) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(string(channel)).Inc()
}

func (m *Metrics) ModelError() {
	if m == nil {
		return
	}
	m.modelErrors.Inc()
}

// Ingested records an ingest outcome; chunks is only applied on success.
func (m *Metrics) Ingested(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.documentChunks.Set(float64(chunks))
	}
}

// Unloaded resets the chunk gauge after the knowledge base was dropped.
func (m *Metrics) Unloaded() {
	if m == nil {
		return
	}
	m.documentChunks.Set(0)
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}
