package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for agentdesk. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	// MessageCounter counts processed messages by channel and outcome
	MessageCounter *prometheus.CounterVec

	// SecurityFlagCounter counts prompt-injection detections by type and severity
	SecurityFlagCounter *prometheus.CounterVec

	// LLMRequestDuration tracks provider latency in seconds
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider calls by provider, model and status
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed counts tokens reported by providers
	LLMTokensUsed *prometheus.CounterVec

	// ActionCounter counts dispatched workspace actions by type and status
	ActionCounter *prometheus.CounterVec

	// OptionalFailureCounter counts failed best-effort pipeline stages
	OptionalFailureCounter *prometheus.CounterVec

	// HTTPRequestDuration tracks API latency by method, route and status
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry. The registry also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWith(reg)
}

// NewMetricsWith registers all collectors on reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_messages_total",
				Help: "Total number of messages processed by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		SecurityFlagCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_security_flags_total",
				Help: "Total number of prompt-injection detections by type and severity",
			},
			[]string{"type", "severity"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentdesk_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_llm_tokens_total",
				Help: "Total number of tokens used by provider and model",
			},
			[]string{"provider", "model"},
		),
		ActionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_actions_total",
				Help: "Total number of workspace actions dispatched by type and status",
			},
			[]string{"type", "status"},
		),
		OptionalFailureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdesk_optional_stage_failures_total",
				Help: "Total number of failed best-effort pipeline stages",
			},
			[]string{"stage"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentdesk_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// MessageProcessed counts one message. outcome is "ok", "blocked" or "error".
func (m *Metrics) MessageProcessed(channel, outcome string) {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues(channel, outcome).Inc()
}

// SecurityFlag counts one prompt-injection detection.
func (m *Metrics) SecurityFlag(flagType, severity string) {
	if m == nil {
		return
	}
	m.SecurityFlagCounter.WithLabelValues(flagType, severity).Inc()
}

// LLMRequest records a provider call.
//
//	start := time.Now()
//	// ... call provider ...
//	metrics.LLMRequest("openai", "gpt-4o", "success", time.Since(start), resp.TokensUsed)
func (m *Metrics) LLMRequest(provider, model, status string, d time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if tokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// ActionDispatched counts one workspace action. status is "ok" or "error".
func (m *Metrics) ActionDispatched(actionType, status string) {
	if m == nil {
		return
	}
	m.ActionCounter.WithLabelValues(actionType, status).Inc()
}

// OptionalFailure counts a best-effort stage that failed without failing the message.
func (m *Metrics) OptionalFailure(stage string) {
	if m == nil {
		return
	}
	m.OptionalFailureCounter.WithLabelValues(stage).Inc()
}

// HTTPRequest records one API request.
func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
