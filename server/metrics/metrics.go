package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the gateway.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	// Pipeline metrics
	DeliveriesTotal     *prometheus.CounterVec
	CooldownRejections  prometheus.Counter
	CompletionDuration  prometheus.Histogram
	CompletionRetries   prometheus.Counter
	PromptTokens        prometheus.Histogram
	AttachmentsResolved *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chloe_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chloe_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chloe_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chloe_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chloe_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chloe_deliveries_total",
				Help: "Webhook deliveries by terminal pipeline outcome",
			},
			[]string{"outcome"},
		),
		CooldownRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chloe_cooldown_rejections_total",
				Help: "Deliveries rejected because the user was on cooldown",
			},
		),
		CompletionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chloe_completion_duration_seconds",
				Help:    "End-to-end duration of completion backend calls, retries included",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CompletionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chloe_completion_retries_total",
				Help: "Retries performed after rate-limit responses from the completion backend",
			},
		),
		PromptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chloe_prompt_tokens",
				Help:    "Token count of sanitized prompts sent to the completion backend",
				Buckets: prometheus.ExponentialBuckets(16, 2, 10),
			},
		),
		AttachmentsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chloe_attachments_resolved_total",
				Help: "Attachment extraction attempts by result",
			},
			[]string{"result"},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	m.RequestDuration.WithLabelValues("/health").Observe(0)
	m.DeliveriesTotal.WithLabelValues("delivered").Add(0)
	m.DeliveriesTotal.WithLabelValues("rejected").Add(0)
	m.DeliveriesTotal.WithLabelValues("errored").Add(0)

	return m
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false, // Disable OpenMetrics format to avoid escaping=values
	})
}
