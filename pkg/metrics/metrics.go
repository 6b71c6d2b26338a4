// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhookEventsTotal tracks inbound webhook events by pipeline outcome.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook events by outcome",
		},
		[]string{"outcome"},
	)

	// WebhookDuration tracks end-to-end webhook processing duration.
	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "End-to-end webhook processing duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// DedupHitsTotal tracks webhook deliveries suppressed as duplicates.
	DedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_dedup_hits_total",
			Help: "Webhook deliveries suppressed by the dedup cache",
		},
	)

	// AssistantRunDuration tracks assistant run duration to terminal status.
	AssistantRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_run_duration_seconds",
			Help:    "Assistant run duration to terminal status",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		},
		[]string{"status"},
	)

	// AssistantRunsTotal tracks assistant runs by terminal status.
	AssistantRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_runs_total",
			Help: "Assistant runs by terminal status",
		},
		[]string{"status"},
	)

	// WSConnectionsActive tracks active operator websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active operator websocket connections",
		},
	)

	// MessagesTotal tracks persisted messages by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Persisted conversation messages by role",
		},
		[]string{"role"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Conversations created by mode",
		},
		[]string{"mode"},
	)

	// OutboundSendsTotal tracks outbound provider sends.
	OutboundSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_sends_total",
			Help: "Outbound messaging provider sends",
		},
		[]string{"status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordWebhook records the outcome and duration of a webhook delivery.
func RecordWebhook(outcome string, duration float64) {
	WebhookEventsTotal.WithLabelValues(outcome).Inc()
	WebhookDuration.Observe(duration)
}

// RecordAssistantRun records an assistant run reaching a terminal status.
func RecordAssistantRun(status string, duration float64) {
	AssistantRunDuration.WithLabelValues(status).Observe(duration)
	AssistantRunsTotal.WithLabelValues(status).Inc()
}

// IncrementWSConnections increments the active websocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active websocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
