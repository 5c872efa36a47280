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

	// WebSocketConnectionsActive tracks open WebSocket connections.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	// MessagesSentTotal tracks messages written by chat sessions.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total chat messages sent",
		},
		[]string{"kind", "result"},
	)

	// MessagesMarkedReadTotal tracks status transitions to read.
	MessagesMarkedReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_marked_read_total",
			Help: "Total messages transitioned to read",
		},
		[]string{"source"},
	)

	// SessionErrorsTotal tracks conversation sessions entering the error state.
	SessionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_errors_total",
			Help: "Conversation session errors by stage",
		},
		[]string{"stage"},
	)

	// NotificationPollsTotal tracks notification poll cycles.
	NotificationPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_polls_total",
			Help: "Notification poll cycles by result",
		},
		[]string{"result"},
	)

	// NotificationPollDuration tracks how long one poll cycle takes.
	NotificationPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_poll_duration_seconds",
			Help:    "Notification poll cycle duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessageSent records the outcome of one send.
func RecordMessageSent(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MessagesSentTotal.WithLabelValues(kind, result).Inc()
}

// RecordPoll records the outcome and duration of one notification poll.
func RecordPoll(result string, duration float64) {
	NotificationPollsTotal.WithLabelValues(result).Inc()
	NotificationPollDuration.Observe(duration)
}
