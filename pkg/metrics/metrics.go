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

	// TakeoversTotal tracks takeover attempts by outcome.
	TakeoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_takeovers_total",
			Help: "Total chat takeover attempts",
		},
		[]string{"tenant_id", "outcome"},
	)

	// ReleasesTotal tracks chat releases by reason.
	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_releases_total",
			Help: "Total chat releases",
		},
		[]string{"tenant_id", "reason"},
	)

	// TakeoverDuration tracks manager session length in minutes.
	TakeoverDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_takeover_duration_minutes",
			Help:    "Manager session duration in minutes",
			Buckets: []float64{1, 2, 5, 10, 15, 30, 45, 60, 120},
		},
		[]string{"tenant_id"},
	)

	// ManagerMessagesTotal tracks manager messages sent.
	ManagerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manager_messages_total",
			Help: "Total manager messages sent",
		},
		[]string{"tenant_id"},
	)

	// RateLimitRejections tracks manager sends rejected by the sliding window.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manager_rate_limit_rejections_total",
			Help: "Manager messages rejected by the rate limit",
		},
		[]string{"tenant_id"},
	)

	// NotificationsTotal tracks handoff notifications by outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_notifications_total",
			Help: "Handoff notifications attempted",
		},
		[]string{"kind", "outcome"},
	)

	// AnalyticsEventsTotal tracks analytics events by disposition.
	AnalyticsEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Analytics events emitted, discarded, or failed",
		},
		[]string{"event_name", "disposition"},
	)

	// AssistantRepliesTotal tracks AI assistant replies.
	AssistantRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_replies_total",
			Help: "Total AI assistant replies generated",
		},
		[]string{"tenant_id", "status"},
	)

	// LLMCompletionDuration tracks LLM completion latency.
	LLMCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model", "status"},
	)

	// JobsTotal tracks background task executions.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Background task executions",
		},
		[]string{"task_type", "status"},
	)

	// LiveConnections tracks open live-update streams.
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_stream_connections",
			Help: "Open live chat update streams",
		},
	)

	// JobQueueDepth tracks pending messages in the task stream.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_queue_depth",
			Help: "Pending messages in the background task stream",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTakeover records a takeover attempt outcome.
func RecordTakeover(tenantID, outcome string) {
	TakeoversTotal.WithLabelValues(tenantID, outcome).Inc()
}

// RecordRelease records a chat release and its session duration.
func RecordRelease(tenantID, reason string, durationMinutes float64) {
	ReleasesTotal.WithLabelValues(tenantID, reason).Inc()
	TakeoverDuration.WithLabelValues(tenantID).Observe(durationMinutes)
}

// RecordNotification records a handoff notification attempt.
func RecordNotification(kind string, sent bool) {
	outcome := "sent"
	if !sent {
		outcome = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}
