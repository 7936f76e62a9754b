// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts applied state machine transitions.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantflow_transitions_total",
			Help: "Total number of applied state machine transitions",
		},
		[]string{"machine", "event"},
	)

	// RejectedTransitions counts operations refused by the engine, by error kind.
	RejectedTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantflow_transitions_rejected_total",
			Help: "Total number of refused operations by error kind",
		},
		[]string{"machine", "kind"}, // kind: validation, forbidden, not_found, conflict, invalid_transition
	)

	// Notifications counts dispatched notices.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantflow_notifications_total",
			Help: "Total number of notifications by kind and outcome",
		},
		[]string{"kind", "status"}, // status: sent, failed, deduplicated
	)

	// EventsPublished counts domain events sent to the broker.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantflow_events_published_total",
			Help: "Total number of domain events published to the broker",
		},
		[]string{"status"},
	)

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grantflow_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	// HTTPRequestDuration is observed by the request logger.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grantflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantflow_scheduler_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"},
	)
)

func RecordTransition(machine, event string) {
	Transitions.WithLabelValues(machine, event).Inc()
}

func RecordRejected(machine, kind string) {
	RejectedTransitions.WithLabelValues(machine, kind).Inc()
}

func RecordNotification(kind, status string) {
	Notifications.WithLabelValues(kind, status).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
