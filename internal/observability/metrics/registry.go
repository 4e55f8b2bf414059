// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Dispatch metrics track the message send pipeline
var (
	// MessagesDispatchedTotal counts dispatch attempts by channel and outcome
	MessagesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_dispatched_total",
			Help: "Total number of message dispatch attempts",
		},
		[]string{"channel", "status"},
	)

	// MessageSendDuration measures end-to-end send duration per channel
	MessageSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_send_duration_seconds",
			Help:    "Channel send duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// MessageRetriesTotal counts retry scheduling events per channel
	MessageRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_retries_total",
			Help: "Total number of messages scheduled for retry",
		},
		[]string{"channel"},
	)
)

// Queue metrics track the Redis-backed message queue
var (
	// QueuePublishedTotal counts envelopes published per queue
	QueuePublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_published_total",
			Help: "Total number of envelopes published to the queue",
		},
		[]string{"queue"},
	)

	// QueueAckedTotal counts envelope acknowledgements by outcome (ack/nack)
	QueueAckedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_acked_total",
			Help: "Total number of envelope acknowledgements",
		},
		[]string{"queue", "outcome"},
	)

	// QueueDepth tracks the number of pending envelopes per queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of pending envelopes in the queue",
		},
		[]string{"queue"},
	)
)

// Scheduled job metrics
var (
	// JobRunsTotal counts job executions by job name and outcome
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "outcome"},
	)

	// JobDuration measures job execution duration in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Rate limiter metrics
var (
	// RateLimitDecisionsTotal counts admission decisions per limiter type
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"limiter", "decision"},
	)

	// RateLimitStoreErrorsTotal counts store failures (limiter failed open)
	RateLimitStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Total number of rate limit store errors (failed open)",
		},
		[]string{"limiter"},
	)
)
