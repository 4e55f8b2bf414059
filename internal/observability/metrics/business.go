package metrics

import "time"

// RecordDispatch records one message dispatch attempt and its outcome.
// Status should be "sent" or "failed".
func RecordDispatch(channel string, success bool, duration time.Duration) {
	status := "sent"
	if !success {
		status = "failed"
	}
	MessagesDispatchedTotal.WithLabelValues(channel, status).Inc()
	MessageSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordRetryScheduled records that a failed message was re-queued for retry.
func RecordRetryScheduled(channel string) {
	MessageRetriesTotal.WithLabelValues(channel).Inc()
}

// RecordQueuePublish records one envelope published to the named queue.
func RecordQueuePublish(queue string) {
	QueuePublishedTotal.WithLabelValues(queue).Inc()
}

// RecordQueueAck records an acknowledgement outcome ("ack" or "nack").
func RecordQueueAck(queue, outcome string) {
	QueueAckedTotal.WithLabelValues(queue, outcome).Inc()
}

// UpdateQueueDepth updates the pending-envelope gauge for the named queue.
func UpdateQueueDepth(queue string, depth int64) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordJobRun records one scheduled job run with its outcome
// ("success" or "failure").
func RecordJobRun(job, outcome string) {
	JobRunsTotal.WithLabelValues(job, outcome).Inc()
}

// RecordJobDuration records how long a scheduled job took.
func RecordJobDuration(job string, duration time.Duration) {
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordRateLimitDecision records one limiter admission decision.
func RecordRateLimitDecision(limiter string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	RateLimitDecisionsTotal.WithLabelValues(limiter, decision).Inc()
}

// RecordRateLimitStoreError records a store failure on the admission path.
func RecordRateLimitStoreError(limiter string) {
	RateLimitStoreErrorsTotal.WithLabelValues(limiter).Inc()
}
