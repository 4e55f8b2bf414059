package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads the current value of a counter child.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	var m dto.Metric
	c, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecordDispatch(t *testing.T) {
	before := counterValue(t, MessagesDispatchedTotal, "SMS", "sent")
	RecordDispatch("SMS", true, 50*time.Millisecond)
	after := counterValue(t, MessagesDispatchedTotal, "SMS", "sent")

	assert.Equal(t, before+1, after)
}

func TestRecordDispatchFailure(t *testing.T) {
	before := counterValue(t, MessagesDispatchedTotal, "EMAIL", "failed")
	RecordDispatch("EMAIL", false, time.Millisecond)
	after := counterValue(t, MessagesDispatchedTotal, "EMAIL", "failed")

	assert.Equal(t, before+1, after)
}

func TestRecordRateLimitDecision(t *testing.T) {
	before := counterValue(t, RateLimitDecisionsTotal, "qps", "denied")
	RecordRateLimitDecision("qps", false)
	after := counterValue(t, RateLimitDecisionsTotal, "qps", "denied")

	assert.Equal(t, before+1, after)
}

func TestRecordQueueAck(t *testing.T) {
	before := counterValue(t, QueueAckedTotal, "message_send", "nack")
	RecordQueueAck("message_send", "nack")
	after := counterValue(t, QueueAckedTotal, "message_send", "nack")

	assert.Equal(t, before+1, after)
}
