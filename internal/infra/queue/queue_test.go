package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID string `json:"id"`
}

func newTestQueue(t *testing.T) (*redis.Client, *Producer, *Consumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.DiscardHandler)
	producer := NewProducer(client, logger)
	consumer := NewConsumer(client, ConsumerConfig{
		Queue:             "messages",
		Prefetch:          2,
		VisibilityTimeout: time.Minute,
		PollInterval:      10 * time.Millisecond,
	}, logger)
	return client, producer, consumer
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 0, ClampPriority(-3))
	assert.Equal(t, 10, ClampPriority(42))
	assert.Equal(t, 7, ClampPriority(7))
}

func TestHigherPriorityDequeuedFirst(t *testing.T) {
	_, producer, consumer := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "low"}, 1))
	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "high"}, 9))
	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "mid"}, 5))

	var order []string
	for i := 0; i < 3; i++ {
		d, err := consumer.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, d)
		var p testPayload
		require.NoError(t, d.DecodeData(&p))
		order = append(order, p.ID)
		require.NoError(t, d.Ack(ctx))
	}
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestSamePriorityIsFIFO(t *testing.T) {
	_, producer, consumer := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: id}, 5))
	}

	var order []string
	for i := 0; i < 3; i++ {
		d, err := consumer.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, d)
		var p testPayload
		require.NoError(t, d.DecodeData(&p))
		order = append(order, p.ID)
		require.NoError(t, d.Ack(ctx))
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	_, _, consumer := newTestQueue(t)
	d, err := consumer.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestNackRequeuesForRedelivery(t *testing.T) {
	_, producer, consumer := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "x"}, 3))

	d, err := consumer.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, d.Nack(ctx))

	redelivered, err := consumer.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	var p testPayload
	require.NoError(t, redelivered.DecodeData(&p))
	assert.Equal(t, "x", p.ID)
}

func TestUnackedDeliveryIsReclaimed(t *testing.T) {
	client, producer, _ := newTestQueue(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	short := NewConsumer(client, ConsumerConfig{
		Queue:             "messages",
		VisibilityTimeout: 50 * time.Millisecond,
	}, logger)

	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "orphan"}, 5))

	d, err := short.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	// Consumer dies here without acking.

	time.Sleep(80 * time.Millisecond)
	n, err := short.ReclaimExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again, err := short.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	var p testPayload
	require.NoError(t, again.DecodeData(&p))
	assert.Equal(t, "orphan", p.ID)
}

func TestDelayedMessageInvisibleUntilDue(t *testing.T) {
	_, producer, consumer := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, producer.PublishDelayed(ctx, "messages", testPayload{ID: "later"}, 5, 50*time.Millisecond))

	n, err := consumer.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	d, err := consumer.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	time.Sleep(60 * time.Millisecond)
	n, err = consumer.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	d, err = consumer.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 5, d.Envelope.Priority)
}

func TestDepthCountsWaitingAndDelayed(t *testing.T) {
	_, producer, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "a"}, 2))
	require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: "b"}, 8))
	require.NoError(t, producer.PublishDelayed(ctx, "messages", testPayload{ID: "c"}, 5, time.Hour))

	depth, err := producer.Depth(ctx, "messages")
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)
}

func TestRunProcessesAndAcks(t *testing.T) {
	client, producer, consumer := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, producer.Publish(ctx, "messages", testPayload{ID: id}, 5))
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{})
	go func() {
		_ = consumer.Run(ctx, func(ctx context.Context, d *Delivery) error {
			var p testPayload
			if err := d.DecodeData(&p); err != nil {
				return err
			}
			mu.Lock()
			seen[p.ID] = true
			if len(seen) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	cancel()

	require.Eventually(t, func() bool {
		n, err := client.ZCard(context.Background(), processingKey("messages")).Result()
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond, "processing set should drain after acks")
}
