package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"msghub/internal/observability/metrics"
)

// Producer publishes messages onto named queues.
type Producer struct {
	client *redis.Client
	logger *slog.Logger
}

// NewProducer creates a Producer over the given store.
func NewProducer(client *redis.Client, logger *slog.Logger) *Producer {
	return &Producer{client: client, logger: logger}
}

// Publish enqueues payload on the named queue at the given priority.
// Priorities outside the accepted range are clamped.
func (p *Producer) Publish(ctx context.Context, queue string, payload any, priority int) error {
	return p.publish(ctx, queue, payload, priority, 0)
}

// PublishDelayed enqueues payload to become visible after the delay elapses.
func (p *Producer) PublishDelayed(ctx context.Context, queue string, payload any, priority int, delay time.Duration) error {
	return p.publish(ctx, queue, payload, priority, delay)
}

func (p *Producer) publish(ctx context.Context, queue string, payload any, priority int, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encode payload for %s: %w", queue, err)
	}
	priority = ClampPriority(priority)
	env := Envelope{
		Data:      data,
		Timestamp: time.Now().UTC(),
		Priority:  priority,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: encode envelope for %s: %w", queue, err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := p.client.ZAdd(ctx, delayedKey(queue), redis.Z{Score: readyAt, Member: raw}).Err(); err != nil {
			return fmt.Errorf("queue: publish delayed to %s: %w", queue, err)
		}
	} else {
		if err := p.client.LPush(ctx, queueKey(queue, priority), raw).Err(); err != nil {
			return fmt.Errorf("queue: publish to %s: %w", queue, err)
		}
	}

	metrics.RecordQueuePublish(queue)
	p.logger.Debug("message published",
		slog.String("queue", queue),
		slog.Int("priority", priority),
		slog.Duration("delay", delay),
	)
	return nil
}

// Depth reports how many messages are waiting on the queue, across all
// priorities and the delayed set.
func (p *Producer) Depth(ctx context.Context, queue string) (int64, error) {
	var total int64
	for prio := MinPriority; prio <= MaxPriority; prio++ {
		n, err := p.client.LLen(ctx, queueKey(queue, prio)).Result()
		if err != nil {
			return 0, fmt.Errorf("queue: depth of %s: %w", queue, err)
		}
		total += n
	}
	delayed, err := p.client.ZCard(ctx, delayedKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth of %s: %w", queue, err)
	}
	return total + delayed, nil
}
