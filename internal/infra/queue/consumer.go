package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"msghub/internal/observability/metrics"
)

// dequeueScript pops the highest-priority waiting message and parks it in the
// processing set, scored by its reclaim deadline.
var dequeueScript = redis.NewScript(`
local base = ARGV[1]
local processing = ARGV[2]
local deadline = tonumber(ARGV[3])
for prio = 10, 0, -1 do
    local item = redis.call('RPOP', base .. ':p' .. prio)
    if item then
        redis.call('ZADD', processing, deadline, item)
        return item
    end
end
return false
`)

// promoteScript moves due delayed messages onto their priority lists.
var promoteScript = redis.NewScript(`
local delayed = KEYS[1]
local base = ARGV[1]
local now = tonumber(ARGV[2])
local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now, 'LIMIT', 0, 100)
for _, item in ipairs(due) do
    local env = cjson.decode(item)
    local prio = tonumber(env['priority']) or 0
    redis.call('LPUSH', base .. ':p' .. prio, item)
    redis.call('ZREM', delayed, item)
end
return #due
`)

// reclaimScript requeues processing entries whose deadline has passed.
var reclaimScript = redis.NewScript(`
local processing = KEYS[1]
local base = ARGV[1]
local now = tonumber(ARGV[2])
local expired = redis.call('ZRANGEBYSCORE', processing, '-inf', now, 'LIMIT', 0, 100)
for _, item in ipairs(expired) do
    local env = cjson.decode(item)
    local prio = tonumber(env['priority']) or 0
    redis.call('RPUSH', base .. ':p' .. prio, item)
    redis.call('ZREM', processing, item)
end
return #expired
`)

// Delivery is one message handed to a handler. Ack or Nack must be called
// exactly once.
type Delivery struct {
	Envelope Envelope

	queue    string
	raw      string
	client   *redis.Client
	priority int
}

// DecodeData unmarshals the application payload into v.
func (d *Delivery) DecodeData(v any) error {
	return json.Unmarshal(d.Envelope.Data, v)
}

// Ack marks the delivery processed and removes it from the processing set.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.client.ZRem(ctx, processingKey(d.queue), d.raw).Err(); err != nil {
		return fmt.Errorf("queue: ack on %s: %w", d.queue, err)
	}
	metrics.RecordQueueAck(d.queue, "ack")
	return nil
}

// Nack returns the delivery to the front of its priority list for another
// attempt.
func (d *Delivery) Nack(ctx context.Context) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, processingKey(d.queue), d.raw)
	pipe.RPush(ctx, queueKey(d.queue, d.priority), d.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: nack on %s: %w", d.queue, err)
	}
	metrics.RecordQueueAck(d.queue, "nack")
	return nil
}

// Handler processes one delivery. Returning nil acknowledges the message;
// returning an error requeues it.
type Handler func(ctx context.Context, d *Delivery) error

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	// Queue is the logical queue name to consume.
	Queue string

	// Prefetch bounds how many deliveries may be in flight at once.
	Prefetch int

	// VisibilityTimeout is how long a delivery may stay unacknowledged
	// before it is reclaimed for another consumer.
	VisibilityTimeout time.Duration

	// PollInterval is how long to sleep when the queue is empty.
	PollInterval time.Duration
}

func (c *ConsumerConfig) defaults() {
	if c.Prefetch <= 0 {
		c.Prefetch = 5
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
}

// Consumer pulls deliveries off a queue and runs a Handler for each, with a
// bounded number in flight.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	logger *slog.Logger
	sem    *semaphore.Weighted
}

// NewConsumer creates a Consumer for the configured queue.
func NewConsumer(client *redis.Client, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	cfg.defaults()
	return &Consumer{
		client: client,
		cfg:    cfg,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(cfg.Prefetch)),
	}
}

// Run consumes until ctx is cancelled. It promotes due delayed messages and
// reclaims expired deliveries as part of the loop.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.logger.Info("consumer started",
		slog.String("queue", c.cfg.Queue),
		slog.Int("prefetch", c.cfg.Prefetch),
	)
	for {
		if err := ctx.Err(); err != nil {
			return c.drain(err)
		}

		if _, err := c.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("delayed promotion failed", slog.Any("error", err))
		}
		if _, err := c.ReclaimExpired(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("reclaim failed", slog.Any("error", err))
		}

		d, err := c.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.drain(ctx.Err())
			}
			c.logger.Error("dequeue failed", slog.Any("error", err))
			sleep(ctx, c.cfg.PollInterval)
			continue
		}
		if d == nil {
			sleep(ctx, c.cfg.PollInterval)
			continue
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			// Shutting down with a delivery in hand; leave it for reclaim.
			return c.drain(err)
		}
		go func(d *Delivery) {
			defer c.sem.Release(1)
			c.handle(ctx, handler, d)
		}(d)
	}
}

// Dequeue pops one waiting delivery, or nil when the queue is empty.
func (c *Consumer) Dequeue(ctx context.Context) (*Delivery, error) {
	deadline := time.Now().Add(c.cfg.VisibilityTimeout).UnixMilli()
	raw, err := dequeueScript.Run(ctx, c.client, []string{},
		"queue:"+c.cfg.Queue,
		processingKey(c.cfg.Queue),
		deadline,
	).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue from %s: %w", c.cfg.Queue, err)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Drop the malformed entry from processing so it is not reclaimed
		// forever.
		c.client.ZRem(ctx, processingKey(c.cfg.Queue), raw)
		return nil, fmt.Errorf("queue: decode envelope from %s: %w", c.cfg.Queue, err)
	}
	return &Delivery{
		Envelope: env,
		queue:    c.cfg.Queue,
		raw:      raw,
		client:   c.client,
		priority: ClampPriority(env.Priority),
	}, nil
}

// PromoteDelayed moves messages whose delay has elapsed onto their priority
// lists. It returns how many were promoted.
func (c *Consumer) PromoteDelayed(ctx context.Context) (int64, error) {
	n, err := promoteScript.Run(ctx, c.client, []string{delayedKey(c.cfg.Queue)},
		"queue:"+c.cfg.Queue,
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("queue: promote delayed on %s: %w", c.cfg.Queue, err)
	}
	return n, nil
}

// ReclaimExpired requeues deliveries whose visibility timeout has passed
// without an ack. It returns how many were reclaimed.
func (c *Consumer) ReclaimExpired(ctx context.Context) (int64, error) {
	n, err := reclaimScript.Run(ctx, c.client, []string{processingKey(c.cfg.Queue)},
		"queue:"+c.cfg.Queue,
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("queue: reclaim on %s: %w", c.cfg.Queue, err)
	}
	if n > 0 {
		metrics.RecordQueueAck(c.cfg.Queue, "reclaimed")
		c.logger.Warn("reclaimed expired deliveries",
			slog.String("queue", c.cfg.Queue),
			slog.Int64("count", n),
		)
	}
	return n, nil
}

func (c *Consumer) handle(ctx context.Context, handler Handler, d *Delivery) {
	err := handler(ctx, d)
	if err != nil {
		c.logger.Error("handler failed, requeuing delivery",
			slog.String("queue", c.cfg.Queue),
			slog.Any("error", err),
		)
		if nackErr := d.Nack(context.WithoutCancel(ctx)); nackErr != nil {
			c.logger.Error("nack failed", slog.Any("error", nackErr))
		}
		return
	}
	if ackErr := d.Ack(context.WithoutCancel(ctx)); ackErr != nil {
		c.logger.Error("ack failed", slog.Any("error", ackErr))
	}
}

// drain waits for in-flight handlers to finish before returning.
func (c *Consumer) drain(cause error) error {
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.sem.Acquire(drainCtx, int64(c.cfg.Prefetch)); err != nil {
		c.logger.Warn("shutdown drain timed out", slog.Any("error", err))
	}
	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
