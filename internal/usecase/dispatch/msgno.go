package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageNumberGenerator issues business message numbers of the form
// MSG<YYYYMMDDHHMMSS><6-digit sequence>. The sequence is a shared counter
// per second, so numbers stay unique across instances.
type MessageNumberGenerator struct {
	client *redis.Client
	now    func() time.Time
}

// NewMessageNumberGenerator creates a generator backed by the shared counter
// store.
func NewMessageNumberGenerator(client *redis.Client) *MessageNumberGenerator {
	return &MessageNumberGenerator{client: client, now: time.Now}
}

// Next issues one message number.
func (g *MessageNumberGenerator) Next(ctx context.Context) (string, error) {
	stamp := g.now().Format("20060102150405")
	key := "msg_no:seq:" + stamp
	seq, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("message number: %w", err)
	}
	// The counter key only matters within its second.
	g.client.Expire(ctx, key, 2*time.Second)
	return fmt.Sprintf("MSG%s%06d", stamp, seq%1000000), nil
}
