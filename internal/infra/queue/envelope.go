// Package queue implements a durable priority message queue on Redis. Each
// logical queue is a family of per-priority lists plus a delayed sorted set
// and a processing sorted set. Delivery is at least once: a consumer that
// dies mid-message has its delivery reclaimed after a deadline and handed to
// another consumer.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// MinPriority and MaxPriority bound the accepted priority range.
	// Higher numbers are consumed first.
	MinPriority = 0
	MaxPriority = 10
)

// Envelope is the wire format stored in the queue. Data carries the opaque
// application payload.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Priority  int             `json:"priority"`
}

// ClampPriority forces p into the accepted range.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

func queueKey(name string, priority int) string {
	return fmt.Sprintf("queue:%s:p%d", name, priority)
}

func delayedKey(name string) string {
	return fmt.Sprintf("queue:%s:delayed", name)
}

func processingKey(name string) string {
	return fmt.Sprintf("queue:%s:processing", name)
}
