// Package trace records per-message delivery timelines in Redis. Each traced
// message owns a single JSON blob keyed by its trace id, holding an ordered
// list of pipeline nodes with timings and statuses. Traces are diagnostics,
// not bookkeeping: every operation is best effort and callers treat tracer
// failures as non-fatal.
package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	traceKeyPrefix = "msg_trace:"

	// DefaultRetention is how long a trace blob survives after its last
	// update.
	DefaultRetention = 7 * 24 * time.Hour
)

// ErrTraceNotFound is returned when no trace exists for the given id.
var ErrTraceNotFound = errors.New("trace: not found")

// Node statuses.
const (
	NodeRunning = "running"
	NodeSuccess = "success"
	NodeFailed  = "failed"
)

// Node types, in pipeline order.
const (
	NodeTypeQueue    = "queue"
	NodeTypeProcess  = "process"
	NodeTypeSend     = "send"
	NodeTypeCallback = "callback"
)

// Trace statuses.
const (
	TraceInProgress = "in_progress"
	TraceCompleted  = "completed"
	TraceFailed     = "failed"
)

// Node is a single step in a message's delivery pipeline.
type Node struct {
	NodeID     string         `json:"node_id"`
	Name       string         `json:"node_name"`
	Type       string         `json:"node_type"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Input      map[string]any `json:"input_data,omitempty"`
	Output     map[string]any `json:"output_data,omitempty"`
	Error      string         `json:"error_message,omitempty"`
}

// Trace is the full recorded timeline for one message.
type Trace struct {
	TraceID         string         `json:"trace_id"`
	MessageNo       string         `json:"message_no"`
	Channel         string         `json:"channel"`
	Recipient       string         `json:"recipient"`
	FinalStatus     string         `json:"final_status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	TotalDurationMS int64          `json:"total_duration_ms,omitempty"`
	Nodes           []*Node        `json:"nodes"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Statistics summarizes the traces inside one aggregation window.
type Statistics struct {
	Total       int                `json:"total"`
	ByStatus    map[string]int     `json:"by_status"`
	ByChannel   map[string]int     `json:"by_channel"`
	FailedIDs   []string           `json:"failed_ids"`
	InProgress  int                `json:"in_progress"`
	SuccessRate float64            `json:"success_rate"`
	NodeAvgMS   map[string]float64 `json:"node_avg_ms"`
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MessageTracer reads and writes trace blobs. It is safe for concurrent use
// as long as distinct messages are traced; concurrent writers of the same
// trace id apply last-writer-wins per operation.
type MessageTracer struct {
	client    *redis.Client
	retention time.Duration
	clock     Clock
}

// NewMessageTracer creates a tracer with the default retention.
func NewMessageTracer(client *redis.Client) *MessageTracer {
	return &MessageTracer{
		client:    client,
		retention: DefaultRetention,
		clock:     systemClock{},
	}
}

// WithRetention overrides how long trace blobs are kept.
func (t *MessageTracer) WithRetention(retention time.Duration) *MessageTracer {
	t.retention = retention
	return t
}

// WithClock overrides the time source. Intended for tests.
func (t *MessageTracer) WithClock(clock Clock) *MessageTracer {
	t.clock = clock
	return t
}

// StartTrace creates a new trace blob for a message about to enter the
// pipeline.
func (t *MessageTracer) StartTrace(ctx context.Context, traceID, messageNo, channel, recipient string) error {
	tr := &Trace{
		TraceID:     traceID,
		MessageNo:   messageNo,
		Channel:     channel,
		Recipient:   recipient,
		FinalStatus: TraceInProgress,
		StartedAt:   t.clock.Now(),
		Nodes:       []*Node{},
	}
	return t.save(ctx, tr)
}

// AddNode appends a running node of the given type to the trace and returns
// its node id.
func (t *MessageTracer) AddNode(ctx context.Context, traceID, name, nodeType string, input map[string]any) (string, error) {
	tr, err := t.GetTrace(ctx, traceID)
	if err != nil {
		return "", err
	}
	nodeID := fmt.Sprintf("node_%d", len(tr.Nodes)+1)
	tr.Nodes = append(tr.Nodes, &Node{
		NodeID:    nodeID,
		Name:      name,
		Type:      nodeType,
		Status:    NodeRunning,
		StartedAt: t.clock.Now(),
		Input:     input,
	})
	if err := t.save(ctx, tr); err != nil {
		return "", err
	}
	return nodeID, nil
}

// FinishNode marks the named node finished with the given status. Output is
// attached as-is; a non-empty errMsg is recorded alongside a failed status.
func (t *MessageTracer) FinishNode(ctx context.Context, traceID, nodeID, status string, output map[string]any, errMsg string) error {
	tr, err := t.GetTrace(ctx, traceID)
	if err != nil {
		return err
	}
	node := tr.node(nodeID)
	if node == nil {
		return fmt.Errorf("trace: node %s not found in trace %s", nodeID, traceID)
	}
	now := t.clock.Now()
	node.Status = status
	node.FinishedAt = &now
	node.DurationMS = now.Sub(node.StartedAt).Milliseconds()
	if node.DurationMS < 0 {
		node.DurationMS = 0
	}
	node.Output = output
	node.Error = errMsg
	return t.save(ctx, tr)
}

// FinishTrace marks the whole trace finished and records its total duration.
func (t *MessageTracer) FinishTrace(ctx context.Context, traceID, finalStatus string) error {
	tr, err := t.GetTrace(ctx, traceID)
	if err != nil {
		return err
	}
	now := t.clock.Now()
	tr.FinalStatus = finalStatus
	tr.FinishedAt = &now
	tr.TotalDurationMS = now.Sub(tr.StartedAt).Milliseconds()
	if tr.TotalDurationMS < 0 {
		tr.TotalDurationMS = 0
	}
	return t.save(ctx, tr)
}

// GetTrace loads a trace by id.
func (t *MessageTracer) GetTrace(ctx context.Context, traceID string) (*Trace, error) {
	raw, err := t.client.Get(ctx, traceKeyPrefix+traceID).Bytes()
	if err == redis.Nil {
		return nil, ErrTraceNotFound
	}
	if err != nil {
		return nil, err
	}
	var tr Trace
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("trace: decode %s: %w", traceID, err)
	}
	return &tr, nil
}

// RecentTraces returns up to limit live traces, newest first.
func (t *MessageTracer) RecentTraces(ctx context.Context, limit int) ([]*Trace, error) {
	if limit <= 0 {
		limit = 50
	}
	traces, err := t.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	sortTracesNewestFirst(traces)
	if len(traces) > limit {
		traces = traces[:limit]
	}
	return traces, nil
}

// Statistics scans all live traces started inside the window ending now and
// aggregates counts, success rate, and average node duration by node type.
// A non-positive window covers every live trace. This walks every trace key
// and is O(total traces).
func (t *MessageTracer) Statistics(ctx context.Context, window time.Duration) (*Statistics, error) {
	traces, err := t.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var cutoff time.Time
	if window > 0 {
		cutoff = t.clock.Now().Add(-window)
	}

	stats := &Statistics{
		ByStatus:  make(map[string]int),
		ByChannel: make(map[string]int),
		NodeAvgMS: make(map[string]float64),
	}
	nodeCounts := make(map[string]int)
	var finished, completed int
	for _, tr := range traces {
		if !cutoff.IsZero() && tr.StartedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByStatus[tr.FinalStatus]++
		stats.ByChannel[tr.Channel]++
		switch tr.FinalStatus {
		case TraceCompleted:
			finished++
			completed++
		case TraceFailed:
			finished++
			stats.FailedIDs = append(stats.FailedIDs, tr.TraceID)
		case TraceInProgress:
			stats.InProgress++
		}
		for _, n := range tr.Nodes {
			if n.FinishedAt == nil {
				continue
			}
			stats.NodeAvgMS[n.Type] += float64(n.DurationMS)
			nodeCounts[n.Type]++
		}
	}
	if finished > 0 {
		stats.SuccessRate = float64(completed) / float64(finished)
	}
	for nodeType, sum := range stats.NodeAvgMS {
		stats.NodeAvgMS[nodeType] = sum / float64(nodeCounts[nodeType])
	}
	return stats, nil
}

func (t *MessageTracer) scanAll(ctx context.Context) ([]*Trace, error) {
	var traces []*Trace
	iter := t.client.Scan(ctx, 0, traceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := t.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var tr Trace
		if err := json.Unmarshal(raw, &tr); err != nil {
			// A malformed blob should not break the whole scan.
			continue
		}
		traces = append(traces, &tr)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return traces, nil
}

func (t *MessageTracer) save(ctx context.Context, tr *Trace) error {
	raw, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("trace: encode %s: %w", tr.TraceID, err)
	}
	return t.client.Set(ctx, traceKeyPrefix+tr.TraceID, raw, t.retention).Err()
}

func (tr *Trace) node(nodeID string) *Node {
	for _, n := range tr.Nodes {
		if n.NodeID == nodeID {
			return n
		}
	}
	return nil
}

func sortTracesNewestFirst(traces []*Trace) {
	sort.Slice(traces, func(i, j int) bool {
		return traces[i].StartedAt.After(traces[j].StartedAt)
	})
}
