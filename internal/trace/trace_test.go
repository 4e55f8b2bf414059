package trace

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracer(t *testing.T) (*MessageTracer, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMessageTracer(client).WithClock(clock), clock, mr
}

func TestTraceLifecycle(t *testing.T) {
	tracer, clock, _ := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "t-1", "MSG20260301090000000001", "SMS", "13812345678"))

	nodeID, err := tracer.AddNode(ctx, "t-1", "render_template", NodeTypeProcess, map[string]any{"template": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "node_1", nodeID)

	clock.advance(120 * time.Millisecond)
	require.NoError(t, tracer.FinishNode(ctx, "t-1", nodeID, NodeSuccess, nil, ""))

	sendID, err := tracer.AddNode(ctx, "t-1", "channel_send", NodeTypeSend, nil)
	require.NoError(t, err)
	assert.Equal(t, "node_2", sendID)
	clock.advance(300 * time.Millisecond)
	require.NoError(t, tracer.FinishNode(ctx, "t-1", sendID, NodeSuccess, map[string]any{"provider_id": "p-1"}, ""))

	require.NoError(t, tracer.FinishTrace(ctx, "t-1", TraceCompleted))

	got, err := tracer.GetTrace(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, TraceCompleted, got.FinalStatus)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, int64(420), got.TotalDurationMS)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, NodeTypeProcess, got.Nodes[0].Type)
	assert.Equal(t, int64(120), got.Nodes[0].DurationMS)
	assert.Equal(t, int64(300), got.Nodes[1].DurationMS)
	assert.Equal(t, "p-1", got.Nodes[1].Output["provider_id"])
}

func TestFinishNodeRecordsError(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "t-2", "MSG1", "EMAIL", "user@example.com"))
	nodeID, err := tracer.AddNode(ctx, "t-2", "channel_send", NodeTypeSend, nil)
	require.NoError(t, err)
	require.NoError(t, tracer.FinishNode(ctx, "t-2", nodeID, NodeFailed, nil, "smtp timeout"))
	require.NoError(t, tracer.FinishTrace(ctx, "t-2", TraceFailed))

	got, err := tracer.GetTrace(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, NodeFailed, got.Nodes[0].Status)
	assert.Equal(t, "smtp timeout", got.Nodes[0].Error)
	assert.Equal(t, TraceFailed, got.FinalStatus)
}

func TestGetTraceNotFound(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	_, err := tracer.GetTrace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTraceNotFound)
}

func TestFinishNodeUnknownNode(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	ctx := context.Background()
	require.NoError(t, tracer.StartTrace(ctx, "t-3", "MSG1", "SMS", "13812345678"))
	assert.Error(t, tracer.FinishNode(ctx, "t-3", "node_9", NodeSuccess, nil, ""))
}

func TestTraceExpiresAfterRetention(t *testing.T) {
	tracer, _, mr := newTestTracer(t)
	tracer = tracer.WithRetention(time.Hour)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "t-4", "MSG1", "SMS", "13812345678"))
	mr.FastForward(2 * time.Hour)

	_, err := tracer.GetTrace(ctx, "t-4")
	assert.ErrorIs(t, err, ErrTraceNotFound)
}

func TestStatisticsAggregatesByStatusAndChannel(t *testing.T) {
	tracer, clock, _ := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "a", "MSG1", "SMS", "13812345678"))
	nodeID, err := tracer.AddNode(ctx, "a", "channel_send", NodeTypeSend, nil)
	require.NoError(t, err)
	clock.advance(200 * time.Millisecond)
	require.NoError(t, tracer.FinishNode(ctx, "a", nodeID, NodeSuccess, nil, ""))
	require.NoError(t, tracer.FinishTrace(ctx, "a", TraceCompleted))

	require.NoError(t, tracer.StartTrace(ctx, "b", "MSG2", "SMS", "13812345679"))
	require.NoError(t, tracer.FinishTrace(ctx, "b", TraceFailed))
	require.NoError(t, tracer.StartTrace(ctx, "c", "MSG3", "EMAIL", "user@example.com"))

	stats, err := tracer.Statistics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[TraceCompleted])
	assert.Equal(t, 1, stats.ByStatus[TraceFailed])
	assert.Equal(t, 1, stats.ByStatus[TraceInProgress])
	assert.Equal(t, 2, stats.ByChannel["SMS"])
	assert.Equal(t, 1, stats.ByChannel["EMAIL"])
	assert.Equal(t, []string{"b"}, stats.FailedIDs)
	assert.Equal(t, 1, stats.InProgress)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 200, stats.NodeAvgMS[NodeTypeSend], 1e-9)
}

func TestStatisticsWindowExcludesOldTraces(t *testing.T) {
	tracer, clock, _ := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "old", "MSG1", "SMS", "13812345678"))
	clock.advance(3 * time.Hour)
	require.NoError(t, tracer.StartTrace(ctx, "recent", "MSG2", "SMS", "13812345678"))

	stats, err := tracer.Statistics(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	all, err := tracer.Statistics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
}

func TestRecentTracesOrderedNewestFirst(t *testing.T) {
	tracer, clock, _ := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tracer.StartTrace(ctx, "old", "MSG1", "SMS", "13812345678"))
	clock.advance(time.Minute)
	require.NoError(t, tracer.StartTrace(ctx, "mid", "MSG2", "SMS", "13812345678"))
	clock.advance(time.Minute)
	require.NoError(t, tracer.StartTrace(ctx, "new", "MSG3", "SMS", "13812345678"))

	traces, err := tracer.RecentTraces(ctx, 2)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "new", traces[0].TraceID)
	assert.Equal(t, "mid", traces[1].TraceID)
}
