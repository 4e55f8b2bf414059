package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/infra/queue"
	"msghub/internal/trace"
)

// rateLimitRequeueDelay is how long a rate-limited delivery waits before it
// becomes visible again.
const rateLimitRequeueDelay = time.Second

// errDeliveryInterrupted marks a record found still in sending when its
// delivery was reclaimed. The outcome of the original send is unknown.
var errDeliveryInterrupted = errors.New("dispatch: delivery interrupted before outcome was recorded")

// HandleDelivery is the worker-side entry point: it loads the queued record
// and runs the delivery core. Wire it into a queue.Consumer with
// consumer.Run(ctx, service.HandleDelivery).
func (s *Service) HandleDelivery(ctx context.Context, d *queue.Delivery) error {
	var payload queuedMessage
	if err := d.DecodeData(&payload); err != nil {
		// A payload that cannot decode will never succeed; drop it.
		s.logger.Error("dropping undecodable delivery", slog.Any("error", err))
		return nil
	}

	msg, err := s.repos.Messages.Get(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("dispatch: load queued message %d: %w", payload.MessageID, err)
	}
	if msg == nil {
		s.logger.Warn("queued message no longer exists",
			slog.Int64("message_id", payload.MessageID),
			slog.String("message_no", payload.MessageNo),
		)
		return nil
	}
	if msg.Status.IsTerminal() {
		// Redelivered after the outcome was already recorded; at-least-once
		// makes this normal.
		return nil
	}
	if msg.Status == entity.StatusSending {
		// A reclaimed delivery whose worker died mid-send. Whether the
		// channel actually sent is unknowable, so mark it failed and let the
		// retry sweep decide; requeueing would only loop on the status check.
		s.logger.Warn("reclaimed delivery interrupted mid-send",
			slog.String("message_no", msg.MessageNo),
		)
		if err := s.recordFailure(ctx, msg, errDeliveryInterrupted); err != nil && !DeliveryFailed(err) {
			return err
		}
		s.finishOwningTask(ctx, msg)
		return nil
	}

	nodeID := s.traceNode(ctx, msg, "consume", trace.NodeTypeProcess, map[string]any{
		"message_no": msg.MessageNo,
	})

	err = s.Deliver(ctx, msg)
	if err == nil {
		s.finishNode(ctx, msg, nodeID, trace.NodeSuccess, nil, "")
	} else {
		s.finishNode(ctx, msg, nodeID, trace.NodeFailed, nil, err.Error())
	}
	switch {
	case err == nil:
		s.finishOwningTask(ctx, msg)
		return nil
	case errors.Is(err, ErrRateLimited):
		// Push the work back without burning a retry.
		if pubErr := s.enqueueDelayed(ctx, msg, rateLimitRequeueDelay); pubErr != nil {
			return pubErr
		}
		return nil
	case DeliveryFailed(err):
		// The failure is recorded on the message; the retry sweep owns what
		// happens next. Ack so the queue does not redeliver on top of it.
		s.finishOwningTask(ctx, msg)
		return nil
	default:
		return err
	}
}

func (s *Service) finishOwningTask(ctx context.Context, msg *entity.MessageRecord) {
	if msg.TaskID == "" {
		return
	}
	if err := s.FinishTaskIfDone(ctx, msg.TaskID); err != nil {
		s.logger.Warn("task completion check failed",
			slog.String("task_id", msg.TaskID),
			slog.Any("error", err),
		)
	}
}
