package scheduler

import (
	"context"
	"log/slog"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/observability/metrics"
	"msghub/internal/usecase/dispatch"
)

// RunRetrySweep re-queues failed messages that still have retry budget.
// Exactly one worker runs it per tick.
func (s *Scheduler) RunRetrySweep(ctx context.Context) {
	s.withLock(ctx, "task:retry_sweep", func(ctx context.Context) error {
		start := time.Now()
		msgs, err := s.cfg.Messages.ListRetryable(ctx, s.cfg.SweepBatch)
		if err != nil {
			metrics.RecordJobRun("retry_sweep", "failure")
			return err
		}
		retried := 0
		for _, msg := range msgs {
			if err := s.cfg.Sender.RetryMessage(ctx, msg); err != nil {
				s.cfg.Logger.Warn("retry scheduling failed",
					slog.String("message_no", msg.MessageNo),
					slog.Any("error", err),
				)
				continue
			}
			retried++
		}
		metrics.RecordJobRun("retry_sweep", "success")
		metrics.RecordJobDuration("retry_sweep", time.Since(start))
		if retried > 0 {
			s.cfg.Logger.Info("retry sweep finished",
				slog.Int("candidates", len(msgs)),
				slog.Int("retried", retried),
			)
		}
		return nil
	})
}

// RunScheduledSweep enqueues pending scheduled messages whose fire time has
// passed. Each record is flipped to realtime mode before enqueueing so the
// next sweep does not pick it up again.
func (s *Scheduler) RunScheduledSweep(ctx context.Context) {
	s.withLock(ctx, "task:scheduled_sweep", func(ctx context.Context) error {
		msgs, err := s.cfg.Messages.ListDueScheduled(ctx, s.now(), s.cfg.SweepBatch)
		if err != nil {
			metrics.RecordJobRun("scheduled_sweep", "failure")
			return err
		}
		enqueued := 0
		for _, msg := range msgs {
			msg.SendMode = entity.ModeRealtime
			msg.ScheduledAt = nil
			if err := s.cfg.Messages.Update(ctx, msg); err != nil {
				s.cfg.Logger.Warn("scheduled message update failed",
					slog.String("message_no", msg.MessageNo),
					slog.Any("error", err),
				)
				continue
			}
			if err := s.cfg.Sender.Enqueue(ctx, msg, msg.Priority); err != nil {
				s.cfg.Logger.Error("scheduled message enqueue failed",
					slog.String("message_no", msg.MessageNo),
					slog.Any("error", err),
				)
				continue
			}
			enqueued++
		}
		metrics.RecordJobRun("scheduled_sweep", "success")
		if enqueued > 0 {
			s.cfg.Logger.Info("scheduled sweep finished", slog.Int("enqueued", enqueued))
		}
		return nil
	})
}

// RunRetentionSweep deletes terminal records older than the retention
// window.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) {
	s.withLock(ctx, "task:retention_sweep", func(ctx context.Context) error {
		cutoff := s.now().Add(-s.cfg.Retention)
		deleted, err := s.cfg.Messages.DeleteTerminalBefore(ctx, cutoff)
		if err != nil {
			metrics.RecordJobRun("retention_sweep", "failure")
			return err
		}
		metrics.RecordJobRun("retention_sweep", "success")
		s.cfg.Logger.Info("retention sweep finished",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
		return nil
	})
}

// FireTemplate broadcasts a scheduled template to its current verified
// recipient list. Once-only templates are disabled after firing.
func (s *Scheduler) FireTemplate(ctx context.Context, tmpl *entity.MessageTemplate) {
	s.withLock(ctx, "schedule:template:"+tmpl.Code, func(ctx context.Context) error {
		start := time.Now()
		contacts, err := s.cfg.Recipients.ListVerifiedByChannel(ctx, tmpl.Channel)
		if err != nil {
			metrics.RecordJobRun("template_fire", "failure")
			return err
		}
		if len(contacts) == 0 {
			s.cfg.Logger.Info("template fired with no recipients",
				slog.String("template_code", tmpl.Code),
			)
			metrics.RecordJobRun("template_fire", "success")
			return nil
		}
		recipients := make([]dispatch.BatchRecipient, 0, len(contacts))
		for _, contact := range contacts {
			vars := map[string]any(nil)
			if s.cfg.Variables != nil {
				vars, err = s.cfg.Variables.Variables(ctx, tmpl, contact)
				if err != nil {
					s.cfg.Logger.Warn("variable resolution failed",
						slog.String("template_code", tmpl.Code),
						slog.String("recipient", contact.Identifier),
						slog.Any("error", err),
					)
					continue
				}
			}
			customerID := contact.CustomerID
			recipients = append(recipients, dispatch.BatchRecipient{
				Recipient:  contact.Identifier,
				CustomerID: &customerID,
				Variables:  vars,
			})
		}
		result, err := s.cfg.Sender.SendFromTemplate(ctx, tmpl.Code, recipients, entity.ModeRealtime, nil)
		if err != nil {
			metrics.RecordJobRun("template_fire", "failure")
			return err
		}
		metrics.RecordJobRun("template_fire", "success")
		metrics.RecordJobDuration("template_fire", time.Since(start))
		s.cfg.Logger.Info("template fired",
			slog.String("template_code", tmpl.Code),
			slog.String("task_id", result.TaskID),
			slog.Int("accepted", result.AcceptedCount),
			slog.Int("rejected", result.FailedCount),
		)
		if tmpl.RepeatType == entity.RepeatOnce {
			tmpl.Enabled = false
			if err := s.cfg.Templates.Update(ctx, tmpl); err != nil {
				s.cfg.Logger.Error("disabling once-only template failed",
					slog.String("template_code", tmpl.Code),
					slog.Any("error", err),
				)
			}
		}
		return nil
	})
}
