package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"msghub/internal/domain/entity"
	"msghub/internal/render"
)

// BatchRecipient is one target of a batch send, with its own variable set.
type BatchRecipient struct {
	Recipient  string         `json:"recipient_value"`
	CustomerID *int64         `json:"customer_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// RecipientResult reports the outcome of one recipient in a batch.
type RecipientResult struct {
	Recipient string `json:"recipient_value"`
	MessageNo string `json:"message_no,omitempty"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
}

// BatchResult summarizes a batch. For realtime batches the per-recipient
// results reflect the actual send outcomes; for scheduled batches they report
// acceptance, and delivery happens when the schedule fires.
type BatchResult struct {
	TaskID        string            `json:"task_id"`
	TotalCount    int               `json:"total_count"`
	AcceptedCount int               `json:"accepted_count"`
	FailedCount   int               `json:"failed_count"`
	Results       []RecipientResult `json:"results"`
}

// SendFromTemplate renders the template once per recipient under a shared
// task. Realtime batches deliver inline, one recipient at a time; scheduled
// batches persist pending records for the scheduler to promote at
// scheduledAt. A recipient that fails does not stop the rest of the batch.
func (s *Service) SendFromTemplate(ctx context.Context, templateCode string, recipients []BatchRecipient, mode entity.SendMode, scheduledAt *time.Time) (*BatchResult, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("dispatch: batch for %s has no recipients", templateCode)
	}
	if mode == "" {
		mode = entity.ModeRealtime
	}
	if mode == entity.ModeScheduled && scheduledAt == nil {
		return nil, fmt.Errorf("dispatch: scheduled batch for %s has no scheduled time", templateCode)
	}

	tmpl, err := s.repos.Templates.GetByCode(ctx, templateCode)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load template %s: %w", templateCode, err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrTemplateNotFound, templateCode)
	}
	if !tmpl.Enabled {
		return nil, fmt.Errorf("%w: %s", entity.ErrTemplateDisabled, templateCode)
	}

	now := s.now()
	task := &entity.MessageTask{
		TaskID:       uuid.NewString(),
		TemplateID:   &tmpl.ID,
		TemplateCode: tmpl.Code,
		Status:       entity.TaskProcessing,
		TotalCount:   len(recipients),
		StartedAt:    &now,
	}
	if err := s.repos.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("dispatch: create task: %w", err)
	}

	result := &BatchResult{
		TaskID:     task.TaskID,
		TotalCount: len(recipients),
		Results:    make([]RecipientResult, 0, len(recipients)),
	}
	for _, r := range recipients {
		out := s.submitBatchMessage(ctx, tmpl, task.TaskID, r, mode, scheduledAt)
		if out.Accepted {
			result.AcceptedCount++
		} else {
			result.FailedCount++
		}
		result.Results = append(result.Results, out)
	}
	if mode == entity.ModeRealtime {
		if err := s.FinishTaskIfDone(ctx, task.TaskID); err != nil {
			s.logger.Warn("task completion check failed",
				slog.String("task_id", task.TaskID),
				slog.Any("error", err),
			)
		}
	}

	s.logger.Info("batch submitted",
		slog.String("task_id", task.TaskID),
		slog.String("template_code", tmpl.Code),
		slog.Int("total", result.TotalCount),
		slog.Int("accepted", result.AcceptedCount),
		slog.Int("rejected", result.FailedCount),
	)
	return result, nil
}

// submitBatchMessage validates, persists, and either delivers or schedules
// one recipient of a batch. Failures are absorbed into the per-recipient
// result.
func (s *Service) submitBatchMessage(ctx context.Context, tmpl *entity.MessageTemplate, taskID string, r BatchRecipient, mode entity.SendMode, scheduledAt *time.Time) RecipientResult {
	if err := tmpl.Channel.ValidateRecipient(r.Recipient); err != nil {
		s.recordBatchRejection(ctx, taskID, r.Recipient)
		return RecipientResult{Recipient: r.Recipient, Error: err.Error()}
	}

	messageNo, err := s.msgNo.Next(ctx)
	if err != nil {
		s.recordBatchRejection(ctx, taskID, r.Recipient)
		return RecipientResult{Recipient: r.Recipient, Error: err.Error()}
	}

	msg := &entity.MessageRecord{
		MessageNo:     messageNo,
		TaskID:        taskID,
		TemplateID:    &tmpl.ID,
		Channel:       tmpl.Channel,
		RecipientType: tmpl.Channel.RecipientType(),
		Recipient:     r.Recipient,
		CustomerID:    r.CustomerID,
		Subject:       render.Render(tmpl.Title, r.Variables),
		Content:       render.Render(tmpl.Content, r.Variables),
		Status:        entity.StatusPending,
		SendMode:      mode,
		Priority:      tmpl.Priority,
		ScheduledAt:   scheduledAt,
		MaxRetries:    s.maxRetries,
		TraceID:       uuid.NewString(),
	}
	if err := s.repos.Messages.Create(ctx, msg); err != nil {
		s.recordBatchRejection(ctx, taskID, r.Recipient)
		return RecipientResult{Recipient: r.Recipient, Error: err.Error()}
	}
	s.startTrace(ctx, msg)

	if mode == entity.ModeScheduled {
		// The scheduler enqueues the record when scheduledAt arrives.
		return RecipientResult{Recipient: r.Recipient, MessageNo: messageNo, Accepted: true}
	}

	switch err := s.Deliver(ctx, msg); {
	case err == nil:
		return RecipientResult{Recipient: r.Recipient, MessageNo: messageNo, Accepted: true}
	case DeliveryFailed(err):
		// recordFailure already counted the task failure.
		return RecipientResult{Recipient: r.Recipient, MessageNo: messageNo, Error: msg.ErrorMessage}
	default:
		s.recordBatchRejection(ctx, taskID, r.Recipient)
		return RecipientResult{Recipient: r.Recipient, MessageNo: messageNo, Error: err.Error()}
	}
}

// recordBatchRejection counts a recipient that never made it to the queue as
// a failed delivery on its task.
func (s *Service) recordBatchRejection(ctx context.Context, taskID, recipient string) {
	if err := s.repos.Tasks.RecordResult(ctx, taskID, false); err != nil {
		s.logger.Warn("task accounting failed",
			slog.String("task_id", taskID),
			slog.String("recipient", recipient),
			slog.Any("error", err),
		)
	}
}

// FinishTaskIfDone marks the task completed once all child records have
// reached a terminal status.
func (s *Service) FinishTaskIfDone(ctx context.Context, taskID string) error {
	task, err := s.repos.Tasks.GetByTaskID(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	if task.Status != entity.TaskCompleted && task.Done() {
		return s.repos.Tasks.Finish(ctx, taskID)
	}
	return nil
}
