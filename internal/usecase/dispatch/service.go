// Package dispatch implements the unified send pipeline: validate, persist,
// trace, rate limit, deliver over the channel sender, and record the
// outcome. Both the synchronous API path and the queue consumer run through
// the same delivery core so a message behaves identically however it
// arrives.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"msghub/internal/domain/entity"
	"msghub/internal/infra/sender"
	"msghub/internal/observability/metrics"
	"msghub/internal/render"
	"msghub/internal/trace"
	"msghub/pkg/ratelimit"
)

// QueueName is the queue carrying outbound messages between the API and the
// worker.
const QueueName = "messages"

// ErrRateLimited is returned when channel admission denies a send. The
// caller decides whether to surface it or to retry later.
var ErrRateLimited = errors.New("dispatch: channel rate limit exceeded")

// MessageDispatcher routes one rendered message onto its channel.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, channel entity.ChannelType, msg *sender.Message) (*sender.Result, error)
}

// QueuePublisher enqueues messages for asynchronous delivery.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, payload any, priority int) error
	PublishDelayed(ctx context.Context, queue string, payload any, priority int, delay time.Duration) error
}

// ChannelAdmission decides whether one more send may proceed on a channel.
type ChannelAdmission interface {
	Allow(ctx context.Context, resource, actor string) *ratelimit.Decision
}

// Tracer records delivery timelines. All tracer calls from the pipeline are
// best effort.
type Tracer interface {
	StartTrace(ctx context.Context, traceID, messageNo, channel, recipient string) error
	AddNode(ctx context.Context, traceID, name, nodeType string, input map[string]any) (string, error)
	FinishNode(ctx context.Context, traceID, nodeID, status string, output map[string]any, errMsg string) error
	FinishTrace(ctx context.Context, traceID, finalStatus string) error
}

// Repos bundles the persistence the pipeline needs.
type Repos struct {
	Messages  MessageStore
	Templates TemplateStore
	Tasks     TaskStore
}

// MessageStore is the slice of the message repository the pipeline uses.
type MessageStore interface {
	Create(ctx context.Context, msg *entity.MessageRecord) error
	Get(ctx context.Context, id int64) (*entity.MessageRecord, error)
	Update(ctx context.Context, msg *entity.MessageRecord) error
}

// TemplateStore resolves templates by code.
type TemplateStore interface {
	GetByCode(ctx context.Context, code string) (*entity.MessageTemplate, error)
}

// TaskStore records batch task progress.
type TaskStore interface {
	Create(ctx context.Context, task *entity.MessageTask) error
	GetByTaskID(ctx context.Context, taskID string) (*entity.MessageTask, error)
	RecordResult(ctx context.Context, taskID string, success bool) error
	Finish(ctx context.Context, taskID string) error
}

// Service is the unified message sender.
type Service struct {
	repos      Repos
	dispatcher MessageDispatcher
	queue      QueuePublisher
	tracer     Tracer
	admission  ChannelAdmission
	msgNo      *MessageNumberGenerator
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// Config wires a Service.
type Config struct {
	Repos      Repos
	Dispatcher MessageDispatcher
	Queue      QueuePublisher
	Tracer     Tracer
	Admission  ChannelAdmission
	MsgNo      *MessageNumberGenerator
	MaxRetries int
	Logger     *slog.Logger
}

// NewService creates the unified sender.
func NewService(cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		repos:      cfg.Repos,
		dispatcher: cfg.Dispatcher,
		queue:      cfg.Queue,
		tracer:     cfg.Tracer,
		admission:  cfg.Admission,
		msgNo:      cfg.MsgNo,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// SendRequest describes one message to send.
type SendRequest struct {
	Channel      entity.ChannelType `json:"channel_type"`
	Recipient    string             `json:"recipient_value"`
	CustomerID   *int64             `json:"customer_id,omitempty"`
	TemplateCode string             `json:"template_code,omitempty"`
	Variables    map[string]any     `json:"variables,omitempty"`
	Subject      string             `json:"subject,omitempty"`
	Content      string             `json:"content,omitempty"`
	Priority     int                `json:"priority,omitempty"`
	ScheduledAt  *time.Time         `json:"scheduled_time,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// SendMessage validates the request, persists a pending record, and either
// delivers it inline or hands it to the queue. Scheduled messages always go
// through the queue.
func (s *Service) SendMessage(ctx context.Context, req SendRequest, async bool) (*entity.MessageRecord, error) {
	msg, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("dispatch: persist message: %w", err)
	}
	s.startTrace(ctx, msg)

	if msg.SendMode == entity.ModeScheduled {
		// Scheduled records wait in storage; the scheduler enqueues them
		// when due.
		return msg, nil
	}
	if async {
		if err := s.enqueue(ctx, msg, msg.Priority); err != nil {
			return nil, err
		}
		return msg, nil
	}
	if err := s.Deliver(ctx, msg); err != nil && !errors.Is(err, errDeliveryFailed) {
		return msg, err
	}
	return msg, nil
}

// prepare resolves the template, renders content, and validates the request
// into a pending record.
func (s *Service) prepare(ctx context.Context, req SendRequest) (*entity.MessageRecord, error) {
	if !req.Channel.IsValid() {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownChannel, req.Channel)
	}
	if err := req.Channel.ValidateRecipient(req.Recipient); err != nil {
		return nil, err
	}

	subject := req.Subject
	content := req.Content
	priority := req.Priority
	var templateID *int64
	if req.TemplateCode != "" {
		tmpl, err := s.repos.Templates.GetByCode(ctx, req.TemplateCode)
		if err != nil {
			return nil, fmt.Errorf("dispatch: load template %s: %w", req.TemplateCode, err)
		}
		if tmpl == nil {
			return nil, fmt.Errorf("%w: %s", entity.ErrTemplateNotFound, req.TemplateCode)
		}
		if !tmpl.Enabled {
			return nil, fmt.Errorf("%w: %s", entity.ErrTemplateDisabled, req.TemplateCode)
		}
		if tmpl.Channel != req.Channel {
			return nil, fmt.Errorf("dispatch: template %s is for channel %s, not %s",
				req.TemplateCode, tmpl.Channel, req.Channel)
		}
		content = render.Render(tmpl.Content, req.Variables)
		if subject == "" {
			subject = render.Render(tmpl.Title, req.Variables)
		}
		if priority == 0 {
			priority = tmpl.Priority
		}
		templateID = &tmpl.ID
	}
	if content == "" {
		return nil, errors.New("dispatch: empty message content")
	}

	messageNo, err := s.msgNo.Next(ctx)
	if err != nil {
		return nil, err
	}
	mode := entity.ModeRealtime
	if req.ScheduledAt != nil {
		mode = entity.ModeScheduled
	}
	return &entity.MessageRecord{
		MessageNo:     messageNo,
		TemplateID:    templateID,
		Channel:       req.Channel,
		RecipientType: req.Channel.RecipientType(),
		Recipient:     req.Recipient,
		CustomerID:    req.CustomerID,
		Subject:       subject,
		Content:       content,
		Status:        entity.StatusPending,
		SendMode:      mode,
		Priority:      priority,
		ScheduledAt:   req.ScheduledAt,
		MaxRetries:    s.maxRetries,
		TraceID:       uuid.NewString(),
		Metadata:      req.Metadata,
	}, nil
}

// errDeliveryFailed distinguishes "the send ran and failed" from "the
// pipeline could not run". The record already carries the failure.
var errDeliveryFailed = errors.New("dispatch: delivery failed")

// Deliver runs the delivery core for a pending record: admission, status
// transitions, channel dispatch, and outcome bookkeeping.
func (s *Service) Deliver(ctx context.Context, msg *entity.MessageRecord) error {
	if s.admission != nil {
		if decision := s.admission.Allow(ctx, string(msg.Channel), ""); !decision.Allowed {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg.Channel)
		}
	}

	if err := msg.TransitionTo(entity.StatusSending); err != nil {
		return fmt.Errorf("dispatch: message %s: %w", msg.MessageNo, err)
	}
	if err := s.repos.Messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("dispatch: mark sending: %w", err)
	}

	nodeID := s.traceNode(ctx, msg, "channel_send", trace.NodeTypeSend, map[string]any{
		"channel":   string(msg.Channel),
		"recipient": msg.Recipient,
	})

	result, sendErr := s.dispatcher.Dispatch(ctx, msg.Channel, &sender.Message{
		MessageNo: msg.MessageNo,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Content:   msg.Content,
		Metadata:  msg.Metadata,
	})

	if sendErr != nil {
		s.finishNode(ctx, msg, nodeID, trace.NodeFailed, nil, sendErr.Error())
		s.finishTrace(ctx, msg, trace.TraceFailed)
		return s.recordFailure(ctx, msg, sendErr)
	}

	var output map[string]any
	if result != nil && result.ProviderID != "" {
		output = map[string]any{"provider_id": result.ProviderID}
	}
	s.finishNode(ctx, msg, nodeID, trace.NodeSuccess, output, "")
	s.finishTrace(ctx, msg, trace.TraceCompleted)
	return s.recordSuccess(ctx, msg, result)
}

func (s *Service) recordSuccess(ctx context.Context, msg *entity.MessageRecord, result *sender.Result) error {
	if err := msg.TransitionTo(entity.StatusSent); err != nil {
		return fmt.Errorf("dispatch: message %s: %w", msg.MessageNo, err)
	}
	now := s.now()
	msg.SentAt = &now
	msg.ErrorMessage = ""
	if result != nil && result.ProviderID != "" {
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		msg.Metadata["provider_id"] = result.ProviderID
	}
	if err := s.repos.Messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("dispatch: mark sent: %w", err)
	}
	s.recordTaskResult(ctx, msg, true)
	s.logger.Info("message sent",
		slog.String("message_no", msg.MessageNo),
		slog.String("channel", string(msg.Channel)),
	)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, msg *entity.MessageRecord, sendErr error) error {
	if err := msg.TransitionTo(entity.StatusFailed); err != nil {
		return fmt.Errorf("dispatch: message %s: %w", msg.MessageNo, err)
	}
	msg.ErrorMessage = sendErr.Error()
	if err := s.repos.Messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("dispatch: mark failed: %w", err)
	}
	s.recordTaskResult(ctx, msg, false)
	s.logger.Warn("message delivery failed",
		slog.String("message_no", msg.MessageNo),
		slog.String("channel", string(msg.Channel)),
		slog.Int("retry_count", msg.RetryCount),
		slog.Any("error", sendErr),
	)
	return fmt.Errorf("%w: %s: %v", errDeliveryFailed, msg.MessageNo, sendErr)
}

// RetryMessage moves a failed record with remaining budget back to pending
// and requeues it at its original priority. The periodic sweep already paces
// retries, so the requeue itself is immediate. Records out of budget return
// ErrRetriesExhausted.
func (s *Service) RetryMessage(ctx context.Context, msg *entity.MessageRecord) error {
	if err := msg.ScheduleRetry(); err != nil {
		return err
	}
	if err := s.repos.Messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("dispatch: mark retry: %w", err)
	}
	metrics.RecordRetryScheduled(string(msg.Channel))
	return s.enqueue(ctx, msg, msg.Priority)
}

// DeliveryFailed reports whether err means the send ran and failed, as
// opposed to the pipeline being unable to run.
func DeliveryFailed(err error) bool {
	return errors.Is(err, errDeliveryFailed)
}

type queuedMessage struct {
	MessageID int64  `json:"message_id"`
	MessageNo string `json:"message_no"`
}

func (s *Service) enqueue(ctx context.Context, msg *entity.MessageRecord, priority int) error {
	nodeID := s.traceNode(ctx, msg, "queue_publish", trace.NodeTypeQueue, map[string]any{
		"priority": priority,
	})
	if err := s.queue.Publish(ctx, QueueName, queuedMessage{MessageID: msg.ID, MessageNo: msg.MessageNo}, priority); err != nil {
		s.finishNode(ctx, msg, nodeID, trace.NodeFailed, nil, err.Error())
		return fmt.Errorf("dispatch: enqueue %s: %w", msg.MessageNo, err)
	}
	s.finishNode(ctx, msg, nodeID, trace.NodeSuccess, nil, "")
	return nil
}

func (s *Service) enqueueDelayed(ctx context.Context, msg *entity.MessageRecord, delay time.Duration) error {
	if err := s.queue.PublishDelayed(ctx, QueueName, queuedMessage{MessageID: msg.ID, MessageNo: msg.MessageNo}, msg.Priority, delay); err != nil {
		return fmt.Errorf("dispatch: enqueue retry %s: %w", msg.MessageNo, err)
	}
	return nil
}

// Enqueue publishes an existing pending record for asynchronous delivery at
// the given priority.
func (s *Service) Enqueue(ctx context.Context, msg *entity.MessageRecord, priority int) error {
	return s.enqueue(ctx, msg, priority)
}

func (s *Service) recordTaskResult(ctx context.Context, msg *entity.MessageRecord, success bool) {
	if msg.TaskID == "" {
		return
	}
	if err := s.repos.Tasks.RecordResult(ctx, msg.TaskID, success); err != nil {
		s.logger.Warn("task accounting failed",
			slog.String("task_id", msg.TaskID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) startTrace(ctx context.Context, msg *entity.MessageRecord) {
	if s.tracer == nil {
		return
	}
	if err := s.tracer.StartTrace(ctx, msg.TraceID, msg.MessageNo, string(msg.Channel), msg.Recipient); err != nil {
		s.logger.Debug("trace start failed", slog.String("trace_id", msg.TraceID), slog.Any("error", err))
	}
}

func (s *Service) traceNode(ctx context.Context, msg *entity.MessageRecord, name, nodeType string, input map[string]any) string {
	if s.tracer == nil || msg.TraceID == "" {
		return ""
	}
	nodeID, err := s.tracer.AddNode(ctx, msg.TraceID, name, nodeType, input)
	if err != nil {
		s.logger.Debug("trace node failed", slog.String("trace_id", msg.TraceID), slog.Any("error", err))
		return ""
	}
	return nodeID
}

func (s *Service) finishNode(ctx context.Context, msg *entity.MessageRecord, nodeID, status string, output map[string]any, errMsg string) {
	if s.tracer == nil || nodeID == "" {
		return
	}
	if err := s.tracer.FinishNode(ctx, msg.TraceID, nodeID, status, output, errMsg); err != nil {
		s.logger.Debug("trace node finish failed", slog.String("trace_id", msg.TraceID), slog.Any("error", err))
	}
}

func (s *Service) finishTrace(ctx context.Context, msg *entity.MessageRecord, status string) {
	if s.tracer == nil || msg.TraceID == "" {
		return
	}
	if err := s.tracer.FinishTrace(ctx, msg.TraceID, status); err != nil {
		s.logger.Debug("trace finish failed", slog.String("trace_id", msg.TraceID), slog.Any("error", err))
	}
}
