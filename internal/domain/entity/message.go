package entity

import "time"

// MessageStatus is the lifecycle state of a message record. Transitions are
// monotonic: pending -> sending -> sent|failed. The only way back to pending
// is the retry path, bounded by RetryCount < MaxRetries.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// IsTerminal reports whether the status ends the normal send flow.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// SendMode selects immediate dispatch or deferral to the scheduler.
type SendMode string

const (
	ModeRealtime  SendMode = "realtime"
	ModeScheduled SendMode = "scheduled"
)

// MessageRecord is one concrete addressed message instance. It is owned by
// the dispatch service; status is mutated only through TransitionTo and
// ScheduleRetry so the monotonic machine cannot be bypassed.
type MessageRecord struct {
	ID            int64          `json:"id"`
	MessageNo     string         `json:"message_no"`
	TaskID        string         `json:"task_id,omitempty"`
	TemplateID    *int64         `json:"template_id,omitempty"`
	Channel       ChannelType    `json:"channel_type"`
	RecipientType RecipientType  `json:"recipient_type"`
	Recipient     string         `json:"recipient_value"`
	CustomerID    *int64         `json:"customer_id,omitempty"`
	Subject       string         `json:"subject,omitempty"`
	Content       string         `json:"content"`
	Status        MessageStatus  `json:"status"`
	SendMode      SendMode       `json:"send_mode"`
	Priority      int            `json:"priority"`
	ScheduledAt   *time.Time     `json:"scheduled_time,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	TraceID       string         `json:"trace_id,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}

// validTransitions encodes the monotonic status machine.
var validTransitions = map[MessageStatus][]MessageStatus{
	StatusPending: {StatusSending},
	StatusSending: {StatusSent, StatusFailed},
	StatusSent:    {},
	StatusFailed:  {}, // failed -> pending only via ScheduleRetry
}

// TransitionTo moves the record to the given status, or returns
// ErrInvalidTransition if the move would violate the machine. Sent records
// are immutable.
func (m *MessageRecord) TransitionTo(status MessageStatus) error {
	for _, next := range validTransitions[m.Status] {
		if next == status {
			m.Status = status
			return nil
		}
	}
	return ErrInvalidTransition
}

// CanRetry reports whether the record is eligible for the retry path.
func (m *MessageRecord) CanRetry() bool {
	return m.Status == StatusFailed && m.RetryCount < m.MaxRetries
}

// ScheduleRetry resets a failed record to pending and increments its retry
// counter. It is the only permitted failed -> pending path.
func (m *MessageRecord) ScheduleRetry() error {
	if !m.CanRetry() {
		return ErrRetriesExhausted
	}
	m.RetryCount++
	m.Status = StatusPending
	return nil
}
