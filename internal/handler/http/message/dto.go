package message

import (
	"errors"
	"net/http"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/handler/http/respond"
	"msghub/internal/usecase/dispatch"
)

// DTO is the wire representation of a message record.
type DTO struct {
	MessageNo    string     `json:"message_no"`
	TaskID       string     `json:"task_id,omitempty"`
	Channel      string     `json:"channel_type"`
	Recipient    string     `json:"recipient_value"`
	Subject      string     `json:"subject,omitempty"`
	Status       string     `json:"status"`
	SendMode     string     `json:"send_mode"`
	ScheduledAt  *time.Time `json:"scheduled_time,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	TraceID      string     `json:"trace_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

func toDTO(m *entity.MessageRecord) DTO {
	return DTO{
		MessageNo:    m.MessageNo,
		TaskID:       m.TaskID,
		Channel:      string(m.Channel),
		Recipient:    m.Recipient,
		Subject:      m.Subject,
		Status:       string(m.Status),
		SendMode:     string(m.SendMode),
		ScheduledAt:  m.ScheduledAt,
		RetryCount:   m.RetryCount,
		MaxRetries:   m.MaxRetries,
		TraceID:      m.TraceID,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		SentAt:       m.SentAt,
	}
}

// respondDispatchError maps dispatch and validation errors to HTTP status
// codes.
func respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrTemplateNotFound):
		respond.SafeError(w, http.StatusNotFound, err)
	case errors.Is(err, dispatch.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		respond.SafeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, entity.ErrUnknownChannel),
		errors.Is(err, entity.ErrInvalidRecipient),
		errors.Is(err, entity.ErrTemplateDisabled),
		errors.Is(err, entity.ErrChannelDisabled),
		errors.Is(err, entity.ErrChannelConfigMissing):
		respond.SafeError(w, http.StatusBadRequest, err)
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
