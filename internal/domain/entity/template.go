package entity

import (
	"strings"
	"time"
)

// RepeatType describes how often a scheduled template fires.
type RepeatType string

const (
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
	RepeatOnce    RepeatType = "once"
)

// MessageTemplate is a reusable message body with {variable} placeholders.
// Templates are created and edited through the configuration API and are
// read-only to the dispatch core.
type MessageTemplate struct {
	ID           int64       `json:"id"`
	Code         string      `json:"template_code"`
	Name         string      `json:"template_name"`
	Channel      ChannelType `json:"channel"`
	Title        string      `json:"title,omitempty"`
	Content      string      `json:"content_template"`
	Variables    []string    `json:"variables,omitempty"`
	Enabled      bool        `json:"is_active"`
	Priority     int         `json:"priority"`
	PushMode     SendMode    `json:"push_mode"`
	ScheduleTime string      `json:"schedule_time,omitempty"` // "HH:MM"
	RepeatType   RepeatType  `json:"repeat_type,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Validate checks the fields an administrator can get wrong when creating or
// editing a template.
func (t *MessageTemplate) Validate() error {
	if strings.TrimSpace(t.Code) == "" {
		return ErrTemplateInvalid("template_code is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrTemplateInvalid("template_name is required")
	}
	if !t.Channel.IsValid() {
		return ErrUnknownChannel
	}
	if strings.TrimSpace(t.Content) == "" {
		return ErrTemplateInvalid("content_template is required")
	}
	if t.PushMode == ModeScheduled && t.ScheduleTime == "" {
		return ErrTemplateInvalid("schedule_time is required for scheduled templates")
	}
	return nil
}

// TemplateValidationError is a user-facing template validation failure.
type TemplateValidationError struct{ Reason string }

func (e TemplateValidationError) Error() string { return "invalid template: " + e.Reason }

// ErrTemplateInvalid builds a TemplateValidationError.
func ErrTemplateInvalid(reason string) error { return TemplateValidationError{Reason: reason} }
