package template

import (
	"time"

	"msghub/internal/domain/entity"
)

// DTO is the wire representation of a message template.
type DTO struct {
	ID           int64     `json:"id"`
	Code         string    `json:"template_code"`
	Name         string    `json:"template_name"`
	Channel      string    `json:"channel"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content_template"`
	Variables    []string  `json:"variables,omitempty"`
	Enabled      bool      `json:"is_active"`
	Priority     int       `json:"priority"`
	PushMode     string    `json:"push_mode"`
	ScheduleTime string    `json:"schedule_time,omitempty"`
	RepeatType   string    `json:"repeat_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDTO(t *entity.MessageTemplate) DTO {
	return DTO{
		ID:           t.ID,
		Code:         t.Code,
		Name:         t.Name,
		Channel:      string(t.Channel),
		Title:        t.Title,
		Content:      t.Content,
		Variables:    t.Variables,
		Enabled:      t.Enabled,
		Priority:     t.Priority,
		PushMode:     string(t.PushMode),
		ScheduleTime: t.ScheduleTime,
		RepeatType:   string(t.RepeatType),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// request is the create and update payload.
type request struct {
	Code         string   `json:"template_code"`
	Name         string   `json:"template_name"`
	Channel      string   `json:"channel"`
	Title        string   `json:"title"`
	Content      string   `json:"content_template"`
	Enabled      *bool    `json:"is_active"`
	Priority     int      `json:"priority"`
	PushMode     string   `json:"push_mode"`
	ScheduleTime string   `json:"schedule_time"`
	RepeatType   string   `json:"repeat_type"`
}

func (r request) toEntity() *entity.MessageTemplate {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	pushMode := entity.SendMode(r.PushMode)
	if r.PushMode == "" {
		pushMode = entity.ModeRealtime
	}
	return &entity.MessageTemplate{
		Code:         r.Code,
		Name:         r.Name,
		Channel:      entity.ChannelType(r.Channel),
		Title:        r.Title,
		Content:      r.Content,
		Enabled:      enabled,
		Priority:     r.Priority,
		PushMode:     pushMode,
		ScheduleTime: r.ScheduleTime,
		RepeatType:   entity.RepeatType(r.RepeatType),
	}
}
