package entity

import "time"

// TaskStatus is the lifecycle state of a batch send task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
)

// MessageTask groups the message records created by one batch-send
// invocation and tracks aggregate progress. Counts are updated by the queue
// consumer as child records reach a terminal status.
type MessageTask struct {
	ID           int64      `json:"id"`
	TaskID       string     `json:"task_id"`
	TemplateID   *int64     `json:"template_id,omitempty"`
	TemplateCode string     `json:"template_code,omitempty"`
	Status       TaskStatus `json:"status"`
	TotalCount   int        `json:"total_count"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Done reports whether every child record has reached a terminal status.
func (t *MessageTask) Done() bool {
	return t.SuccessCount+t.FailedCount >= t.TotalCount
}
