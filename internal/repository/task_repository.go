package repository

import (
	"context"

	"msghub/internal/domain/entity"
)

type TaskRepository interface {
	Create(ctx context.Context, task *entity.MessageTask) error
	// GetByTaskID retrieves a task by its business id.
	// Returns (nil, nil) if not found.
	GetByTaskID(ctx context.Context, taskID string) (*entity.MessageTask, error)
	List(ctx context.Context, offset, limit int) ([]*entity.MessageTask, error)
	// RecordResult bumps the success or failed counter for one delivered
	// child record.
	RecordResult(ctx context.Context, taskID string, success bool) error
	// Finish marks the task completed and stamps finished_at.
	Finish(ctx context.Context, taskID string) error
}
