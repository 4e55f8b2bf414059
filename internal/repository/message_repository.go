package repository

import (
	"context"
	"time"

	"msghub/internal/domain/entity"
)

// MessageFilters contains optional filters for message queries.
type MessageFilters struct {
	TaskID     string               // Optional: filter by batch task id
	CustomerID *int64               // Optional: filter by customer
	Channel    entity.ChannelType   // Optional: filter by channel
	Status     entity.MessageStatus // Optional: filter by status
	From       *time.Time           // Optional: created_at >= From
	To         *time.Time           // Optional: created_at <= To
}

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.MessageRecord) error
	Get(ctx context.Context, id int64) (*entity.MessageRecord, error)
	// GetByMessageNo retrieves a record by its business message number.
	// Returns (nil, nil) if not found.
	GetByMessageNo(ctx context.Context, messageNo string) (*entity.MessageRecord, error)
	Update(ctx context.Context, msg *entity.MessageRecord) error
	// List retrieves records matching the filters, newest first, with
	// LIMIT/OFFSET pagination.
	List(ctx context.Context, filters MessageFilters, offset, limit int) ([]*entity.MessageRecord, error)
	Count(ctx context.Context, filters MessageFilters) (int64, error)
	ListByTask(ctx context.Context, taskID string) ([]*entity.MessageRecord, error)
	// ListRetryable retrieves failed records that still have retry budget.
	ListRetryable(ctx context.Context, limit int) ([]*entity.MessageRecord, error)
	// ListDueScheduled retrieves pending scheduled records whose
	// scheduled_time has passed.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.MessageRecord, error)
	// DeleteTerminalBefore removes sent and failed records created before
	// the cutoff. Returns how many rows were deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
