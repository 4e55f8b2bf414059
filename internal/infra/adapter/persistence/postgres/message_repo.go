package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/repository"
)

type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) repository.MessageRepository {
	return &MessageRepo{db: db}
}

const messageColumns = `
id, message_no, task_id, template_id, channel_type, recipient_type,
recipient_value, customer_id, subject, content, status, send_mode,
priority, scheduled_time, retry_count, max_retries, trace_id,
error_message, metadata, created_at, sent_at`

func scanMessage(scan func(dest ...any) error) (*entity.MessageRecord, error) {
	var msg entity.MessageRecord
	var taskID, subject, traceID, errorMessage sql.NullString
	var metadataJSON []byte
	if err := scan(
		&msg.ID, &msg.MessageNo, &taskID, &msg.TemplateID, &msg.Channel,
		&msg.RecipientType, &msg.Recipient, &msg.CustomerID, &subject,
		&msg.Content, &msg.Status, &msg.SendMode, &msg.Priority,
		&msg.ScheduledAt, &msg.RetryCount, &msg.MaxRetries, &traceID,
		&errorMessage, &metadataJSON, &msg.CreatedAt, &msg.SentAt,
	); err != nil {
		return nil, err
	}
	msg.TaskID = taskID.String
	msg.Subject = subject.String
	msg.TraceID = traceID.String
	msg.ErrorMessage = errorMessage.String
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}

func (repo *MessageRepo) Create(ctx context.Context, msg *entity.MessageRecord) error {
	const query = `
INSERT INTO message_records
(message_no, task_id, template_id, channel_type, recipient_type,
 recipient_value, customer_id, subject, content, status, send_mode,
 priority, scheduled_time, retry_count, max_retries, trace_id,
 error_message, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING id, created_at`
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("Create: marshal metadata: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query,
		msg.MessageNo, nullString(msg.TaskID), msg.TemplateID, msg.Channel,
		msg.RecipientType, msg.Recipient, msg.CustomerID, nullString(msg.Subject),
		msg.Content, msg.Status, msg.SendMode, msg.Priority, msg.ScheduledAt,
		msg.RetryCount, msg.MaxRetries, nullString(msg.TraceID),
		nullString(msg.ErrorMessage), metadataJSON,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *MessageRepo) Get(ctx context.Context, id int64) (*entity.MessageRecord, error) {
	const query = `
SELECT ` + messageColumns + `
FROM message_records
WHERE id = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, id)
	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return msg, nil
}

func (repo *MessageRepo) GetByMessageNo(ctx context.Context, messageNo string) (*entity.MessageRecord, error) {
	const query = `
SELECT ` + messageColumns + `
FROM message_records
WHERE message_no = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, messageNo)
	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByMessageNo: %w", err)
	}
	return msg, nil
}

func (repo *MessageRepo) Update(ctx context.Context, msg *entity.MessageRecord) error {
	const query = `
UPDATE message_records
SET status = $2, retry_count = $3, trace_id = $4, error_message = $5,
    sent_at = $6, scheduled_time = $7, content = $8
WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query,
		msg.ID, msg.Status, msg.RetryCount, nullString(msg.TraceID),
		nullString(msg.ErrorMessage), msg.SentAt, msg.ScheduledAt, msg.Content,
	); err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

// buildFilterClause assembles the WHERE clause and args for the optional
// message filters. Placeholders start at $1.
func buildFilterClause(filters repository.MessageFilters) (string, []any) {
	var conds []string
	var args []any
	next := func() string { return "$" + strconv.Itoa(len(args)) }

	if filters.TaskID != "" {
		args = append(args, filters.TaskID)
		conds = append(conds, "task_id = "+next())
	}
	if filters.CustomerID != nil {
		args = append(args, *filters.CustomerID)
		conds = append(conds, "customer_id = "+next())
	}
	if filters.Channel != "" {
		args = append(args, filters.Channel)
		conds = append(conds, "channel_type = "+next())
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		conds = append(conds, "status = "+next())
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		conds = append(conds, "created_at >= "+next())
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		conds = append(conds, "created_at <= "+next())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (repo *MessageRepo) List(ctx context.Context, filters repository.MessageFilters, offset, limit int) ([]*entity.MessageRecord, error) {
	where, args := buildFilterClause(filters)
	query := `
SELECT ` + messageColumns + `
FROM message_records
` + where + `
ORDER BY created_at DESC, id DESC
LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*entity.MessageRecord, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (repo *MessageRepo) Count(ctx context.Context, filters repository.MessageFilters) (int64, error) {
	where, args := buildFilterClause(filters)
	query := `SELECT COUNT(*) FROM message_records ` + where
	var count int64
	if err := repo.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

func (repo *MessageRepo) ListByTask(ctx context.Context, taskID string) ([]*entity.MessageRecord, error) {
	const query = `
SELECT ` + messageColumns + `
FROM message_records
WHERE task_id = $1
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("ListByTask: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*entity.MessageRecord, 0, 50)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListByTask: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (repo *MessageRepo) ListRetryable(ctx context.Context, limit int) ([]*entity.MessageRecord, error) {
	const query = `
SELECT ` + messageColumns + `
FROM message_records
WHERE status = 'failed'
AND retry_count < max_retries
ORDER BY created_at ASC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRetryable: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*entity.MessageRecord, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListRetryable: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (repo *MessageRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.MessageRecord, error) {
	const query = `
SELECT ` + messageColumns + `
FROM message_records
WHERE status = 'pending'
AND send_mode = 'scheduled'
AND scheduled_time IS NOT NULL
AND scheduled_time <= $1
ORDER BY scheduled_time ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDueScheduled: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*entity.MessageRecord, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListDueScheduled: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (repo *MessageRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
DELETE FROM message_records
WHERE status IN ('sent', 'failed')
AND created_at < $1`
	res, err := repo.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return deleted, nil
}
