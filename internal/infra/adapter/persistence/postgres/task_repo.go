package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"msghub/internal/domain/entity"
	"msghub/internal/repository"
)

type TaskRepo struct{ db *sql.DB }

func NewTaskRepo(db *sql.DB) repository.TaskRepository {
	return &TaskRepo{db: db}
}

const taskColumns = `
id, task_id, template_id, template_code, status, total_count,
success_count, failed_count, started_at, finished_at, created_at`

func scanTask(scan func(dest ...any) error) (*entity.MessageTask, error) {
	var task entity.MessageTask
	var templateCode sql.NullString
	if err := scan(
		&task.ID, &task.TaskID, &task.TemplateID, &templateCode, &task.Status,
		&task.TotalCount, &task.SuccessCount, &task.FailedCount,
		&task.StartedAt, &task.FinishedAt, &task.CreatedAt,
	); err != nil {
		return nil, err
	}
	task.TemplateCode = templateCode.String
	return &task, nil
}

func (repo *TaskRepo) Create(ctx context.Context, task *entity.MessageTask) error {
	const query = `
INSERT INTO message_tasks
(task_id, template_id, template_code, status, total_count, success_count,
 failed_count, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		task.TaskID, task.TemplateID, nullString(task.TemplateCode), task.Status,
		task.TotalCount, task.SuccessCount, task.FailedCount, task.StartedAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *TaskRepo) GetByTaskID(ctx context.Context, taskID string) (*entity.MessageTask, error) {
	const query = `
SELECT ` + taskColumns + `
FROM message_tasks
WHERE task_id = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, taskID)
	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByTaskID: %w", err)
	}
	return task, nil
}

func (repo *TaskRepo) List(ctx context.Context, offset, limit int) ([]*entity.MessageTask, error) {
	const query = `
SELECT ` + taskColumns + `
FROM message_tasks
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`
	rows, err := repo.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*entity.MessageTask, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (repo *TaskRepo) RecordResult(ctx context.Context, taskID string, success bool) error {
	const query = `
UPDATE message_tasks
SET success_count = success_count + $2,
    failed_count  = failed_count + $3,
    status        = 'processing'
WHERE task_id = $1`
	successInc, failedInc := 0, 1
	if success {
		successInc, failedInc = 1, 0
	}
	if _, err := repo.db.ExecContext(ctx, query, taskID, successInc, failedInc); err != nil {
		return fmt.Errorf("RecordResult: %w", err)
	}
	return nil
}

func (repo *TaskRepo) Finish(ctx context.Context, taskID string) error {
	const query = `
UPDATE message_tasks
SET status = 'completed', finished_at = now()
WHERE task_id = $1`
	if _, err := repo.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	return nil
}
