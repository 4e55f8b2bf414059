package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"msghub/internal/domain/entity"
	"msghub/internal/repository"
)

type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) repository.TemplateRepository {
	return &TemplateRepo{db: db}
}

const templateColumns = `
id, template_code, template_name, channel_type, title, content_template,
variables, is_active, priority, push_mode, schedule_time, repeat_type,
created_at, updated_at`

// scanTemplate scans one template row including the variables JSON column.
func scanTemplate(scan func(dest ...any) error) (*entity.MessageTemplate, error) {
	var tmpl entity.MessageTemplate
	var variablesJSON []byte
	var title, scheduleTime, repeatType sql.NullString
	if err := scan(
		&tmpl.ID, &tmpl.Code, &tmpl.Name, &tmpl.Channel, &title, &tmpl.Content,
		&variablesJSON, &tmpl.Enabled, &tmpl.Priority, &tmpl.PushMode,
		&scheduleTime, &repeatType, &tmpl.CreatedAt, &tmpl.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tmpl.Title = title.String
	tmpl.ScheduleTime = scheduleTime.String
	tmpl.RepeatType = entity.RepeatType(repeatType.String)
	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &tmpl.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return &tmpl, nil
}

func (repo *TemplateRepo) Get(ctx context.Context, id int64) (*entity.MessageTemplate, error) {
	const query = `
SELECT ` + templateColumns + `
FROM message_templates
WHERE id = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, id)
	tmpl, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return tmpl, nil
}

func (repo *TemplateRepo) GetByCode(ctx context.Context, code string) (*entity.MessageTemplate, error) {
	const query = `
SELECT ` + templateColumns + `
FROM message_templates
WHERE template_code = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, code)
	tmpl, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByCode: %w", err)
	}
	return tmpl, nil
}

func (repo *TemplateRepo) List(ctx context.Context) ([]*entity.MessageTemplate, error) {
	const query = `
SELECT ` + templateColumns + `
FROM message_templates
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	templates := make([]*entity.MessageTemplate, 0, 20)
	for rows.Next() {
		tmpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (repo *TemplateRepo) ListScheduled(ctx context.Context) ([]*entity.MessageTemplate, error) {
	const query = `
SELECT ` + templateColumns + `
FROM message_templates
WHERE is_active = TRUE
AND push_mode = 'scheduled'
AND schedule_time IS NOT NULL
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListScheduled: %w", err)
	}
	defer func() { _ = rows.Close() }()

	templates := make([]*entity.MessageTemplate, 0, 20)
	for rows.Next() {
		tmpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListScheduled: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (repo *TemplateRepo) Create(ctx context.Context, tmpl *entity.MessageTemplate) error {
	const query = `
INSERT INTO message_templates
(template_code, template_name, channel_type, title, content_template,
 variables, is_active, priority, push_mode, schedule_time, repeat_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at, updated_at`
	variablesJSON, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("Create: marshal variables: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query,
		tmpl.Code, tmpl.Name, tmpl.Channel, nullString(tmpl.Title), tmpl.Content,
		variablesJSON, tmpl.Enabled, tmpl.Priority, tmpl.PushMode,
		nullString(tmpl.ScheduleTime), nullString(string(tmpl.RepeatType)),
	).Scan(&tmpl.ID, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *TemplateRepo) Update(ctx context.Context, tmpl *entity.MessageTemplate) error {
	const query = `
UPDATE message_templates
SET template_code = $2, template_name = $3, channel_type = $4, title = $5,
    content_template = $6, variables = $7, is_active = $8, priority = $9,
    push_mode = $10, schedule_time = $11, repeat_type = $12, updated_at = now()
WHERE id = $1`
	variablesJSON, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("Update: marshal variables: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query,
		tmpl.ID, tmpl.Code, tmpl.Name, tmpl.Channel, nullString(tmpl.Title),
		tmpl.Content, variablesJSON, tmpl.Enabled, tmpl.Priority, tmpl.PushMode,
		nullString(tmpl.ScheduleTime), nullString(string(tmpl.RepeatType)),
	); err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

func (repo *TemplateRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM message_templates WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
