package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"msghub/internal/domain/entity"
)

// TemplateVariableSource resolves the built-in per-recipient variables a
// scheduled broadcast can reference: the contact identifier and the
// customer's recent message count over the last 30 days.
type TemplateVariableSource struct{ db *sql.DB }

func NewTemplateVariableSource(db *sql.DB) *TemplateVariableSource {
	return &TemplateVariableSource{db: db}
}

func (src *TemplateVariableSource) Variables(ctx context.Context, tmpl *entity.MessageTemplate, contact *entity.CustomerContact) (map[string]any, error) {
	const query = `
SELECT COUNT(*)
FROM message_records
WHERE customer_id = $1
AND created_at > NOW() - INTERVAL '30 days'`
	var recent int64
	if err := src.db.QueryRowContext(ctx, query, contact.CustomerID).Scan(&recent); err != nil {
		return nil, fmt.Errorf("Variables: %w", err)
	}
	return map[string]any{
		"identifier":           contact.Identifier,
		"recent_message_count": recent,
	}, nil
}
