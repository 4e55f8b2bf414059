package repository

import (
	"context"

	"msghub/internal/domain/entity"
)

type TemplateRepository interface {
	Get(ctx context.Context, id int64) (*entity.MessageTemplate, error)
	// GetByCode retrieves a template by its unique code.
	// Returns (nil, nil) if no template has the code.
	GetByCode(ctx context.Context, code string) (*entity.MessageTemplate, error)
	List(ctx context.Context) ([]*entity.MessageTemplate, error)
	// ListScheduled retrieves enabled templates configured for scheduled
	// delivery, for the scheduler to register at startup and on reload.
	ListScheduled(ctx context.Context) ([]*entity.MessageTemplate, error)
	Create(ctx context.Context, tmpl *entity.MessageTemplate) error
	Update(ctx context.Context, tmpl *entity.MessageTemplate) error
	Delete(ctx context.Context, id int64) error
}
