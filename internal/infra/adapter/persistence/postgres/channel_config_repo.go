package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"msghub/internal/domain/entity"
	"msghub/internal/repository"
)

type ChannelConfigRepo struct{ db *sql.DB }

func NewChannelConfigRepo(db *sql.DB) repository.ChannelConfigRepository {
	return &ChannelConfigRepo{db: db}
}

func scanChannelConfig(scan func(dest ...any) error) (*entity.ChannelConfig, error) {
	var cfg entity.ChannelConfig
	var dataJSON []byte
	if err := scan(&cfg.ID, &cfg.Channel, &dataJSON, &cfg.Enabled, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &cfg.Data); err != nil {
			return nil, fmt.Errorf("unmarshal config_data: %w", err)
		}
	}
	return &cfg, nil
}

func (repo *ChannelConfigRepo) GetChannelConfig(ctx context.Context, channel entity.ChannelType) (*entity.ChannelConfig, error) {
	const query = `
SELECT id, channel_type, config_data, is_enabled, updated_at
FROM channel_configs
WHERE channel_type = $1
LIMIT 1`
	row := repo.db.QueryRowContext(ctx, query, channel)
	cfg, err := scanChannelConfig(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelConfig: %w", err)
	}
	return cfg, nil
}

func (repo *ChannelConfigRepo) List(ctx context.Context) ([]*entity.ChannelConfig, error) {
	const query = `
SELECT id, channel_type, config_data, is_enabled, updated_at
FROM channel_configs
ORDER BY channel_type ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	configs := make([]*entity.ChannelConfig, 0, 8)
	for rows.Next() {
		cfg, err := scanChannelConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (repo *ChannelConfigRepo) Upsert(ctx context.Context, cfg *entity.ChannelConfig) error {
	const query = `
INSERT INTO channel_configs (channel_type, config_data, is_enabled, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (channel_type)
DO UPDATE SET config_data = EXCLUDED.config_data,
              is_enabled  = EXCLUDED.is_enabled,
              updated_at  = now()
RETURNING id, updated_at`
	dataJSON, err := json.Marshal(cfg.Data)
	if err != nil {
		return fmt.Errorf("Upsert: marshal config_data: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query, cfg.Channel, dataJSON, cfg.Enabled).
		Scan(&cfg.ID, &cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *ChannelConfigRepo) SetEnabled(ctx context.Context, channel entity.ChannelType, enabled bool) error {
	const query = `
UPDATE channel_configs
SET is_enabled = $2, updated_at = now()
WHERE channel_type = $1`
	if _, err := repo.db.ExecContext(ctx, query, channel, enabled); err != nil {
		return fmt.Errorf("SetEnabled: %w", err)
	}
	return nil
}
