package repository

import (
	"context"

	"msghub/internal/domain/entity"
)

type ChannelConfigRepository interface {
	// GetChannelConfig retrieves the configuration for a channel.
	// Returns (nil, nil) if the channel was never configured.
	GetChannelConfig(ctx context.Context, channel entity.ChannelType) (*entity.ChannelConfig, error)
	List(ctx context.Context) ([]*entity.ChannelConfig, error)
	// Upsert inserts or replaces the configuration for cfg.Channel.
	Upsert(ctx context.Context, cfg *entity.ChannelConfig) error
	SetEnabled(ctx context.Context, channel entity.ChannelType, enabled bool) error
}
