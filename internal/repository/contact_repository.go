package repository

import (
	"context"

	"msghub/internal/domain/entity"
)

type ContactRepository interface {
	Create(ctx context.Context, contact *entity.CustomerContact) error
	ListByCustomer(ctx context.Context, customerID int64) ([]*entity.CustomerContact, error)
	// ListVerifiedByChannel retrieves the verified delivery addresses for a
	// channel. Scheduled broadcasts resolve their recipients from this set.
	ListVerifiedByChannel(ctx context.Context, channel entity.ChannelType) ([]*entity.CustomerContact, error)
}
