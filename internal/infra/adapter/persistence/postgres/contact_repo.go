package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"msghub/internal/domain/entity"
	"msghub/internal/repository"
)

type ContactRepo struct{ db *sql.DB }

func NewContactRepo(db *sql.DB) repository.ContactRepository {
	return &ContactRepo{db: db}
}

func (repo *ContactRepo) Create(ctx context.Context, contact *entity.CustomerContact) error {
	const query = `
INSERT INTO customer_contacts (customer_id, channel_type, identifier, verified)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		contact.CustomerID, contact.Channel, contact.Identifier, contact.Verified,
	).Scan(&contact.ID, &contact.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ContactRepo) ListByCustomer(ctx context.Context, customerID int64) ([]*entity.CustomerContact, error) {
	const query = `
SELECT id, customer_id, channel_type, identifier, verified, created_at
FROM customer_contacts
WHERE customer_id = $1
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("ListByCustomer: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]*entity.CustomerContact, 0, 8)
	for rows.Next() {
		var c entity.CustomerContact
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Identifier, &c.Verified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByCustomer: %w", err)
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

func (repo *ContactRepo) ListVerifiedByChannel(ctx context.Context, channel entity.ChannelType) ([]*entity.CustomerContact, error) {
	const query = `
SELECT id, customer_id, channel_type, identifier, verified, created_at
FROM customer_contacts
WHERE channel_type = $1
AND verified = TRUE
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, channel)
	if err != nil {
		return nil, fmt.Errorf("ListVerifiedByChannel: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]*entity.CustomerContact, 0, 50)
	for rows.Next() {
		var c entity.CustomerContact
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Identifier, &c.Verified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListVerifiedByChannel: %w", err)
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}
