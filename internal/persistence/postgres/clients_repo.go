package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/persistence"
)

// clientsRepo implements ClientRepo for PostgreSQL
type clientsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewClientsRepo creates a PostgreSQL broker-configuration repository
func NewClientsRepo(db *sqlx.DB, timeout time.Duration) persistence.ClientRepo {
	return &clientsRepo{
		db:      db,
		timeout: timeout,
	}
}

// ByID returns the client configuration row, or ErrNotFound
func (r *clientsRepo) ByID(ctx context.Context, clientID string) (domain.ClientConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT client_id, markup_percentage, fee_type, transaction_amount, active, last_updated
		FROM brokers
		WHERE client_id = $1`

	var client domain.ClientConfig
	if err := r.db.GetContext(ctx, &client, query, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ClientConfig{}, fmt.Errorf("client %s: %w", clientID, persistence.ErrNotFound)
		}
		return domain.ClientConfig{}, fmt.Errorf("failed to query client %s: %w", clientID, err)
	}
	return client, nil
}

// Upsert inserts or replaces a client configuration
func (r *clientsRepo) Upsert(ctx context.Context, client domain.ClientConfig) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if client.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if !client.FeeType.Valid() {
		return fmt.Errorf("invalid fee type: %q", client.FeeType)
	}
	if client.MarkupPercentage.IsNegative() {
		return fmt.Errorf("markup percentage cannot be negative")
	}

	query := `
		INSERT INTO brokers (client_id, markup_percentage, fee_type, transaction_amount, active, last_updated)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (client_id) DO UPDATE SET
			markup_percentage  = EXCLUDED.markup_percentage,
			fee_type           = EXCLUDED.fee_type,
			transaction_amount = EXCLUDED.transaction_amount,
			active             = EXCLUDED.active,
			last_updated       = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		client.ClientID, client.MarkupPercentage, client.FeeType,
		client.TransactionAmount, client.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert client %s: %w", client.ClientID, err)
	}
	return nil
}

// List returns up to limit client configurations ordered by id
func (r *clientsRepo) List(ctx context.Context, limit int) ([]domain.ClientConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT client_id, markup_percentage, fee_type, transaction_amount, active, last_updated
		FROM brokers
		ORDER BY client_id
		LIMIT $1`

	var clients []domain.ClientConfig
	if err := r.db.SelectContext(ctx, &clients, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}
