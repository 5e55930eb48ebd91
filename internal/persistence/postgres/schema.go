package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements bootstrap the three tables the service owns. They are
// idempotent so serve --init-db and test setups can run them repeatedly.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		ticker          TEXT PRIMARY KEY,
		borrow_status   TEXT NOT NULL,
		lender_api_id   TEXT NOT NULL DEFAULT '',
		min_borrow_rate NUMERIC(12,6),
		last_updated    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS brokers (
		client_id          TEXT PRIMARY KEY,
		markup_percentage  NUMERIC(12,6) NOT NULL,
		fee_type           TEXT NOT NULL,
		transaction_amount NUMERIC(14,4) NOT NULL,
		active             BOOLEAN NOT NULL DEFAULT TRUE,
		last_updated       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id             UUID PRIMARY KEY,
		request_id     TEXT NOT NULL,
		client_id      TEXT NOT NULL,
		ticker         TEXT NOT NULL,
		position_value NUMERIC(20,4) NOT NULL,
		loan_days      INTEGER NOT NULL,
		borrow_rate    NUMERIC(12,6) NOT NULL,
		total_fee      NUMERIC(16,2) NOT NULL,
		formula        TEXT NOT NULL,
		breakdown      JSONB NOT NULL,
		data_sources   JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_ticker ON audit_log (ticker)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_client_id ON audit_log (client_id)`,
}

// EnsureSchema creates the service's tables and indexes if they are absent
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
