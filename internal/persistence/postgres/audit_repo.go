package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lendpool/locator/internal/persistence"
)

// auditRepo implements AuditRepo for PostgreSQL
type auditRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAuditRepo creates a PostgreSQL audit-trail repository
func NewAuditRepo(db *sqlx.DB, timeout time.Duration) persistence.AuditRepo {
	return &auditRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends one audit record. The trail is append-only; a duplicate id
// is a caller bug and surfaces as an error rather than an overwrite.
func (r *auditRepo) Insert(ctx context.Context, rec persistence.AuditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO audit_log (id, request_id, client_id, ticker, position_value,
			loan_days, borrow_rate, total_fee, formula, breakdown, data_sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.ClientID, rec.Ticker, rec.PositionValue,
		rec.LoanDays, rec.BorrowRate, rec.TotalFee, rec.Formula,
		rec.Breakdown, rec.DataSources, rec.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate audit record %s: %w", rec.ID, err)
		}
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first
func (r *auditRepo) Recent(ctx context.Context, limit int) ([]persistence.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, request_id, client_id, ticker, position_value, loan_days,
			borrow_rate, total_fee, formula, breakdown, data_sources, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1`

	var records []persistence.AuditRecord
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
