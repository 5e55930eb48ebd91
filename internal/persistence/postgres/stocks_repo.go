// Package postgres implements the persistence interfaces over PostgreSQL
// using sqlx. Every query runs under the configured per-query timeout.
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

// stocksRepo implements StockRepo for PostgreSQL
type stocksRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStocksRepo creates a PostgreSQL securities-master repository
func NewStocksRepo(db *sqlx.DB, timeout time.Duration) persistence.StockRepo {
	return &stocksRepo{
		db:      db,
		timeout: timeout,
	}
}

// ByTicker returns the stock row for an exact ticker, or ErrNotFound
func (r *stocksRepo) ByTicker(ctx context.Context, ticker string) (domain.Stock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ticker, borrow_status, lender_api_id, min_borrow_rate, last_updated
		FROM stocks
		WHERE ticker = $1`

	var stock domain.Stock
	if err := r.db.GetContext(ctx, &stock, query, ticker); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stock{}, fmt.Errorf("stock %s: %w", ticker, persistence.ErrNotFound)
		}
		return domain.Stock{}, fmt.Errorf("failed to query stock %s: %w", ticker, err)
	}
	return stock, nil
}

// Upsert inserts or replaces a stock row
func (r *stocksRepo) Upsert(ctx context.Context, stock domain.Stock) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !domain.ValidTicker(stock.Ticker) {
		return fmt.Errorf("invalid ticker: %q", stock.Ticker)
	}
	if !stock.BorrowStatus.Valid() {
		return fmt.Errorf("invalid borrow status: %q", stock.BorrowStatus)
	}

	query := `
		INSERT INTO stocks (ticker, borrow_status, lender_api_id, min_borrow_rate, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (ticker) DO UPDATE SET
			borrow_status   = EXCLUDED.borrow_status,
			lender_api_id   = EXCLUDED.lender_api_id,
			min_borrow_rate = EXCLUDED.min_borrow_rate,
			last_updated    = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		stock.Ticker, stock.BorrowStatus, stock.LenderAPIID, stock.MinBorrowRate)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", stock.Ticker, err)
	}
	return nil
}

// List returns up to limit stocks ordered by ticker
func (r *stocksRepo) List(ctx context.Context, limit int) ([]domain.Stock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ticker, borrow_status, lender_api_id, min_borrow_rate, last_updated
		FROM stocks
		ORDER BY ticker
		LIMIT $1`

	var stocks []domain.Stock
	if err := r.db.SelectContext(ctx, &stocks, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return stocks, nil
}
