// Package persistence defines the repository contracts over the relational
// store: the securities master, broker billing configurations, and the
// append-only audit trail.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row. Callers translate it
// into their own taxonomy (ticker vs client) at the facade.
var ErrNotFound = errors.New("not found")

// AuditRecord is one persisted fee calculation. Breakdown and sources are
// stored as JSONB documents so the trail survives schema drift in either.
type AuditRecord struct {
	ID            string          `db:"id" json:"id"`
	RequestID     string          `db:"request_id" json:"request_id"`
	ClientID      string          `db:"client_id" json:"client_id"`
	Ticker        string          `db:"ticker" json:"ticker"`
	PositionValue decimal.Decimal `db:"position_value" json:"position_value"`
	LoanDays      int             `db:"loan_days" json:"loan_days"`
	BorrowRate    decimal.Decimal `db:"borrow_rate" json:"borrow_rate"`
	TotalFee      decimal.Decimal `db:"total_fee" json:"total_fee"`
	Formula       string          `db:"formula" json:"formula"`
	Breakdown     []byte          `db:"breakdown" json:"breakdown"`
	DataSources   []byte          `db:"data_sources" json:"data_sources"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// StockRepo provides access to the securities master
type StockRepo interface {
	// ByTicker returns the stock row for an exact ticker, or ErrNotFound
	ByTicker(ctx context.Context, ticker string) (domain.Stock, error)

	// Upsert inserts or replaces a stock row, used by the admin path and seeding
	Upsert(ctx context.Context, stock domain.Stock) error

	// List returns up to limit stocks ordered by ticker
	List(ctx context.Context, limit int) ([]domain.Stock, error)
}

// ClientRepo provides access to broker billing configurations
type ClientRepo interface {
	// ByID returns the client configuration row, or ErrNotFound.
	// Inactive rows are returned as-is; activity policy belongs to the facade.
	ByID(ctx context.Context, clientID string) (domain.ClientConfig, error)

	// Upsert inserts or replaces a client configuration
	Upsert(ctx context.Context, client domain.ClientConfig) error

	// List returns up to limit client configurations ordered by id
	List(ctx context.Context, limit int) ([]domain.ClientConfig, error)
}

// AuditRepo persists the append-only calculation trail
type AuditRepo interface {
	// Insert appends one audit record
	Insert(ctx context.Context, rec AuditRecord) error

	// Recent returns the latest records, newest first
	Recent(ctx context.Context, limit int) ([]AuditRecord, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Stocks  StockRepo
	Clients ClientRepo
	Audit   AuditRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database
	Ping(ctx context.Context) error
}
