// Package db manages the PostgreSQL connection pool and wires the repository
// set, with read-through caching layered over the reference-data repos.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/persistence"
	"github.com/lendpool/locator/internal/persistence/postgres"
)

// Manager owns the database connection pool and repository instances
type Manager struct {
	db     *sqlx.DB
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens the connection pool, verifies connectivity and builds the
// repository set. The stock and client repos come wrapped in read-through
// caching; the audit repo writes straight through.
func NewManager(cfg config.PostgresConfig, cacher persistence.Cacher, log zerolog.Logger) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMins) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	queryTimeout := cfg.QueryTimeout()
	repos := &persistence.Repository{
		Stocks:  persistence.NewCachedStocks(postgres.NewStocksRepo(db, queryTimeout), cacher, log),
		Clients: persistence.NewCachedClients(postgres.NewClientsRepo(db, queryTimeout), cacher, log),
		Audit:   postgres.NewAuditRepo(db, queryTimeout),
	}

	return &Manager{
		db:    db,
		repos: repos,
		health: &healthChecker{
			db:      db,
			timeout: queryTimeout,
		},
	}, nil
}

// Repository returns the repository collection
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the health checker interface
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// DB returns the underlying connection pool, for schema bootstrap and tests
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// EnsureSchema creates the service's tables if they are absent
func (m *Manager) EnsureSchema(ctx context.Context) error {
	return postgres.EnsureSchema(ctx, m.db)
}

// Close closes the database connection pool
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Health returns current repository health status
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	connectionPool := map[string]int{
		"max_open":      stats.MaxOpenConnections,
		"open":          stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait_count":    int(stats.WaitCount),
		"wait_duration": int(stats.WaitDuration.Milliseconds()),
	}

	return persistence.HealthCheck{
		Healthy:        healthy,
		Errors:         errs,
		ConnectionPool: connectionPool,
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// Ping tests basic connectivity to the database
func (h *healthChecker) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}
