package persistence

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/infrastructure/cache"
)

// Cacher is the slice of the cache layer the read-through decorators need.
// A degraded cache satisfies it with always-miss reads and no-op writes.
type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetDefault(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, key string)
}

// CachedStocks is a read-through decorator over a StockRepo. Rows are cached
// under stock:{ticker}; writes invalidate so admins see changes immediately.
type CachedStocks struct {
	inner StockRepo
	cache Cacher
	log   zerolog.Logger
}

// NewCachedStocks wraps a stock repository with read-through caching
func NewCachedStocks(inner StockRepo, c Cacher, log zerolog.Logger) *CachedStocks {
	return &CachedStocks{
		inner: inner,
		cache: c,
		log:   log.With().Str("repo", "stocks").Logger(),
	}
}

// ByTicker returns the stock row, serving from cache when warm
func (r *CachedStocks) ByTicker(ctx context.Context, ticker string) (domain.Stock, error) {
	key := cache.KeyStock(ticker)
	if payload, ok := r.cache.Get(ctx, key); ok {
		var stock domain.Stock
		if err := json.Unmarshal(payload, &stock); err == nil {
			return stock, nil
		}
		r.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		r.cache.Delete(ctx, key)
	}

	stock, err := r.inner.ByTicker(ctx, ticker)
	if err != nil {
		return domain.Stock{}, err
	}
	if payload, err := json.Marshal(stock); err == nil {
		r.cache.SetDefault(ctx, key, payload)
	}
	return stock, nil
}

// Upsert writes through to the store and invalidates the cached row
func (r *CachedStocks) Upsert(ctx context.Context, stock domain.Stock) error {
	if err := r.inner.Upsert(ctx, stock); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.KeyStock(stock.Ticker))
	return nil
}

// List bypasses the cache; listing is an admin path, not the hot path
func (r *CachedStocks) List(ctx context.Context, limit int) ([]domain.Stock, error) {
	return r.inner.List(ctx, limit)
}

// CachedClients is a read-through decorator over a ClientRepo using the
// broker_config:{client_id} namespace.
type CachedClients struct {
	inner ClientRepo
	cache Cacher
	log   zerolog.Logger
}

// NewCachedClients wraps a client repository with read-through caching
func NewCachedClients(inner ClientRepo, c Cacher, log zerolog.Logger) *CachedClients {
	return &CachedClients{
		inner: inner,
		cache: c,
		log:   log.With().Str("repo", "clients").Logger(),
	}
}

// ByID returns the client configuration, serving from cache when warm.
// Inactive rows are cached too; activity is enforced above this layer.
func (r *CachedClients) ByID(ctx context.Context, clientID string) (domain.ClientConfig, error) {
	key := cache.KeyBrokerConfig(clientID)
	if payload, ok := r.cache.Get(ctx, key); ok {
		var client domain.ClientConfig
		if err := json.Unmarshal(payload, &client); err == nil {
			return client, nil
		}
		r.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		r.cache.Delete(ctx, key)
	}

	client, err := r.inner.ByID(ctx, clientID)
	if err != nil {
		return domain.ClientConfig{}, err
	}
	if payload, err := json.Marshal(client); err == nil {
		r.cache.SetDefault(ctx, key, payload)
	}
	return client, nil
}

// Upsert writes through to the store and invalidates the cached row
func (r *CachedClients) Upsert(ctx context.Context, client domain.ClientConfig) error {
	if err := r.inner.Upsert(ctx, client); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.KeyBrokerConfig(client.ClientID))
	return nil
}

// List bypasses the cache
func (r *CachedClients) List(ctx context.Context, limit int) ([]domain.ClientConfig, error) {
	return r.inner.List(ctx, limit)
}
