package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendpool/locator/internal/domain"
)

type fakeCacher struct {
	store map[string][]byte
}

func newFakeCacher() *fakeCacher {
	return &fakeCacher{store: make(map[string][]byte)}
}

func (f *fakeCacher) Get(_ context.Context, key string) ([]byte, bool) {
	b, ok := f.store[key]
	return b, ok
}

func (f *fakeCacher) SetDefault(_ context.Context, key string, value []byte) {
	f.store[key] = value
}

func (f *fakeCacher) Delete(_ context.Context, key string) {
	delete(f.store, key)
}

type stubStocks struct {
	calls int
	stock domain.Stock
	err   error
}

func (s *stubStocks) ByTicker(context.Context, string) (domain.Stock, error) {
	s.calls++
	return s.stock, s.err
}

func (s *stubStocks) Upsert(context.Context, domain.Stock) error { return s.err }

func (s *stubStocks) List(context.Context, int) ([]domain.Stock, error) {
	return []domain.Stock{s.stock}, s.err
}

type stubClients struct {
	calls  int
	client domain.ClientConfig
	err    error
}

func (s *stubClients) ByID(context.Context, string) (domain.ClientConfig, error) {
	s.calls++
	return s.client, s.err
}

func (s *stubClients) Upsert(context.Context, domain.ClientConfig) error { return s.err }

func (s *stubClients) List(context.Context, int) ([]domain.ClientConfig, error) {
	return []domain.ClientConfig{s.client}, s.err
}

func sampleStock() domain.Stock {
	return domain.Stock{
		Ticker:        "AAPL",
		BorrowStatus:  domain.BorrowEasy,
		LenderAPIID:   "LND-AAPL",
		MinBorrowRate: decimal.NewNullDecimal(decimal.RequireFromString("0.03")),
		LastUpdated:   time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
	}
}

func TestCachedStocks_ReadThrough(t *testing.T) {
	inner := &stubStocks{stock: sampleStock()}
	cacher := newFakeCacher()
	repo := NewCachedStocks(inner, cacher, zerolog.Nop())
	ctx := context.Background()

	first, err := repo.ByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	second, err := repo.ByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second lookup must come from cache")

	assert.Equal(t, first.Ticker, second.Ticker)
	assert.Equal(t, first.BorrowStatus, second.BorrowStatus)
	require.True(t, second.MinBorrowRate.Valid)
	assert.True(t, first.MinBorrowRate.Decimal.Equal(second.MinBorrowRate.Decimal))
}

func TestCachedStocks_NotFoundIsNotCached(t *testing.T) {
	inner := &stubStocks{err: ErrNotFound}
	cacher := newFakeCacher()
	repo := NewCachedStocks(inner, cacher, zerolog.Nop())
	ctx := context.Background()

	_, err := repo.ByTicker(ctx, "ZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.ByTicker(ctx, "ZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, cacher.store)
}

func TestCachedStocks_UpsertInvalidates(t *testing.T) {
	inner := &stubStocks{stock: sampleStock()}
	cacher := newFakeCacher()
	repo := NewCachedStocks(inner, cacher, zerolog.Nop())
	ctx := context.Background()

	_, err := repo.ByTicker(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, cacher.store, 1)

	require.NoError(t, repo.Upsert(ctx, sampleStock()))
	assert.Empty(t, cacher.store, "upsert must drop the cached row")

	_, err = repo.ByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedStocks_CorruptEntryFallsThrough(t *testing.T) {
	inner := &stubStocks{stock: sampleStock()}
	cacher := newFakeCacher()
	cacher.store["stock:AAPL"] = []byte("{not json")
	repo := NewCachedStocks(inner, cacher, zerolog.Nop())

	stock, err := repo.ByTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", stock.Ticker)
	assert.Equal(t, 1, inner.calls, "corrupt entry must fall through to the store")
}

func TestCachedClients_ReadThrough(t *testing.T) {
	inner := &stubClients{client: domain.ClientConfig{
		ClientID:          "BRK001",
		MarkupPercentage:  decimal.RequireFromString("0.05"),
		FeeType:           domain.FeeFlat,
		TransactionAmount: decimal.NewFromInt(25),
		Active:            true,
	}}
	cacher := newFakeCacher()
	repo := NewCachedClients(inner, cacher, zerolog.Nop())
	ctx := context.Background()

	first, err := repo.ByID(ctx, "BRK001")
	require.NoError(t, err)
	second, err := repo.ByID(ctx, "BRK001")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.True(t, first.MarkupPercentage.Equal(second.MarkupPercentage))
	assert.Contains(t, cacher.store, "broker_config:BRK001")
}

func TestCachedClients_UpsertInvalidates(t *testing.T) {
	inner := &stubClients{client: domain.ClientConfig{ClientID: "BRK001", FeeType: domain.FeeFlat}}
	cacher := newFakeCacher()
	repo := NewCachedClients(inner, cacher, zerolog.Nop())
	ctx := context.Background()

	_, err := repo.ByID(ctx, "BRK001")
	require.NoError(t, err)
	require.Contains(t, cacher.store, "broker_config:BRK001")

	require.NoError(t, repo.Upsert(ctx, domain.ClientConfig{ClientID: "BRK001", FeeType: domain.FeeFlat}))
	assert.NotContains(t, cacher.store, "broker_config:BRK001")
}
