package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendpool/locator/internal/audit"
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/infrastructure/cache"
	"github.com/lendpool/locator/internal/metrics"
	"github.com/lendpool/locator/internal/persistence"
)

type stubResolver struct {
	resolved  domain.ResolvedRate
	err       error
	calls     int
	gotTicker string
}

func (s *stubResolver) Resolve(_ context.Context, ticker string) (domain.ResolvedRate, error) {
	s.calls++
	s.gotTicker = ticker
	if s.err != nil {
		return domain.ResolvedRate{}, s.err
	}
	return s.resolved, nil
}

type stubClients struct {
	client domain.ClientConfig
	err    error
	calls  int
}

func (s *stubClients) ByID(_ context.Context, _ string) (domain.ClientConfig, error) {
	s.calls++
	if s.err != nil {
		return domain.ClientConfig{}, s.err
	}
	return s.client, nil
}

type captureTrail struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureTrail) Emit(rec audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureTrail) snapshot() []audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Record(nil), c.records...)
}

type fakeCacher struct {
	store map[string][]byte
}

func newFakeCacher() *fakeCacher {
	return &fakeCacher{store: map[string][]byte{}}
}

func (f *fakeCacher) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := f.store[key]
	return v, ok
}

func (f *fakeCacher) SetDefault(_ context.Context, key string, value []byte) {
	f.store[key] = value
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func liveResolved(rate string) domain.ResolvedRate {
	vol := dec("15")
	risk := 0
	return domain.ResolvedRate{
		Ticker:          "AAPL",
		CurrentRate:     dec(rate),
		BorrowStatus:    domain.BorrowEasy,
		VolatilityIndex: &vol,
		EventRiskFactor: &risk,
		Provenance: domain.Provenance{
			Base:       domain.SourceLive,
			Volatility: domain.SourceLive,
			Event:      domain.SourceAbsent,
		},
		ResolvedAt: time.Now().UTC(),
	}
}

func activeClient() domain.ClientConfig {
	return domain.ClientConfig{
		ClientID:          "BRK001",
		MarkupPercentage:  dec("5"),
		FeeType:           domain.FeeFlat,
		TransactionAmount: dec("25"),
		Active:            true,
	}
}

func standardRequest() CalculateRequest {
	return CalculateRequest{
		RequestID:     "req-123",
		ClientID:      "BRK001",
		Ticker:        "AAPL",
		PositionValue: dec("100000"),
		LoanDays:      30,
	}
}

func newTestService(clients ClientSource, resolver RateResolver, cacher Cacher,
	trail AuditTrail, calcCache bool) *Service {
	return New(clients, resolver, cacher, trail, calcCache, metrics.New(), zerolog.Nop())
}

func TestGetBorrowRate_Delegates(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	svc := newTestService(&stubClients{}, resolver, newFakeCacher(), &captureTrail{}, true)

	got, err := svc.GetBorrowRate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, got.CurrentRate.Equal(dec("0.0575")))

	resolver.err = errors.New("boom")
	_, err = svc.GetBorrowRate(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestCalculateFee_EndToEnd(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	trail := &captureTrail{}
	cacher := newFakeCacher()
	svc := newTestService(&stubClients{client: activeClient()}, resolver, cacher, trail, true)

	result, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)

	assert.Equal(t, "472.6", result.Breakdown.BorrowCost.String())
	assert.Equal(t, "23.63", result.Breakdown.Markup.String())
	assert.Equal(t, "25", result.Breakdown.TransactionFees.String())
	assert.Equal(t, "521.23", result.Breakdown.TotalFee.String())
	assert.True(t, result.Breakdown.BorrowRateUsed.Equal(dec("0.0575")))
	assert.False(t, result.CacheHit)
	assert.False(t, result.Provenance.Degraded())

	records := trail.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "req-123", records[0].RequestID)
	assert.Equal(t, "BRK001", records[0].ClientID)
	assert.Equal(t, "AAPL", records[0].Ticker)
	assert.Equal(t, 30, records[0].LoanDays)
	assert.True(t, records[0].BorrowRateUsed.Equal(dec("0.0575")))
	assert.Equal(t, domain.SourceLive, records[0].Provenance.Base)
	assert.NotEmpty(t, records[0].Formula)

	assert.Contains(t, cacher.store, cache.KeyCalculation("AAPL", "BRK001", "100000", 30))
}

func TestCalculateFee_CacheHitIsIdentical(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	trail := &captureTrail{}
	svc := newTestService(&stubClients{client: activeClient()}, resolver, newFakeCacher(), trail, true)

	first, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)
	second, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.calls, "warm cache must not re-resolve")
	assert.True(t, second.CacheHit)
	assert.True(t, first.Breakdown.TotalFee.Equal(second.Breakdown.TotalFee))
	assert.True(t, first.Breakdown.BorrowCost.Equal(second.Breakdown.BorrowCost))
	assert.True(t, first.Breakdown.Markup.Equal(second.Breakdown.Markup))
	assert.True(t, first.Breakdown.TransactionFees.Equal(second.Breakdown.TransactionFees))
	assert.True(t, first.Breakdown.BorrowRateUsed.Equal(second.Breakdown.BorrowRateUsed))
	assert.Equal(t, first.Provenance, second.Provenance)

	assert.Len(t, trail.snapshot(), 2, "cache hits still audit")
}

func TestCalculateFee_CacheDisabled(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	cacher := newFakeCacher()
	svc := newTestService(&stubClients{client: activeClient()}, resolver, cacher, &captureTrail{}, false)

	_, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)
	_, err = svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)

	assert.Equal(t, 2, resolver.calls)
	assert.Empty(t, cacher.store)
}

func TestCalculateFee_CorruptCacheEntryRecomputes(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	cacher := newFakeCacher()
	key := cache.KeyCalculation("AAPL", "BRK001", "100000", 30)
	cacher.store[key] = []byte("{not json")
	svc := newTestService(&stubClients{client: activeClient()}, resolver, cacher, &captureTrail{}, true)

	result, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
	assert.False(t, result.CacheHit)
	assert.NotEqual(t, []byte("{not json"), cacher.store[key], "fresh result replaces the bad entry")
}

func TestCalculateFee_RejectsBadInputs(t *testing.T) {
	clients := &stubClients{client: activeClient()}
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	svc := newTestService(clients, resolver, newFakeCacher(), &captureTrail{}, true)

	req := standardRequest()
	req.PositionValue = dec("-100")
	_, err := svc.CalculateFee(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "position_value")

	req = standardRequest()
	req.LoanDays = 0
	_, err = svc.CalculateFee(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	req = standardRequest()
	req.Ticker = "NOT-A-TICKER"
	_, err = svc.CalculateFee(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	req = standardRequest()
	req.ClientID = ""
	_, err = svc.CalculateFee(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	assert.Equal(t, 0, clients.calls, "validation failures never reach the store")
	assert.Equal(t, 0, resolver.calls)
}

func TestCalculateFee_NormalizesTicker(t *testing.T) {
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	svc := newTestService(&stubClients{client: activeClient()}, resolver, newFakeCacher(), &captureTrail{}, true)

	req := standardRequest()
	req.Ticker = "  aapl "
	_, err := svc.CalculateFee(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", resolver.gotTicker)
}

func TestCalculateFee_UnknownClient(t *testing.T) {
	clients := &stubClients{err: persistence.ErrNotFound}
	resolver := &stubResolver{resolved: liveResolved("0.0575")}
	svc := newTestService(clients, resolver, newFakeCacher(), &captureTrail{}, true)

	_, err := svc.CalculateFee(context.Background(), standardRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
	assert.Equal(t, domain.CodeClientNotFound, domain.ErrorCode(err))
	assert.Equal(t, 0, resolver.calls, "no pricing for unknown clients")
}

func TestCalculateFee_InactiveClient(t *testing.T) {
	inactive := activeClient()
	inactive.Active = false
	svc := newTestService(&stubClients{client: inactive}, &stubResolver{}, newFakeCacher(), &captureTrail{}, true)

	_, err := svc.CalculateFee(context.Background(), standardRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestCalculateFee_TickerNotFoundPropagates(t *testing.T) {
	resolver := &stubResolver{err: domain.ErrTickerNotFound}
	trail := &captureTrail{}
	svc := newTestService(&stubClients{client: activeClient()}, resolver, newFakeCacher(), trail, true)

	_, err := svc.CalculateFee(context.Background(), standardRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
	assert.Empty(t, trail.snapshot(), "failed calculations do not audit")
}

func TestCalculateFee_DegradedPricingStillSucceeds(t *testing.T) {
	resolved := liveResolved("0.024")
	resolved.Provenance = domain.Provenance{
		Base:       domain.SourceFallback,
		Volatility: domain.SourceFallback,
		Event:      domain.SourceFallback,
	}
	trail := &captureTrail{}
	svc := newTestService(&stubClients{client: activeClient()}, &stubResolver{resolved: resolved},
		newFakeCacher(), trail, true)

	result, err := svc.CalculateFee(context.Background(), standardRequest())
	require.NoError(t, err, "degraded upstreams must not fail the request")
	assert.True(t, result.Provenance.Degraded())
	assert.True(t, result.Breakdown.BorrowRateUsed.Equal(dec("0.024")))

	records := trail.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, domain.SourceFallback, records[0].Provenance.Base)
}

func TestCalculateFee_GeneratesRequestID(t *testing.T) {
	trail := &captureTrail{}
	svc := newTestService(&stubClients{client: activeClient()},
		&stubResolver{resolved: liveResolved("0.0575")}, newFakeCacher(), trail, true)

	req := standardRequest()
	req.RequestID = ""
	_, err := svc.CalculateFee(context.Background(), req)
	require.NoError(t, err)

	records := trail.snapshot()
	require.Len(t, records, 1)
	_, err = uuid.Parse(records[0].RequestID)
	assert.NoError(t, err, "missing request ids are minted, not left blank")
}
