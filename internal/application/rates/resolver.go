package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/datasource"
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/infrastructure/cache"
	"github.com/lendpool/locator/internal/metrics"
	"github.com/lendpool/locator/internal/persistence"
)

// BorrowSource provides live borrow-rate quotes
type BorrowSource interface {
	Rate(ctx context.Context, ticker string) (datasource.BorrowQuote, error)
}

// VolatilitySource provides ticker-level and market-wide volatility readings
type VolatilitySource interface {
	TickerVolatility(ctx context.Context, ticker string) (decimal.Decimal, error)
	MarketVolatility(ctx context.Context) (decimal.Decimal, error)
}

// EventSource provides the highest upcoming event risk factor per ticker
type EventSource interface {
	RiskFactor(ctx context.Context, ticker string) (factor int, found bool, err error)
}

// StockLookup resolves tickers against the securities master
type StockLookup interface {
	ByTicker(ctx context.Context, ticker string) (domain.Stock, error)
}

// Cacher is the slice of the cache layer the resolver needs
type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetDefault(ctx context.Context, key string, value []byte)
}

// Resolver computes the current borrow rate for a ticker. Inputs are cached
// individually; only upstream-confirmed values go into the per-input caches
// so a recovered source is picked up on the next resolution, while the fully
// resolved rate is cached as-is (fallbacks included) under borrow_rate:*.
type Resolver struct {
	stocks  StockLookup
	borrow  BorrowSource
	vol     VolatilitySource
	events  EventSource
	cache   Cacher
	params  Params
	policy  FallbackPolicy
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewResolver wires the rate resolution pipeline
func NewResolver(stocks StockLookup, borrow BorrowSource, vol VolatilitySource, events EventSource,
	cacher Cacher, params Params, m *metrics.Registry, log zerolog.Logger) *Resolver {
	return &Resolver{
		stocks:  stocks,
		borrow:  borrow,
		vol:     vol,
		events:  events,
		cache:   cacher,
		params:  params,
		policy:  NewFallbackPolicy(params),
		metrics: m,
		log:     log.With().Str("component", "rate_resolver").Logger(),
	}
}

// Resolve returns the current borrow rate for a ticker with full provenance.
// External-source failures are absorbed by the fallback policy; the only
// errors that escape are validation, unknown ticker, stock-store failures and
// the unrecoverable case of a dead base source with no minimum on record.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (domain.ResolvedRate, error) {
	start := time.Now()

	normalized := domain.NormalizeTicker(ticker)
	if !domain.ValidTicker(normalized) {
		return domain.ResolvedRate{}, domain.Validation("ticker", "must be 1-5 uppercase letters")
	}

	stock, err := r.stocks.ByTicker(ctx, normalized)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return domain.ResolvedRate{}, fmt.Errorf("%s: %w", normalized, domain.ErrTickerNotFound)
		}
		return domain.ResolvedRate{}, fmt.Errorf("stock lookup %s: %w", normalized, err)
	}

	rateKey := cache.KeyBorrowRate(normalized)
	if payload, ok := r.cache.Get(ctx, rateKey); ok {
		var cached domain.ResolvedRate
		if err := json.Unmarshal(payload, &cached); err == nil {
			r.metrics.RateResolutions.WithLabelValues("cache_hit").Inc()
			return cached, nil
		}
		r.log.Warn().Str("key", rateKey).Msg("undecodable cached rate, resolving fresh")
	}

	base, status, baseTag, err := r.baseRate(ctx, normalized, stock)
	if err != nil {
		r.metrics.RateResolutions.WithLabelValues("error").Inc()
		return domain.ResolvedRate{}, err
	}

	volIndex, volTag := r.volatility(ctx, normalized)
	riskFactor, eventTag := r.eventRisk(ctx, normalized)

	current := r.params.Clamp(r.params.Adjust(base, volIndex, riskFactor), stock.MinBorrowRate)

	resolved := domain.ResolvedRate{
		Ticker:          normalized,
		CurrentRate:     current,
		BorrowStatus:    status,
		VolatilityIndex: &volIndex,
		EventRiskFactor: &riskFactor,
		Provenance: domain.Provenance{
			Base:       baseTag,
			Volatility: volTag,
			Event:      eventTag,
		},
		ResolvedAt: time.Now().UTC(),
	}

	if payload, err := json.Marshal(resolved); err == nil {
		r.cache.SetDefault(ctx, rateKey, payload)
	}

	outcome := "resolved"
	if resolved.Provenance.Degraded() {
		outcome = "fallback"
	}
	r.metrics.RateResolutions.WithLabelValues(outcome).Inc()
	r.metrics.RateLatency.Observe(time.Since(start).Seconds())

	r.log.Debug().
		Str("ticker", normalized).
		Str("rate", current.String()).
		Str("base", string(baseTag)).
		Str("volatility", string(volTag)).
		Str("event", string(eventTag)).
		Msg("rate resolved")
	return resolved, nil
}

// baseRate fetches the live base rate, falling back to the stock's own
// minimum when the source is unavailable or has no data for the ticker.
func (r *Resolver) baseRate(ctx context.Context, ticker string, stock domain.Stock) (decimal.Decimal, domain.BorrowStatus, domain.SourceTag, error) {
	quote, err := r.borrow.Rate(ctx, ticker)
	if err == nil {
		status := quote.Status
		if !status.Valid() {
			status = stock.BorrowStatus
		}
		return quote.Rate, status, domain.SourceLive, nil
	}

	r.log.Warn().Err(err).Str("ticker", ticker).Msg("borrow-rate source unavailable, falling back to stock minimum")
	fallback, tag, ok := r.policy.BaseRate(stock)
	if !ok {
		return decimal.Decimal{}, "", tag,
			fmt.Errorf("borrow source down and no minimum rate on record for %s: %w", ticker, domain.ErrUpstreamUnavailable)
	}
	return fallback, stock.BorrowStatus, tag, nil
}

// volatility returns the volatility index for a ticker: cached ticker-level
// reading, then live ticker-level, then market-wide, then configured default.
func (r *Resolver) volatility(ctx context.Context, ticker string) (decimal.Decimal, domain.SourceTag) {
	key := cache.KeyVolatility(ticker)
	if payload, ok := r.cache.Get(ctx, key); ok {
		if v, err := decimal.NewFromString(string(payload)); err == nil {
			return v, domain.SourceLive
		}
	}

	v, err := r.vol.TickerVolatility(ctx, ticker)
	if err == nil {
		r.cache.SetDefault(ctx, key, []byte(v.String()))
		return v, domain.SourceLive
	}
	if !errors.Is(err, datasource.ErrNoData) {
		r.log.Warn().Err(err).Str("ticker", ticker).Msg("ticker volatility unavailable, trying market-wide")
	}

	market, err := r.marketVolatility(ctx)
	if err == nil {
		return r.policy.MarketVolatility(market)
	}
	r.log.Warn().Err(err).Msg("market volatility unavailable, using configured default")
	return r.policy.Volatility()
}

func (r *Resolver) marketVolatility(ctx context.Context) (decimal.Decimal, error) {
	key := cache.KeyMarketVolatility()
	if payload, ok := r.cache.Get(ctx, key); ok {
		if v, err := decimal.NewFromString(string(payload)); err == nil {
			return v, nil
		}
	}

	v, err := r.vol.MarketVolatility(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	r.cache.SetDefault(ctx, key, []byte(v.String()))
	return v, nil
}

// eventEnvelope is the cached form of an event-risk answer. found
// distinguishes "no upcoming events" from a factor that happens to be zero.
type eventEnvelope struct {
	Factor int  `json:"factor"`
	Found  bool `json:"found"`
}

// eventRisk returns the highest upcoming event risk factor for a ticker,
// treating an empty calendar as zero risk with absent provenance.
func (r *Resolver) eventRisk(ctx context.Context, ticker string) (int, domain.SourceTag) {
	key := cache.KeyEventRisk(ticker)
	if payload, ok := r.cache.Get(ctx, key); ok {
		var env eventEnvelope
		if err := json.Unmarshal(payload, &env); err == nil {
			if env.Found {
				return env.Factor, domain.SourceLive
			}
			return r.policy.EventRisk(true)
		}
	}

	factor, found, err := r.events.RiskFactor(ctx, ticker)
	if err != nil {
		r.log.Warn().Err(err).Str("ticker", ticker).Msg("event source unavailable, assuming zero event risk")
		return r.policy.EventRisk(false)
	}

	if payload, err := json.Marshal(eventEnvelope{Factor: factor, Found: found}); err == nil {
		r.cache.SetDefault(ctx, key, payload)
	}
	if !found {
		return r.policy.EventRisk(true)
	}
	return factor, domain.SourceLive
}
