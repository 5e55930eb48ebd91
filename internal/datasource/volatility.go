package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/infrastructure/httpclient"
	"github.com/lendpool/locator/internal/metrics"
)

// VolatilityClient fetches volatility indices. Ticker-level and market-wide
// readings live on the same upstream but trip independent breakers, so a
// broken ticker endpoint does not cut off the market-wide substitute.
type VolatilityClient struct {
	cfg         config.FeedConfig
	pool        *httpclient.Pool
	tickerGuard *Guard
	marketGuard *Guard
	metrics     *metrics.Registry
	log         zerolog.Logger
}

// NewVolatilityClient creates the volatility feed client
func NewVolatilityClient(cfg config.FeedConfig, pool *httpclient.Pool, tickerGuard, marketGuard *Guard, m *metrics.Registry, log zerolog.Logger) *VolatilityClient {
	return &VolatilityClient{
		cfg:         cfg,
		pool:        pool,
		tickerGuard: tickerGuard,
		marketGuard: marketGuard,
		metrics:     m,
		log:         log.With().Str("client", "volatility").Logger(),
	}
}

type volatilityPayload struct {
	Ticker     string          `json:"ticker,omitempty"`
	Volatility decimal.Decimal `json:"volatility"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TickerVolatility returns the volatility index for one ticker.
// ErrNoData means the feed has no reading for it.
func (c *VolatilityClient) TickerVolatility(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return c.read(ctx, EndpointVolatility, c.tickerGuard, "/api/v1/volatility/"+ticker)
}

// MarketVolatility returns the market-wide volatility index
func (c *VolatilityClient) MarketVolatility(ctx context.Context) (decimal.Decimal, error) {
	return c.read(ctx, EndpointMarketVolatility, c.marketGuard, "/api/v1/volatility/market")
}

func (c *VolatilityClient) read(ctx context.Context, endpoint string, guard *Guard, path string) (decimal.Decimal, error) {
	start := time.Now()
	out, err := guard.Do(ctx, func() (interface{}, error) {
		return c.fetch(ctx, path)
	})
	elapsed := time.Since(start)

	if err != nil {
		result := "error"
		if errors.Is(err, ErrNoData) {
			result = "no_data"
		}
		c.metrics.ObserveUpstream(endpoint, result, elapsed)
		return decimal.Decimal{}, fmt.Errorf("%s: %w", endpoint, err)
	}

	c.metrics.ObserveUpstream(endpoint, "success", elapsed)
	return out.(decimal.Decimal), nil
}

func (c *VolatilityClient) fetch(ctx context.Context, path string) (interface{}, error) {
	req, err := newFeedRequest(ctx, c.cfg, path)
	if err != nil {
		return nil, err
	}
	resp, err := c.pool.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		drainBody(resp)
		return nil, ErrNoData
	default:
		drainBody(resp)
		return nil, fmt.Errorf("volatility feed responded %s", resp.Status)
	}

	var payload volatilityPayload
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	if payload.Volatility.IsNegative() {
		return nil, fmt.Errorf("volatility feed returned negative index %s", payload.Volatility)
	}
	return payload.Volatility, nil
}

// Ping checks feed liveness without touching the guard stack
func (c *VolatilityClient) Ping(ctx context.Context) error {
	return pingFeed(ctx, c.cfg, c.pool)
}
