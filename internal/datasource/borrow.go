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
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/infrastructure/httpclient"
	"github.com/lendpool/locator/internal/metrics"
)

// BorrowQuote is one live reading from the borrow-rate feed
type BorrowQuote struct {
	Ticker    string              `json:"ticker"`
	Rate      decimal.Decimal     `json:"rate"`
	Status    domain.BorrowStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

// BorrowRateClient fetches current borrow rates from the lender API
type BorrowRateClient struct {
	cfg     config.FeedConfig
	pool    *httpclient.Pool
	guard   *Guard
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewBorrowRateClient creates the borrow-rate feed client
func NewBorrowRateClient(cfg config.FeedConfig, pool *httpclient.Pool, guard *Guard, m *metrics.Registry, log zerolog.Logger) *BorrowRateClient {
	return &BorrowRateClient{
		cfg:     cfg,
		pool:    pool,
		guard:   guard,
		metrics: m,
		log:     log.With().Str("client", "borrow_rate").Logger(),
	}
}

// Rate returns the live borrow rate for a ticker. ErrNoData means the feed
// does not know the ticker; any other error is an endpoint failure.
func (c *BorrowRateClient) Rate(ctx context.Context, ticker string) (BorrowQuote, error) {
	start := time.Now()
	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		return c.fetch(ctx, ticker)
	})
	elapsed := time.Since(start)

	if err != nil {
		result := "error"
		if errors.Is(err, ErrNoData) {
			result = "no_data"
		}
		c.metrics.ObserveUpstream(EndpointBorrow, result, elapsed)
		return BorrowQuote{}, fmt.Errorf("borrow rate %s: %w", ticker, err)
	}

	c.metrics.ObserveUpstream(EndpointBorrow, "success", elapsed)
	return out.(BorrowQuote), nil
}

func (c *BorrowRateClient) fetch(ctx context.Context, ticker string) (interface{}, error) {
	req, err := newFeedRequest(ctx, c.cfg, "/api/v1/borrow/"+ticker)
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
		return nil, fmt.Errorf("borrow feed responded %s", resp.Status)
	}

	var payload BorrowQuote
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	if payload.Rate.IsNegative() {
		return nil, fmt.Errorf("borrow feed returned negative rate %s for %s", payload.Rate, ticker)
	}
	if payload.Ticker == "" {
		payload.Ticker = ticker
	}
	return payload, nil
}

// Ping checks feed liveness without touching the guard stack
func (c *BorrowRateClient) Ping(ctx context.Context) error {
	return pingFeed(ctx, c.cfg, c.pool)
}
