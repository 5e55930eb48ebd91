package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/infrastructure/httpclient"
	"github.com/lendpool/locator/internal/metrics"
)

// RiskEvent is one calendar entry from the event risk feed
type RiskEvent struct {
	Type       string `json:"type"`
	Date       string `json:"date"` // calendar date, YYYY-MM-DD
	RiskFactor int    `json:"risk_factor"`
}

// EventsClient fetches upcoming corporate events and their risk factors
type EventsClient struct {
	cfg     config.FeedConfig
	pool    *httpclient.Pool
	guard   *Guard
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewEventsClient creates the event calendar feed client
func NewEventsClient(cfg config.FeedConfig, pool *httpclient.Pool, guard *Guard, m *metrics.Registry, log zerolog.Logger) *EventsClient {
	return &EventsClient{
		cfg:     cfg,
		pool:    pool,
		guard:   guard,
		metrics: m,
		log:     log.With().Str("client", "events").Logger(),
	}
}

type eventsPayload struct {
	Ticker string      `json:"ticker"`
	Events []RiskEvent `json:"events"`
}

// RiskFactor returns the highest risk factor among a ticker's upcoming
// events. found is false when the feed knows no events for the ticker,
// which is an answer, not a failure.
func (c *EventsClient) RiskFactor(ctx context.Context, ticker string) (factor int, found bool, err error) {
	start := time.Now()
	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		return c.fetch(ctx, ticker)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, ErrNoData) {
			c.metrics.ObserveUpstream(EndpointEvents, "no_data", elapsed)
			return 0, false, nil
		}
		c.metrics.ObserveUpstream(EndpointEvents, "error", elapsed)
		return 0, false, fmt.Errorf("event risk %s: %w", ticker, err)
	}

	c.metrics.ObserveUpstream(EndpointEvents, "success", elapsed)

	events := out.([]RiskEvent)
	if len(events) == 0 {
		return 0, false, nil
	}

	max := 0
	for _, ev := range events {
		f := ev.RiskFactor
		// risk factors live on a 0-10 scale; out-of-range values are
		// clamped rather than dropped
		if f < 0 {
			f = 0
		}
		if f > 10 {
			c.log.Warn().Str("ticker", ticker).Int("risk_factor", ev.RiskFactor).Msg("event risk factor above scale, clamping")
			f = 10
		}
		if f > max {
			max = f
		}
	}
	return max, true, nil
}

func (c *EventsClient) fetch(ctx context.Context, ticker string) (interface{}, error) {
	req, err := newFeedRequest(ctx, c.cfg, "/api/v1/events/"+ticker)
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
		return nil, fmt.Errorf("events feed responded %s", resp.Status)
	}

	var payload eventsPayload
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	return payload.Events, nil
}

// Ping checks feed liveness without touching the guard stack
func (c *EventsClient) Ping(ctx context.Context) error {
	return pingFeed(ctx, c.cfg, c.pool)
}
