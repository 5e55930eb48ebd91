package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/infrastructure/httpclient"
	"github.com/lendpool/locator/internal/metrics"
)

// ErrNoData means the upstream answered but has nothing for the requested
// key. It is a successful conversation, not an endpoint failure.
var ErrNoData = errors.New("upstream has no data for this key")

// Endpoint names used for breakers and metrics labels
const (
	EndpointBorrow           = "borrow"
	EndpointVolatility       = "volatility"
	EndpointMarketVolatility = "market_volatility"
	EndpointEvents           = "events"
)

const maxResponseBody = 1 << 20

// Clients bundles the three feed clients with their shared guard machinery
type Clients struct {
	Borrow     *BorrowRateClient
	Volatility *VolatilityClient
	Events     *EventsClient

	breakers *BreakerSet
	budgets  []*Budget
}

// NewClients wires pools, budgets, limiters and breakers for all feeds.
// The two volatility endpoints share one budget and limiter (same upstream
// service) but trip independent breakers.
func NewClients(cfg config.UpstreamsConfig, breakers *BreakerSet, m *metrics.Registry, log zerolog.Logger) *Clients {
	borrowPool := httpclient.New(httpclient.FromConfig(EndpointBorrow, cfg.Borrow, cfg), m, log)
	volPool := httpclient.New(httpclient.FromConfig(EndpointVolatility, cfg.Volatility, cfg), m, log)
	eventsPool := httpclient.New(httpclient.FromConfig(EndpointEvents, cfg.Events, cfg), m, log)

	borrowBudget := NewBudget(EndpointBorrow, cfg.Borrow.DailyBudget, m, log)
	volBudget := NewBudget(EndpointVolatility, cfg.Volatility.DailyBudget, m, log)
	eventsBudget := NewBudget(EndpointEvents, cfg.Events.DailyBudget, m, log)

	borrowLimiter := rate.NewLimiter(rate.Limit(cfg.Borrow.RPS), cfg.Borrow.Burst)
	volLimiter := rate.NewLimiter(rate.Limit(cfg.Volatility.RPS), cfg.Volatility.Burst)
	eventsLimiter := rate.NewLimiter(rate.Limit(cfg.Events.RPS), cfg.Events.Burst)

	c := &Clients{
		breakers: breakers,
		budgets:  []*Budget{borrowBudget, volBudget, eventsBudget},
	}
	c.Borrow = NewBorrowRateClient(cfg.Borrow, borrowPool,
		NewGuard(breakers.For(EndpointBorrow), borrowLimiter, borrowBudget), m, log)
	c.Volatility = NewVolatilityClient(cfg.Volatility, volPool,
		NewGuard(breakers.For(EndpointVolatility), volLimiter, volBudget),
		NewGuard(breakers.For(EndpointMarketVolatility), volLimiter, volBudget), m, log)
	c.Events = NewEventsClient(cfg.Events, eventsPool,
		NewGuard(breakers.For(EndpointEvents), eventsLimiter, eventsBudget), m, log)
	return c
}

// BreakerStates snapshots every endpoint breaker
func (c *Clients) BreakerStates() []BreakerStatus {
	return c.breakers.States()
}

// BudgetStatuses snapshots every feed budget
func (c *Clients) BudgetStatuses() []BudgetStatus {
	out := make([]BudgetStatus, 0, len(c.budgets))
	for _, b := range c.budgets {
		out = append(out, b.Status())
	}
	return out
}

// ResetBudgets zeroes all daily budgets, called by the ops scheduler
func (c *Clients) ResetBudgets() {
	for _, b := range c.budgets {
		b.Reset()
	}
}

// Probe pings every feed's health endpoint and reports failures by feed name
func (c *Clients) Probe(ctx context.Context) map[string]error {
	return map[string]error{
		EndpointBorrow:     c.Borrow.Ping(ctx),
		EndpointVolatility: c.Volatility.Ping(ctx),
		EndpointEvents:     c.Events.Ping(ctx),
	}
}

func newFeedRequest(ctx context.Context, cfg config.FeedConfig, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.APIKey)
	}
	return req, nil
}

func decodeBody(resp *http.Response, v interface{}) error {
	defer drainBody(resp)
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(v); err != nil {
		return fmt.Errorf("decode feed payload: %w", err)
	}
	return nil
}

func drainBody(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func pingFeed(ctx context.Context, cfg config.FeedConfig, pool *httpclient.Pool) error {
	req, err := newFeedRequest(ctx, cfg, "/health")
	if err != nil {
		return err
	}
	resp, err := pool.Do(ctx, req)
	if err != nil {
		return err
	}
	drainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %s", resp.Status)
	}
	return nil
}
