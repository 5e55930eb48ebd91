// Package httpclient is the shared outbound HTTP transport for upstream
// feeds: bounded concurrency, per-attempt timeout, and retry with
// exponential backoff. Connection failures and 5xx responses retry; any 4xx
// is returned to the caller untouched.
package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/metrics"
)

// Config controls one feed's outbound behaviour
type Config struct {
	Name          string // feed label for logs and metrics
	Timeout       time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter bool
	MaxConcurrent int
	UserAgent     string
}

// FromConfig assembles a pool config for one feed from the service config
func FromConfig(name string, feed config.FeedConfig, ups config.UpstreamsConfig) Config {
	return Config{
		Name:          name,
		Timeout:       feed.Timeout(),
		MaxAttempts:   ups.Retry.MaxAttempts,
		BackoffBase:   time.Duration(ups.Retry.Backoff.Base) * time.Millisecond,
		BackoffMax:    time.Duration(ups.Retry.Backoff.Max) * time.Millisecond,
		BackoffJitter: ups.Retry.Backoff.Jitter,
		MaxConcurrent: ups.MaxConcurrent,
		UserAgent:     ups.UserAgent,
	}
}

// Pool issues requests for a single upstream feed
type Pool struct {
	cfg       Config
	semaphore chan struct{}
	client    *http.Client
	metrics   *metrics.Registry
	log       zerolog.Logger

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
	retried atomic.Int64
}

// Stats is a snapshot of pool counters
type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Retried int64 `json:"retried"`
}

// New creates a request pool for one feed
func New(cfg Config, m *metrics.Registry, log zerolog.Logger) *Pool {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Pool{
		cfg:       cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		client:    &http.Client{Timeout: cfg.Timeout},
		metrics:   m,
		log:       log.With().Str("component", "httpclient").Str("feed", cfg.Name).Logger(),
	}
}

// Do runs the request with retries. The response may carry any status code;
// callers own status handling. A non-nil error means every attempt failed at
// the transport level or the context ended.
func (p *Pool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	p.total.Add(1)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			p.retried.Add(1)
			p.metrics.UpstreamRetries.WithLabelValues(p.cfg.Name).Inc()

			backoff := p.backoff(attempt - 1)
			p.log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.String()).
				Msg("retrying upstream request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := p.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if isRetryableError(err) && ctx.Err() == nil {
				continue
			}
			break
		}

		if resp.StatusCode >= 500 && attempt < p.cfg.MaxAttempts {
			resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			continue
		}

		if resp.StatusCode >= 500 {
			p.failed.Add(1)
		} else {
			p.success.Add(1)
		}
		return resp, nil
	}

	p.failed.Add(1)
	return nil, lastErr
}

// backoff computes the wait before the (retry+1)th attempt
func (p *Pool) backoff(retry int) time.Duration {
	d := p.cfg.BackoffBase << uint(retry-1)
	if d > p.cfg.BackoffMax || d <= 0 {
		d = p.cfg.BackoffMax
	}
	if p.cfg.BackoffJitter {
		d += time.Duration(rand.Float64() * 0.1 * float64(d))
	}
	return d
}

// Stats snapshots the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Total:   p.total.Load(),
		Success: p.success.Load(),
		Failed:  p.failed.Load(),
		Retried: p.retried.Load(),
	}
}

// StatusError reports a retryable HTTP status after attempts ran out
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "upstream returned " + e.Status
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"eof",
	} {
		if strings.Contains(msg, retryable) {
			return true
		}
	}
	return false
}
