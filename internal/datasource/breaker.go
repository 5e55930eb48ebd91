// Package datasource talks to the three external pricing feeds. Every call
// crosses a guard stack: daily call budget, token-bucket rate limit, and a
// per-endpoint circuit breaker.
package datasource

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/metrics"
)

// BreakerSet manages one circuit breaker per upstream endpoint. Breakers are
// created lazily on first use and share a single config.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.CircuitConfig
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// BreakerStatus is the reportable view of one breaker
type BreakerStatus struct {
	Endpoint            string  `json:"endpoint"`
	State               string  `json:"state"`
	Requests            uint32  `json:"requests"`
	TotalFailures       uint32  `json:"total_failures"`
	ConsecutiveFailures uint32  `json:"consecutive_failures"`
	ErrorRate           float64 `json:"error_rate"`
}

// NewBreakerSet creates the per-endpoint breaker registry
func NewBreakerSet(cfg config.CircuitConfig, m *metrics.Registry, log zerolog.Logger) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("component", "breakers").Logger(),
	}
}

// For returns the breaker for an endpoint, creating it on first use
func (s *BreakerSet) For(endpoint string) *gobreaker.CircuitBreaker {
	s.mu.RLock()
	br, ok := s.breakers[endpoint]
	s.mu.RUnlock()
	if ok {
		return br
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if br, ok := s.breakers[endpoint]; ok {
		return br
	}

	br = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1, // half-open admits a single probe
		Interval:    s.cfg.Window(),
		Timeout:     s.cfg.Cooldown(),
		ReadyToTrip: s.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.onStateChange(name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// a caller walking away and an upstream answering "no data"
			// are not endpoint failures
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
		},
	})
	s.breakers[endpoint] = br
	return br
}

func (s *BreakerSet) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= uint32(s.cfg.FailureThreshold) {
		return true
	}
	if counts.Requests >= uint32(s.cfg.MinRequests) {
		rate := float64(counts.TotalFailures) / float64(counts.Requests)
		return rate >= s.cfg.FailureRate
	}
	return false
}

func (s *BreakerSet) onStateChange(endpoint string, from, to gobreaker.State) {
	evt := s.log.Warn()
	if to == gobreaker.StateClosed {
		evt = s.log.Info()
	}
	evt.
		Str("endpoint", endpoint).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")

	s.metrics.SetBreakerState(endpoint, stateGauge(to), to.String())
}

func stateGauge(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// States snapshots every breaker for the status endpoint
func (s *BreakerSet) States() []BreakerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(s.breakers))
	for endpoint, br := range s.breakers {
		counts := br.Counts()
		status := BreakerStatus{
			Endpoint:            endpoint,
			State:               br.State().String(),
			Requests:            counts.Requests,
			TotalFailures:       counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		}
		if counts.Requests > 0 {
			status.ErrorRate = float64(counts.TotalFailures) / float64(counts.Requests)
		}
		out = append(out, status)
	}
	return out
}

// IsBreakerOpen reports whether err came from an open or probing breaker
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
