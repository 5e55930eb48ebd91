// Package service is the facade the transport layer talks to. It owns input
// validation, client lookup, the optional calculation cache and the audit
// trail, and delegates pricing to the rate resolver and fee calculator.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/application/fees"
	"github.com/lendpool/locator/internal/audit"
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/infrastructure/cache"
	"github.com/lendpool/locator/internal/metrics"
	"github.com/lendpool/locator/internal/persistence"
)

// RateResolver prices a ticker's current borrow rate
type RateResolver interface {
	Resolve(ctx context.Context, ticker string) (domain.ResolvedRate, error)
}

// ClientSource loads client billing configurations
type ClientSource interface {
	ByID(ctx context.Context, clientID string) (domain.ClientConfig, error)
}

// Cacher is the subset of cache behaviour the facade needs
type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetDefault(ctx context.Context, key string, value []byte)
}

// AuditTrail receives one record per calculation, asynchronously
type AuditTrail interface {
	Emit(rec audit.Record)
}

// CalculateRequest carries one locate fee calculation
type CalculateRequest struct {
	RequestID     string
	ClientID      string
	Ticker        string
	PositionValue decimal.Decimal
	LoanDays      int
}

// CalculateResult pairs the breakdown with the provenance it was priced under
type CalculateResult struct {
	Breakdown  domain.FeeBreakdown
	Provenance domain.Provenance
	CacheHit   bool
}

// calcEnvelope is the cached form of a finished calculation. Provenance
// rides along so cache hits still audit truthfully.
type calcEnvelope struct {
	Breakdown  domain.FeeBreakdown `json:"breakdown"`
	Provenance domain.Provenance   `json:"provenance"`
}

// Service orchestrates the pricing pipeline for the HTTP and CLI adapters
type Service struct {
	clients   ClientSource
	resolver  RateResolver
	cache     Cacher
	trail     AuditTrail
	calcCache bool
	metrics   *metrics.Registry
	log       zerolog.Logger
}

func New(clients ClientSource, resolver RateResolver, cacher Cacher, trail AuditTrail,
	calcCache bool, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		clients:   clients,
		resolver:  resolver,
		cache:     cacher,
		trail:     trail,
		calcCache: calcCache,
		metrics:   m,
		log:       log.With().Str("component", "service").Logger(),
	}
}

// GetBorrowRate resolves the current borrow rate for a ticker
func (s *Service) GetBorrowRate(ctx context.Context, ticker string) (domain.ResolvedRate, error) {
	return s.resolver.Resolve(ctx, ticker)
}

// CalculateFee prices a locate for a client and records it on the audit
// trail. Validation failures and unknown tickers or clients surface as typed
// errors; a degraded upstream does not, it only shows in the provenance.
func (s *Service) CalculateFee(ctx context.Context, req CalculateRequest) (CalculateResult, error) {
	if err := fees.Validate(req.PositionValue, req.LoanDays); err != nil {
		s.metrics.Calculations.WithLabelValues("rejected").Inc()
		return CalculateResult{}, err
	}
	ticker := domain.NormalizeTicker(req.Ticker)
	if !domain.ValidTicker(ticker) {
		s.metrics.Calculations.WithLabelValues("rejected").Inc()
		return CalculateResult{}, domain.Validation("ticker", "must be 1-5 uppercase letters")
	}
	if req.ClientID == "" {
		s.metrics.Calculations.WithLabelValues("rejected").Inc()
		return CalculateResult{}, domain.Validation("client_id", "must not be empty")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	client, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		s.metrics.Calculations.WithLabelValues("rejected").Inc()
		return CalculateResult{}, err
	}

	calcKey := cache.KeyCalculation(ticker, client.ClientID, req.PositionValue.String(), req.LoanDays)
	if s.calcCache {
		if payload, ok := s.cache.Get(ctx, calcKey); ok {
			var env calcEnvelope
			if err := json.Unmarshal(payload, &env); err == nil {
				s.metrics.Calculations.WithLabelValues("cache_hit").Inc()
				s.audit(req, ticker, env.Breakdown, env.Provenance)
				return CalculateResult{Breakdown: env.Breakdown, Provenance: env.Provenance, CacheHit: true}, nil
			}
			s.log.Warn().Str("key", calcKey).Msg("undecodable cached calculation, recomputing")
		}
	}

	resolved, err := s.resolver.Resolve(ctx, ticker)
	if err != nil {
		s.metrics.Calculations.WithLabelValues("error").Inc()
		return CalculateResult{}, err
	}

	breakdown, err := fees.Compute(resolved, client, req.PositionValue, req.LoanDays)
	if err != nil {
		s.metrics.Calculations.WithLabelValues("error").Inc()
		return CalculateResult{}, err
	}

	if s.calcCache {
		if payload, err := json.Marshal(calcEnvelope{Breakdown: breakdown, Provenance: resolved.Provenance}); err == nil {
			s.cache.SetDefault(ctx, calcKey, payload)
		}
	}

	s.audit(req, ticker, breakdown, resolved.Provenance)

	result := "success"
	if resolved.Provenance.Degraded() {
		result = "degraded"
	}
	s.metrics.Calculations.WithLabelValues(result).Inc()

	s.log.Debug().
		Str("request_id", req.RequestID).
		Str("ticker", ticker).
		Str("client_id", client.ClientID).
		Str("total_fee", breakdown.TotalFee.String()).
		Msg("fee calculated")
	return CalculateResult{Breakdown: breakdown, Provenance: resolved.Provenance}, nil
}

// loadClient fetches a billing configuration, folding missing and inactive
// clients into the same not-found error so callers cannot probe for ids
func (s *Service) loadClient(ctx context.Context, clientID string) (domain.ClientConfig, error) {
	client, err := s.clients.ByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return domain.ClientConfig{}, fmt.Errorf("%s: %w", clientID, domain.ErrClientNotFound)
		}
		return domain.ClientConfig{}, fmt.Errorf("client lookup %s: %w", clientID, err)
	}
	if !client.Active {
		return domain.ClientConfig{}, fmt.Errorf("%s is inactive: %w", clientID, domain.ErrClientNotFound)
	}
	return client, nil
}

func (s *Service) audit(req CalculateRequest, ticker string, breakdown domain.FeeBreakdown, prov domain.Provenance) {
	s.trail.Emit(audit.Record{
		RequestID:      req.RequestID,
		ClientID:       req.ClientID,
		Ticker:         ticker,
		PositionValue:  req.PositionValue,
		LoanDays:       req.LoanDays,
		BorrowRateUsed: breakdown.BorrowRateUsed,
		Provenance:     prov,
		Breakdown:      breakdown,
		Formula:        fees.Formula,
	})
}
