package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/persistence"
)

// Sink persists audit records. Write runs on the emitter's worker, never on
// a request path, so a slow sink costs queue depth rather than latency.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// LogSink renders each record as one structured log line. It is the default
// sink and the fallback when no database is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Write(_ context.Context, rec Record) error {
	s.log.Info().
		Str("request_id", rec.RequestID).
		Str("client_id", rec.ClientID).
		Str("ticker", rec.Ticker).
		Str("position_value", rec.PositionValue.String()).
		Int("loan_days", rec.LoanDays).
		Str("borrow_rate_used", rec.BorrowRateUsed.String()).
		Str("total_fee", rec.Breakdown.TotalFee.String()).
		Str("base_source", string(rec.Provenance.Base)).
		Str("volatility_source", string(rec.Provenance.Volatility)).
		Str("event_source", string(rec.Provenance.Event)).
		Time("calculated_at", rec.Timestamp).
		Msg("locate fee calculated")
	return nil
}

// PostgresSink writes each record to the audit_log table
type PostgresSink struct {
	repo persistence.AuditRepo
}

func NewPostgresSink(repo persistence.AuditRepo) *PostgresSink {
	return &PostgresSink{repo: repo}
}

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	sources, err := json.Marshal(rec.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	return s.repo.Insert(ctx, persistence.AuditRecord{
		ID:            uuid.NewString(),
		RequestID:     rec.RequestID,
		ClientID:      rec.ClientID,
		Ticker:        rec.Ticker,
		PositionValue: rec.PositionValue,
		LoanDays:      rec.LoanDays,
		BorrowRate:    rec.BorrowRateUsed,
		TotalFee:      rec.Breakdown.TotalFee,
		Formula:       rec.Formula,
		Breakdown:     breakdown,
		DataSources:   sources,
		CreatedAt:     rec.Timestamp,
	})
}
