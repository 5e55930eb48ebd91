package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/persistence"
)

type fakeAuditRepo struct {
	last persistence.AuditRecord
	err  error
}

func (f *fakeAuditRepo) Insert(_ context.Context, rec persistence.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.last = rec
	return nil
}

func (f *fakeAuditRepo) Recent(_ context.Context, _ int) ([]persistence.AuditRecord, error) {
	return []persistence.AuditRecord{f.last}, nil
}

func TestLogSink_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	rec := testRecord("req-123")
	rec.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(context.Background(), rec))

	line := buf.String()
	assert.Contains(t, line, `"request_id":"req-123"`)
	assert.Contains(t, line, `"client_id":"BRK001"`)
	assert.Contains(t, line, `"ticker":"AAPL"`)
	assert.Contains(t, line, `"total_fee":"521.23"`)
	assert.Contains(t, line, `"base_source":"live"`)
	assert.Contains(t, line, `"event_source":"absent"`)
	assert.Contains(t, line, `"message":"locate fee calculated"`)
}

func TestPostgresSink_MapsRecord(t *testing.T) {
	repo := &fakeAuditRepo{}
	sink := NewPostgresSink(repo)

	rec := testRecord("req-123")
	rec.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(context.Background(), rec))

	stored := repo.last
	_, err := uuid.Parse(stored.ID)
	require.NoError(t, err, "row id must be a fresh UUID")
	assert.Equal(t, "req-123", stored.RequestID)
	assert.Equal(t, "BRK001", stored.ClientID)
	assert.Equal(t, "AAPL", stored.Ticker)
	assert.Equal(t, 30, stored.LoanDays)
	assert.True(t, stored.PositionValue.Equal(rec.PositionValue))
	assert.True(t, stored.BorrowRate.Equal(rec.BorrowRateUsed))
	assert.True(t, stored.TotalFee.Equal(rec.Breakdown.TotalFee))
	assert.Equal(t, rec.Timestamp, stored.CreatedAt)

	var breakdown domain.FeeBreakdown
	require.NoError(t, json.Unmarshal(stored.Breakdown, &breakdown))
	assert.True(t, breakdown.TotalFee.Equal(rec.Breakdown.TotalFee))

	var provenance domain.Provenance
	require.NoError(t, json.Unmarshal(stored.DataSources, &provenance))
	assert.Equal(t, rec.Provenance, provenance)
}

func TestPostgresSink_PropagatesInsertError(t *testing.T) {
	repo := &fakeAuditRepo{err: errors.New("connection reset")}
	sink := NewPostgresSink(repo)

	err := sink.Write(context.Background(), testRecord("req-123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
