package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/metrics"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
}

func (s *memorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

type gatedSink struct {
	gate chan struct{}
}

func (s *gatedSink) Write(ctx context.Context, _ Record) error {
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type flakySink struct {
	memorySink
	mu       sync.Mutex
	attempts int
	failures int
}

func (s *flakySink) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	return s.memorySink.Write(ctx, rec)
}

func testRecord(requestID string) Record {
	return Record{
		RequestID:      requestID,
		ClientID:       "BRK001",
		Ticker:         "AAPL",
		PositionValue:  decimal.RequireFromString("100000"),
		LoanDays:       30,
		BorrowRateUsed: decimal.RequireFromString("0.0575"),
		Provenance: domain.Provenance{
			Base:       domain.SourceLive,
			Volatility: domain.SourceLive,
			Event:      domain.SourceAbsent,
		},
		Breakdown: domain.FeeBreakdown{
			BorrowCost:      decimal.RequireFromString("472.60"),
			Markup:          decimal.RequireFromString("23.63"),
			TransactionFees: decimal.RequireFromString("25.00"),
			TotalFee:        decimal.RequireFromString("521.23"),
			BorrowRateUsed:  decimal.RequireFromString("0.0575"),
		},
		Formula: "borrow_cost + markup + transaction_fees",
	}
}

func newTestEmitter(sink Sink, queueSize int) *Emitter {
	return NewEmitter(sink, queueSize, metrics.New(), zerolog.Nop())
}

func TestEmitter_DeliversQueuedRecords(t *testing.T) {
	sink := &memorySink{}
	emitter := newTestEmitter(sink, 16)
	emitter.Start()

	emitter.Emit(testRecord("req-1"))
	emitter.Emit(testRecord("req-2"))
	emitter.Emit(testRecord("req-3"))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshot()
	assert.Equal(t, "req-1", got[0].RequestID)
	assert.Equal(t, "req-2", got[1].RequestID)
	assert.Equal(t, "req-3", got[2].RequestID)
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp defaults at emit time")

	require.NoError(t, emitter.Close(context.Background()))
}

func TestEmitter_DropsOldestWhenFull(t *testing.T) {
	sink := &memorySink{}
	emitter := newTestEmitter(sink, 2)

	// worker not started yet, so the queue fills deterministically
	emitter.Emit(testRecord("req-1"))
	emitter.Emit(testRecord("req-2"))
	emitter.Emit(testRecord("req-3"))

	emitter.Start()
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshot()
	assert.Equal(t, "req-2", got[0].RequestID, "oldest record is the one shed")
	assert.Equal(t, "req-3", got[1].RequestID)

	require.NoError(t, emitter.Close(context.Background()))
	assert.Len(t, sink.snapshot(), 2)
}

func TestEmitter_CloseDrainsQueue(t *testing.T) {
	sink := &memorySink{}
	emitter := newTestEmitter(sink, 16)
	emitter.Start()

	for i := 0; i < 5; i++ {
		emitter.Emit(testRecord("req"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, emitter.Close(ctx))
	assert.Len(t, sink.snapshot(), 5)
}

func TestEmitter_EmitNeverBlocksOnStuckSink(t *testing.T) {
	sink := &gatedSink{gate: make(chan struct{})}
	emitter := newTestEmitter(sink, 1)
	emitter.Start()
	t.Cleanup(func() {
		close(sink.gate)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = emitter.Close(ctx)
	})

	emitted := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			emitter.Emit(testRecord("req"))
		}
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}

func TestEmitter_CloseTimesOutWhenSinkStuck(t *testing.T) {
	sink := &gatedSink{gate: make(chan struct{})}
	emitter := newTestEmitter(sink, 4)
	emitter.Start()
	t.Cleanup(func() { close(sink.gate) })

	emitter.Emit(testRecord("req-1"))
	emitter.Emit(testRecord("req-2"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := emitter.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not drained")
}

func TestEmitter_SinkErrorDoesNotStopWorker(t *testing.T) {
	sink := &flakySink{failures: 1}
	emitter := newTestEmitter(sink, 16)
	emitter.Start()

	emitter.Emit(testRecord("req-1"))
	emitter.Emit(testRecord("req-2"))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshot()
	assert.Equal(t, "req-2", got[0].RequestID, "worker keeps going after a failed write")

	require.NoError(t, emitter.Close(context.Background()))
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	emitter := newTestEmitter(&memorySink{}, 4)

	// never started: nothing to stop
	require.NoError(t, emitter.Close(context.Background()))

	emitter.Start()
	require.NoError(t, emitter.Close(context.Background()))
	require.NoError(t, emitter.Close(context.Background()))
}
