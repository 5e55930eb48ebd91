package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/metrics"
)

// writeTimeout bounds a single sink write so one stuck record cannot stall
// the drain of everything queued behind it
const writeTimeout = 5 * time.Second

// Emitter decouples audit delivery from request latency with a bounded
// queue and a single worker. When the queue is full the oldest record is
// dropped and counted; Emit never blocks a caller.
type Emitter struct {
	sink    Sink
	queue   chan Record
	stopCh  chan struct{}
	done    chan struct{}
	metrics *metrics.Registry
	log     zerolog.Logger
	running int32
}

func NewEmitter(sink Sink, queueSize int, m *metrics.Registry, log zerolog.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Emitter{
		sink:    sink,
		queue:   make(chan Record, queueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		metrics: m,
		log:     log.With().Str("component", "audit_emitter").Logger(),
	}
}

// Start launches the delivery worker. Records emitted before Start queue up
// and are delivered once the worker runs.
func (e *Emitter) Start() {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return
	}
	go e.worker()
}

// Emit queues a record for delivery and returns immediately. A full queue
// sheds its oldest record to make room for the newest one.
func (e *Emitter) Emit(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	select {
	case e.queue <- rec:
		e.metrics.AuditEnqueued.Inc()
	default:
		select {
		case dropped := <-e.queue:
			e.metrics.AuditDropped.Inc()
			e.log.Warn().Str("request_id", dropped.RequestID).Msg("audit queue full, dropped oldest record")
		default:
		}
		select {
		case e.queue <- rec:
			e.metrics.AuditEnqueued.Inc()
		default:
			// concurrent emitters refilled the slot; shed the newcomer
			e.metrics.AuditDropped.Inc()
			e.log.Warn().Str("request_id", rec.RequestID).Msg("audit queue full, dropped record")
		}
	}
	e.metrics.AuditQueueDepth.Set(float64(len(e.queue)))
}

// Close stops the worker after draining whatever is queued. The context
// bounds the drain; on expiry queued records are abandoned.
func (e *Emitter) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return nil
	}
	close(e.stopCh)
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit queue not drained: %w", ctx.Err())
	}
}

func (e *Emitter) worker() {
	defer close(e.done)
	for {
		select {
		case rec := <-e.queue:
			e.write(rec)
		case <-e.stopCh:
			for {
				select {
				case rec := <-e.queue:
					e.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := e.sink.Write(ctx, rec); err != nil {
		e.metrics.AuditWriteErrors.Inc()
		e.log.Error().Err(err).
			Str("request_id", rec.RequestID).
			Str("ticker", rec.Ticker).
			Msg("audit write failed")
	}
	e.metrics.AuditQueueDepth.Set(float64(len(e.queue)))
}
