package datasource

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/metrics"
)

// ErrBudgetExhausted rejects a call once a feed's daily budget is spent
var ErrBudgetExhausted = errors.New("daily call budget exhausted")

const budgetWarnFraction = 0.8

// Budget tracks calls against a feed's daily allowance. The ops scheduler
// resets it at the configured UTC hour; Allow also rolls the counter itself
// when the UTC day changes, so a stalled scheduler cannot starve a feed
// forever.
type Budget struct {
	mu      sync.Mutex
	feed    string
	limit   int // 0 means unlimited
	used    int
	day     time.Time // UTC midnight of the counting day
	warned  bool
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time // injectable clock for tests
}

// BudgetStatus is the reportable view of one budget
type BudgetStatus struct {
	Feed      string `json:"feed"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"` // -1 when unlimited
}

// NewBudget creates a daily budget for one feed
func NewBudget(feed string, limit int, m *metrics.Registry, log zerolog.Logger) *Budget {
	b := &Budget{
		feed:    feed,
		limit:   limit,
		metrics: m,
		log:     log.With().Str("component", "budget").Str("feed", feed).Logger(),
		now:     time.Now,
	}
	b.day = utcDay(b.now())
	return b
}

// Allow consumes one call from the budget or rejects with ErrBudgetExhausted
func (b *Budget) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if today := utcDay(b.now()); !today.Equal(b.day) {
		b.resetLocked(today)
	}

	if b.limit > 0 && b.used >= b.limit {
		return ErrBudgetExhausted
	}

	b.used++
	b.metrics.BudgetUsed.WithLabelValues(b.feed).Set(float64(b.used))

	if b.limit > 0 && !b.warned && float64(b.used) >= float64(b.limit)*budgetWarnFraction {
		b.warned = true
		b.log.Warn().Int("used", b.used).Int("limit", b.limit).Msg("daily budget nearly exhausted")
	}
	return nil
}

// Reset zeroes the counter for a fresh day
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(utcDay(b.now()))
}

func (b *Budget) resetLocked(day time.Time) {
	if b.used > 0 {
		b.log.Info().Int("used", b.used).Msg("daily budget reset")
	}
	b.used = 0
	b.warned = false
	b.day = day
	b.metrics.BudgetUsed.WithLabelValues(b.feed).Set(0)
}

// Status snapshots the budget
func (b *Budget) Status() BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BudgetStatus{Feed: b.feed, Limit: b.limit, Used: b.used, Remaining: -1}
	if b.limit > 0 {
		s.Remaining = b.limit - b.used
		if s.Remaining < 0 {
			s.Remaining = 0
		}
	}
	return s
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
