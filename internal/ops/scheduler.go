// Package ops runs the recurring operational jobs around the pricing
// service: the daily upstream call-budget reset and the periodic
// upstream health probes that keep breaker state honest between
// requests.
package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/config"
)

// Upstreams is the slice of the feed clients the jobs drive
type Upstreams interface {
	ResetBudgets()
	Probe(ctx context.Context) map[string]error
}

// probeTimeout bounds one full probe sweep across all feeds
const probeTimeout = 10 * time.Second

// Scheduler owns the cron loop for the ops jobs
type Scheduler struct {
	cron      *cron.Cron
	upstreams Upstreams
	log       zerolog.Logger
}

// NewScheduler registers the budget reset at the configured UTC hour and
// the probe sweep at its interval. Jobs do not run until Start.
func NewScheduler(cfg config.OpsConfig, upstreams Upstreams, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		upstreams: upstreams,
		log:       log.With().Str("component", "ops").Logger(),
	}

	resetSpec := fmt.Sprintf("0 %d * * *", cfg.BudgetResetHour)
	if _, err := s.cron.AddFunc(resetSpec, s.resetBudgets); err != nil {
		return nil, fmt.Errorf("schedule budget reset: %w", err)
	}

	probeSpec := fmt.Sprintf("@every %s", cfg.ProbeInterval())
	if _, err := s.cron.AddFunc(probeSpec, s.probeUpstreams); err != nil {
		return nil, fmt.Errorf("schedule upstream probe: %w", err)
	}

	s.log.Info().
		Str("budget_reset", resetSpec).
		Dur("probe_interval", cfg.ProbeInterval()).
		Msg("ops jobs registered")
	return s, nil
}

// Start begins running jobs on their schedules
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("ops scheduler started")
}

// Stop halts scheduling and waits for any running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("ops scheduler stopped")
}

// ProbeNow runs one probe sweep immediately, outside the schedule.
// serve calls it at boot so the first health report is not a guess.
func (s *Scheduler) ProbeNow() {
	s.probeUpstreams()
}

func (s *Scheduler) resetBudgets() {
	s.upstreams.ResetBudgets()
	s.log.Info().Msg("daily upstream call budgets reset")
}

func (s *Scheduler) probeUpstreams() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	down := 0
	for feed, err := range s.upstreams.Probe(ctx) {
		if err != nil {
			down++
			s.log.Warn().Err(err).Str("feed", feed).Msg("upstream probe failed")
		}
	}
	if down == 0 {
		s.log.Debug().Msg("all upstream feeds reachable")
	}
}
