// Package scheduler triggers strategy runs on their cron schedules.
package scheduler

import (
	"context"
	"sync"

	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// StrategyLister loads the schedulable strategies.
type StrategyLister interface {
	ListEnabled() ([]*strategies.Strategy, error)
}

// Scheduler registers each enabled strategy's cron expression and fires runs.
// A strategy whose previous run is still in flight is skipped, not queued.
type Scheduler struct {
	cron *cron.Cron
	runs RunFunc
	log  zerolog.Logger

	mu     sync.Mutex
	active map[string]bool // strategy id -> run in flight
}

// RunFunc executes one strategy run. The scheduler does not interpret the
// error beyond logging it.
type RunFunc func(ctx context.Context, strategyID string) error

// New creates a scheduler.
func New(runs RunFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runs:   runs,
		log:    log.With().Str("component", "scheduler").Logger(),
		active: make(map[string]bool),
	}
}

// Register adds every enabled strategy that carries a schedule. Strategies
// with an empty schedule are manual-only and skipped.
func (s *Scheduler) Register(ctx context.Context, lister StrategyLister) error {
	enabled, err := lister.ListEnabled()
	if err != nil {
		return err
	}

	for _, strategy := range enabled {
		if strategy.Schedule == "" {
			continue
		}
		id := strategy.ID
		_, err := s.cron.AddFunc(strategy.Schedule, func() {
			s.trigger(ctx, id)
		})
		if err != nil {
			s.log.Error().
				Err(err).
				Str("strategy_id", id).
				Str("schedule", strategy.Schedule).
				Msg("Invalid schedule, strategy not registered")
			continue
		}
		s.log.Info().
			Str("strategy_id", id).
			Str("schedule", strategy.Schedule).
			Msg("Strategy scheduled")
	}

	return nil
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the cron loop and waits for in-flight runs it triggered.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// trigger fires one run unless the strategy is already running.
func (s *Scheduler) trigger(ctx context.Context, strategyID string) {
	s.mu.Lock()
	if s.active[strategyID] {
		s.mu.Unlock()
		s.log.Warn().Str("strategy_id", strategyID).Msg("Previous run still in flight, skipping")
		return
	}
	s.active[strategyID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, strategyID)
		s.mu.Unlock()
	}()

	s.log.Info().Str("strategy_id", strategyID).Msg("Scheduled run starting")
	if err := s.runs(ctx, strategyID); err != nil {
		s.log.Error().Err(err).Str("strategy_id", strategyID).Msg("Scheduled run failed")
	}
}
