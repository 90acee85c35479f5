package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/orcastack/orca-monitor/internal/utils"
)

// Scheduler drives the engine at a fixed interval and runs the independent
// cooldown sweep so the dedup ledger stays bounded.
type Scheduler struct {
	logger        *slog.Logger
	engine        *Engine
	interval      time.Duration
	sweepInterval time.Duration
	cooldown      time.Duration
	latency       *utils.LatencyTracker
}

func NewScheduler(logger *slog.Logger, engine *Engine, interval, sweepInterval, cooldown time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Scheduler{
		logger:        logger,
		engine:        engine,
		interval:      interval,
		sweepInterval: sweepInterval,
		cooldown:      cooldown,
		latency:       utils.NewLatencyTracker(256),
	}
}

// Run blocks, executing cycles until ctx is cancelled. The first cycle fires
// immediately rather than one interval in.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("sweep_interval", s.sweepInterval))

	go s.sweepLoop(ctx)

	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	summary, err := s.engine.RunCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		return
	}
	s.latency.Observe(summary.Duration)
	if s.latency.Count()%10 == 0 {
		s.logger.Info("cycle latency",
			slog.Duration("p95", s.latency.Percentile(95)),
			slog.Int("samples", s.latency.Count()))
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.engine.deps.Writer.Ledger().SweepExpired(s.cooldown)
			if removed > 0 {
				s.logger.Debug("cooldown sweep", slog.Int("removed", removed))
			}
		}
	}
}
