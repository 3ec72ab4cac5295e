// Package worker runs the periodic hold expiry sweep.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hackgods/salon-scheduling/internal/schedule"
)

// SweepEngine is the part of the engine the sweeper drives.
type SweepEngine interface {
	ExpireSweep(ctx context.Context, now time.Time) ([]schedule.Appointment, error)
}

type Sweeper struct {
	engine   SweepEngine
	notifier schedule.Notifier
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewSweeper(engine SweepEngine, notifier schedule.Notifier, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		timeout:  20 * time.Second,
		now:      time.Now,
	}
}

// Run sweeps once at startup and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiry sweeper started", "interval", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce expires every due hold and tells the notifier which ones lapsed.
// It returns the number of holds expired.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	now := s.now()
	expired, err := s.engine.ExpireSweep(runCtx, now)
	if err != nil {
		s.logger.Error("expiry sweep failed", "expired", len(expired), "err", err)
	}
	if len(expired) == 0 {
		return 0
	}

	ev := schedule.Event{Type: schedule.EventHoldExpired, Appointments: expired, OccurredAt: now}
	if err := s.notifier.Notify(runCtx, ev); err != nil {
		s.logger.Error("notify expired holds failed", "count", len(expired), "err", err)
	}

	s.logger.Info("expiry sweep complete", "expired", len(expired), "duration", time.Since(start))
	return len(expired)
}
