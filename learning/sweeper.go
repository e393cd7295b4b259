/*
sweeper.go - Scheduled progress reconciliation

PURPOSE:
  Lessons added to a course after learners enrolled have no progress row for
  those learners. The write path backfills lazily, but enrollments nobody
  touches would keep a stale denominator. The sweeper walks every
  enrollment on a cron schedule and calls Engine.Reconcile.

DESIGN:
  - robfig/cron drives the schedule ("@every 1h", "0 3 * * *", ...)
  - errgroup with SetLimit bounds concurrent reconcile units
  - A failing enrollment is logged and counted; the sweep continues
  - Overlapping runs are skipped, not queued

USAGE:
  sweeper := learning.NewSweeper(engine, "@every 1h", 4, logger)
  if err := sweeper.Start(); err != nil { ... }
  defer sweeper.Stop()
*/
package learning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepReport summarizes one pass.
type SweepReport struct {
	Enrollments int
	Backfilled  int
	Failed      int
	Duration    time.Duration
}

// Sweeper periodically reconciles all enrollments.
type Sweeper struct {
	engine      *Engine
	schedule    string
	concurrency int
	logger      *zap.Logger

	cron    *cron.Cron
	running atomic.Bool
	mu      sync.Mutex
}

// NewSweeper creates a sweeper. concurrency < 1 is treated as 1.
func NewSweeper(engine *Engine, schedule string, concurrency int, logger *zap.Logger) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		engine:      engine,
		schedule:    schedule,
		concurrency: concurrency,
		logger:      logger.Named("sweeper"),
	}
}

// Start registers the schedule and begins running in the background. An
// empty schedule disables the sweeper.
func (sw *Sweeper) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.cron != nil {
		return nil
	}
	if sw.schedule == "" {
		sw.logger.Info("disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(sw.schedule, sw.tick); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sw.schedule, err)
	}
	c.Start()
	sw.cron = c

	sw.logger.Info("started", zap.String("schedule", sw.schedule), zap.Int("concurrency", sw.concurrency))
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.cron == nil {
		return
	}
	<-sw.cron.Stop().Done()
	sw.cron = nil
	sw.logger.Info("stopped")
}

func (sw *Sweeper) tick() {
	if _, err := sw.RunOnce(context.Background()); err != nil {
		sw.logger.Error("sweep failed", zap.Error(err))
	}
}

// RunOnce reconciles every enrollment. Concurrent calls while a pass is in
// flight return an empty report.
func (sw *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	if !sw.running.CompareAndSwap(false, true) {
		sw.logger.Debug("previous sweep still running, skipping")
		return SweepReport{}, nil
	}
	defer sw.running.Store(false)

	start := time.Now()
	ids, err := sw.engine.store.ListEnrollments(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list enrollments: %w", err)
	}

	var backfilled, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sw.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			added, err := sw.engine.Reconcile(gctx, id)
			if err != nil {
				failed.Add(1)
				return nil
			}
			backfilled.Add(int64(added))
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Enrollments: len(ids),
		Backfilled:  int(backfilled.Load()),
		Failed:      int(failed.Load()),
		Duration:    time.Since(start),
	}
	sw.logger.Info("sweep finished",
		zap.Int("enrollments", report.Enrollments),
		zap.Int("backfilled", report.Backfilled),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
