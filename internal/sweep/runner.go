package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher lets the runner push fresh locker state into a read cache after
// each sweep cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Runner drives the sweeper on a fixed interval until the context is
// cancelled.
type Runner struct {
	sweeper   *Sweeper
	interval  time.Duration
	refresher Refresher
	logger    *zap.Logger
}

func NewRunner(sweeper *Sweeper, interval time.Duration, refresher Refresher, logger *zap.Logger) *Runner {
	return &Runner{
		sweeper:   sweeper,
		interval:  interval,
		refresher: refresher,
		logger:    logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("sweep runner started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweep runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	sent, sendFailed, err := r.sweeper.RunReminders(ctx)
	if err != nil {
		r.logger.Error("reminder sweep failed", zap.Error(err))
	} else if sent > 0 || sendFailed > 0 {
		r.logger.Info("reminder sweep finished",
			zap.Int("sent", sent), zap.Int("failed", sendFailed))
	}

	returned, returnFailed, err := r.sweeper.RunOverdue(ctx)
	if err != nil {
		r.logger.Error("overdue sweep failed", zap.Error(err))
	} else if returned > 0 || returnFailed > 0 {
		r.logger.Info("overdue sweep finished",
			zap.Int("returned", returned), zap.Int("failed", returnFailed))
	}

	if r.refresher != nil {
		if err := r.refresher.Refresh(ctx); err != nil {
			r.logger.Error("locker cache refresh failed", zap.Error(err))
		}
	}
}
