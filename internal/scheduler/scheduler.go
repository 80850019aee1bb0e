// Package scheduler runs the periodic reservation lifecycle sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval     = time.Minute
	defaultStalePendingAfter = 15 * time.Minute
)

// Sweeper is the slice of the reservation service the scheduler drives.
type Sweeper interface {
	ActivateDueReservations(ctx context.Context) (int64, error)
	CompleteElapsedReservations(ctx context.Context) (int64, error)
	ExpireStalePendingReservations(ctx context.Context, beforeUnixUTC int64) (int64, error)
}

// Config controls sweep cadence and the pending-reservation deadline.
type Config struct {
	SweepInterval     time.Duration
	StalePendingAfter time.Duration
}

// Scheduler owns the cron runner for the three lifecycle sweeps.
type Scheduler struct {
	sweeper  Sweeper
	logger   *zap.Logger
	cfg      Config
	cron     *cron.Cron
	nowFn    func() time.Time
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

// New builds a Scheduler. Zero durations fall back to defaults.
func New(sweeper Sweeper, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.StalePendingAfter <= 0 {
		cfg.StalePendingAfter = defaultStalePendingAfter
	}
	return &Scheduler{
		sweeper: sweeper,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(),
		nowFn:   time.Now,
	}, nil
}

// Start registers the sweeps and launches the cron runner.
func (scheduler *Scheduler) Start() error {
	scheduler.baseCtx, scheduler.cancelFn = context.WithCancel(context.Background())
	spec := fmt.Sprintf("@every %s", scheduler.cfg.SweepInterval)
	if _, err := scheduler.cron.AddFunc(spec, scheduler.runSweeps); err != nil {
		return fmt.Errorf("register sweeps: %w", err)
	}
	scheduler.cron.Start()
	scheduler.logger.Info("lifecycle sweeps scheduled",
		zap.Duration("interval", scheduler.cfg.SweepInterval),
		zap.Duration("stale_pending_after", scheduler.cfg.StalePendingAfter))
	return nil
}

// Stop halts the cron runner and waits for in-flight sweeps.
func (scheduler *Scheduler) Stop() {
	if scheduler.cancelFn != nil {
		scheduler.cancelFn()
	}
	stopCtx := scheduler.cron.Stop()
	<-stopCtx.Done()
}

func (scheduler *Scheduler) runSweeps() {
	scheduler.RunOnce(scheduler.baseCtx)
}

// RunOnce executes every sweep a single time. Sweeps are independent;
// one failing does not stop the others.
func (scheduler *Scheduler) RunOnce(ctx context.Context) {
	if activated, err := scheduler.sweeper.ActivateDueReservations(ctx); err != nil {
		scheduler.logger.Error("activate sweep failed", zap.Error(err))
	} else if activated > 0 {
		scheduler.logger.Info("reservations activated", zap.Int64("count", activated))
	}

	if completed, err := scheduler.sweeper.CompleteElapsedReservations(ctx); err != nil {
		scheduler.logger.Error("complete sweep failed", zap.Error(err))
	} else if completed > 0 {
		scheduler.logger.Info("reservations completed", zap.Int64("count", completed))
	}

	deadline := scheduler.nowFn().Add(-scheduler.cfg.StalePendingAfter).UTC().Unix()
	if expired, err := scheduler.sweeper.ExpireStalePendingReservations(ctx, deadline); err != nil {
		scheduler.logger.Error("expire sweep failed", zap.Error(err))
	} else if expired > 0 {
		scheduler.logger.Info("stale pending reservations expired", zap.Int64("count", expired))
	}
}
