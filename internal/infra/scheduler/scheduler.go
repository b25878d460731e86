package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSpec runs the refresh token sweep every day at 06:00 server time.
const DefaultSweepSpec = "0 6 * * *"

// Sweeper is the job the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Observer receives the outcome of every run. It may be nil.
type Observer func(deleted int64, elapsed time.Duration, err error)

// Scheduler owns the cron runner for background maintenance.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	observer Observer
	timeout  time.Duration
	logger   *zap.Logger
}

// New registers the sweep job under spec. An empty spec uses DefaultSweepSpec.
func New(spec string, sweeper Sweeper, observer Observer, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if spec == "" {
		spec = DefaultSweepSpec
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper:  sweeper,
		observer: observer,
		timeout:  5 * time.Minute,
		logger:   log,
	}

	if _, err := s.cron.AddFunc(spec, s.RunSweep); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return s, nil
}

// RunSweep executes one sweep synchronously.
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	deleted, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(started)

	if s.observer != nil {
		s.observer(deleted, elapsed, err)
	}
	if err != nil {
		s.logger.Error("refresh token sweep failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return
	}
	s.logger.Debug("refresh token sweep finished", zap.Int64("deleted", deleted), zap.Duration("elapsed", elapsed))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled jobs: %w", ctx.Err())
	}
}
