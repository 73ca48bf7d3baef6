// Package scheduler runs a job on a fixed interval, one execution at a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job represents a function to be executed by the scheduler
type Job func(ctx context.Context)

// Scheduler manages periodic execution of a job. A tick or trigger that
// arrives while the job is still running is dropped.
type Scheduler struct {
	logger    *slog.Logger
	interval  time.Duration
	job       Job
	ticker    *time.Ticker
	done      chan struct{}
	loopDone  chan struct{}
	stopOnce  sync.Once
	triggerCh chan struct{}
	running   atomic.Bool
	wg        sync.WaitGroup
}

// New creates a new scheduler instance
func New(logger *slog.Logger, interval time.Duration, job Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:    logger,
		interval:  interval,
		job:       job,
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start begins the scheduler execution
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", "interval", s.interval)

	s.ticker = time.NewTicker(s.interval)

	// Run job immediately on start
	s.logger.Info("Running initial job execution")
	s.dispatch(ctx)

	// Start periodic execution
	go s.run(ctx)
}

// Stop stops the scheduler and waits for a running job to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")

		if s.ticker != nil {
			s.ticker.Stop()
		}

		close(s.done)
	})
	if s.ticker != nil {
		<-s.loopDone
	}
	s.wg.Wait()
}

// TriggerCheck manually triggers a job execution
func (s *Scheduler) TriggerCheck(ctx context.Context) error {
	select {
	case s.triggerCh <- struct{}{}:
		s.logger.Info("Manual trigger scheduled")
	default:
		s.logger.Warn("Manual trigger ignored - already pending")
	}
	return nil
}

// Running reports whether the job is executing right now
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.loopDone)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped due to context cancellation")
			return
		case <-s.done:
			s.logger.Info("Scheduler stopped")
			return
		case <-s.ticker.C:
			s.logger.Debug("Scheduler tick - executing job")
			s.dispatch(ctx)
		case <-s.triggerCh:
			s.logger.Info("Manual trigger - executing job")
			s.dispatch(ctx)
		}
	}
}

// dispatch starts the job in the background unless it is already running
func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous job still running, skipping this run")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.executeJob(ctx)
	}()
}

// executeJob runs the job with error handling and logging
func (s *Scheduler) executeJob(ctx context.Context) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", "panic", r, "duration", time.Since(start))
		}
	}()

	s.logger.Debug("Job execution started")
	s.job(ctx)

	duration := time.Since(start)
	s.logger.Debug("Job execution completed", "duration", duration)
}

// Start runs job every interval until ctx is cancelled, then waits for the
// last execution to finish
func Start(ctx context.Context, log *slog.Logger, interval time.Duration, job Job) {
	scheduler := New(log, interval, job)
	scheduler.Start(ctx)

	// Wait for context cancellation
	<-ctx.Done()
	scheduler.Stop()
}
