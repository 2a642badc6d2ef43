package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DigestRunner is the sweep the worker triggers
type DigestRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// DigestWorker runs the digest sweep on a cron schedule
type DigestWorker struct {
	runner  DigestRunner
	cron    *cron.Cron
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewDigestWorker(runner DigestRunner, timeout time.Duration, log *zap.Logger) *DigestWorker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &DigestWorker{
		runner:  runner,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Start schedules the sweep with a standard five-field cron expression
func (w *DigestWorker) Start(schedule string) error {
	if _, err := w.cron.AddFunc(schedule, w.RunOnce); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", schedule, err)
	}
	w.cron.Start()
	w.log.Info("digest worker started", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire
func (w *DigestWorker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.log.Info("digest worker stopped")
	case <-ctx.Done():
		w.log.Warn("digest worker stop timed out")
	}
}

// RunOnce performs a single sweep and logs its outcome
func (w *DigestWorker) RunOnce() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("digest sweep panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := w.now()
	sent, err := w.runner.Run(ctx, start)
	if err != nil {
		w.log.Error("digest sweep failed", zap.Error(err))
		return
	}
	w.log.Info("digest sweep completed", zap.Int("sent", sent), zap.Duration("duration", time.Since(start)))
}

// NextRun reports when the next sweep is due, zero before Start
func (w *DigestWorker) NextRun() time.Time {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
