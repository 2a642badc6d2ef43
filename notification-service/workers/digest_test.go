package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (r *recordingRunner) Run(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, now)
	return len(r.calls), r.err
}

func TestRunOnceUsesClock(t *testing.T) {
	runner := &recordingRunner{}
	w := NewDigestWorker(runner, time.Second, zap.NewNop())
	fixed := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.RunOnce()

	if len(runner.calls) != 1 || !runner.calls[0].Equal(fixed) {
		t.Fatalf("expected one run at %v, got %v", fixed, runner.calls)
	}
}

func TestRunOnceSurvivesRunnerError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("db down")}
	w := NewDigestWorker(runner, time.Second, zap.NewNop())

	w.RunOnce()
	w.RunOnce()

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runner.calls))
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewDigestWorker(&recordingRunner{}, time.Second, zap.NewNop())
	if err := w.Start("not a cron line"); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStartSchedulesNextRun(t *testing.T) {
	w := NewDigestWorker(&recordingRunner{}, time.Second, zap.NewNop())
	if err := w.Start("0 7 * * *"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop(context.Background())

	next := w.NextRun()
	if next.IsZero() {
		t.Fatal("expected a scheduled run")
	}
	if next.UTC().Hour() != 7 || next.Minute() != 0 {
		t.Errorf("expected 07:00 UTC, got %v", next)
	}
}
