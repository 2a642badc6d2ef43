// Package ratelimit implements the per-IP attempt budget guarding the portal
// entry points. Counters live in an external store; the Limiter itself holds no
// mutable state and can be shared freely between requests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ActionLogin    = "login"
	ActionSecurity = "security"
)

var (
	ErrInvalidInput  = errors.New("invalid rate limit input")
	ErrUnknownAction = errors.New("unknown rate limit action")
)

// Record is the stored counter for one (ip, action) pair
type Record struct {
	AttemptCount int
	BlockedUntil *time.Time
}

// Store persists attempt counters. Increment must be atomic at the storage
// layer: concurrent calls for the same key may not lose updates.
type Store interface {
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, ip, action string) (*Record, error)
	// Increment adds one failure, creating the record at 1, and sets the block
	// when the count reaches maxAttempts. A record whose block has elapsed at
	// now restarts at 1.
	Increment(ctx context.Context, ip, action string, maxAttempts int, block time.Duration, now time.Time) (*Record, error)
	Reset(ctx context.Context, ip, action string) error
}

// Purger is implemented by stores without native expiry
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Status is what callers see for an (ip, action) pair
type Status struct {
	Allowed      bool       `json:"allowed"`
	AttemptsLeft int        `json:"attempts_left"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Blocked reports whether further attempts are refused
func (s Status) Blocked() bool {
	return !s.Allowed
}

type Limiter struct {
	store Store
	now   func() time.Time
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Check reads the counter without modifying it.
func (l *Limiter) Check(ctx context.Context, ip, action string, maxAttempts int) (Status, error) {
	if err := validate(ip, action, maxAttempts, 1); err != nil {
		return Status{}, err
	}

	rec, err := l.store.Get(ctx, ip, action)
	if err != nil {
		return Status{}, fmt.Errorf("read %s attempts: %w", action, err)
	}

	return evaluate(rec, maxAttempts, l.now()), nil
}

// RecordFailedAttempt counts one failure and reports the resulting status.
func (l *Limiter) RecordFailedAttempt(ctx context.Context, ip, action string, maxAttempts, blockMinutes int) (Status, error) {
	if err := validate(ip, action, maxAttempts, blockMinutes); err != nil {
		return Status{}, err
	}

	now := l.now()
	rec, err := l.store.Increment(ctx, ip, action, maxAttempts, time.Duration(blockMinutes)*time.Minute, now)
	if err != nil {
		return Status{}, fmt.Errorf("record %s attempt: %w", action, err)
	}

	return evaluate(rec, maxAttempts, now), nil
}

// ResetAttempts clears the counter after a successful verification.
func (l *Limiter) ResetAttempts(ctx context.Context, ip, action string) error {
	if err := validate(ip, action, 1, 1); err != nil {
		return err
	}

	if err := l.store.Reset(ctx, ip, action); err != nil {
		return fmt.Errorf("reset %s attempts: %w", action, err)
	}
	return nil
}

// StartCleanup periodically removes expired records from stores that need it.
// It returns immediately; the sweep stops when ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration, log *zap.Logger) {
	purger, ok := l.store.(Purger)
	if !ok || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := purger.PurgeExpired(ctx, l.now())
				if err != nil {
					log.Error("attempt record cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("attempt records purged", zap.Int64("removed", removed))
				}
			}
		}
	}()
}

func evaluate(rec *Record, maxAttempts int, now time.Time) Status {
	if rec == nil {
		return Status{Allowed: true, AttemptsLeft: maxAttempts}
	}

	if rec.BlockedUntil != nil {
		if rec.BlockedUntil.After(now) {
			until := *rec.BlockedUntil
			return Status{Allowed: false, AttemptsLeft: 0, BlockedUntil: &until}
		}
		// block elapsed: the record is expired
		return Status{Allowed: true, AttemptsLeft: maxAttempts}
	}

	left := maxAttempts - rec.AttemptCount
	if left < 0 {
		left = 0
	}
	return Status{Allowed: true, AttemptsLeft: left}
}

func validate(ip, action string, maxAttempts, blockMinutes int) error {
	if strings.TrimSpace(ip) == "" {
		return fmt.Errorf("%w: client address is required", ErrInvalidInput)
	}
	if action != ActionLogin && action != ActionSecurity {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if maxAttempts < 1 {
		return fmt.Errorf("%w: maxAttempts must be at least 1", ErrInvalidInput)
	}
	if blockMinutes < 1 {
		return fmt.Errorf("%w: blockMinutes must be at least 1", ErrInvalidInput)
	}
	return nil
}
