package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"familyportal-backend/shared/database/models/auth"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&auth.AttemptRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// testClock is advanced by hand; advance also moves miniredis time when set
type testClock struct {
	mu  sync.Mutex
	now time.Time
	mr  *miniredis.Miniredis
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	if c.mr != nil {
		c.mr.FastForward(d)
	}
}

type storeCase struct {
	name  string
	setup func(t *testing.T) (Store, *testClock)
}

func storeCases() []storeCase {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []storeCase{
		{
			name: "gorm",
			setup: func(t *testing.T) (Store, *testClock) {
				return NewGormStore(setupTestDB(t)), &testClock{now: start}
			},
		},
		{
			name: "redis",
			setup: func(t *testing.T) (Store, *testClock) {
				mr, client := setupRedis(t)
				return NewRedisStore(client), &testClock{now: start, mr: mr}
			},
		},
	}
}

func newTestLimiter(store Store, clock *testClock) *Limiter {
	l := NewLimiter(store)
	l.now = clock.Now
	return l
}

func TestCheckWithoutRecord(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)

			status, err := l.Check(context.Background(), "10.0.0.1", ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if !status.Allowed || status.AttemptsLeft != 3 || status.BlockedUntil != nil {
				t.Errorf("unexpected status for fresh ip: %+v", status)
			}
		})
	}
}

func TestBlockAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)
			ip := "1.2.3.4"

			for i, wantLeft := range []int{2, 1} {
				status, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15)
				if err != nil {
					t.Fatalf("attempt %d: %v", i+1, err)
				}
				if !status.Allowed || status.AttemptsLeft != wantLeft {
					t.Fatalf("attempt %d: expected allowed with %d left, got %+v", i+1, wantLeft, status)
				}
			}

			status, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15)
			if err != nil {
				t.Fatalf("attempt 3: %v", err)
			}
			if status.Allowed || status.BlockedUntil == nil {
				t.Fatalf("expected block after third failure, got %+v", status)
			}
			wantUntil := clock.Now().Add(15 * time.Minute)
			if !status.BlockedUntil.Equal(wantUntil) {
				t.Errorf("expected blocked until %v, got %v", wantUntil, *status.BlockedUntil)
			}

			status, err = l.Check(ctx, ip, ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if status.Allowed || status.AttemptsLeft != 0 {
				t.Errorf("expected Check to report block, got %+v", status)
			}
		})
	}
}

func TestBlockExpires(t *testing.T) {
	ctx := context.Background()
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)
			ip := "1.2.3.4"

			for i := 0; i < 3; i++ {
				if _, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15); err != nil {
					t.Fatalf("attempt %d: %v", i+1, err)
				}
			}

			clock.Advance(14 * time.Minute)
			status, err := l.Check(ctx, ip, ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if status.Allowed {
				t.Fatalf("expected block to hold at 14 minutes, got %+v", status)
			}

			clock.Advance(2 * time.Minute)
			status, err = l.Check(ctx, ip, ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if !status.Allowed || status.AttemptsLeft != 3 {
				t.Fatalf("expected full budget after block elapsed, got %+v", status)
			}

			status, err = l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15)
			if err != nil {
				t.Fatalf("RecordFailedAttempt returned error: %v", err)
			}
			if !status.Allowed || status.AttemptsLeft != 2 {
				t.Errorf("expected counter to restart at 1, got %+v", status)
			}
		})
	}
}

func TestIdleCounterSurvivesPastBlockWindow(t *testing.T) {
	ctx := context.Background()
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)
			ip := "4.4.4.4"

			for i := 0; i < 2; i++ {
				if _, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15); err != nil {
					t.Fatalf("attempt %d: %v", i+1, err)
				}
			}

			clock.Advance(20 * time.Minute)
			status, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15)
			if err != nil {
				t.Fatalf("attempt 3: %v", err)
			}
			if status.Allowed || status.BlockedUntil == nil {
				t.Errorf("expected the third failure to block, got %+v", status)
			}
		})
	}
}

func TestResetAttempts(t *testing.T) {
	ctx := context.Background()
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)
			ip := "1.2.3.4"

			for i := 0; i < 2; i++ {
				if _, err := l.RecordFailedAttempt(ctx, ip, ActionSecurity, 3, 15); err != nil {
					t.Fatalf("attempt %d: %v", i+1, err)
				}
			}
			if err := l.ResetAttempts(ctx, ip, ActionSecurity); err != nil {
				t.Fatalf("ResetAttempts returned error: %v", err)
			}

			status, err := l.Check(ctx, ip, ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if !status.Allowed || status.AttemptsLeft != 3 {
				t.Errorf("expected full budget after reset, got %+v", status)
			}

			// resetting a missing record is a no-op
			if err := l.ResetAttempts(ctx, "5.5.5.5", ActionSecurity); err != nil {
				t.Errorf("ResetAttempts on unknown ip returned error: %v", err)
			}
		})
	}
}

func TestActionsAndAddressesAreIndependent(t *testing.T) {
	ctx := context.Background()
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)

			for i := 0; i < 3; i++ {
				if _, err := l.RecordFailedAttempt(ctx, "1.1.1.1", ActionSecurity, 3, 15); err != nil {
					t.Fatalf("attempt %d: %v", i+1, err)
				}
			}

			login, err := l.Check(ctx, "1.1.1.1", ActionLogin, 5)
			if err != nil {
				t.Fatalf("Check login returned error: %v", err)
			}
			if !login.Allowed || login.AttemptsLeft != 5 {
				t.Errorf("login budget affected by security failures: %+v", login)
			}

			other, err := l.Check(ctx, "2.2.2.2", ActionSecurity, 3)
			if err != nil {
				t.Fatalf("Check other ip returned error: %v", err)
			}
			if !other.Allowed || other.AttemptsLeft != 3 {
				t.Errorf("other ip affected: %+v", other)
			}
		})
	}
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	ctx := context.Background()
	const workers = 20

	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, clock := tc.setup(t)
			l := newTestLimiter(store, clock)

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := l.RecordFailedAttempt(ctx, "7.7.7.7", ActionLogin, 100, 15); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("concurrent RecordFailedAttempt failed: %v", err)
			}

			rec, err := store.Get(ctx, "7.7.7.7", ActionLogin)
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			if rec == nil || rec.AttemptCount != workers {
				t.Errorf("expected %d attempts, got %+v", workers, rec)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	store, clock := storeCases()[0].setup(t)
	l := newTestLimiter(store, clock)
	ctx := context.Background()

	tests := []struct {
		name    string
		ip      string
		action  string
		max     int
		block   int
		wantErr error
	}{
		{"empty ip", "", ActionSecurity, 3, 15, ErrInvalidInput},
		{"blank ip", "   ", ActionSecurity, 3, 15, ErrInvalidInput},
		{"unknown action", "1.1.1.1", "password", 3, 15, ErrUnknownAction},
		{"zero max", "1.1.1.1", ActionSecurity, 0, 15, ErrInvalidInput},
		{"zero block", "1.1.1.1", ActionSecurity, 3, 0, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordFailedAttempt(ctx, tt.ip, tt.action, tt.max, tt.block)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := l.Check(ctx, "1.1.1.1", "", 3); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Check with empty action: expected ErrUnknownAction, got %v", err)
	}
	if err := l.ResetAttempts(ctx, "", ActionLogin); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ResetAttempts with empty ip: expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	ctx := context.Background()

	t.Run("gorm", func(t *testing.T) {
		db := setupTestDB(t)
		l := NewLimiter(NewGormStore(db))
		sqlDB, _ := db.DB()
		sqlDB.Close()

		if _, err := l.Check(ctx, "1.1.1.1", ActionSecurity, 3); err == nil {
			t.Error("expected Check to fail on closed database")
		}
		if _, err := l.RecordFailedAttempt(ctx, "1.1.1.1", ActionSecurity, 3, 15); err == nil {
			t.Error("expected RecordFailedAttempt to fail on closed database")
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr, client := setupRedis(t)
		l := NewLimiter(NewRedisStore(client))
		mr.Close()

		if _, err := l.Check(ctx, "1.1.1.1", ActionSecurity, 3); err == nil {
			t.Error("expected Check to fail when redis is down")
		}
		if err := l.ResetAttempts(ctx, "1.1.1.1", ActionSecurity); err == nil {
			t.Error("expected ResetAttempts to fail when redis is down")
		}
	})
}

func TestGormPurgeExpired(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewGormStore(db)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(store, clock)

	for i := 0; i < 3; i++ {
		if _, err := l.RecordFailedAttempt(ctx, "9.9.9.9", ActionSecurity, 3, 15); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if _, err := l.RecordFailedAttempt(ctx, "8.8.8.8", ActionLogin, 5, 15); err != nil {
		t.Fatalf("RecordFailedAttempt returned error: %v", err)
	}

	removed, err := store.PurgeExpired(ctx, clock.Now().Add(16*time.Minute))
	if err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected elapsed block to be purged, removed %d", removed)
	}

	removed, err = store.PurgeExpired(ctx, clock.Now().Add(25*time.Hour))
	if err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected idle record to be purged, removed %d", removed)
	}

	var count int64
	db.Model(&auth.AttemptRecord{}).Count(&count)
	if count != 0 {
		t.Errorf("expected empty table, found %d rows", count)
	}
}

func TestRedisKeysExpireWithBlock(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	store := NewRedisStore(client)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, err := store.Increment(ctx, "3.3.3.3", ActionSecurity, 3, 15*time.Minute, now); err != nil {
			t.Fatalf("Increment %d: %v", i+1, err)
		}
		if i == 0 {
			if ttl := mr.TTL(store.countKey("3.3.3.3", ActionSecurity)); ttl != idleRecordTTL {
				t.Errorf("expected unblocked counter ttl of %v, got %v", idleRecordTTL, ttl)
			}
		}
	}

	for _, key := range []string{store.countKey("3.3.3.3", ActionSecurity), store.blockedKey("3.3.3.3", ActionSecurity)} {
		if ttl := mr.TTL(key); ttl != 15*time.Minute {
			t.Errorf("expected %s ttl of 15m, got %v", key, ttl)
		}
	}

	mr.FastForward(15 * time.Minute)
	rec, err := store.Get(ctx, "3.3.3.3", ActionSecurity)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected keys to be gone, got %+v", rec)
	}
}
