package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"familyportal-backend/shared/config"
)

// RequestCounter decides whether one more request for key may pass
type RequestCounter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit - request counter for one client IP
type RateLimit struct {
	Count      int
	ResetAt    time.Time
	LastAccess time.Time
	Blocked    bool
	BlockUntil time.Time
}

// RateLimiter throttles raw request volume in process. Each gateway replica
// keeps its own budget; RedisRateLimiter shares one across replicas.
// Answer guessing is counted separately by the auth service.
type RateLimiter struct {
	store  map[string]*RateLimit
	mutex  sync.Mutex
	config RateLimitConfig
	now    func() time.Time
}

// RateLimitConfig - Rate limiter configuration
type RateLimitConfig struct {
	MaxRequests   int
	TimeWindow    time.Duration
	BlockDuration time.Duration
}

// NewRateLimitConfig builds the throttle settings from configuration
func NewRateLimitConfig(cfg *config.Config) RateLimitConfig {
	return RateLimitConfig{
		MaxRequests:   cfg.GatewayMaxRequests,
		TimeWindow:    time.Duration(cfg.GatewayWindowSeconds) * time.Second,
		BlockDuration: time.Duration(cfg.GatewayBlockMinutes) * time.Minute,
	}
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store:  make(map[string]*RateLimit),
		config: cfg,
		now:    time.Now,
	}
}

// StartCleanup drops idle entries every interval until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, limit := range rl.store {
		if limit.Blocked && now.Before(limit.BlockUntil) {
			continue
		}
		if now.Sub(limit.LastAccess) > rl.config.TimeWindow+time.Hour {
			delete(rl.store, key)
		}
	}
}

// Allow counts one request for key and reports whether it may proceed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.allow(key), nil
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	limit, exists := rl.store[key]

	if !exists {
		rl.store[key] = &RateLimit{Count: 1, ResetAt: now.Add(rl.config.TimeWindow), LastAccess: now}
		return true
	}
	limit.LastAccess = now

	if limit.Blocked {
		if now.Before(limit.BlockUntil) {
			return false
		}
		limit.Blocked = false
		limit.Count = 1
		limit.ResetAt = now.Add(rl.config.TimeWindow)
		return true
	}

	if !now.Before(limit.ResetAt) {
		limit.Count = 1
		limit.ResetAt = now.Add(rl.config.TimeWindow)
		return true
	}

	if limit.Count >= rl.config.MaxRequests {
		limit.Blocked = true
		limit.BlockUntil = now.Add(rl.config.BlockDuration)
		return false
	}

	limit.Count++
	return true
}

// Size returns how many clients are tracked
func (rl *RateLimiter) Size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.store)
}

// GlobalRateLimitMiddleware rejects clients over the request budget. A
// counter error lets the request through.
func GlobalRateLimitMiddleware(counter RequestCounter, cfg RateLimitConfig, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.MaxRequests <= 0 {
			c.Next()
			return
		}

		allowed, err := counter.Allow(c.Request.Context(), "global:"+c.ClientIP())
		if err != nil {
			log.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     "Too many requests from this IP. Please try again later.",
				"retry_after": cfg.BlockDuration.Seconds(),
			})
			return
		}

		c.Next()
	}
}
