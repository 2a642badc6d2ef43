package middleware

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// allowScript counts one request inside a fixed window and arms a block once
// the budget is spent.
// KEYS[1] counter, KEYS[2] block marker
// ARGV[1] max requests, ARGV[2] window (ms), ARGV[3] block (ms)
var allowScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  redis.call('DEL', KEYS[1])
  return 0
end
return 1
`)

// RedisRateLimiter keeps the request budget in Redis so every gateway
// replica draws from the same counter
type RedisRateLimiter struct {
	client redis.UniversalClient
	config RateLimitConfig
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, cfg RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, config: cfg, prefix: "edge"}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	keys := []string{
		fmt.Sprintf("%s:%s:count", rl.prefix, key),
		fmt.Sprintf("%s:%s:blocked", rl.prefix, key),
	}
	allowed, err := allowScript.Run(ctx, rl.client, keys,
		rl.config.MaxRequests, rl.config.TimeWindow.Milliseconds(), rl.config.BlockDuration.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}
