package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript counts a failure and arms the block in one round trip.
// KEYS[1] counter, KEYS[2] block marker
// ARGV[1] max attempts, ARGV[2] blocked-until (unix ms), ARGV[3] block window (ms),
// ARGV[4] idle lifetime of an unblocked counter (ms)
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local blocked = redis.call('GET', KEYS[2])
if not blocked then
  if count >= tonumber(ARGV[1]) then
    redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
    blocked = ARGV[2]
  else
    redis.call('PEXPIRE', KEYS[1], ARGV[4])
  end
end
if not blocked then
  blocked = ''
end
return {count, blocked}
`)

// RedisStore keeps counters as Redis keys. An unblocked counter lives for
// idleRecordTTL after its last failure, like a GormStore row until purge.
// Once blocked, both keys expire with the block window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "gate"}
}

func (s *RedisStore) countKey(ip, action string) string {
	return fmt.Sprintf("%s:%s:%s:count", s.prefix, action, ip)
}

func (s *RedisStore) blockedKey(ip, action string) string {
	return fmt.Sprintf("%s:%s:%s:blocked", s.prefix, action, ip)
}

func (s *RedisStore) Get(ctx context.Context, ip, action string) (*Record, error) {
	values, err := s.client.MGet(ctx, s.countKey(ip, action), s.blockedKey(ip, action)).Result()
	if err != nil {
		return nil, err
	}
	if values[0] == nil && values[1] == nil {
		return nil, nil
	}

	rec := &Record{}
	if raw, ok := values[0].(string); ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt attempt counter %q: %w", raw, err)
		}
		rec.AttemptCount = count
	}
	if raw, ok := values[1].(string); ok {
		until, err := parseUnixMilli(raw)
		if err != nil {
			return nil, err
		}
		rec.BlockedUntil = &until
	}

	return rec, nil
}

func (s *RedisStore) Increment(ctx context.Context, ip, action string, maxAttempts int, block time.Duration, now time.Time) (*Record, error) {
	keys := []string{s.countKey(ip, action), s.blockedKey(ip, action)}
	result, err := incrementScript.Run(ctx, s.client, keys,
		maxAttempts, now.Add(block).UnixMilli(), block.Milliseconds(), idleRecordTTL.Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected increment reply: %v", result)
	}

	count, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected counter type %T", result[0])
	}

	rec := &Record{AttemptCount: int(count)}
	if raw, _ := result[1].(string); raw != "" {
		until, err := parseUnixMilli(raw)
		if err != nil {
			return nil, err
		}
		rec.BlockedUntil = &until
	}

	return rec, nil
}

func (s *RedisStore) Reset(ctx context.Context, ip, action string) error {
	return s.client.Del(ctx, s.countKey(ip, action), s.blockedKey(ip, action)).Err()
}

func parseUnixMilli(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt block marker %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
