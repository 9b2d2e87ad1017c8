package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript mirrors MemoryLimiter.Allow: a missing or expired bucket
// restarts at 1, a full bucket is rejected without incrementing.
// Returns {allowed, count, ttl_ms}.
var allowScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count == 0 then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
if count >= tonumber(ARGV[1]) then
  return {0, count, ttl}
end
count = redis.call("INCR", KEYS[1])
return {1, count, ttl}
`)

// RedisLimiter stores buckets in redis so every instance sees the same counts.
// Expired buckets are evicted by key TTL rather than a sweep.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter constructs a redis-backed limiter.
func NewRedisLimiter(client redis.Scripter, prefix string, now func() time.Time) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}
}

// Allow counts one call against the shared bucket for (scope, clientID).
func (l *RedisLimiter) Allow(ctx context.Context, scope, clientID string, limit int, window time.Duration) (Decision, error) {
	key := fmt.Sprintf("%s:%s", l.prefix, bucketKey(scope, clientID))
	res, err := allowScript.Run(ctx, l.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	resetAt := l.now().Add(time.Duration(res[2]) * time.Millisecond)
	return decide(int(res[1]), limit, resetAt, res[0] == 1), nil
}
