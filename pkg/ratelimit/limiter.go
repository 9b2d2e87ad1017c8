// Package ratelimit implements fixed-window request throttling keyed by
// (scope, client). MemoryLimiter serves single-process deployments and
// RedisLimiter shares buckets across instances.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying,
// rounded up to whole seconds and never below one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	seconds := (wait + time.Second - 1) / time.Second
	return seconds * time.Second
}

// Limiter gates calls for a (scope, client) pair.
type Limiter interface {
	Allow(ctx context.Context, scope, clientID string, limit int, window time.Duration) (Decision, error)
}

func bucketKey(scope, clientID string) string {
	return scope + "|" + clientID
}

func decide(count, limit int, resetAt time.Time, allowed bool) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Count: count, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}
