package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterRejectsAtLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(clock.Now)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, "enroll", "stu-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
	}

	d, err := limiter.Allow(ctx, "enroll", "stu-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Count)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
	assert.Equal(t, time.Minute, d.RetryAfter(clock.Now()))
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(ctx, "checkin", "stu-1", 2, 10*time.Second)
		require.NoError(t, err)
	}
	d, _ := limiter.Allow(ctx, "checkin", "stu-1", 2, 10*time.Second)
	require.False(t, d.Allowed)

	clock.Advance(10 * time.Second)
	d, err := limiter.Allow(ctx, "checkin", "stu-1", 2, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestMemoryLimiterIsolatesScopesAndClients(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	ctx := context.Background()

	d, _ := limiter.Allow(ctx, "enroll", "stu-1", 1, time.Minute)
	require.True(t, d.Allowed)
	d, _ = limiter.Allow(ctx, "enroll", "stu-1", 1, time.Minute)
	require.False(t, d.Allowed)

	d, _ = limiter.Allow(ctx, "cancel", "stu-1", 1, time.Minute)
	assert.True(t, d.Allowed)
	d, _ = limiter.Allow(ctx, "enroll", "stu-2", 1, time.Minute)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterSweepRemovesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(clock.Now)
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "enroll", "short", 5, time.Second)
	_, _ = limiter.Allow(ctx, "enroll", "long", 5, time.Hour)
	require.Equal(t, 2, limiter.Len())

	removed := limiter.Sweep(clock.Now().Add(2 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.Len())
}

func TestMemoryLimiterConcurrentCallsNeverExceedLimit(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(ctx, "review", "prof-1", 10, time.Minute)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d := Decision{ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, d.RetryAfter(now))
	assert.Equal(t, time.Second, Decision{ResetAt: now}.RetryAfter(now))
}
