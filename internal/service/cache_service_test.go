package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCacheRepo struct{}

func (brokenCacheRepo) Get(context.Context, string, interface{}) error {
	return errors.New("redis down")
}

func (brokenCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis down")
}

func (brokenCacheRepo) Delete(context.Context, ...string) error {
	return errors.New("redis down")
}

func TestRememberLoadsOnceThenHits(t *testing.T) {
	cache := NewCacheService(newMemCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	loads := 0
	load := func(context.Context) (int, error) {
		loads++
		return 42, nil
	}

	value, hit, err := Remember(context.Background(), cache, CacheKey("answer", "1"), 0, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, value)

	value, hit, err = Remember(context.Background(), cache, CacheKey("answer", "1"), 0, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, value)
	assert.Equal(t, 1, loads)
}

func TestRememberFailsOpenWhenCacheBreaks(t *testing.T) {
	cache := NewCacheService(brokenCacheRepo{}, nil, time.Minute, nil, true)

	value, hit, err := Remember(context.Background(), cache, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})

	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", value)
	assert.Error(t, cache.Invalidate(context.Background(), "k"))
}

func TestRememberDoesNotCacheLoadErrors(t *testing.T) {
	repo := newMemCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	_, _, err := Remember(context.Background(), cache, "k", time.Minute, func(context.Context) (string, error) {
		return "", errors.New("boom")
	})

	require.Error(t, err)
	assert.Empty(t, repo.entries)
}

func TestDisabledCacheAlwaysLoads(t *testing.T) {
	var nilCache *CacheService
	for _, cache := range []*CacheService{nilCache, NewCacheService(newMemCacheRepo(), nil, 0, nil, false)} {
		loads := 0
		for i := 0; i < 2; i++ {
			_, hit, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) {
				loads++
				return loads, nil
			})
			require.NoError(t, err)
			assert.False(t, hit)
		}
		assert.Equal(t, 2, loads)
		assert.NoError(t, cache.Invalidate(context.Background(), "k"))
	}
}
