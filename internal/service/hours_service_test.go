package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: map[string][]byte{}}
}

func (r *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.entries, key)
	}
	return nil
}

type countingHoursRepo struct {
	calls int
	rows  []models.ActivityHours
	err   error
}

func (r *countingHoursRepo) HoursBySubject(ctx context.Context, subjectID string) ([]models.ActivityHours, error) {
	r.calls++
	return r.rows, r.err
}

func TestHoursSummaryTotalsActivities(t *testing.T) {
	repo := &countingHoursRepo{rows: []models.ActivityHours{
		{ActivityID: "act-1", ActivityTitle: "Beach cleanup", SessionsAttended: 3, Hours: 6},
		{ActivityID: "act-2", ActivityTitle: "Food bank", SessionsAttended: 1, Hours: 1.5},
	}}
	svc := NewHoursService(repo, nil, time.Minute, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }

	summary, err := svc.Summary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", summary.SubjectID)
	assert.Equal(t, 7.5, summary.TotalHours)
	assert.Equal(t, 4, summary.SessionsAttended)
	assert.Len(t, summary.Activities, 2)
	assert.Equal(t, fixedNow, summary.GeneratedAt)
}

func TestHoursSummaryUsesCacheUntilInvalidated(t *testing.T) {
	repo := &countingHoursRepo{rows: []models.ActivityHours{{ActivityID: "act-1", SessionsAttended: 1, Hours: 2}}}
	cache := NewCacheService(newMemCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewHoursService(repo, cache, time.Minute, zap.NewNop())

	_, err := svc.Summary(context.Background(), "stu-1")
	require.NoError(t, err)
	cached, err := svc.Summary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 2.0, cached.TotalHours)

	svc.Invalidate(context.Background(), "stu-1")
	_, err = svc.Summary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestHoursSummaryEmptyAndFailures(t *testing.T) {
	svc := NewHoursService(&countingHoursRepo{}, nil, time.Minute, nil)
	summary, err := svc.Summary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.NotNil(t, summary.Activities)
	assert.Zero(t, summary.TotalHours)

	_, err = svc.Summary(context.Background(), "")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	failing := NewHoursService(&countingHoursRepo{err: errors.New("db down")}, nil, time.Minute, nil)
	_, err = failing.Summary(context.Background(), "stu-1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
