package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

type hoursRepository interface {
	HoursBySubject(ctx context.Context, subjectID string) ([]models.ActivityHours, error)
}

// HoursService aggregates the volunteer hours credited by attendance.
type HoursService struct {
	repo   hoursRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewHoursService constructs HoursService. cache may be nil.
func NewHoursService(repo hoursRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *HoursService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoursService{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

func hoursCacheKey(subjectID string) string {
	return CacheKey("hours", subjectID)
}

// Summary returns the credited hours of a volunteer per activity.
func (s *HoursService) Summary(ctx context.Context, subjectID string) (*models.HoursSummary, error) {
	if subjectID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	summary, _, err := Remember(ctx, s.cache, hoursCacheKey(subjectID), s.ttl, func(ctx context.Context) (*models.HoursSummary, error) {
		return s.aggregate(ctx, subjectID)
	})
	return summary, err
}

func (s *HoursService) aggregate(ctx context.Context, subjectID string) (*models.HoursSummary, error) {
	rows, err := s.repo.HoursBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to aggregate volunteer hours")
	}
	summary := &models.HoursSummary{
		SubjectID:   subjectID,
		Activities:  rows,
		GeneratedAt: s.now().UTC(),
	}
	if summary.Activities == nil {
		summary.Activities = []models.ActivityHours{}
	}
	for _, row := range rows {
		summary.TotalHours += row.Hours
		summary.SessionsAttended += row.SessionsAttended
	}
	return summary, nil
}

// Invalidate drops the cached summary of a volunteer.
func (s *HoursService) Invalidate(ctx context.Context, subjectID string) {
	if err := s.cache.Invalidate(ctx, hoursCacheKey(subjectID)); err != nil {
		s.logger.Warn("hours cache invalidation failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}
