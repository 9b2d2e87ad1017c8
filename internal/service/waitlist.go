package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

type waitlistStore interface {
	NextWaitlisted(ctx context.Context, exec sqlx.ExtContext, activityID string) (*models.Enrollment, error)
	ApplyTransition(ctx context.Context, exec sqlx.ExtContext, t models.EnrollmentTransition) error
}

type participantCounter interface {
	SetParticipants(ctx context.Context, exec sqlx.ExtContext, id string, count int) error
}

// waitlistPromoter fills a freed slot with the longest waiting enrollment.
// It only runs inside the transaction that freed the slot.
type waitlistPromoter struct {
	enrollments waitlistStore
	activities  participantCounter
	now         func() time.Time
}

// promoteIfSlotFree confirms at most one waitlisted enrollment of activity.
// activity must be row locked by exec and carry the counter as already
// decremented; on promotion its CurrentParticipants is updated in place.
func (p *waitlistPromoter) promoteIfSlotFree(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) (*models.Enrollment, error) {
	if !activity.HasCapacity() {
		return nil, nil
	}
	next, err := p.enrollments.NextWaitlisted(ctx, exec, activity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select waitlisted enrollment: %w", err)
	}

	now := p.now().UTC()
	if err := p.enrollments.ApplyTransition(ctx, exec, models.EnrollmentTransition{
		ID:         next.ID,
		Status:     models.EnrollmentStatusConfirmed,
		ReviewedAt: &now,
	}); err != nil {
		return nil, fmt.Errorf("promote enrollment %s: %w", next.ID, err)
	}
	count := activity.CurrentParticipants + 1
	if err := p.activities.SetParticipants(ctx, exec, activity.ID, count); err != nil {
		return nil, fmt.Errorf("increment participants: %w", err)
	}
	activity.CurrentParticipants = count

	next.Status = models.EnrollmentStatusConfirmed
	next.ReviewedAt = &now
	next.RejectionReason = nil
	next.UpdatedAt = now
	return next, nil
}
