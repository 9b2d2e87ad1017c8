package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/database"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

type eventNotifier interface {
	Notify(ctx context.Context, event models.Event)
}

type enrollmentActivityStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error)
	SetParticipants(ctx context.Context, exec sqlx.ExtContext, id string, count int) error
}

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	LockByIDs(ctx context.Context, exec sqlx.ExtContext, activityID string, ids []string) ([]models.Enrollment, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	ApplyTransition(ctx context.Context, exec sqlx.ExtContext, t models.EnrollmentTransition) error
	NextWaitlisted(ctx context.Context, exec sqlx.ExtContext, activityID string) (*models.Enrollment, error)
}

// EnrollmentService owns enrollment status transitions and keeps every
// activity's participant counter equal to its confirmed enrollments.
// Each transition and its counter write commit in one transaction holding the
// activity row lock.
type EnrollmentService struct {
	tx          txRunner
	activities  enrollmentActivityStore
	enrollments enrollmentStore
	promoter    *waitlistPromoter
	notifier    eventNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(tx txRunner, activities enrollmentActivityStore, enrollments enrollmentStore, notifier eventNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EnrollmentService{
		tx:          tx,
		activities:  activities,
		enrollments: enrollments,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	svc.promoter = &waitlistPromoter{
		enrollments: enrollments,
		activities:  activities,
		now:         func() time.Time { return svc.now() },
	}
	return svc
}

// Enroll applies the actor to an OPEN activity. Capacity is not checked here;
// it only bounds confirmations.
func (s *EnrollmentService) Enroll(ctx context.Context, actor authz.Actor, activityID string, req dto.EnrollRequest) (*models.Enrollment, error) {
	if !authz.CanEnroll(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only volunteers can enroll in activities")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, err := s.activities.LockByID(ctx, exec, activityID)
		if err != nil {
			return lookupError(err, "activity")
		}
		if activity.Status != models.ActivityStatusOpen {
			return appErrors.ErrNotOpen
		}
		exists, err := s.enrollments.ExistsActive(ctx, exec, activityID, actor.SubjectID)
		if err != nil {
			return appErrors.Internal(err, "failed to check existing enrollment")
		}
		if exists {
			return appErrors.ErrAlreadyActive
		}
		candidate := &models.Enrollment{
			ActivityID:   activityID,
			SubjectID:    actor.SubjectID,
			Status:       models.EnrollmentStatusPending,
			Motivation:   strings.TrimSpace(req.Motivation),
			Availability: strings.TrimSpace(req.Availability),
			Experience:   strings.TrimSpace(req.Experience),
			EnrolledAt:   s.now().UTC(),
		}
		if err := s.enrollments.Create(ctx, exec, candidate); err != nil {
			if _, dup := database.IsUniqueViolation(err); dup {
				return appErrors.ErrAlreadyActive
			}
			return appErrors.Internal(err, "failed to create enrollment")
		}
		enrollment = candidate
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to enroll")
	}
	s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusPending), 1)
	return enrollment, nil
}

// Accept confirms a pending or waitlisted enrollment. Capacity is checked
// against the locked activity row.
func (s *EnrollmentService) Accept(ctx context.Context, actor authz.Actor, enrollmentID string, req dto.AcceptEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}

	var accepted *models.Enrollment
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, enrollment, err := s.lockForTransition(ctx, exec, enrollmentID)
		if err != nil {
			return err
		}
		if !authz.CanReviewEnrollment(actor, activity) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can review enrollments")
		}
		if !enrollment.Status.Reviewable() {
			return appErrors.ErrAlreadyProcessed
		}
		if !activity.HasCapacity() {
			return appErrors.ErrFull
		}
		now := s.now().UTC()
		transition := models.EnrollmentTransition{
			ID:            enrollment.ID,
			Status:        models.EnrollmentStatusConfirmed,
			ReviewedAt:    &now,
			ReviewedBy:    &actor.SubjectID,
			CustomMessage: optionalText(req.CustomMessage),
		}
		if err := s.enrollments.ApplyTransition(ctx, exec, transition); err != nil {
			return appErrors.Internal(err, "failed to confirm enrollment")
		}
		if err := s.activities.SetParticipants(ctx, exec, activity.ID, activity.CurrentParticipants+1); err != nil {
			return appErrors.Internal(err, "failed to update participant count")
		}
		applyTransition(enrollment, transition)
		accepted = enrollment
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to accept enrollment")
	}

	s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusConfirmed), 1)
	s.notify(ctx, models.EventEnrollmentConfirmed, accepted, req.CustomMessage)
	return accepted, nil
}

// BulkAccept confirms every listed enrollment of one activity or none of them.
func (s *EnrollmentService) BulkAccept(ctx context.Context, actor authz.Actor, activityID string, req dto.BulkAcceptRequest) (*dto.BulkAcceptResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk accept payload")
	}
	ids := uniqueIDs(req.EnrollmentIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment_ids must contain at least one id")
	}

	result := &dto.BulkAcceptResult{}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, err := s.activities.LockByID(ctx, exec, activityID)
		if err != nil {
			return lookupError(err, "activity")
		}
		if !authz.CanReviewEnrollment(actor, activity) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can review enrollments")
		}
		available := activity.AvailableSpots()
		if len(ids) > available {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrFull, fmt.Sprintf("only %d more participant(s) can be accepted", available)),
				map[string]interface{}{"available_spots": available, "requested": len(ids)},
			)
		}

		locked, err := s.enrollments.LockByIDs(ctx, exec, activityID, ids)
		if err != nil {
			return appErrors.Internal(err, "failed to load enrollments")
		}
		byID := make(map[string]models.Enrollment, len(locked))
		for _, e := range locked {
			byID[e.ID] = e
		}
		for _, id := range ids {
			e, ok := byID[id]
			if !ok {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found in activity", id))
			}
			if !e.Status.Reviewable() {
				return appErrors.Clone(appErrors.ErrAlreadyProcessed, fmt.Sprintf("enrollment %s has already been processed", id))
			}
		}

		now := s.now().UTC()
		accepted := make([]models.Enrollment, 0, len(ids))
		for _, id := range ids {
			e := byID[id]
			transition := models.EnrollmentTransition{
				ID:            id,
				Status:        models.EnrollmentStatusConfirmed,
				ReviewedAt:    &now,
				ReviewedBy:    &actor.SubjectID,
				CustomMessage: optionalText(req.CustomMessage),
			}
			if err := s.enrollments.ApplyTransition(ctx, exec, transition); err != nil {
				return appErrors.Internal(err, "failed to confirm enrollment")
			}
			applyTransition(&e, transition)
			accepted = append(accepted, e)
		}
		count := activity.CurrentParticipants + len(ids)
		if err := s.activities.SetParticipants(ctx, exec, activity.ID, count); err != nil {
			return appErrors.Internal(err, "failed to update participant count")
		}
		result.Accepted = accepted
		result.AvailableSpots = activity.MaxParticipants - count
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to accept enrollments")
	}

	s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusConfirmed), len(result.Accepted))
	for i := range result.Accepted {
		s.notify(ctx, models.EventEnrollmentConfirmed, &result.Accepted[i], req.CustomMessage)
	}
	return result, nil
}

// Reject cancels a pending or waitlisted enrollment, or parks a pending one
// on the waitlist. The participant counter is never touched.
func (s *EnrollmentService) Reject(ctx context.Context, actor authz.Actor, enrollmentID string, req dto.RejectEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	var rejected *models.Enrollment
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, enrollment, err := s.lockForTransition(ctx, exec, enrollmentID)
		if err != nil {
			return err
		}
		if !authz.CanReviewEnrollment(actor, activity) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can review enrollments")
		}
		if !enrollment.Status.Reviewable() {
			return appErrors.ErrAlreadyProcessed
		}
		if req.AddToWaitlist && enrollment.Status == models.EnrollmentStatusWaitlisted {
			return appErrors.Clone(appErrors.ErrAlreadyProcessed, "enrollment is already waitlisted")
		}

		now := s.now().UTC()
		transition := models.EnrollmentTransition{
			ID:         enrollment.ID,
			Status:     models.EnrollmentStatusCancelled,
			ReviewedAt: &now,
			ReviewedBy: &actor.SubjectID,
		}
		if req.AddToWaitlist {
			transition.Status = models.EnrollmentStatusWaitlisted
		} else {
			transition.RejectionReason = &reason
		}
		if err := s.enrollments.ApplyTransition(ctx, exec, transition); err != nil {
			return appErrors.Internal(err, "failed to reject enrollment")
		}
		applyTransition(enrollment, transition)
		rejected = enrollment
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to reject enrollment")
	}

	s.metrics.RecordEnrollmentTransition(string(rejected.Status), 1)
	s.notify(ctx, models.EventEnrollmentRejected, rejected, reason)
	return rejected, nil
}

// BulkReject rejects each id in its own transaction and reports per-item outcomes.
func (s *EnrollmentService) BulkReject(ctx context.Context, actor authz.Actor, req dto.BulkRejectRequest) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk reject payload")
	}
	ids := uniqueIDs(req.EnrollmentIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment_ids must contain at least one id")
	}
	single := dto.RejectEnrollmentRequest{Reason: req.Reason, AddToWaitlist: req.AddToWaitlist}

	result := &models.BulkResult{Succeeded: []string{}, Failed: []models.BulkFailure{}}
	for _, id := range ids {
		if _, err := s.Reject(ctx, actor, id, single); err != nil {
			appErr := appErrors.FromError(err)
			if appErr.Code == appErrors.ErrInternal.Code {
				s.logger.Error("bulk reject item failed", zap.String("enrollment_id", id), zap.Error(err))
			}
			result.Failed = append(result.Failed, models.BulkFailure{ID: id, Code: appErr.Code, Reason: appErr.Message})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// Cancel withdraws the actor's confirmed enrollment, frees its slot and
// promotes the longest waiting enrollment into it before committing.
func (s *EnrollmentService) Cancel(ctx context.Context, actor authz.Actor, enrollmentID string) (*dto.CancelEnrollmentResult, error) {
	result := &dto.CancelEnrollmentResult{}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, enrollment, err := s.lockForTransition(ctx, exec, enrollmentID)
		if err != nil {
			return err
		}
		if !authz.CanCancelEnrollment(actor, enrollment) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the enrolled volunteer can cancel this enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusConfirmed {
			return appErrors.Clone(appErrors.ErrAlreadyProcessed, "only confirmed enrollments can be cancelled")
		}

		transition := models.EnrollmentTransition{ID: enrollment.ID, Status: models.EnrollmentStatusCancelled}
		if err := s.enrollments.ApplyTransition(ctx, exec, transition); err != nil {
			return appErrors.Internal(err, "failed to cancel enrollment")
		}
		count := activity.CurrentParticipants - 1
		if count < 0 {
			count = 0
		}
		if err := s.activities.SetParticipants(ctx, exec, activity.ID, count); err != nil {
			return appErrors.Internal(err, "failed to update participant count")
		}
		activity.CurrentParticipants = count
		applyTransition(enrollment, transition)

		promoted, err := s.promoter.promoteIfSlotFree(ctx, exec, activity)
		if err != nil {
			return appErrors.Internal(err, "failed to promote waitlisted enrollment")
		}
		result.Enrollment = *enrollment
		result.Promoted = promoted
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to cancel enrollment")
	}

	s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusCancelled), 1)
	if result.Promoted != nil {
		s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusConfirmed), 1)
		s.metrics.RecordWaitlistPromotion()
		s.logger.Info("waitlisted enrollment promoted",
			zap.String("activity_id", result.Promoted.ActivityID),
			zap.String("enrollment_id", result.Promoted.ID),
			zap.String("freed_by", result.Enrollment.ID),
		)
		s.notify(ctx, models.EventWaitlistPromoted, result.Promoted, "")
	}
	return result, nil
}

// Get returns one enrollment visible to its volunteer or the activity's coordinator.
func (s *EnrollmentService) Get(ctx context.Context, actor authz.Actor, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, nil, enrollmentID)
	if err != nil {
		return nil, lookupError(err, "enrollment")
	}
	activity, err := s.activities.FindByID(ctx, nil, enrollment.ActivityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load activity")
	}
	if !authz.CanViewEnrollment(actor, enrollment, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another volunteer")
	}
	return enrollment, nil
}

// List returns the enrollments of an activity for its coordinator.
func (s *EnrollmentService) List(ctx context.Context, actor authz.Actor, activityID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	activity, err := s.activities.FindByID(ctx, nil, activityID)
	if err != nil {
		return nil, nil, lookupError(err, "activity")
	}
	if !authz.CanReviewEnrollment(actor, activity) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can list enrollments")
	}
	filter.ActivityID = activityID
	filter.SubjectID = ""
	return s.list(ctx, filter)
}

// ListMine returns the actor's own enrollments across activities.
func (s *EnrollmentService) ListMine(ctx context.Context, actor authz.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if actor.SubjectID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter.SubjectID = actor.SubjectID
	return s.list(ctx, filter)
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollments")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// lockForTransition locks the enrollment's activity row and then the
// enrollment row. Every transition takes locks in this order.
func (s *EnrollmentService) lockForTransition(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Activity, *models.Enrollment, error) {
	current, err := s.enrollments.FindByID(ctx, exec, enrollmentID)
	if err != nil {
		return nil, nil, lookupError(err, "enrollment")
	}
	activity, err := s.activities.LockByID(ctx, exec, current.ActivityID)
	if err != nil {
		return nil, nil, lookupError(err, "activity")
	}
	enrollment, err := s.enrollments.LockByID(ctx, exec, enrollmentID)
	if err != nil {
		return nil, nil, lookupError(err, "enrollment")
	}
	return activity, enrollment, nil
}

func (s *EnrollmentService) notify(ctx context.Context, eventType models.EventType, enrollment *models.Enrollment, message string) {
	if s.notifier == nil || enrollment == nil {
		return
	}
	s.notifier.Notify(ctx, models.Event{
		Type:         eventType,
		ActivityID:   enrollment.ActivityID,
		SubjectID:    enrollment.SubjectID,
		EnrollmentID: enrollment.ID,
		Status:       enrollment.Status,
		Message:      message,
		OccurredAt:   s.now().UTC(),
	})
}

func applyTransition(e *models.Enrollment, t models.EnrollmentTransition) {
	e.Status = t.Status
	if t.ReviewedAt != nil {
		e.ReviewedAt = t.ReviewedAt
		e.UpdatedAt = *t.ReviewedAt
	}
	if t.ReviewedBy != nil {
		e.ReviewedBy = t.ReviewedBy
	}
	e.RejectionReason = t.RejectionReason
	if t.CustomMessage != nil {
		e.CustomMessage = t.CustomMessage
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// lookupError maps a missing row to NOT_FOUND and anything else to INTERNAL_ERROR.
func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Internal(err, "failed to load "+what)
}

// asAppError passes domain errors through and wraps everything else.
func asAppError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}
