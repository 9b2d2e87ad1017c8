package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

type activityStore interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error)
	Create(ctx context.Context, activity *models.Activity) error
	Update(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ActivityStatus) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// ActivityService manages activities on behalf of their coordinators.
type ActivityService struct {
	tx        txRunner
	repo      activityStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(tx txRunner, repo activityStore, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{tx: tx, repo: repo, validator: validate, logger: logger}
}

// List returns activities with pagination metadata.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown activity status")
	}
	activities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list activities")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return activities, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single activity.
func (s *ActivityService) Get(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "activity")
	}
	return activity, nil
}

// Create registers a DRAFT activity coordinated by the actor.
func (s *ActivityService) Create(ctx context.Context, actor authz.Actor, req dto.CreateActivityRequest) (*models.Activity, error) {
	if !authz.CanCreateActivity(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only coordinators can create activities")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	activity := &models.Activity{
		CoordinatorID:   actor.SubjectID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Location:        strings.TrimSpace(req.Location),
		MaxParticipants: req.MaxParticipants,
		Status:          models.ActivityStatusDraft,
	}
	if activity.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, appErrors.Internal(err, "failed to create activity")
	}
	return activity, nil
}

// Update edits an activity. Capacity may not drop below the confirmed participants.
func (s *ActivityService) Update(ctx context.Context, actor authz.Actor, id string, req dto.UpdateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	var updated *models.Activity
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, err := s.lockManaged(ctx, exec, actor, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			activity.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			activity.Description = strings.TrimSpace(*req.Description)
		}
		if req.Location != nil {
			activity.Location = strings.TrimSpace(*req.Location)
		}
		if req.MaxParticipants != nil {
			if *req.MaxParticipants < activity.CurrentParticipants {
				return appErrors.Clone(appErrors.ErrFull,
					fmt.Sprintf("max participants cannot be lower than the %d confirmed participant(s)", activity.CurrentParticipants))
			}
			activity.MaxParticipants = *req.MaxParticipants
		}
		if activity.Title == "" {
			return appErrors.Clone(appErrors.ErrValidation, "title is required")
		}
		if err := s.repo.Update(ctx, exec, activity); err != nil {
			return appErrors.Internal(err, "failed to update activity")
		}
		updated = activity
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to update activity")
	}
	return updated, nil
}

// ChangeStatus moves an activity along DRAFT -> OPEN -> CLOSED, allowing reopening.
func (s *ActivityService) ChangeStatus(ctx context.Context, actor authz.Actor, id string, req dto.ChangeActivityStatusRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	next := models.ActivityStatus(req.Status)
	var updated *models.Activity
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		activity, err := s.lockManaged(ctx, exec, actor, id)
		if err != nil {
			return err
		}
		if activity.Status == next {
			updated = activity
			return nil
		}
		if !activity.Status.CanTransitionTo(next) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("activity cannot move from %s to %s", activity.Status, next))
		}
		if err := s.repo.UpdateStatus(ctx, exec, activity.ID, next); err != nil {
			return appErrors.Internal(err, "failed to change activity status")
		}
		activity.Status = next
		updated = activity
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to change activity status")
	}
	s.logger.Info("activity status changed", zap.String("activity_id", id), zap.String("status", string(updated.Status)))
	return updated, nil
}

// Delete soft deletes an activity.
func (s *ActivityService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if _, err := s.lockManaged(ctx, exec, actor, id); err != nil {
			return err
		}
		if err := s.repo.SoftDelete(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete activity")
		}
		return nil
	})
	if err != nil {
		return asAppError(err, "failed to delete activity")
	}
	return nil
}

func (s *ActivityService) lockManaged(ctx context.Context, exec sqlx.ExtContext, actor authz.Actor, id string) (*models.Activity, error) {
	activity, err := s.repo.LockByID(ctx, exec, id)
	if err != nil {
		return nil, lookupError(err, "activity")
	}
	if !authz.CanManageActivity(actor, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can manage this activity")
	}
	return activity, nil
}
