package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

type sessionStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	ListByActivity(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Reschedule(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

const dateLayout = "2006-01-02"

// SessionService schedules the sessions of an activity.
type SessionService struct {
	tx         txRunner
	sessions   sessionStore
	activities activityReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(tx txRunner, sessions sessionStore, activities activityReader, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{tx: tx, sessions: sessions, activities: activities, validator: validate, logger: logger}
}

// Create schedules one session, or RepeatWeeks weekly sessions starting at Date.
// A recurring batch is inserted atomically.
func (s *SessionService) Create(ctx context.Context, actor authz.Actor, activityID string, req dto.CreateSessionRequest) ([]models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	activity, err := s.activities.FindByID(ctx, nil, activityID)
	if err != nil {
		return nil, lookupError(err, "activity")
	}
	if !authz.CanManageSessions(actor, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can schedule sessions")
	}
	first, err := buildSession(activityID, req.Date, req.StartTime, req.EndTime, req.Location)
	if err != nil {
		return nil, err
	}

	repeat := req.RepeatWeeks
	if repeat < 1 {
		repeat = 1
	}
	sessions := make([]models.Session, 0, repeat)
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		for week := 0; week < repeat; week++ {
			session := *first
			session.Date = first.Date.AddDate(0, 0, 7*week)
			if err := s.sessions.Create(ctx, exec, &session); err != nil {
				return appErrors.Internal(err, "failed to create session")
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to create sessions")
	}
	s.logger.Info("sessions scheduled", zap.String("activity_id", activityID), zap.Int("count", len(sessions)))
	return sessions, nil
}

// List returns the sessions of an activity.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	if _, err := s.activities.FindByID(ctx, nil, filter.ActivityID); err != nil {
		return nil, lookupError(err, "activity")
	}
	sessions, err := s.sessions.ListByActivity(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// Reschedule moves a scheduled session. Its current check-in token is dropped.
func (s *SessionService) Reschedule(ctx context.Context, actor authz.Actor, sessionID string, req dto.RescheduleSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cancelled sessions cannot be rescheduled")
	}
	moved, err := buildSession(session.ActivityID, req.Date, req.StartTime, req.EndTime, req.Location)
	if err != nil {
		return nil, err
	}
	session.Date = moved.Date
	session.StartTime = moved.StartTime
	session.EndTime = moved.EndTime
	session.Location = moved.Location
	if err := s.sessions.Reschedule(ctx, nil, session); err != nil {
		return nil, appErrors.Internal(err, "failed to reschedule session")
	}
	return session, nil
}

// Cancel marks a session cancelled. Check-ins against it stop validating.
func (s *SessionService) Cancel(ctx context.Context, actor authz.Actor, sessionID string) (*models.Session, error) {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is already cancelled")
	}
	if err := s.sessions.UpdateStatus(ctx, nil, session.ID, models.SessionStatusCancelled); err != nil {
		return nil, appErrors.Internal(err, "failed to cancel session")
	}
	session.Status = models.SessionStatusCancelled
	session.QRSecret = nil
	session.QRIssuedAt = nil
	return session, nil
}

// Delete soft deletes a session.
func (s *SessionService) Delete(ctx context.Context, actor authz.Actor, sessionID string) error {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.SoftDelete(ctx, nil, session.ID); err != nil {
		return appErrors.Internal(err, "failed to delete session")
	}
	return nil
}

func (s *SessionService) loadManaged(ctx context.Context, actor authz.Actor, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, lookupError(err, "session")
	}
	activity, err := s.activities.FindByID(ctx, nil, session.ActivityID)
	if err != nil {
		return nil, lookupError(err, "activity")
	}
	if !authz.CanManageSessions(actor, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can manage sessions")
	}
	return session, nil
}

// buildSession validates the schedule fields and normalises times to HH:MM:SS.
func buildSession(activityID, date, start, end, location string) (*models.Session, error) {
	day, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid session date %q", date))
	}
	startClock, err := normalizeClock(start)
	if err != nil {
		return nil, err
	}
	endClock, err := normalizeClock(end)
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		ActivityID: activityID,
		Date:       day,
		StartTime:  startClock,
		EndTime:    endClock,
		Location:   strings.TrimSpace(location),
		Status:     models.SessionStatusScheduled,
	}
	if _, _, err := session.Bounds(time.UTC); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return session, nil
}

func normalizeClock(raw string) (string, error) {
	d, err := models.ParseClock(strings.TrimSpace(raw))
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return time.Time{}.Add(d).Format(models.ClockLayout), nil
}
