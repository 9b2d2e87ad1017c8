package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/database"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/qrtoken"
)

type checkInSessionStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	RotateToken(ctx context.Context, exec sqlx.ExtContext, id, nonce string, issuedAt time.Time) error
}

type activityReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error)
}

type confirmedEnrollmentReader interface {
	FindConfirmed(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (*models.Enrollment, error)
}

type attendanceStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error
	ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error)
}

type hoursInvalidator interface {
	Invalidate(ctx context.Context, subjectID string)
}

// CheckInConfig tunes token freshness and the attendance window.
type CheckInConfig struct {
	TokenTTL    time.Duration
	WindowGrace time.Duration
	Location    *time.Location
}

// CheckInService issues rotating session tokens and records attendance.
type CheckInService struct {
	sessions    checkInSessionStore
	activities  activityReader
	enrollments confirmedEnrollmentReader
	attendance  attendanceStore
	signer      *qrtoken.Signer
	hours       hoursInvalidator
	notifier    eventNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CheckInConfig
	now         func() time.Time
}

// NewCheckInService constructs CheckInService.
func NewCheckInService(sessions checkInSessionStore, activities activityReader, enrollments confirmedEnrollmentReader, attendance attendanceStore, signer *qrtoken.Signer, hours hoursInvalidator, notifier eventNotifier, metrics *MetricsService, cfg CheckInConfig, validate *validator.Validate, logger *zap.Logger) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Second
	}
	if cfg.WindowGrace < 0 {
		cfg.WindowGrace = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CheckInService{
		sessions:    sessions,
		activities:  activities,
		enrollments: enrollments,
		attendance:  attendance,
		signer:      signer,
		hours:       hours,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// IssueToken rotates the session's check-in token. The previous token stops
// validating as soon as this call returns.
func (s *CheckInService) IssueToken(ctx context.Context, actor authz.Actor, sessionID string) (*dto.CheckInTokenResponse, error) {
	session, activity, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !authz.CanIssueCheckInToken(actor, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can present check-in tokens")
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is cancelled")
	}

	nonce, err := qrtoken.NewNonce()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to generate token nonce")
	}
	issuedAt := s.now().UTC().Truncate(time.Millisecond)
	token, err := s.signer.Sign(qrtoken.Claims{
		SessionID:  session.ID,
		ActivityID: session.ActivityID,
		IssuedAt:   issuedAt,
		Nonce:      nonce,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign check-in token")
	}
	if err := s.sessions.RotateToken(ctx, nil, session.ID, nonce, issuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session is no longer scheduled")
		}
		return nil, appErrors.Internal(err, "failed to store check-in token")
	}

	return &dto.CheckInTokenResponse{
		Token:     token,
		SessionID: session.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.cfg.TokenTTL),
	}, nil
}

// CheckIn verifies a scanned token and records the actor's attendance.
// Validation stops at the first failing step: signature and activity, token
// age, current rotation, session window, confirmed enrollment, uniqueness.
func (s *CheckInService) CheckIn(ctx context.Context, actor authz.Actor, req dto.CheckInRequest) (*dto.CheckInResult, error) {
	result, err := s.checkIn(ctx, actor, req)
	s.recordOutcome(models.CheckInMethodQR, err)
	return result, err
}

func (s *CheckInService) checkIn(ctx context.Context, actor authz.Actor, req dto.CheckInRequest) (*dto.CheckInResult, error) {
	if !authz.CanCheckIn(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only volunteers can check in")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	now := s.now().UTC()

	claims, err := s.signer.Parse(req.Token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}
	session, err := s.sessions.FindByID(ctx, nil, claims.SessionID)
	if err != nil {
		return nil, lookupError(err, "session")
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is cancelled")
	}
	if session.ActivityID != claims.ActivityID {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "check-in token does not belong to this session's activity")
	}
	if now.Sub(claims.IssuedAt) > s.cfg.TokenTTL {
		return nil, appErrors.ErrExpiredToken
	}
	if session.QRSecret == nil || *session.QRSecret != claims.Nonce {
		return nil, appErrors.Clone(appErrors.ErrExpiredToken, "check-in token has been replaced by a newer one")
	}
	within, err := session.WithinWindow(now, s.cfg.WindowGrace, s.cfg.Location)
	if err != nil {
		return nil, appErrors.Internal(err, "session has an invalid schedule")
	}
	if !within {
		return nil, appErrors.ErrOutsideWindow
	}

	attendance := &models.Attendance{
		SessionID:   session.ID,
		SubjectID:   actor.SubjectID,
		Status:      models.AttendanceStatusPresent,
		Method:      models.CheckInMethodQR,
		CheckedInAt: now,
	}
	if req.Location != nil {
		lat, lng := req.Location.Latitude, req.Location.Longitude
		attendance.Latitude = &lat
		attendance.Longitude = &lng
	}
	return s.record(ctx, session, attendance)
}

// RecordManual records attendance on behalf of a volunteer. Token and window
// checks are skipped; enrollment and uniqueness still apply.
func (s *CheckInService) RecordManual(ctx context.Context, actor authz.Actor, sessionID string, req dto.ManualCheckInRequest) (*dto.CheckInResult, error) {
	result, err := s.recordManual(ctx, actor, sessionID, req)
	s.recordOutcome(models.CheckInMethodManual, err)
	return result, err
}

func (s *CheckInService) recordManual(ctx context.Context, actor authz.Actor, sessionID string, req dto.ManualCheckInRequest) (*dto.CheckInResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, activity, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageSessions(actor, activity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can record attendance")
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is cancelled")
	}
	recordedBy := actor.SubjectID
	return s.record(ctx, session, &models.Attendance{
		SessionID:   session.ID,
		SubjectID:   req.SubjectID,
		Status:      models.AttendanceStatusPresent,
		Method:      models.CheckInMethodManual,
		CheckedInAt: s.now().UTC(),
		RecordedBy:  &recordedBy,
	})
}

// record checks the confirmed enrollment and inserts the attendance row. The
// (session_id, subject_id) unique constraint decides concurrent duplicates.
func (s *CheckInService) record(ctx context.Context, session *models.Session, attendance *models.Attendance) (*dto.CheckInResult, error) {
	enrollment, err := s.enrollments.FindConfirmed(ctx, nil, session.ActivityID, attendance.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	hours, err := session.Hours()
	if err != nil {
		return nil, appErrors.Internal(err, "session has an invalid schedule")
	}
	attendance.EnrollmentID = enrollment.ID
	attendance.HoursCredited = hours

	if err := s.attendance.Create(ctx, nil, attendance); err != nil {
		if _, dup := database.IsUniqueViolation(err); dup {
			return nil, appErrors.ErrDuplicateCheckIn
		}
		return nil, appErrors.Internal(err, "failed to record attendance")
	}

	if s.hours != nil {
		s.hours.Invalidate(ctx, attendance.SubjectID)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, models.Event{
			Type:         models.EventAttendanceRecorded,
			ActivityID:   session.ActivityID,
			SubjectID:    attendance.SubjectID,
			EnrollmentID: enrollment.ID,
			SessionID:    session.ID,
			Hours:        hours,
			OccurredAt:   attendance.CheckedInAt,
		})
	}
	return &dto.CheckInResult{Attendance: *attendance, HoursCredited: hours}, nil
}

// ListAttendance returns the attendance recorded for a session.
func (s *CheckInService) ListAttendance(ctx context.Context, actor authz.Actor, sessionID string) ([]models.Attendance, error) {
	_, _, rows, err := s.SessionAttendance(ctx, actor, sessionID)
	return rows, err
}

// SessionAttendance returns a session, its activity and its attendance for the activity's coordinator.
func (s *CheckInService) SessionAttendance(ctx context.Context, actor authz.Actor, sessionID string) (*models.Session, *models.Activity, []models.Attendance, error) {
	session, activity, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !authz.CanManageSessions(actor, activity) {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the activity coordinator can view attendance")
	}
	rows, err := s.attendance.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, nil, appErrors.Internal(err, "failed to list attendance")
	}
	if rows == nil {
		rows = []models.Attendance{}
	}
	return session, activity, rows, nil
}

func (s *CheckInService) loadSession(ctx context.Context, sessionID string) (*models.Session, *models.Activity, error) {
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, nil, lookupError(err, "session")
	}
	activity, err := s.activities.FindByID(ctx, nil, session.ActivityID)
	if err != nil {
		return nil, nil, lookupError(err, "activity")
	}
	return session, activity, nil
}

func (s *CheckInService) recordOutcome(method models.CheckInMethod, err error) {
	outcome := "ok"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordCheckIn(string(method), outcome)
}
