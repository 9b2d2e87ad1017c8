package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

const sessionColumns = `id, activity_id, date, start_time, end_time, location, qr_secret, qr_issued_at, status, created_at, updated_at, deleted_at`

// SessionRepository persists activity sessions and their check-in token rotation.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a live session.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = $1 AND deleted_at IS NULL"
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByActivity returns sessions of an activity ordered chronologically.
func (r *SessionRepository) ListByActivity(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	conditions := []string{"activity_id = $1", "deleted_at IS NULL"}
	args := []interface{}{filter.ActivityID}
	if !filter.IncludeCancelled {
		args = append(args, models.SessionStatusScheduled)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE %s ORDER BY date ASC, start_time ASC", sessionColumns, strings.Join(conditions, " AND "))
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session payload is nil")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	const query = `
INSERT INTO sessions (id, activity_id, date, start_time, end_time, location, status, created_at, updated_at)
VALUES (:id, :activity_id, :date, :start_time, :end_time, :location, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Reschedule updates date, times and location and drops the current check-in token.
func (r *SessionRepository) Reschedule(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	session.QRSecret = nil
	session.QRIssuedAt = nil
	const query = `UPDATE sessions SET date = :date, start_time = :start_time, end_time = :end_time, location = :location,
        qr_secret = NULL, qr_issued_at = NULL, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("reschedule session: %w", err)
	}
	return nil
}

// UpdateStatus changes the session status and drops the current check-in token.
func (r *SessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error {
	const query = `UPDATE sessions SET status = $2, qr_secret = NULL, qr_issued_at = NULL, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// RotateToken replaces the session's current token nonce, invalidating the previous token.
func (r *SessionRepository) RotateToken(ctx context.Context, exec sqlx.ExtContext, id, nonce string, issuedAt time.Time) error {
	const query = `UPDATE sessions SET qr_secret = $2, qr_issued_at = $3, updated_at = $3
        WHERE id = $1 AND deleted_at IS NULL AND status = $4`
	res, err := r.exec(exec).ExecContext(ctx, query, id, nonce, issuedAt, models.SessionStatusScheduled)
	if err != nil {
		return fmt.Errorf("rotate session token: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks the session deleted.
func (r *SessionRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE sessions SET deleted_at = $2, qr_secret = NULL, qr_issued_at = NULL, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
