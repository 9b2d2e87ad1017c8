package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

// AttendanceRepository persists check-in records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an attendance row. The (session_id, subject_id) unique
// constraint rejects a second row for the same pair with SQLSTATE 23505.
func (r *AttendanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	if attendance.ID == "" {
		attendance.ID = uuid.NewString()
	}
	if attendance.Status == "" {
		attendance.Status = models.AttendanceStatusPresent
	}
	const query = `INSERT INTO attendances (id, session_id, subject_id, enrollment_id, status, check_in_method, checked_in_at, hours_credited, latitude, longitude, recorded_by)
        VALUES (:id, :session_id, :subject_id, :enrollment_id, :status, :check_in_method, :checked_in_at, :hours_credited, :latitude, :longitude, :recorded_by)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, attendance); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// ListBySession returns the attendance of a session in check-in order.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error) {
	const query = `SELECT id, session_id, subject_id, enrollment_id, status, check_in_method, checked_in_at, hours_credited, latitude, longitude, recorded_by
        FROM attendances WHERE session_id = $1 ORDER BY checked_in_at ASC, id ASC`
	var rows []models.Attendance
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}

// HoursBySubject aggregates credited hours per activity for a subject.
func (r *AttendanceRepository) HoursBySubject(ctx context.Context, subjectID string) ([]models.ActivityHours, error) {
	const query = `SELECT s.activity_id, a.title AS activity_title, COUNT(*) AS sessions_attended, COALESCE(SUM(at.hours_credited), 0) AS hours
        FROM attendances at
        JOIN sessions s ON s.id = at.session_id
        JOIN activities a ON a.id = s.activity_id
        WHERE at.subject_id = $1
        GROUP BY s.activity_id, a.title
        ORDER BY a.title ASC`
	var rows []models.ActivityHours
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("aggregate volunteer hours: %w", err)
	}
	return rows, nil
}
