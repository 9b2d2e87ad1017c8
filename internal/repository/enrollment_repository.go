package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

const enrollmentColumns = `id, activity_id, subject_id, status, motivation, availability, experience, enrolled_at,
        reviewed_at, reviewed_by, rejection_reason, custom_message, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN activities a ON a.id = e.activity_id`
	conditions := []string{"a.deleted_at IS NULL"}
	var args []interface{}

	if filter.ActivityID != "" {
		args = append(args, filter.ActivityID)
		conditions = append(conditions, fmt.Sprintf("e.activity_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"enrolled_at": "e.enrolled_at",
		"status":      "e.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.activity_id, e.subject_id, e.status, e.motivation, e.availability, e.experience, e.enrolled_at,
        e.reviewed_at, e.reviewed_by, e.rejection_reason, e.custom_message, e.updated_at,
        a.title AS activity_title, a.status AS activity_status
        %s ORDER BY %s %s, e.id ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1"
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByID loads an enrollment holding its row lock.
func (r *EnrollmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1 FOR UPDATE"
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByIDs loads and locks the enrollments of one activity among ids.
// Ids that are missing or belong to another activity are simply absent from the result.
func (r *EnrollmentRepository) LockByIDs(ctx context.Context, exec sqlx.ExtContext, activityID string, ids []string) ([]models.Enrollment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE activity_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE"
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &enrollments, query, activityID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsActive checks whether a non-cancelled enrollment exists for the pair.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (bool, error) {
	const query = "SELECT 1 FROM enrollments WHERE activity_id = $1 AND subject_id = $2 AND status <> $3 LIMIT 1"
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, activityID, subjectID, models.EnrollmentStatusCancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// FindConfirmed returns the confirmed enrollment for the pair.
func (r *EnrollmentRepository) FindConfirmed(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE activity_id = $1 AND subject_id = $2 AND status = $3 LIMIT 1"
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, activityID, subjectID, models.EnrollmentStatusConfirmed); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new enrollment record. A duplicate active pair surfaces as a
// unique violation on enrollments_active_pair_key.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	enrollment.UpdatedAt = enrollment.EnrolledAt
	const query = `INSERT INTO enrollments (id, activity_id, subject_id, status, motivation, availability, experience, enrolled_at, updated_at)
        VALUES (:id, :activity_id, :subject_id, :status, :motivation, :availability, :experience, :enrolled_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ApplyTransition writes a status change together with its review metadata.
func (r *EnrollmentRepository) ApplyTransition(ctx context.Context, exec sqlx.ExtContext, t models.EnrollmentTransition) error {
	const query = `UPDATE enrollments SET status = $2, reviewed_at = COALESCE($3, reviewed_at), reviewed_by = COALESCE($4, reviewed_by),
        rejection_reason = $5, custom_message = COALESCE($6, custom_message), updated_at = $7 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, t.ID, t.Status, t.ReviewedAt, t.ReviewedBy, t.RejectionReason, t.CustomMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// NextWaitlisted locks the earliest waitlisted enrollment of the activity.
// Ties on enrolled_at fall back to id order.
func (r *EnrollmentRepository) NextWaitlisted(ctx context.Context, exec sqlx.ExtContext, activityID string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + ` FROM enrollments WHERE activity_id = $1 AND status = $2
        ORDER BY enrolled_at ASC, id ASC LIMIT 1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, activityID, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, err
	}
	return &enrollment, nil
}
