package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

const activityColumns = `id, coordinator_id, title, description, location, max_participants, current_participants, status, created_at, updated_at, deleted_at`

// ActivityRepository handles persistence of activities.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns activities filtered by the provided criteria.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CoordinatorID != "" {
		args = append(args, filter.CoordinatorID)
		conditions = append(conditions, fmt.Sprintf("coordinator_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"title":      "title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM activities%s ORDER BY %s %s LIMIT %d OFFSET %d", activityColumns, clause, orderBy, order, size, offset)
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM activities"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}
	return activities, total, nil
}

// FindByID returns a live activity by its ID.
func (r *ActivityRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities WHERE id = $1 AND deleted_at IS NULL"
	var activity models.Activity
	if err := sqlx.GetContext(ctx, r.exec(exec), &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// LockByID loads a live activity and holds its row lock until the transaction ends.
// Every read of current_participants that precedes a write goes through here.
func (r *ActivityRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities WHERE id = $1 AND deleted_at IS NULL FOR UPDATE"
	var activity models.Activity
	if err := sqlx.GetContext(ctx, r.exec(exec), &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Create persists a new activity.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	if activity.Status == "" {
		activity.Status = models.ActivityStatusDraft
	}
	const query = `INSERT INTO activities (id, coordinator_id, title, description, location, max_participants, current_participants, status, created_at, updated_at)
        VALUES (:id, :coordinator_id, :title, :description, :location, :max_participants, :current_participants, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// Update writes the editable fields of an activity.
func (r *ActivityRepository) Update(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) error {
	activity.UpdatedAt = time.Now().UTC()
	const query = `UPDATE activities SET title = :title, description = :description, location = :location,
        max_participants = :max_participants, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, activity); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// UpdateStatus changes the activity status.
func (r *ActivityRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ActivityStatus) error {
	const query = `UPDATE activities SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update activity status: %w", err)
	}
	return nil
}

// SetParticipants stores the confirmed participant counter. Callers hold the row lock.
func (r *ActivityRepository) SetParticipants(ctx context.Context, exec sqlx.ExtContext, id string, count int) error {
	const query = `UPDATE activities SET current_participants = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, count, time.Now().UTC()); err != nil {
		return fmt.Errorf("update activity participants: %w", err)
	}
	return nil
}

// SoftDelete marks the activity deleted.
func (r *ActivityRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE activities SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}
