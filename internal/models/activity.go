package models

import "time"

// ActivityStatus controls whether an activity accepts enrollments.
type ActivityStatus string

// Activity statuses.
const (
	ActivityStatusDraft  ActivityStatus = "DRAFT"
	ActivityStatusOpen   ActivityStatus = "OPEN"
	ActivityStatusClosed ActivityStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityStatusDraft, ActivityStatusOpen, ActivityStatusClosed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a coordinator may move an activity from s to next.
func (s ActivityStatus) CanTransitionTo(next ActivityStatus) bool {
	switch s {
	case ActivityStatusDraft:
		return next == ActivityStatusOpen
	case ActivityStatusOpen:
		return next == ActivityStatusClosed
	case ActivityStatusClosed:
		return next == ActivityStatusOpen
	default:
		return false
	}
}

// Activity is a capacity-bounded volunteering opportunity owned by one coordinator.
// CurrentParticipants always equals the number of CONFIRMED enrollments.
type Activity struct {
	ID                  string         `db:"id" json:"id"`
	CoordinatorID       string         `db:"coordinator_id" json:"coordinator_id"`
	Title               string         `db:"title" json:"title"`
	Description         string         `db:"description" json:"description"`
	Location            string         `db:"location" json:"location"`
	MaxParticipants     int            `db:"max_participants" json:"max_participants"`
	CurrentParticipants int            `db:"current_participants" json:"current_participants"`
	Status              ActivityStatus `db:"status" json:"status"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time     `db:"deleted_at" json:"-"`
}

// AvailableSpots returns how many more enrollments may be confirmed.
func (a *Activity) AvailableSpots() int {
	available := a.MaxParticipants - a.CurrentParticipants
	if available < 0 {
		return 0
	}
	return available
}

// HasCapacity reports whether at least one more enrollment may be confirmed.
func (a *Activity) HasCapacity() bool {
	return a.CurrentParticipants < a.MaxParticipants
}

// ActivityFilter provides filters for listing activities.
type ActivityFilter struct {
	Status        ActivityStatus
	CoordinatorID string
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
