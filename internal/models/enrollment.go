package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending    EnrollmentStatus = "PENDING"
	EnrollmentStatusConfirmed  EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusCancelled  EnrollmentStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusConfirmed, EnrollmentStatusWaitlisted, EnrollmentStatusCancelled:
		return true
	default:
		return false
	}
}

// Reviewable reports whether a coordinator may still accept or reject the enrollment.
func (s EnrollmentStatus) Reviewable() bool {
	return s == EnrollmentStatusPending || s == EnrollmentStatusWaitlisted
}

// Enrollment is a subject's application to take part in an activity.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	ActivityID      string           `db:"activity_id" json:"activity_id"`
	SubjectID       string           `db:"subject_id" json:"subject_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Motivation      string           `db:"motivation" json:"motivation"`
	Availability    string           `db:"availability" json:"availability"`
	Experience      string           `db:"experience" json:"experience"`
	EnrolledAt      time.Time        `db:"enrolled_at" json:"enrolled_at"`
	ReviewedAt      *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy      *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CustomMessage   *string          `db:"custom_message" json:"custom_message,omitempty"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with activity info.
type EnrollmentDetail struct {
	Enrollment
	ActivityTitle  string         `db:"activity_title" json:"activity_title"`
	ActivityStatus ActivityStatus `db:"activity_status" json:"activity_status"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ActivityID string
	SubjectID  string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// EnrollmentTransition describes a status write applied to one enrollment.
type EnrollmentTransition struct {
	ID              string
	Status          EnrollmentStatus
	ReviewedAt      *time.Time
	ReviewedBy      *string
	RejectionReason *string
	CustomMessage   *string
}

// BulkFailure reports one id a tolerant bulk operation could not apply.
type BulkFailure struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BulkResult is the per-item outcome of a tolerant bulk operation.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}
