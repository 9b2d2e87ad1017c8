package dto

import "github.com/noah-isme/volunteer-hours-api/internal/models"

// EnrollRequest is a volunteer's application to an activity.
type EnrollRequest struct {
	Motivation   string `json:"motivation" validate:"required,max=2000"`
	Availability string `json:"availability" validate:"omitempty,max=1000"`
	Experience   string `json:"experience" validate:"omitempty,max=2000"`
}

// AcceptEnrollmentRequest confirms a pending or waitlisted enrollment.
type AcceptEnrollmentRequest struct {
	CustomMessage string `json:"custom_message" validate:"omitempty,max=1000"`
}

// BulkAcceptRequest confirms several enrollments of one activity at once.
type BulkAcceptRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,max=100,dive,required"`
	CustomMessage string   `json:"custom_message" validate:"omitempty,max=1000"`
}

// RejectEnrollmentRequest rejects an enrollment, optionally parking it on the waitlist.
type RejectEnrollmentRequest struct {
	Reason        string `json:"reason" validate:"required,max=1000"`
	AddToWaitlist bool   `json:"add_to_waitlist"`
}

// BulkRejectRequest rejects several enrollments, tolerating per-item failures.
type BulkRejectRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,max=100,dive,required"`
	Reason        string   `json:"reason" validate:"required,max=1000"`
	AddToWaitlist bool     `json:"add_to_waitlist"`
}

// BulkAcceptResult lists the enrollments confirmed by a bulk accept.
type BulkAcceptResult struct {
	Accepted       []models.Enrollment `json:"accepted"`
	AvailableSpots int                 `json:"available_spots"`
}

// CancelEnrollmentResult reports the cancelled enrollment and any waitlisted
// enrollment promoted into the freed slot.
type CancelEnrollmentResult struct {
	Enrollment models.Enrollment  `json:"enrollment"`
	Promoted   *models.Enrollment `json:"promoted,omitempty"`
}
