package models

import "time"

// EventType names a notification emitted after a committed transition.
type EventType string

// Notification event types.
const (
	EventEnrollmentConfirmed EventType = "enrollment.confirmed"
	EventEnrollmentRejected  EventType = "enrollment.rejected"
	EventWaitlistPromoted    EventType = "waitlist.promoted"
	EventAttendanceRecorded  EventType = "attendance.recorded"
)

// Event is the payload handed to the notification sink.
type Event struct {
	Type         EventType        `json:"type"`
	ActivityID   string           `json:"activity_id"`
	SubjectID    string           `json:"subject_id"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	Status       EnrollmentStatus `json:"status,omitempty"`
	Message      string           `json:"message,omitempty"`
	Hours        float64          `json:"hours,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// Key returns the partition key keeping one subject's events for an activity ordered.
func (e Event) Key() string {
	if e.EnrollmentID != "" {
		return e.EnrollmentID
	}
	return e.ActivityID + ":" + e.SubjectID
}
