package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

// AttendanceStatusPresent is the only status recorded by check-in.
const AttendanceStatusPresent AttendanceStatus = "PRESENT"

// CheckInMethod records how attendance was captured.
type CheckInMethod string

// Check-in methods.
const (
	CheckInMethodQR     CheckInMethod = "QR"
	CheckInMethodManual CheckInMethod = "MANUAL"
)

// Attendance is the immutable record of one subject attending one session.
type Attendance struct {
	ID            string           `db:"id" json:"id"`
	SessionID     string           `db:"session_id" json:"session_id"`
	SubjectID     string           `db:"subject_id" json:"subject_id"`
	EnrollmentID  string           `db:"enrollment_id" json:"enrollment_id"`
	Status        AttendanceStatus `db:"status" json:"status"`
	Method        CheckInMethod    `db:"check_in_method" json:"check_in_method"`
	CheckedInAt   time.Time        `db:"checked_in_at" json:"checked_in_at"`
	HoursCredited float64          `db:"hours_credited" json:"hours_credited"`
	Latitude      *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64         `db:"longitude" json:"longitude,omitempty"`
	RecordedBy    *string          `db:"recorded_by" json:"recorded_by,omitempty"`
}

// GeoPoint is an optional, advisory device location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// ActivityHours aggregates credited hours for one activity.
type ActivityHours struct {
	ActivityID       string  `db:"activity_id" json:"activity_id"`
	ActivityTitle    string  `db:"activity_title" json:"activity_title"`
	SessionsAttended int     `db:"sessions_attended" json:"sessions_attended"`
	Hours            float64 `db:"hours" json:"hours"`
}

// HoursSummary is the volunteer hour total for a subject.
type HoursSummary struct {
	SubjectID        string          `json:"subject_id"`
	TotalHours       float64         `json:"total_hours"`
	SessionsAttended int             `json:"sessions_attended"`
	Activities       []ActivityHours `json:"activities"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
