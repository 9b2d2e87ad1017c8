package dto

import (
	"time"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

// CreateSessionRequest schedules one session, or a weekly series when RepeatWeeks > 1.
type CreateSessionRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Location    string `json:"location" validate:"omitempty,max=255"`
	RepeatWeeks int    `json:"repeat_weeks" validate:"omitempty,min=1,max=52"`
}

// RescheduleSessionRequest moves a session.
type RescheduleSessionRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Location  string `json:"location" validate:"omitempty,max=255"`
}

// CheckInTokenResponse is the rotating token shown on the presenting device.
type CheckInTokenResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckInRequest is submitted by a volunteer scanning the token.
type CheckInRequest struct {
	Token    string           `json:"token" validate:"required,max=1024"`
	Location *models.GeoPoint `json:"location" validate:"omitempty"`
}

// ManualCheckInRequest records attendance on behalf of a volunteer.
type ManualCheckInRequest struct {
	SubjectID string `json:"subject_id" validate:"required,max=128"`
}

// CheckInResult is the recorded attendance and the hours it credits.
type CheckInResult struct {
	Attendance    models.Attendance `json:"attendance"`
	HoursCredited float64           `json:"hours_credited"`
}
