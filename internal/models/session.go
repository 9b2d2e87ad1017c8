package models

import (
	"fmt"
	"time"
)

// SessionStatus tracks whether a session still takes place.
type SessionStatus string

// Session statuses.
const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// ClockLayout is the wire and storage layout of session start and end times.
const ClockLayout = "15:04:05"

// Session is one scheduled occurrence of an activity at which attendance is taken.
// QRSecret holds the nonce of the current check-in token rotation.
type Session struct {
	ID         string        `db:"id" json:"id"`
	ActivityID string        `db:"activity_id" json:"activity_id"`
	Date       time.Time     `db:"date" json:"date"`
	StartTime  string        `db:"start_time" json:"start_time"`
	EndTime    string        `db:"end_time" json:"end_time"`
	Location   string        `db:"location" json:"location"`
	QRSecret   *string       `db:"qr_secret" json:"-"`
	QRIssuedAt *time.Time    `db:"qr_issued_at" json:"qr_issued_at,omitempty"`
	Status     SessionStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time    `db:"deleted_at" json:"-"`
}

// ParseClock parses an HH:MM or HH:MM:SS wall clock value.
func ParseClock(raw string) (time.Duration, error) {
	for _, layout := range []string{ClockLayout, "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// Bounds returns the absolute start and end instants of the session in loc.
func (s *Session) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end <= start {
		return time.Time{}, time.Time{}, fmt.Errorf("session end %s must be after start %s", s.EndTime, s.StartTime)
	}
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, loc)
	return day.Add(start), day.Add(end), nil
}

// Hours returns the session duration in fractional hours.
func (s *Session) Hours() (float64, error) {
	start, end, err := s.Bounds(time.UTC)
	if err != nil {
		return 0, err
	}
	return end.Sub(start).Hours(), nil
}

// WithinWindow reports whether now falls inside [start-grace, end+grace], inclusive.
func (s *Session) WithinWindow(now time.Time, grace time.Duration, loc *time.Location) (bool, error) {
	start, end, err := s.Bounds(loc)
	if err != nil {
		return false, err
	}
	opens := start.Add(-grace)
	closes := end.Add(grace)
	return !now.Before(opens) && !now.After(closes), nil
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	ActivityID       string
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
}
