package types

import (
	"fmt"
	"time"
)

// AttendanceStatus is an RSVP answer. The wire strings are fixed; anything
// else is rejected during validation.
type AttendanceStatus string

const (
	StatusGoing    AttendanceStatus = "going"
	StatusNotGoing AttendanceStatus = "not_going"
	StatusMaybe    AttendanceStatus = "maybe"
)

// ParseAttendanceStatus converts a wire or CLI string into a status.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch AttendanceStatus(s) {
	case StatusGoing, StatusNotGoing, StatusMaybe:
		return AttendanceStatus(s), nil
	}
	return "", fmt.Errorf("unknown attendance status %q (want going, not_going, or maybe)", s)
}

// Valid reports whether the status is one of the canonical values.
func (s AttendanceStatus) Valid() bool {
	_, err := ParseAttendanceStatus(string(s))
	return err == nil
}

// Attendance is one user's RSVP for one event. At most one record exists
// per (event, user) pair; a second vote updates the existing record.
type Attendance struct {
	ID        string           `json:"id"`
	EventID   string           `json:"event_id"`
	UserID    string           `json:"user_id"`
	Status    AttendanceStatus `json:"status"`
	UserName  string           `json:"user_name,omitempty"`
	UserEmail string           `json:"user_email,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks field values on an attendance record.
func (a *Attendance) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid status %q", a.Status)
	}
	return nil
}

// Before reports the natural order of attendances: creation time
// descending, most recent vote first.
func (a *Attendance) Before(other *Attendance) bool {
	if !a.CreatedAt.Equal(other.CreatedAt) {
		return a.CreatedAt.After(other.CreatedAt)
	}
	return a.ID < other.ID
}

// SameVoter reports whether two attendances share the (event, user)
// natural key.
func (a *Attendance) SameVoter(other *Attendance) bool {
	return a.EventID == other.EventID && a.UserID == other.UserID
}
