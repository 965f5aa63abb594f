package types

import (
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds event titles, matching the server-side limit.
const MaxTitleLength = 200

// Event is a scheduled gathering owned by its organizer.
//
// The id is assigned by the remote service on creation; clients never
// invent durable ids. OrganizerID is immutable after creation and always
// equals the creating session's user id.
type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Date          time.Time `json:"date"`
	Location      string    `json:"location,omitempty"`
	OrganizerID   string    `json:"organizer_id"`
	OrganizerName string    `json:"organizer_name,omitempty"`
	IsAllDay      bool      `json:"is_all_day,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	MaxAttendees  *int      `json:"max_attendees,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks field values on an event received from the server or
// about to be written to the cache.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(e.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(e.Title))
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if e.OrganizerID == "" {
		return fmt.Errorf("organizer_id is required")
	}
	return nil
}

// SetDefaults applies defaults for optional fields.
func (e *Event) SetDefaults() {
	if e.Tags == nil {
		e.Tags = []string{}
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
}

// Before reports the natural order of events: date ascending, soonest
// first, ties broken by id for a stable sort.
func (e *Event) Before(other *Event) bool {
	if !e.Date.Equal(other.Date) {
		return e.Date.Before(other.Date)
	}
	return e.ID < other.ID
}

// Matches reports whether the event matches a free-text filter,
// case-insensitively against title, description, and location. An empty
// filter matches everything.
func (e *Event) Matches(filter string) bool {
	filter = strings.TrimSpace(strings.ToLower(filter))
	if filter == "" {
		return true
	}
	for _, field := range []string{e.Title, e.Description, e.Location} {
		if strings.Contains(strings.ToLower(field), filter) {
			return true
		}
	}
	return false
}

// EventInput is the caller-supplied shape for creating or updating an
// event. The organizer fields are filled in from the current session, not
// by the caller.
type EventInput struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Date         time.Time `json:"date"`
	Location     string    `json:"location,omitempty"`
	IsAllDay     bool      `json:"is_all_day,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	MaxAttendees *int      `json:"max_attendees,omitempty"`
}

// Validate applies local pre-validation on event input.
func (in *EventInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(in.Title))
	}
	if in.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if in.MaxAttendees != nil && *in.MaxAttendees < 1 {
		return fmt.Errorf("max_attendees must be positive (got %d)", *in.MaxAttendees)
	}
	return nil
}
