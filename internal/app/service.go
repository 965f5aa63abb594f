// Package app is the use-case layer: thin business-rule wrappers around
// the session manager and the sync repositories. It performs local input
// validation and authorization checks, applies client-side filtering, and
// is the only surface the presentation layer (the CLI) talks to.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/repo"
	"github.com/gatherhq/gather/internal/session"
	"github.com/gatherhq/gather/internal/types"
)

var (
	// ErrNotAuthenticated gates every data operation: without a session
	// no event or attendance data is accessible.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotAuthorized marks operations on entities the current user
	// does not own.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidInput wraps local pre-validation failures, raised before
	// any network call is made.
	ErrInvalidInput = errors.New("invalid input")
)

// Interests is the slice of the API client serving the interests lookup.
type Interests interface {
	ListInterests(ctx context.Context) ([]string, error)
}

// Service exposes the application's operations to the presentation layer.
type Service struct {
	sessions    *session.Manager
	events      *repo.Repository[types.Event]
	attendances *repo.Repository[types.Attendance]
	interests   Interests
	logger      *log.Logger
}

// NewService wires the use-case layer. interests may be nil when the
// feature is not configured.
func NewService(
	sessions *session.Manager,
	events *repo.Repository[types.Event],
	attendances *repo.Repository[types.Attendance],
	interests Interests,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[app] ", log.LstdFlags)
	}
	return &Service{
		sessions:    sessions,
		events:      events,
		attendances: attendances,
		interests:   interests,
		logger:      logger,
	}
}

// SignIn authenticates and returns the new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*types.Session, error) {
	return s.sessions.SignIn(ctx, email, password)
}

// SignUp registers an account; success is an implicit sign-in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*types.Session, error) {
	return s.sessions.SignUp(ctx, email, password, displayName)
}

// SignOut clears the session; the local state is gone when this returns.
func (s *Service) SignOut(ctx context.Context) {
	s.sessions.SignOut(ctx)
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *types.User {
	return s.sessions.Current()
}

// IsAuthenticated reports whether a session exists.
func (s *Service) IsAuthenticated() bool {
	return s.sessions.IsAuthenticated()
}

// RefreshToken forces a token refresh.
func (s *Service) RefreshToken(ctx context.Context) error {
	return s.sessions.Refresh(ctx)
}

// ListEvents returns all visible events, soonest first, filtered
// client-side by the free-text query. Filtering happens after the
// repository read, so the result is identical whether the list came from
// the network or the cache.
func (s *Service) ListEvents(ctx context.Context, filter string) ([]types.Event, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return filterEvents(events, filter), nil
}

// MyEvents returns the events organized by the current user.
func (s *Service) MyEvents(ctx context.Context) ([]types.Event, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.events.List(ctx, user.ID)
}

// GetEvent returns one event, or nil when it does not exist anywhere.
func (s *Service) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	return s.events.Get(ctx, id)
}

// CreateEvent validates input locally, stamps the organizer from the
// current session, and creates the event remote-first.
func (s *Service) CreateEvent(ctx context.Context, in types.EventInput) (*types.Event, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	event := types.Event{
		Title:         in.Title,
		Description:   in.Description,
		Date:          in.Date,
		Location:      in.Location,
		IsAllDay:      in.IsAllDay,
		Tags:          in.Tags,
		MaxAttendees:  in.MaxAttendees,
		OrganizerID:   user.ID,
		OrganizerName: user.DisplayName,
	}
	return s.events.Create(ctx, &event)
}

// UpdateEvent patches an event the current user organizes. The organizer
// fields are immutable: they are always overwritten from the stored
// record before the update is sent.
func (s *Service) UpdateEvent(ctx context.Context, event *types.Event) (*types.Event, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	existing, err := s.events.Get(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("event %s: %w", event.ID, api.ErrNotFound)
	}
	if existing.OrganizerID != user.ID {
		return nil, fmt.Errorf("event %s belongs to another organizer: %w", event.ID, ErrNotAuthorized)
	}
	event.OrganizerID = existing.OrganizerID
	event.OrganizerName = existing.OrganizerName
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.events.Save(ctx, "", event)
}

// DeleteEvent removes an event the current user organizes, remotely
// first; the cached copy survives a failed remote delete.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	existing, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("event %s: %w", id, api.ErrNotFound)
	}
	if existing.OrganizerID != user.ID {
		return fmt.Errorf("event %s belongs to another organizer: %w", id, ErrNotAuthorized)
	}
	return s.events.Delete(ctx, id)
}

// VoteAttendance records the current user's RSVP for an event. Voting is
// idempotent on (event, user): a second vote updates the existing record,
// last write wins on status.
func (s *Service) VoteAttendance(ctx context.Context, eventID string, status types.AttendanceStatus) (*types.Attendance, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid attendance status %q", ErrInvalidInput, status)
	}

	att := types.Attendance{
		EventID:   eventID,
		UserID:    user.ID,
		Status:    status,
		UserName:  user.DisplayName,
		UserEmail: user.Email,
		CreatedAt: time.Now(),
	}
	return s.attendances.Save(ctx, eventID, &att)
}

// GetAttendances lists the RSVPs for an event, most recent first.
func (s *Service) GetAttendances(ctx context.Context, eventID string) ([]types.Attendance, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	return s.attendances.List(ctx, eventID)
}

// ListInterests returns the interest tags offered by the service.
func (s *Service) ListInterests(ctx context.Context) ([]string, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	if s.interests == nil {
		return nil, nil
	}
	return s.interests.ListInterests(ctx)
}

// requireUser is the authorization gate shared by all data operations.
func (s *Service) requireUser() (*types.User, error) {
	user := s.sessions.Current()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// filterEvents applies the free-text filter client-side, preserving
// order. ListEvents(f) always equals filtering ListEvents("").
func filterEvents(events []types.Event, filter string) []types.Event {
	if filter == "" {
		return events
	}
	matched := make([]types.Event, 0, len(events))
	for _, e := range events {
		if e.Matches(filter) {
			matched = append(matched, e)
		}
	}
	return matched
}
