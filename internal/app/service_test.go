package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/credstore"
	"github.com/gatherhq/gather/internal/repo"
	"github.com/gatherhq/gather/internal/session"
	"github.com/gatherhq/gather/internal/types"
)

// authRemote satisfies session.Remote with a canned account.
type authRemote struct{}

func (authRemote) Login(ctx context.Context, email, password string) (*types.Session, error) {
	return &types.Session{
		User:         types.User{ID: "u1", Email: email, DisplayName: "Demo"},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, nil
}

func (r authRemote) Register(ctx context.Context, email, password, displayName string) (*types.Session, error) {
	return r.Login(ctx, email, password)
}

func (authRemote) Logout(ctx context.Context, accessToken string) error { return nil }

func (authRemote) RefreshSession(ctx context.Context, refreshToken string) (*api.TokenPair, error) {
	return &api.TokenPair{AccessToken: "access-2"}, nil
}

// eventStore is an in-memory remote and cache for events in one.
type eventStore struct {
	mu      sync.Mutex
	remote  map[string]types.Event
	cached  map[string]types.Event
	nextID  int
	offline bool
}

func newEventStore() *eventStore {
	return &eventStore{remote: make(map[string]types.Event), cached: make(map[string]types.Event)}
}

func (s *eventStore) List(ctx context.Context, ownerKey string) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, api.ErrServerUnavailable
	}
	var out []types.Event
	for _, e := range s.remote {
		if ownerKey == "" || e.OrganizerID == ownerKey {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *eventStore) Get(ctx context.Context, id string) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, api.ErrServerUnavailable
	}
	e, ok := s.remote[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return &e, nil
}

func (s *eventStore) Create(ctx context.Context, e *types.Event) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, api.ErrServerUnavailable
	}
	s.nextID++
	created := *e
	created.ID = fmt.Sprintf("e%d", s.nextID)
	created.SetDefaults()
	s.remote[created.ID] = created
	return &created, nil
}

func (s *eventStore) Update(ctx context.Context, e *types.Event) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, api.ErrServerUnavailable
	}
	if _, ok := s.remote[e.ID]; !ok {
		return nil, api.ErrNotFound
	}
	updated := *e
	s.remote[updated.ID] = updated
	return &updated, nil
}

func (s *eventStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return api.ErrServerUnavailable
	}
	delete(s.remote, id)
	return nil
}

func (s *eventStore) Upsert(ctx context.Context, e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[e.ID] = *e
	return nil
}

func (s *eventStore) ForOwner(ctx context.Context, ownerKey string) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for _, e := range s.cached {
		if ownerKey == "" || e.OrganizerID == ownerKey {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *eventStore) ByID(ctx context.Context, id string) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cached[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// DeleteCached removes from the cache side; named so the Cache adapter
// below can route Delete to it without colliding with the remote Delete.
func (s *eventStore) DeleteCached(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cached, id)
	return nil
}

type eventCacheSide struct{ s *eventStore }

func (c eventCacheSide) Upsert(ctx context.Context, e *types.Event) error { return c.s.Upsert(ctx, e) }
func (c eventCacheSide) ForOwner(ctx context.Context, ownerKey string) ([]types.Event, error) {
	return c.s.ForOwner(ctx, ownerKey)
}
func (c eventCacheSide) ByID(ctx context.Context, id string) (*types.Event, error) {
	return c.s.ByID(ctx, id)
}
func (c eventCacheSide) Delete(ctx context.Context, id string) error {
	return c.s.DeleteCached(ctx, id)
}

// attStore mirrors eventStore for attendances.
type attStore struct {
	mu     sync.Mutex
	remote map[string]types.Attendance
	cached map[string]types.Attendance
	nextID int
}

func newAttStore() *attStore {
	return &attStore{remote: make(map[string]types.Attendance), cached: make(map[string]types.Attendance)}
}

func (s *attStore) List(ctx context.Context, ownerKey string) ([]types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Attendance
	for _, a := range s.remote {
		if ownerKey == "" || a.EventID == ownerKey {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *attStore) Get(ctx context.Context, id string) (*types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.remote[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return &a, nil
}

func (s *attStore) Create(ctx context.Context, a *types.Attendance) (*types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	created := *a
	created.ID = fmt.Sprintf("a%d", s.nextID)
	created.CreatedAt = time.Now()
	s.remote[created.ID] = created
	return &created, nil
}

func (s *attStore) Update(ctx context.Context, a *types.Attendance) (*types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.remote[a.ID]; !ok {
		return nil, api.ErrNotFound
	}
	updated := *a
	s.remote[updated.ID] = updated
	return &updated, nil
}

func (s *attStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remote, id)
	return nil
}

func (s *attStore) Upsert(ctx context.Context, a *types.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[a.ID] = *a
	return nil
}

func (s *attStore) ForOwner(ctx context.Context, ownerKey string) ([]types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Attendance
	for _, a := range s.cached {
		if ownerKey == "" || a.EventID == ownerKey {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *attStore) ByID(ctx context.Context, id string) (*types.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cached[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *attStore) DeleteCached(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cached, id)
	return nil
}

type attCacheSide struct{ s *attStore }

func (c attCacheSide) Upsert(ctx context.Context, a *types.Attendance) error {
	return c.s.Upsert(ctx, a)
}
func (c attCacheSide) ForOwner(ctx context.Context, ownerKey string) ([]types.Attendance, error) {
	return c.s.ForOwner(ctx, ownerKey)
}
func (c attCacheSide) ByID(ctx context.Context, id string) (*types.Attendance, error) {
	return c.s.ByID(ctx, id)
}
func (c attCacheSide) Delete(ctx context.Context, id string) error {
	return c.s.DeleteCached(ctx, id)
}

type fixture struct {
	service *Service
	events  *eventStore
	atts    *attStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	creds, err := credstore.OpenFile(filepath.Join(t.TempDir(), "creds.json"))
	require.NoError(t, err)
	sessions := session.New(authRemote{}, creds, nil, nil)

	events := newEventStore()
	atts := newAttStore()

	eventRepo := repo.New(repo.Config[types.Event]{
		Entity:  "events",
		Remote:  events,
		Cache:   eventCacheSide{s: events},
		Options: repo.DefaultOptions(),
		ID:      func(e *types.Event) string { return e.ID },
		SetID:   func(e *types.Event, id string) { e.ID = id },
		Less:    func(a, b *types.Event) bool { return a.Before(b) },
	})
	attRepo := repo.New(repo.Config[types.Attendance]{
		Entity:  "attendances",
		Remote:  atts,
		Cache:   attCacheSide{s: atts},
		Options: repo.DefaultOptions(),
		ID:      func(a *types.Attendance) string { return a.ID },
		SetID:   func(a *types.Attendance, id string) { a.ID = id },
		Less:    func(a, b *types.Attendance) bool { return a.Before(b) },
		SameKey: func(a, b *types.Attendance) bool { return a.SameVoter(b) },
	})

	return &fixture{
		service: NewService(sessions, eventRepo, attRepo, nil, nil),
		events:  events,
		atts:    atts,
	}
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	_, err := f.service.SignIn(context.Background(), "demo@x.com", "secret1")
	require.NoError(t, err)
}

func TestDataOperationsRequireSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ListEvents(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.service.GetEvent(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.service.CreateEvent(ctx, types.EventInput{Title: "x", Date: time.Now()})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	err = f.service.DeleteEvent(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.service.VoteAttendance(ctx, "e1", types.StatusGoing)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.service.GetAttendances(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCreateEventStampsOrganizer(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	event, err := f.service.CreateEvent(context.Background(), types.EventInput{
		Title: "Board games",
		Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", event.OrganizerID, "organizer comes from the session, not the input")
	assert.Equal(t, "Demo", event.OrganizerName)
	assert.NotEmpty(t, event.ID)
}

func TestCreateEventValidatesBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.events.offline = true

	_, err := f.service.CreateEvent(context.Background(), types.EventInput{Title: "   ", Date: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidInput, "local validation fires before any remote call")

	_, err = f.service.CreateEvent(context.Background(), types.EventInput{Title: "ok"})
	assert.ErrorIs(t, err, ErrInvalidInput, "missing date is a local failure")
}

func TestUpdateEventAuthorization(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	theirs := types.Event{
		ID:          "e-theirs",
		Title:       "Not yours",
		Date:        time.Now(),
		OrganizerID: "u2",
	}
	f.events.remote["e-theirs"] = theirs

	theirs.Title = "Hijacked"
	_, err := f.service.UpdateEvent(ctx, &theirs)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.service.UpdateEvent(ctx, &types.Event{ID: "missing", Title: "x", Date: time.Now()})
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestUpdateEventKeepsOrganizerImmutable(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	created, err := f.service.CreateEvent(ctx, types.EventInput{
		Title: "Original",
		Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	patch := *created
	patch.Title = "Renamed"
	patch.OrganizerID = "attacker"
	patch.OrganizerName = "Attacker"

	updated, err := f.service.UpdateEvent(ctx, &patch)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "u1", updated.OrganizerID, "organizer fields are restored from the stored record")
	assert.Equal(t, "Demo", updated.OrganizerName)
}

func TestDeleteEventAuthorization(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	f.events.remote["e-theirs"] = types.Event{
		ID:          "e-theirs",
		Title:       "Not yours",
		Date:        time.Now(),
		OrganizerID: "u2",
	}

	err := f.service.DeleteEvent(ctx, "e-theirs")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Contains(t, f.events.remote, "e-theirs", "unauthorized delete must not reach the server")

	err = f.service.DeleteEvent(ctx, "missing")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestDeleteOwnEvent(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	created, err := f.service.CreateEvent(ctx, types.EventInput{
		Title: "Mine",
		Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteEvent(ctx, created.ID))
	assert.NotContains(t, f.events.remote, created.ID)
	assert.NotContains(t, f.events.cached, created.ID)
}

func TestVoteAttendanceIdempotent(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	first, err := f.service.VoteAttendance(ctx, "e1", types.StatusGoing)
	require.NoError(t, err)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "demo@x.com", first.UserEmail)

	second, err := f.service.VoteAttendance(ctx, "e1", types.StatusNotGoing)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a second vote updates in place")
	assert.Equal(t, types.StatusNotGoing, second.Status, "last write wins")
	assert.Len(t, f.atts.remote, 1)
}

func TestVoteAttendanceRejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	_, err := f.service.VoteAttendance(context.Background(), "e1", types.AttendanceStatus("attending"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.atts.remote)

	_, err = f.service.VoteAttendance(context.Background(), "", types.StatusGoing)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListEventsFilterMatchesPostFiltering(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	for _, title := range []string{"Yoga in the park", "Board games night", "Yoga retreat"} {
		_, err := f.service.CreateEvent(ctx, types.EventInput{
			Title: title,
			Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	all, err := f.service.ListEvents(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	filtered, err := f.service.ListEvents(ctx, "yoga")
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	// Filtering the unfiltered list by hand gives the same result.
	var manual []types.Event
	for _, e := range all {
		if e.Matches("yoga") {
			manual = append(manual, e)
		}
	}
	assert.Equal(t, manual, filtered)
}

func TestListEventsFilterAppliesToCacheFallback(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	for _, title := range []string{"Yoga in the park", "Board games night"} {
		_, err := f.service.CreateEvent(ctx, types.EventInput{
			Title: title,
			Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	// Warm the cache, then take the network away.
	_, err := f.service.ListEvents(ctx, "")
	require.NoError(t, err)
	f.events.offline = true

	filtered, err := f.service.ListEvents(ctx, "yoga")
	require.NoError(t, err, "reads survive offline once the cache is warm")
	require.Len(t, filtered, 1)
	assert.Equal(t, "Yoga in the park", filtered[0].Title)
}

func TestMyEventsScopedToOrganizer(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	_, err := f.service.CreateEvent(ctx, types.EventInput{
		Title: "Mine",
		Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.events.remote["e-theirs"] = types.Event{
		ID:          "e-theirs",
		Title:       "Theirs",
		Date:        time.Now(),
		OrganizerID: "u2",
	}

	mine, err := f.service.MyEvents(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)
}

func TestGetEventValidatesID(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	_, err := f.service.GetEvent(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignOutRevokesDataAccess(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	_, err := f.service.CreateEvent(ctx, types.EventInput{
		Title: "Before sign-out",
		Date:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	f.service.SignOut(ctx)

	assert.Nil(t, f.service.CurrentUser())
	_, err = f.service.ListEvents(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated, "no event data without a session")
}

func TestListInterestsWithoutBackend(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	interests, err := f.service.ListInterests(context.Background())
	require.NoError(t, err)
	assert.Nil(t, interests)
}
