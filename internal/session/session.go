// Package session owns the credential lifecycle: sign-in, sign-up,
// sign-out, current-user reads, and token refresh.
//
// The manager is the only writer of the credential store and the only
// implementation of api.TokenSource. Session state is loaded once at
// construction and then served from memory; Current is a pure O(1) read.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/credstore"
	"github.com/gatherhq/gather/internal/types"
)

var (
	// ErrLoggedOut is returned by operations that require a session.
	ErrLoggedOut = errors.New("no active session")

	// ErrSessionExpired means the refresh token was rejected; the local
	// session has been cleared and the user must sign in again.
	ErrSessionExpired = errors.New("session expired")
)

// Remote is the slice of the API client the manager needs.
type Remote interface {
	Login(ctx context.Context, email, password string) (*types.Session, error)
	Register(ctx context.Context, email, password, displayName string) (*types.Session, error)
	Logout(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*api.TokenPair, error)
}

// CacheClearer wipes locally cached entity data. The manager calls it on
// sign-out so data never leaks between users of the same device.
type CacheClearer interface {
	ClearAll(ctx context.Context) error
}

// Manager owns the session lifecycle.
type Manager struct {
	remote Remote
	creds  credstore.Store
	cache  CacheClearer
	logger *log.Logger

	mu      sync.RWMutex
	session *types.Session

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates a manager and loads any persisted session from the
// credential store. A persisted session whose tokens are all unusable is
// discarded on load. cache may be nil; logger nil means stderr.
func New(remote Remote, creds credstore.Store, cache CacheClearer, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	m := &Manager{
		remote: remote,
		creds:  creds,
		cache:  cache,
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
	m.session = m.load()
	return m
}

// load restores the persisted session blob, discarding it when neither
// token is usable anymore.
func (m *Manager) load() *types.Session {
	blob, err := m.creds.Get(credstore.KeyUserData)
	if err != nil {
		return nil
	}
	var s types.Session
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		m.logger.Printf("discarding corrupt session blob: %v", err)
		m.clearPersisted()
		return nil
	}
	if tokenExpired(s.AccessToken) && s.RefreshToken == "" {
		m.logger.Printf("discarding session for %s: access token expired, no refresh token", s.User.Email)
		m.clearPersisted()
		return nil
	}
	return &s
}

// SignIn validates input shape locally, then exchanges credentials for a
// session. On success the session is persisted before the method returns;
// it is never partially persisted.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*types.Session, error) {
	if err := types.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	s, err := m.remote.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := m.adopt(s); err != nil {
		return nil, err
	}
	m.publish(Event{Kind: SignedIn, User: &s.User})
	return s, nil
}

// SignUp registers a new account; a successful sign-up is an implicit
// sign-in.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) (*types.Session, error) {
	if err := types.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	s, err := m.remote.Register(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}

	if err := m.adopt(s); err != nil {
		return nil, err
	}
	m.publish(Event{Kind: SignedIn, User: &s.User})
	return s, nil
}

// SignOut clears the local session unconditionally, then notifies the
// server best-effort. The caller observes the logged-out state
// immediately; the remote call may still be in flight or fail silently.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	old := m.session
	m.session = nil
	m.mu.Unlock()

	m.clearPersisted()

	if m.cache != nil {
		if err := m.cache.ClearAll(ctx); err != nil {
			m.logger.Printf("failed to clear cache on sign-out: %v", err)
		}
	}

	m.publish(Event{Kind: SignedOut})

	if old == nil || old.AccessToken == "" {
		return
	}
	go func(token string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.remote.Logout(ctx, token); err != nil {
			m.logger.Printf("remote sign-out failed (ignored): %v", err)
		}
	}(old.AccessToken)
}

// Current returns the signed-in user, or nil. Pure read, no network.
func (m *Manager) Current() *types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// IsAuthenticated reports whether a session exists.
func (m *Manager) IsAuthenticated() bool {
	return m.Current() != nil
}

// Session returns a copy of the full session, or nil.
func (m *Manager) Session() *types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// AccessToken implements api.TokenSource.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// Refresh exchanges the refresh token for a new access token and persists
// it. It fails closed: when the server rejects the refresh token, the
// local session is cleared and ErrSessionExpired is returned. A transport
// failure leaves the session intact so a later retry can succeed.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()

	if current == nil {
		return ErrLoggedOut
	}
	if current.RefreshToken == "" {
		m.expire(ctx)
		return ErrSessionExpired
	}

	pair, err := m.remote.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		if api.Recoverable(err) {
			return fmt.Errorf("token refresh: %w", err)
		}
		m.expire(ctx)
		return fmt.Errorf("token refresh rejected: %w", ErrSessionExpired)
	}

	m.mu.Lock()
	if m.session == nil {
		// Signed out while the exchange was in flight.
		m.mu.Unlock()
		return ErrLoggedOut
	}
	updated := *m.session
	updated.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		updated.RefreshToken = pair.RefreshToken
	}
	updated.IssuedAt = time.Now()
	m.session = &updated
	m.mu.Unlock()

	if err := m.persist(&updated); err != nil {
		return err
	}
	m.publish(Event{Kind: Refreshed, User: &updated.User})
	return nil
}

// Setting reads an app setting stored alongside the session.
func (m *Manager) Setting(name string) (string, error) {
	return m.creds.Get(credstore.SettingPrefix + name)
}

// SetSetting stores an app setting.
func (m *Manager) SetSetting(name, value string) error {
	return m.creds.Set(credstore.SettingPrefix+name, value)
}

// adopt persists and installs a fresh session. On persist failure nothing
// is kept, in memory or on disk.
func (m *Manager) adopt(s *types.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("server returned incomplete session: %w", err)
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = time.Now()
	}
	if err := m.persist(s); err != nil {
		m.clearPersisted()
		return err
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return nil
}

// persist writes the session blob first, then the mirror keys used by
// other tools. The blob is the source of truth on load, so a failure
// after the first write cannot produce a half-usable session.
func (m *Manager) persist(s *types.Session) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.creds.Set(credstore.KeyUserData, string(blob)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	mirrors := map[string]string{
		credstore.KeyCurrentUserID: s.User.ID,
		credstore.KeyUserEmail:     s.User.Email,
		credstore.KeyUserToken:     s.AccessToken,
	}
	for key, value := range mirrors {
		if err := m.creds.Set(key, value); err != nil {
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}
	return nil
}

// clearPersisted removes the session keys, leaving settings alone.
func (m *Manager) clearPersisted() {
	for _, key := range credstore.SessionKeys() {
		if err := m.creds.Delete(key); err != nil {
			m.logger.Printf("failed to delete %s: %v", key, err)
		}
	}
}

// expire clears local state after a rejected refresh, without the remote
// logout call (the server already considers the session dead).
func (m *Manager) expire(ctx context.Context) {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.clearPersisted()
	if m.cache != nil {
		if err := m.cache.ClearAll(ctx); err != nil {
			m.logger.Printf("failed to clear cache on expiry: %v", err)
		}
	}
	m.publish(Event{Kind: SignedOut})
}

// tokenExpired inspects the JWT exp claim without verifying the
// signature; verification is the server's job, we only need the deadline.
// Tokens that do not parse are treated as expired.
func tokenExpired(token string) bool {
	if token == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		// No exp claim: assume the server enforces lifetime.
		return false
	}
	return exp.Before(time.Now())
}
