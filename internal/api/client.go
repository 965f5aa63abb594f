// Package api is the typed client for the gather remote service.
//
// Every operation wraps exactly one HTTP call. Status codes map
// deterministically onto the error taxonomy in errors.go; there are no
// automatic retries beyond a single refresh-and-retry on 401, and no
// backoff. Resilience for reads lives in the repository's cache fallback,
// not here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatherhq/gather/internal/types"
)

// DefaultTimeout bounds a single request round trip.
const DefaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token for authenticated calls and knows
// how to exchange the refresh token for a new access token. The session
// manager is the only implementation; a nil source means every call goes
// out unauthenticated.
type TokenSource interface {
	// AccessToken returns the current bearer token, or "" when logged out.
	AccessToken() string

	// Refresh exchanges the refresh token for a new access token and
	// persists it. Called at most once per request, on a 401.
	Refresh(ctx context.Context) error
}

// Client issues authenticated requests against the remote service.
type Client struct {
	baseURL string
	hc      *http.Client
	tokens  TokenSource
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Useful for tests
// and for callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTokenSource attaches the token source used for bearer auth and the
// single 401 refresh-and-retry.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: DefaultTimeout},
		logger:  log.New(os.Stderr, "[api] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource attaches the token source after construction. The
// composition root needs this because the session manager and the client
// reference each other.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// sessionResponse is the wire shape of login/register responses.
type sessionResponse struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}

// TokenPair is the result of a refresh exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for a session. A 401 here means the
// credentials were wrong, not that a session expired.
func (c *Client) Login(ctx context.Context, email, password string) (*types.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp, false)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("login rejected for %s: %w", email, ErrInvalidCredentials)
		}
		return nil, err
	}
	return &types.Session{
		User:         resp.User,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     time.Now(),
	}, nil
}

// Register creates an account and returns the implicit first session.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*types.Session, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", body, &resp, false)
	if err != nil {
		if isStatus(err, http.StatusConflict) {
			return nil, fmt.Errorf("register %s: %w", email, ErrEmailInUse)
		}
		return nil, err
	}
	return &types.Session{
		User:         resp.User,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     time.Now(),
	}, nil
}

// Logout notifies the server that the session is over. Best effort: the
// caller has already cleared local state and ignores this result. The
// token is passed explicitly because the token source is empty by the
// time this runs.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("logout: %w", ErrServerUnavailable)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RefreshSession exchanges a refresh token for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &pair, false); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("refresh returned empty access token: %w", ErrDecode)
	}
	return &pair, nil
}

// ListEvents fetches events, optionally restricted to one organizer.
func (c *Client) ListEvents(ctx context.Context, organizerID string) ([]types.Event, error) {
	path := "/events"
	if organizerID != "" {
		path += "?organizer=" + url.QueryEscape(organizerID)
	}
	var events []types.Event
	if err := c.do(ctx, http.MethodGet, path, nil, &events, true); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	var event types.Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, &event, true); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent creates an event. The server assigns the durable id.
func (c *Client) CreateEvent(ctx context.Context, in *types.EventInput) (*types.Event, error) {
	var event types.Event
	if err := c.do(ctx, http.MethodPost, "/events", in, &event, true); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent patches an existing event.
func (c *Client) UpdateEvent(ctx context.Context, event *types.Event) (*types.Event, error) {
	var updated types.Event
	path := "/events/" + url.PathEscape(event.ID)
	if err := c.do(ctx, http.MethodPatch, path, event, &updated, true); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil, true)
}

// ListAttendances fetches the RSVPs for one event.
func (c *Client) ListAttendances(ctx context.Context, eventID string) ([]types.Attendance, error) {
	path := "/events/" + url.PathEscape(eventID) + "/attendances"
	var atts []types.Attendance
	if err := c.do(ctx, http.MethodGet, path, nil, &atts, true); err != nil {
		return nil, err
	}
	return atts, nil
}

// CreateAttendance records a new RSVP for the current user.
func (c *Client) CreateAttendance(ctx context.Context, eventID string, status types.AttendanceStatus) (*types.Attendance, error) {
	body := map[string]string{"status": string(status)}
	path := "/events/" + url.PathEscape(eventID) + "/rsvp"
	var att types.Attendance
	if err := c.do(ctx, http.MethodPost, path, body, &att, true); err != nil {
		return nil, err
	}
	return &att, nil
}

// GetAttendance fetches a single RSVP by id.
func (c *Client) GetAttendance(ctx context.Context, id string) (*types.Attendance, error) {
	var att types.Attendance
	if err := c.do(ctx, http.MethodGet, "/attendances/"+url.PathEscape(id), nil, &att, true); err != nil {
		return nil, err
	}
	return &att, nil
}

// UpdateAttendance changes the status of an existing RSVP.
func (c *Client) UpdateAttendance(ctx context.Context, att *types.Attendance) (*types.Attendance, error) {
	path := "/attendances/" + url.PathEscape(att.ID)
	var updated types.Attendance
	if err := c.do(ctx, http.MethodPatch, path, att, &updated, true); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAttendance withdraws an RSVP.
func (c *Client) DeleteAttendance(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/attendances/"+url.PathEscape(id), nil, nil, true)
}

// ListInterests fetches the interest tags offered by the service.
func (c *Client) ListInterests(ctx context.Context) ([]string, error) {
	var interests []string
	if err := c.do(ctx, http.MethodGet, "/interests", nil, &interests, true); err != nil {
		return nil, err
	}
	return interests, nil
}

// newRequest builds a request with the standard headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// do performs one call and decodes the response. For authenticated calls
// that come back 401, it asks the token source to refresh and retries
// exactly once.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	retried := false
	for {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		if authed && c.tokens != nil {
			if token := c.tokens.AccessToken(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			c.logger.Printf("%s %s: transport error: %v", method, path, err)
			return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrServerUnavailable)
		}

		if resp.StatusCode == http.StatusUnauthorized && authed && c.tokens != nil && !retried {
			drain(resp)
			retried = true
			if err := c.tokens.Refresh(ctx); err != nil {
				return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
			}
			c.logger.Printf("%s %s: retrying after token refresh", method, path)
			continue
		}

		return c.decodeResponse(method, path, resp, out)
	}
}

// decodeResponse maps the status code and decodes 2xx bodies.
func (c *Client) decodeResponse(method, path string, resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrDecode)
		}
		return nil
	}

	// Error body, when present, is {"message": ..., "details": {...}}.
	var errBody struct {
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errBody)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &statusError{code: resp.StatusCode, err: fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)}
	case resp.StatusCode == http.StatusNotFound:
		return &statusError{code: resp.StatusCode, err: fmt.Errorf("%s %s: %w", method, path, ErrNotFound)}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		msg := errBody.Message
		if msg == "" {
			msg = resp.Status
		}
		return &statusError{code: resp.StatusCode, err: &ValidationError{Message: msg, Details: errBody.Details}}
	case resp.StatusCode == http.StatusConflict:
		// Surfaced per-endpoint (register maps it to ErrEmailInUse).
		msg := errBody.Message
		if msg == "" {
			msg = "conflict"
		}
		return &statusError{code: resp.StatusCode, err: &ValidationError{Message: msg, Details: errBody.Details}}
	case resp.StatusCode >= 500:
		return &statusError{code: resp.StatusCode, err: fmt.Errorf("%s %s: %s: %w", method, path, resp.Status, ErrServerUnavailable)}
	default:
		return &statusError{code: resp.StatusCode, err: fmt.Errorf("%s %s: unexpected status %s: %w", method, path, resp.Status, ErrServerUnavailable)}
	}
}

// statusError carries the HTTP status alongside the mapped error so that
// endpoint wrappers can re-map specific codes (login 401, register 409).
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// isStatus reports whether err carries the given HTTP status code.
func isStatus(err error, code int) bool {
	for err != nil {
		if se, ok := err.(*statusError); ok {
			return se.code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
