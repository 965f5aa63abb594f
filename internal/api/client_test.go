package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gatherhq/gather/internal/types"
)

type staticTokens struct {
	token      string
	refreshed  atomic.Int32
	refreshErr error
	next       string
}

func (s *staticTokens) AccessToken() string { return s.token }

func (s *staticTokens) Refresh(ctx context.Context) error {
	s.refreshed.Add(1)
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.token = s.next
	return nil
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"server error", http.StatusInternalServerError, ErrServerUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrServerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.GetEvent(context.Background(), "e1")
			if !errors.Is(err, tt.want) {
				t.Errorf("status %d mapped to %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestValidationErrorCarriesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "invalid event",
			"details": map[string]string{"title": "too long"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateEvent(context.Background(), &types.EventInput{Title: "x"})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if ve.Message != "invalid event" || ve.Details["title"] != "too long" {
		t.Errorf("validation error = %+v", ve)
	}
	if Recoverable(err) {
		t.Error("validation errors must never be recoverable")
	}
}

func TestDecodeFailureIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ListEvents(context.Background(), "")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if !Recoverable(err) {
		t.Error("decode failures should allow a cache fallback")
	}
}

func TestTransportFailureIsRecoverable(t *testing.T) {
	// Nothing listens here.
	c := New("http://127.0.0.1:1")
	_, err := c.ListEvents(context.Background(), "")
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("err = %v, want ErrServerUnavailable", err)
	}
	if !Recoverable(err) {
		t.Error("transport failures should allow a cache fallback")
	}
}

func TestLoginMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Login(context.Background(), "demo@x.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("login 401 = %v, want ErrInvalidCredentials", err)
	}
	if Recoverable(err) {
		t.Error("bad credentials must never fall back to cache")
	}
}

func TestRegisterMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Register(context.Background(), "demo@x.com", "secret1", "Demo")
	if !errors.Is(err, ErrEmailInUse) {
		t.Errorf("register 409 = %v, want ErrEmailInUse", err)
	}
}

func TestRefreshAndRetryOn401(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]types.Event{})
	}))
	defer srv.Close()

	ts := &staticTokens{token: "stale-token", next: "fresh-token"}
	c := New(srv.URL, WithTokenSource(ts))

	if _, err := c.ListEvents(context.Background(), ""); err != nil {
		t.Fatalf("ListEvents after refresh: %v", err)
	}
	if got := ts.refreshed.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestRetriesAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// Refresh "succeeds" but the new token is still rejected.
	ts := &staticTokens{token: "stale", next: "still-stale"}
	c := New(srv.URL, WithTokenSource(ts))

	_, err := c.ListEvents(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want exactly 2", got)
	}
	if got := ts.refreshed.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
}

func TestFailedRefreshReturnsUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := &staticTokens{token: "stale", refreshErr: errors.New("session expired")}
	c := New(srv.URL, WithTokenSource(ts))

	_, err := c.ListEvents(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry without a new token)", got)
	}
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotRequestID, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewEncoder(w).Encode([]types.Event{})
	}))
	defer srv.Close()

	ts := &staticTokens{token: "tok-1"}
	c := New(srv.URL, WithTokenSource(ts))
	if _, err := c.ListEvents(context.Background(), ""); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}

	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("X-Request-ID missing")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestListEventsOrganizerQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("organizer")
		_ = json.NewEncoder(w).Encode([]types.Event{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.ListEvents(context.Background(), "u1"); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if gotQuery != "u1" {
		t.Errorf("organizer query = %q, want u1", gotQuery)
	}
}

func TestLogoutIgnoresServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Logout(context.Background(), "tok"); err != nil {
		t.Errorf("logout should swallow server errors, got %v", err)
	}
}

func TestRefreshSessionRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": ""})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.RefreshSession(context.Background(), "refresh-1")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("empty access token = %v, want ErrDecode", err)
	}
}
