package types

import (
	"fmt"
	"strings"
	"time"
)

// MinPasswordLength is the shortest password accepted locally before a
// sign-in or sign-up request is sent to the server.
const MinPasswordLength = 6

// User is the identity snapshot of an authenticated account.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is the authenticated identity plus tokens for the current user.
// It is owned exclusively by the session manager, persisted as an opaque
// blob in the credential store, and destroyed on sign-out.
type Session struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Validate checks that the session is complete enough to persist.
func (s *Session) Validate() error {
	if s.User.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if s.User.Email == "" {
		return fmt.Errorf("user email is required")
	}
	if s.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	return nil
}

// ValidateCredentials applies the local shape checks shared by sign-in and
// sign-up. It never touches the network.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email %q is not valid", email)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
