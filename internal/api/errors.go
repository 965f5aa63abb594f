package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for the deterministic status-code mapping. Callers
// branch with errors.Is.
var (
	// ErrUnauthorized maps 401: the access token is missing, expired, or
	// rejected. The client attempts one refresh-and-retry before
	// returning this; repositories never retry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound maps 404.
	ErrNotFound = errors.New("not found")

	// ErrServerUnavailable maps 5xx and transport-level failures (DNS,
	// connection refused, timeout). Read paths recover from it by
	// falling back to the local cache.
	ErrServerUnavailable = errors.New("server unavailable")

	// ErrDecode marks a 2xx response whose body could not be decoded.
	ErrDecode = errors.New("response decode failed")

	// ErrInvalidCredentials maps 401 on the login endpoint, where the
	// failure is about the submitted credentials rather than a stale
	// session.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailInUse maps 409 on the register endpoint.
	ErrEmailInUse = errors.New("email already in use")
)

// ValidationError maps 400/422: the server rejected the request payload.
// It is never swallowed by fallback logic since it indicates a caller bug,
// not unavailability.
type ValidationError struct {
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	fields := make([]string, 0, len(e.Details))
	for k, v := range e.Details {
		fields = append(fields, fmt.Sprintf("%s: %s", k, v))
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(fields, ", "))
}

// Recoverable reports whether a read path may satisfy the request from
// the local cache instead of propagating the error. Only transport-level
// unavailability and decode failures qualify; validation, auth, and
// not-found errors always propagate.
func Recoverable(err error) bool {
	return errors.Is(err, ErrServerUnavailable) || errors.Is(err, ErrDecode)
}
