// Package credstore is the secure key/value store for session secrets.
//
// Two implementations exist: Keyring, which delegates to the platform
// secret service (encrypted at rest by the OS), and File, a 0600 JSON
// file for headless machines and tests. Values are opaque strings; the
// session manager owns their meaning.
package credstore

import "errors"

// Well-known key names. The layout is part of the persisted state
// contract and must not change between releases.
const (
	KeyCurrentUserID = "currentUserId"
	KeyUserEmail     = "userEmail"
	KeyUserToken     = "userToken"
	KeyUserData      = "user_complete_data"

	// SettingPrefix namespaces app settings stored alongside the session.
	SettingPrefix = "setting_"
)

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("credential not found")

// Store is an opaque get/set/delete of named secrets.
type Store interface {
	// Get returns the value under key, or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error
}

// SessionKeys lists the keys the session manager owns. Sign-out removes
// exactly these; settings survive.
func SessionKeys() []string {
	return []string{KeyCurrentUserID, KeyUserEmail, KeyUserToken, KeyUserData}
}
