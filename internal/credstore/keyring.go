package credstore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces our entries inside the platform secret store.
const keyringService = "gatherhq.gather"

// Keyring is a Store backed by the OS secret service (Keychain on macOS,
// Secret Service on Linux, Credential Manager on Windows). Values are
// encrypted at rest by the platform.
type Keyring struct{}

// NewKeyring returns the platform-backed store. It probes the secret
// service with a throwaway entry so callers can fall back to the file
// store on headless machines.
func NewKeyring() (*Keyring, error) {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("secret service unavailable: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &Keyring{}, nil
}

// Get implements Store.
func (k *Keyring) Get(key string) (string, error) {
	v, err := keyring.Get(keyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return v, nil
}

// Set implements Store.
func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(keyringService, key, value); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (k *Keyring) Delete(key string) error {
	err := keyring.Delete(keyringService, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}
