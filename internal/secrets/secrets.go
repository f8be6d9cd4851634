// Package secrets keeps the API key in the OS keychain, or an encrypted file
// when no keychain is available, instead of the chat data store.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/99designs/keyring"
)

const (
	serviceName = "officechat"
	apiKeyItem  = "api-key"
)

// Config selects the keyring backends.
type Config struct {
	// FileDir enables the encrypted file backend in this directory.
	FileDir string
	// FilePassword unlocks the file backend.
	FilePassword string
	// FileOnly skips the OS keychains; used by tests and headless hosts.
	FileOnly bool
}

// Keyring stores the API key.
type Keyring struct {
	ring keyring.Keyring
}

// Open opens the keyring described by cfg.
func Open(cfg Config) (*Keyring, error) {
	kc := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
	}
	if cfg.FileOnly {
		kc.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// APIKey returns the stored key, or "" when none has been saved.
func (k *Keyring) APIKey() (string, error) {
	item, err := k.ring.Get(apiKeyItem)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return string(item.Data), nil
}

// SetAPIKey stores key. An empty key removes the entry.
func (k *Keyring) SetAPIKey(key string) error {
	if key == "" {
		err := k.ring.Remove(apiKeyItem)
		// The file backend reports a missing item as a missing file.
		if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove API key: %w", err)
		}
		return nil
	}
	err := k.ring.Set(keyring.Item{
		Key:   apiKeyItem,
		Data:  []byte(key),
		Label: "OfficeChat API key",
	})
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}
