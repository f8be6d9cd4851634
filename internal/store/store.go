// Package store persists settings, conversations and UI state as JSON values
// under fixed keys, with versioned loading, capped backups and export/import.
//
// Storage faults never reach the caller as panics or unhandled failures: they
// are logged and passed to the warning handler, and Load falls back to
// defaults.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"OfficeChat/internal/cache"
	"OfficeChat/internal/conversation"
)

const (
	prefix = "officeChat_"

	KeySettings            = prefix + "settings"
	KeyMessages            = prefix + "messages"
	KeyConversations       = prefix + "conversations"
	KeyCurrentConversation = prefix + "currentConversation"
	KeyUIState             = prefix + "uiState"

	backupPrefix = prefix + "backup_"

	// Version is written into the UI state and every export.
	Version = "1.1.0"
	// legacyVersion stored only the live message list.
	legacyVersion = "1.0.0"

	DefaultMaxBackups = 5
)

// DataKeys lists every key Save writes, in write order.
var DataKeys = []string{KeySettings, KeyConversations, KeyCurrentConversation, KeyMessages, KeyUIState}

// ErrBackupNotFound is returned by Restore for an unknown backup id.
var ErrBackupNotFound = errors.New("backup not found")

// SecretStore keeps the API key outside the settings blob.
type SecretStore interface {
	APIKey() (string, error)
	SetAPIKey(key string) error
}

type uiState struct {
	Version     string            `json:"version"`
	CurrentPage conversation.Page `json:"currentPage,omitempty"`
}

// Store maps application state onto a KV.
type Store struct {
	kv         KV
	logger     *slog.Logger
	maxBackups int
	secrets    SecretStore
	onWarning  func(error)
	now        func() time.Time

	written cache.Fingerprints

	backupMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxBackups caps the number of retained backups.
func WithMaxBackups(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// WithWarningHandler receives every storage fault as a non-fatal warning.
func WithWarningHandler(fn func(error)) Option {
	return func(s *Store) { s.onWarning = fn }
}

// WithSecrets stores the API key in secrets instead of the settings value.
func WithSecrets(ss SecretStore) Option {
	return func(s *Store) { s.secrets = ss }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:         kv,
		logger:     slog.Default(),
		maxBackups: DefaultMaxBackups,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetWarningHandler replaces the warning handler after construction.
func (s *Store) SetWarningHandler(fn func(error)) {
	s.onWarning = fn
}

func (s *Store) warn(err error) {
	s.logger.Warn("storage warning", "error", err)
	if s.onWarning != nil {
		s.onWarning(err)
	}
}

// Save writes state. Values identical to the last write are skipped. The
// first failing key aborts the save; the error is reported as a warning and
// returned.
func (s *Store) Save(ctx context.Context, state conversation.State) error {
	values, err := s.encode(state)
	if err != nil {
		err = fmt.Errorf("failed to encode state: %w", err)
		s.warn(err)
		return err
	}

	if s.secrets != nil && s.written.Changed(secretKey, state.Settings.APIKey) {
		if err := s.secrets.SetAPIKey(state.Settings.APIKey); err != nil {
			err = fmt.Errorf("failed to save API key: %w", err)
			s.warn(err)
			return err
		}
		s.written.Record(secretKey, state.Settings.APIKey)
	}

	for _, key := range DataKeys {
		value := values[key]
		if !s.written.Changed(key, value) {
			continue
		}
		if err := s.kv.Set(ctx, key, value); err != nil {
			s.written.Forget(key)
			err = fmt.Errorf("failed to save state: %w", err)
			s.warn(err)
			return err
		}
		s.written.Record(key, value)
	}
	s.logger.Debug("state saved", "conversations", len(state.Conversations))
	return nil
}

const secretKey = "secret:apiKey"

func (s *Store) encode(state conversation.State) (map[string]string, error) {
	settings := state.Settings
	if s.secrets != nil {
		settings.APIKey = ""
	}
	conversations := state.Conversations
	if conversations == nil {
		conversations = []conversation.Conversation{}
	}
	messages := state.Messages
	if messages == nil {
		messages = []conversation.Message{}
	}
	var active *string
	if state.ActiveID != "" {
		active = &state.ActiveID
	}
	page := state.CurrentPage
	if page == "" {
		page = conversation.PageChat
	}

	values := make(map[string]string, len(DataKeys))
	for key, v := range map[string]any{
		KeySettings:            settings,
		KeyConversations:       conversations,
		KeyCurrentConversation: active,
		KeyMessages:            messages,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		values[key] = string(b)
	}

	b, err := json.Marshal(uiState{Version: Version, CurrentPage: page})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyUIState, err)
	}
	values[KeyUIState] = string(b)
	return values, nil
}
