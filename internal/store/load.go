package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OfficeChat/internal/config"
	"OfficeChat/internal/conversation"
)

// storedMessage accepts both the current createdAt field and the timestamp
// field written by 1.0.0.
type storedMessage struct {
	ID        string            `json:"id"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	CreatedAt *time.Time        `json:"createdAt"`
	Timestamp *time.Time        `json:"timestamp"`
	IsPending bool              `json:"isPending"`
}

type storedConversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []storedMessage `json:"messages"`
	CreatedAt *time.Time      `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt"`
}

// Load reads the persisted state. Missing keys and fields take their
// defaults; a value that cannot be parsed is reported as a warning and
// replaced by its default. Messages that were still streaming when the state
// was saved come back finalized.
func (s *Store) Load(ctx context.Context) conversation.State {
	state := conversation.NewState()

	var settings config.Settings
	if s.decode(ctx, KeySettings, &settings) {
		state.Settings = settings
	}
	state.Settings = state.Settings.WithDefaults()
	if s.secrets != nil {
		key, err := s.secrets.APIKey()
		switch {
		case err != nil:
			s.warn(fmt.Errorf("failed to load API key: %w", err))
		case key != "":
			state.Settings.APIKey = key
		}
		s.written.Record(secretKey, state.Settings.APIKey)
	}

	var ui uiState
	hasUI := s.decode(ctx, KeyUIState, &ui)
	if ui.CurrentPage == conversation.PageSettings {
		state.CurrentPage = conversation.PageSettings
	}

	var stored []storedConversation
	hasConversations := s.decode(ctx, KeyConversations, &stored)
	for _, sc := range stored {
		state.Conversations = append(state.Conversations, s.restoreConversation(sc))
	}

	var active *string
	if s.decode(ctx, KeyCurrentConversation, &active) && active != nil {
		state.ActiveID = *active
	}

	if !hasConversations && (!hasUI || ui.Version == legacyVersion) {
		s.migrateLegacy(ctx, &state)
	}

	state.Reconcile()
	return state
}

// decode unmarshals the value under key into v. It reports whether a value
// was present and valid.
func (s *Store) decode(ctx context.Context, key string, v any) bool {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.warn(fmt.Errorf("failed to load state: %w", err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.warn(fmt.Errorf("failed to parse %s: %w", key, err))
		return false
	}
	return true
}

// migrateLegacy turns the flat message list of schema 1.0.0 into a single
// conversation.
func (s *Store) migrateLegacy(ctx context.Context, state *conversation.State) {
	var stored []storedMessage
	if !s.decode(ctx, KeyMessages, &stored) || len(stored) == 0 {
		return
	}
	fallback := s.now()
	c := conversation.Conversation{
		ID:    conversation.NewID(),
		Title: conversation.DefaultTitle,
	}
	for _, sm := range stored {
		m := restoreMessage(sm, fallback)
		if c.Title == conversation.DefaultTitle && m.Role == conversation.RoleUser {
			c.Title = conversation.DeriveTitle(m.Content)
		}
		c.Messages = append(c.Messages, m)
	}
	c.CreatedAt = c.Messages[0].CreatedAt
	c.UpdatedAt = c.Messages[len(c.Messages)-1].CreatedAt

	state.Conversations = []conversation.Conversation{c}
	state.ActiveID = c.ID
	s.logger.Info("migrated legacy message history", "messages", len(c.Messages))
}

func (s *Store) restoreConversation(sc storedConversation) conversation.Conversation {
	now := s.now()
	c := conversation.Conversation{
		ID:        sc.ID,
		Title:     sc.Title,
		Messages:  make([]conversation.Message, 0, len(sc.Messages)),
		CreatedAt: timeOr(sc.CreatedAt, now),
	}
	if c.ID == "" {
		c.ID = conversation.NewID()
	}
	if c.Title == "" {
		c.Title = conversation.DefaultTitle
	}
	for _, sm := range sc.Messages {
		c.Messages = append(c.Messages, restoreMessage(sm, c.CreatedAt))
	}
	c.UpdatedAt = timeOr(sc.UpdatedAt, c.CreatedAt)
	return c
}

func restoreMessage(sm storedMessage, fallback time.Time) conversation.Message {
	m := conversation.Message{
		ID:      sm.ID,
		Role:    sm.Role,
		Content: sm.Content,
	}
	if m.ID == "" {
		m.ID = conversation.NewID()
	}
	if m.Role == "" {
		m.Role = conversation.RoleUser
	}
	switch {
	case sm.CreatedAt != nil:
		m.CreatedAt = *sm.CreatedAt
	case sm.Timestamp != nil:
		m.CreatedAt = *sm.Timestamp
	default:
		m.CreatedAt = fallback
	}
	return m
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return *t
}
