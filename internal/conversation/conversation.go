// Package conversation holds the in-memory chat state: conversations, their
// messages, and the application-wide flags the UI renders from.
//
// State is not safe for concurrent use; the chatbot controller serializes
// access and hands observers deep copies from Snapshot.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"OfficeChat/internal/config"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultTitle is the placeholder title of a freshly created conversation.
const DefaultTitle = "New Conversation"

const titleLength = 30

// ErrUnknownConversation is returned when an id does not name a conversation.
var ErrUnknownConversation = errors.New("unknown conversation")

// Page is the screen the front end shows.
type Page string

const (
	PageChat     Page = "chat"
	PageSettings Page = "settings"
)

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsPending bool      `json:"isPending,omitempty"`
}

// Conversation is an ordered, append-only list of messages with a title.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessagePatch is merged into the pending assistant message. Nil fields are
// left unchanged.
type MessagePatch struct {
	Content   *string
	IsPending *bool
}

// NewID returns a fresh identifier for a message or conversation.
func NewID() string {
	return uuid.NewString()
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// LastAssistantIndex returns the index of the most recent assistant message,
// or -1.
func (c *Conversation) LastAssistantIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// PendingCount returns how many messages are still receiving content.
func (c *Conversation) PendingCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsPending {
			n++
		}
	}
	return n
}

// DeriveTitle builds a display title from the first user message.
func DeriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleLength {
		return content
	}
	return string(r[:titleLength]) + "..."
}

// State is the application state shared by the controller and the store.
type State struct {
	Settings      config.Settings
	Conversations []Conversation // most recent first
	ActiveID      string

	// Messages mirrors the active conversation's messages. It is rebuilt from
	// the conversation after every mutation and never edited on its own.
	Messages []Message

	IsLoading   bool
	LastError   string
	CurrentPage Page
}

// NewState returns an empty state with default settings.
func NewState() State {
	return State{
		Settings:    config.DefaultSettings(),
		CurrentPage: PageChat,
	}
}

// Snapshot returns a deep copy that shares no slices with s.
func (s *State) Snapshot() State {
	out := *s
	out.Conversations = make([]Conversation, len(s.Conversations))
	for i := range s.Conversations {
		out.Conversations[i] = s.Conversations[i].clone()
	}
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// Active returns the active conversation, or nil.
func (s *State) Active() *Conversation {
	return s.find(s.ActiveID)
}

// Conversation returns the conversation with the given id, or nil.
func (s *State) Conversation(id string) *Conversation {
	return s.find(id)
}

func (s *State) find(id string) *Conversation {
	if id == "" {
		return nil
	}
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return &s.Conversations[i]
		}
	}
	return nil
}

func (s *State) syncLive() {
	if c := s.Active(); c != nil {
		s.Messages = append([]Message(nil), c.Messages...)
		return
	}
	s.ActiveID = ""
	s.Messages = nil
}

// Reconcile repairs a state assembled from storage: an active id that names
// no conversation moves to the front of the list, as if that conversation had
// been deleted, and the live message list is rebuilt. No active id stays none.
func (s *State) Reconcile() {
	if s.ActiveID != "" && s.Active() == nil {
		s.ActiveID = ""
		if len(s.Conversations) > 0 {
			s.ActiveID = s.Conversations[0].ID
		}
	}
	s.syncLive()
}
