package conversation

import (
	"strings"
	"time"
)

// CreateConversation inserts an empty conversation at the front of the list
// and makes it active.
func (s *State) CreateConversation() string {
	now := time.Now()
	c := Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Conversations = append([]Conversation{c}, s.Conversations...)
	s.ActiveID = c.ID
	s.syncLive()
	return c.ID
}

// SelectConversation makes id active. Unknown ids are ignored.
func (s *State) SelectConversation(id string) bool {
	if s.find(id) == nil {
		return false
	}
	s.ActiveID = id
	s.syncLive()
	return true
}

// DeleteConversation removes id. When it was active, the new front of the
// list becomes active, or nothing if the list is now empty.
func (s *State) DeleteConversation(id string) bool {
	idx := -1
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.Conversations = append(s.Conversations[:idx], s.Conversations[idx+1:]...)
	if s.ActiveID == id {
		s.ActiveID = ""
		if len(s.Conversations) > 0 {
			s.ActiveID = s.Conversations[0].ID
		}
	}
	s.syncLive()
	return true
}

// RenameConversation sets a new title. Blank titles and titles equal to the
// current one are ignored.
func (s *State) RenameConversation(id, title string) bool {
	c := s.find(id)
	title = strings.TrimSpace(title)
	if c == nil || title == "" || title == c.Title {
		return false
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	return true
}

// AppendMessage assigns an id and timestamp and appends the message to the
// active conversation, creating one if none is active. The first user
// message of a conversation still carrying DefaultTitle names it.
func (s *State) AppendMessage(role Role, content string, pending bool) Message {
	c := s.Active()
	if c == nil {
		s.CreateConversation()
		c = s.Active()
	}

	now := time.Now()
	msg := Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
		IsPending: pending,
	}

	if role == RoleUser && c.Title == DefaultTitle && !hasUserMessage(c) {
		c.Title = DeriveTitle(content)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now
	s.syncLive()
	return msg
}

func hasUserMessage(c *Conversation) bool {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// UpdatePendingMessage merges patch into the most recent assistant message of
// the active conversation. It returns false when there is none.
func (s *State) UpdatePendingMessage(patch MessagePatch) bool {
	c := s.Active()
	if c == nil {
		return false
	}
	i := c.LastAssistantIndex()
	if i < 0 {
		return false
	}
	m := &c.Messages[i]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.IsPending != nil {
		m.IsPending = *patch.IsPending
	}
	c.UpdatedAt = time.Now()
	s.syncLive()
	return true
}

// ClearMessages empties the active conversation. The conversation record and
// its title are kept.
func (s *State) ClearMessages() {
	if c := s.Active(); c != nil {
		c.Messages = []Message{}
		c.UpdatedAt = time.Now()
	}
	s.syncLive()
}

// LastExchange returns the user text of a trailing completed user→assistant
// pair in the active conversation.
func (s *State) LastExchange() (string, bool) {
	c := s.Active()
	if c == nil || len(c.Messages) < 2 {
		return "", false
	}
	n := len(c.Messages)
	user, reply := c.Messages[n-2], c.Messages[n-1]
	if user.Role != RoleUser || reply.Role != RoleAssistant || reply.IsPending {
		return "", false
	}
	return user.Content, true
}

// DropLastExchange removes a trailing completed user→assistant pair from the
// active conversation and returns the user's text, ready to be sent again.
func (s *State) DropLastExchange() (string, bool) {
	text, ok := s.LastExchange()
	if !ok {
		return "", false
	}
	c := s.Active()
	c.Messages = c.Messages[:len(c.Messages)-2]
	c.UpdatedAt = time.Now()
	s.syncLive()
	return text, true
}

// PendingContent returns the content of the active conversation's pending
// assistant message.
func (s *State) PendingContent() (string, bool) {
	c := s.Active()
	if c == nil {
		return "", false
	}
	i := c.LastAssistantIndex()
	if i < 0 || !c.Messages[i].IsPending {
		return "", false
	}
	return c.Messages[i].Content, true
}

// LastCompletedReply returns the newest assistant message of the active
// conversation that has finished streaming.
func (s *State) LastCompletedReply() (Message, bool) {
	c := s.Active()
	if c == nil {
		return Message{}, false
	}
	i := c.LastAssistantIndex()
	if i < 0 || c.Messages[i].IsPending {
		return Message{}, false
	}
	return c.Messages[i], true
}
