package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCreateConversation(t *testing.T) {
	s := NewState()
	first := s.CreateConversation()
	s.AppendMessage(RoleUser, "hello", false)

	second := s.CreateConversation()

	require.Len(t, s.Conversations, 2)
	assert.Equal(t, second, s.Conversations[0].ID, "new conversation goes to the front")
	assert.Equal(t, first, s.Conversations[1].ID)
	assert.Equal(t, second, s.ActiveID)
	assert.Empty(t, s.Messages, "live list is cleared")
	assert.Equal(t, DefaultTitle, s.Active().Title)
}

func TestSelectConversation(t *testing.T) {
	s := NewState()
	a := s.CreateConversation()
	s.AppendMessage(RoleUser, "in a", false)
	s.CreateConversation()

	assert.False(t, s.SelectConversation("missing"))
	assert.Empty(t, s.Messages, "unknown id is a no-op")

	require.True(t, s.SelectConversation(a))
	assert.Equal(t, a, s.ActiveID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "in a", s.Messages[0].Content)
}

func TestDeleteActiveConversation(t *testing.T) {
	s := NewState()
	c := s.CreateConversation()
	s.AppendMessage(RoleUser, "from c", false)
	b := s.CreateConversation()
	s.AppendMessage(RoleUser, "from b", false)
	a := s.CreateConversation()
	s.AppendMessage(RoleUser, "from a", false)

	require.Equal(t, []string{a, b, c}, ids(s.Conversations))
	require.Equal(t, a, s.ActiveID)

	require.True(t, s.DeleteConversation(a))
	assert.Equal(t, b, s.ActiveID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "from b", s.Messages[0].Content)

	require.True(t, s.DeleteConversation(c))
	assert.Equal(t, b, s.ActiveID, "deleting an inactive conversation keeps the selection")

	require.True(t, s.DeleteConversation(b))
	assert.Empty(t, s.ActiveID)
	assert.Empty(t, s.Messages)
	assert.Empty(t, s.Conversations)

	assert.False(t, s.DeleteConversation(b))
}

func TestRenameConversation(t *testing.T) {
	s := NewState()
	id := s.CreateConversation()

	assert.False(t, s.RenameConversation(id, "   "))
	assert.False(t, s.RenameConversation(id, DefaultTitle))
	assert.False(t, s.RenameConversation("missing", "x"))
	assert.True(t, s.RenameConversation(id, "  Budget review "))
	assert.Equal(t, "Budget review", s.Active().Title)
}

func TestTitleDerivation(t *testing.T) {
	s := NewState()
	s.CreateConversation()
	s.AppendMessage(RoleUser, "Explain quicksort in detail please", false)
	assert.Equal(t, "Explain quicksort in detail pl...", s.Active().Title)

	s.AppendMessage(RoleUser, "second message", false)
	assert.Equal(t, "Explain quicksort in detail pl...", s.Active().Title)

	short := NewState()
	short.CreateConversation()
	short.AppendMessage(RoleUser, "Sum column B", false)
	assert.Equal(t, "Sum column B", short.Active().Title)
}

func TestTitleNotOverwrittenAfterRename(t *testing.T) {
	s := NewState()
	id := s.CreateConversation()
	require.True(t, s.RenameConversation(id, "Quarterly numbers"))

	s.AppendMessage(RoleUser, "Explain quicksort in detail please", false)
	assert.Equal(t, "Quarterly numbers", s.Active().Title)
}

func TestDeriveTitleCountsRunes(t *testing.T) {
	in := "请帮我把这张表格中的销售数据按照季度汇总并生成一个新的工作表谢谢"
	got := DeriveTitle(in)
	assert.Equal(t, string([]rune(in)[:30])+"...", got)
}

func TestAppendMessageCreatesConversation(t *testing.T) {
	s := NewState()
	msg := s.AppendMessage(RoleUser, "hi", false)

	require.NotNil(t, s.Active())
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, []Message{msg}, s.Messages)
	assert.Equal(t, "hi", s.Active().Title)
}

func TestUpdatePendingMessage(t *testing.T) {
	s := NewState()
	assert.False(t, s.UpdatePendingMessage(MessagePatch{Content: ptr("x")}), "no conversation")

	s.CreateConversation()
	s.AppendMessage(RoleUser, "q", false)
	assert.False(t, s.UpdatePendingMessage(MessagePatch{Content: ptr("x")}), "no assistant message")

	placeholder := s.AppendMessage(RoleAssistant, "", true)
	before := s.Active().UpdatedAt

	require.True(t, s.UpdatePendingMessage(MessagePatch{Content: ptr("partial")}))
	last := s.Messages[len(s.Messages)-1]
	assert.Equal(t, placeholder.ID, last.ID)
	assert.Equal(t, "partial", last.Content)
	assert.True(t, last.IsPending)
	assert.False(t, s.Active().UpdatedAt.Before(before))

	require.True(t, s.UpdatePendingMessage(MessagePatch{IsPending: ptr(false)}))
	assert.Equal(t, "partial", s.Messages[1].Content)
	assert.False(t, s.Messages[1].IsPending)
	assert.Equal(t, 0, s.Active().PendingCount())
}

func TestClearMessagesKeepsConversation(t *testing.T) {
	s := NewState()
	id := s.CreateConversation()
	s.AppendMessage(RoleUser, "Explain quicksort in detail please", false)

	s.ClearMessages()

	require.NotNil(t, s.Conversation(id))
	assert.Empty(t, s.Conversation(id).Messages)
	assert.Empty(t, s.Messages)
	assert.Equal(t, "Explain quicksort in detail pl...", s.Active().Title)
}

func TestDropLastExchange(t *testing.T) {
	s := NewState()
	_, ok := s.DropLastExchange()
	assert.False(t, ok)

	s.CreateConversation()
	s.AppendMessage(RoleUser, "first", false)
	s.AppendMessage(RoleAssistant, "answer one", false)
	s.AppendMessage(RoleUser, "second", false)
	s.AppendMessage(RoleAssistant, "answer two", false)

	text, ok := s.DropLastExchange()
	require.True(t, ok)
	assert.Equal(t, "second", text)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "answer one", s.Messages[1].Content)

	s.AppendMessage(RoleUser, "dangling", false)
	_, ok = s.DropLastExchange()
	assert.False(t, ok, "last turn is not a user/assistant pair")

	s.AppendMessage(RoleAssistant, "", true)
	_, ok = s.DropLastExchange()
	assert.False(t, ok, "pending reply is not complete")
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewState()
	s.CreateConversation()
	s.AppendMessage(RoleUser, "q", false)
	s.AppendMessage(RoleAssistant, "", true)

	snap := s.Snapshot()
	s.UpdatePendingMessage(MessagePatch{Content: ptr("changed")})

	assert.Equal(t, "", snap.Messages[1].Content)
	assert.Equal(t, "", snap.Conversations[0].Messages[1].Content)
}

func TestReconcile(t *testing.T) {
	s := NewState()
	s.Conversations = []Conversation{{ID: "a", Title: "A", Messages: []Message{{ID: "m", Role: RoleUser, Content: "x"}}}}
	s.ActiveID = "gone"
	s.Reconcile()
	assert.Equal(t, "a", s.ActiveID)
	require.Len(t, s.Messages, 1)

	s.ActiveID = ""
	s.Reconcile()
	assert.Empty(t, s.ActiveID, "no active conversation stays that way")
	assert.Empty(t, s.Messages)

	s.Conversations = nil
	s.ActiveID = "gone"
	s.Reconcile()
	assert.Empty(t, s.ActiveID)
}

func ids(cs []Conversation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
