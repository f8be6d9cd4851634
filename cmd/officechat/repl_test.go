package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OfficeChat/internal/backend"
	"OfficeChat/internal/chatbot"
	"OfficeChat/internal/conversation"
	"OfficeChat/internal/office"
	"OfficeChat/internal/store"
)

type scriptedTransport struct {
	deltas []string
}

func (s scriptedTransport) Send(_ context.Context, _ []conversation.Message, opts backend.SendOptions) (string, error) {
	for _, d := range s.deltas {
		opts.OnProgress(d)
	}
	return strings.Join(s.deltas, ""), nil
}

type harness struct {
	repl  *repl
	store *store.Store
	out   *bytes.Buffer
	doc   *bytes.Buffer
}

func newHarness(t *testing.T, input string, deltas ...string) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	st := store.New(kv, store.WithLogger(logger))

	state := st.Load(context.Background())
	state.Settings.APIKey = "sk-test-1234567890"
	bot := chatbot.New(
		chatbot.WithState(state),
		chatbot.WithLogger(logger),
		chatbot.WithTransportFactory(func(backend.Config) chatbot.Transport {
			return scriptedTransport{deltas: deltas}
		}),
	)
	saver := store.NewAutoSaver(st, time.Hour)
	bot.OnStateChange(saver.Notify)

	h := &harness{store: st, out: &bytes.Buffer{}, doc: &bytes.Buffer{}}
	h.repl = newREPL(bot, st, saver, office.NewWriterHost(h.doc), strings.NewReader(input), h.out, logger)
	return h
}

func TestREPLSendAndCommands(t *testing.T) {
	exportPath := filepath.Join(t.TempDir(), "export.json")
	script := strings.Join([]string{
		"Quarterly sales please",
		"/list",
		"/rename 1 Sales Q3",
		"/insert table",
		"/insert",
		"/insert selection",
		"/backup",
		"/export " + exportPath,
		"/models",
		"/bogus",
		"/quit",
		"never read",
	}, "\n")
	h := newHarness(t, script, "| Region | Sales |\n", "| North | 120 |")

	require.NoError(t, h.repl.Run(context.Background()))
	out := h.out.String()

	assert.Contains(t, out, "Bot: | Region | Sales |\n| North | 120 |\n\n")
	assert.Contains(t, out, "1. Quarterly sales please - 2 messages")
	assert.Contains(t, out, `Renamed to "Sales Q3"`)
	assert.Contains(t, out, "Created backup officeChat_backup_")
	assert.Contains(t, out, "deepseek-chat (current)")
	assert.Contains(t, out, "Error: unknown command /bogus")
	assert.Contains(t, out, "Goodbye!")

	doc := h.doc.String()
	assert.Equal(t, 2, strings.Count(doc, "[A1]\nRegion | Sales"), "explicit and detected table inserts")
	assert.Contains(t, doc, "[selection]\n| Region | Sales |")

	blob, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(blob), "Sales Q3")

	backups, err := h.store.Backups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestREPLSettingsAndReset(t *testing.T) {
	script := strings.Join([]string{
		"/settings model deepseek-reasoner",
		"/settings model nope",
		"/settings",
		"hello",
		"/reset",
		"/list",
	}, "\n")
	h := newHarness(t, script, "hi there")

	require.NoError(t, h.repl.Run(context.Background()))
	out := h.out.String()

	assert.Contains(t, out, "Settings saved")
	assert.Contains(t, out, `Error: unknown model "nope"`)
	assert.Contains(t, out, "model: deepseek-reasoner")
	assert.Contains(t, out, "Bot: hi there")
	assert.Contains(t, out, "Chat data cleared")
	assert.Contains(t, out, "No conversations yet.")

	s := h.repl.bot.State()
	assert.Empty(t, s.Conversations)
	assert.Equal(t, "deepseek-reasoner", s.Settings.SelectedModel, "reset keeps settings")
}

func TestREPLStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.repl.Run(ctx))
	assert.Contains(t, h.out.String(), "Goodbye!")
}
