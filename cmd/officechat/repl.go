package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"OfficeChat/internal/backend"
	"OfficeChat/internal/chatbot"
	"OfficeChat/internal/config"
	"OfficeChat/internal/conversation"
	"OfficeChat/internal/office"
	"OfficeChat/internal/store"
)

type repl struct {
	bot        *chatbot.ChatBot
	store      *store.Store
	saver      *store.AutoSaver
	host       office.DocumentHost
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger
	clientOpts []backend.Option

	// streaming display
	sending  atomic.Bool
	mu       sync.Mutex
	replyID  string
	printed  string
	finished bool
}

func newREPL(bot *chatbot.ChatBot, st *store.Store, saver *store.AutoSaver, host office.DocumentHost, in io.Reader, out io.Writer, logger *slog.Logger) *repl {
	r := &repl{bot: bot, store: st, saver: saver, host: host, in: in, out: out, logger: logger}
	bot.OnStateChange(r.render)
	return r
}

// render prints the part of the streaming reply not yet shown.
func (r *repl) render(s conversation.State) {
	if !r.sending.Load() || len(s.Messages) == 0 {
		return
	}
	m := s.Messages[len(s.Messages)-1]
	if m.Role != conversation.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID != r.replyID {
		if !m.IsPending {
			return
		}
		r.replyID, r.printed, r.finished = m.ID, "", false
		fmt.Fprint(r.out, "Bot: ")
	}
	if r.finished {
		return
	}
	if strings.HasPrefix(m.Content, r.printed) {
		fmt.Fprint(r.out, m.Content[len(r.printed):])
	} else {
		fmt.Fprint(r.out, "\n"+m.Content)
	}
	r.printed = m.Content
	if !m.IsPending {
		fmt.Fprint(r.out, "\n\n")
		r.finished = true
	}
}

// Run reads lines until /quit, end of input or ctx is cancelled.
func (r *repl) Run(ctx context.Context) error {
	s := r.bot.State()
	fmt.Fprintln(r.out, "=== OfficeChat ===")
	fmt.Fprintf(r.out, "Model: %s\n", s.Settings.SelectedModel)
	if s.CurrentPage == conversation.PageSettings || s.Settings.APIKey == "" {
		fmt.Fprintln(r.out, "No API key configured. Use /settings key <value>")
	}
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(r.out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "You: ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\nGoodbye!")
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				r.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			continue
		}

		if err := r.send(ctx, func(ctx context.Context) error { return r.bot.SendMessage(ctx, input) }); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", r.describe(err))
		}
	}
}

func (r *repl) send(ctx context.Context, fn func(context.Context) error) error {
	r.sending.Store(true)
	defer r.sending.Store(false)
	err := fn(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// describe prefers the classified message the controller stored.
func (r *repl) describe(err error) string {
	if _, ok := backend.AsAPIError(err); ok {
		if msg := r.bot.State().LastError; msg != "" {
			return msg
		}
	}
	return err.Error()
}

// conversationAt resolves a 1-based index from /list.
func (r *repl) conversationAt(arg string) (conversation.Conversation, error) {
	n, err := strconv.Atoi(arg)
	convs := r.bot.State().Conversations
	if err != nil || n < 1 || n > len(convs) {
		return conversation.Conversation{}, fmt.Errorf("no conversation %q, see /list", arg)
	}
	return convs[n-1], nil
}

// reload replaces the in-memory state with what the store now holds.
func (r *repl) reload(ctx context.Context) {
	r.bot.Replace(r.store.Load(ctx))
}

// handleCommand handles slash commands
func (r *repl) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		if _, err := r.bot.CreateConversation(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Started new conversation")

	case "/list":
		s := r.bot.State()
		if len(s.Conversations) == 0 {
			fmt.Fprintln(r.out, "No conversations yet.")
			return false, nil
		}
		for i, c := range s.Conversations {
			current := ""
			if c.ID == s.ActiveID {
				current = " (current)"
			}
			fmt.Fprintf(r.out, "%d. %s - %d messages, %s%s\n", i+1, c.Title, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"), current)
		}

	case "/open":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /open <n>")
		}
		c, err := r.conversationAt(parts[1])
		if err != nil {
			return false, err
		}
		r.bot.SelectConversation(c.ID)
		fmt.Fprintf(r.out, "Opened %q\n", c.Title)
		for _, m := range r.bot.State().Messages {
			fmt.Fprintf(r.out, "%s: %s\n", m.Role, m.Content)
		}

	case "/rename":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /rename <n> <title>")
		}
		c, err := r.conversationAt(parts[1])
		if err != nil {
			return false, err
		}
		title := strings.Join(parts[2:], " ")
		if !r.bot.RenameConversation(c.ID, title) {
			return false, fmt.Errorf("title unchanged")
		}
		fmt.Fprintf(r.out, "Renamed to %q\n", title)

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <n>")
		}
		c, err := r.conversationAt(parts[1])
		if err != nil {
			return false, err
		}
		r.bot.DeleteConversation(c.ID)
		fmt.Fprintf(r.out, "Deleted %q\n", c.Title)

	case "/clear":
		r.bot.ClearMessages()
		fmt.Fprintln(r.out, "Cleared messages")

	case "/regen":
		if err := r.send(ctx, r.bot.RegenerateLastResponse); err != nil {
			return false, errors.New(r.describe(err))
		}

	case "/dismiss":
		r.bot.DismissError()

	case "/settings":
		return false, r.handleSettings(parts[1:])

	case "/test":
		cfg := backend.ConfigFromSettings(r.bot.State().Settings)
		if backend.NewClient(cfg, r.clientOpts...).TestConnection(ctx) {
			fmt.Fprintln(r.out, "Connection OK")
		} else {
			fmt.Fprintln(r.out, "Connection failed, check the log for details")
		}

	case "/models":
		selected := r.bot.State().Settings.SelectedModel
		for i, m := range backend.AvailableModels() {
			current := ""
			if m == selected {
				current = " (current)"
			}
			fmt.Fprintf(r.out, "%d. %s%s\n", i+1, m, current)
		}

	case "/backup":
		if err := r.saver.Flush(ctx); err != nil {
			return false, err
		}
		id, err := r.store.Backup(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Created backup %s\n", id)

	case "/backups":
		backups, err := r.store.Backups(ctx)
		if err != nil {
			return false, err
		}
		if len(backups) == 0 {
			fmt.Fprintln(r.out, "No backups.")
		}
		for _, b := range backups {
			fmt.Fprintf(r.out, "%s  %s  %s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), strings.Join(b.Keys, ", "))
		}

	case "/restore":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /restore <backup id>")
		}
		if err := r.saver.Flush(ctx); err != nil {
			return false, err
		}
		if !r.store.Restore(ctx, parts[1]) {
			return false, fmt.Errorf("failed to restore %s", parts[1])
		}
		r.reload(ctx)
		fmt.Fprintln(r.out, "Backup restored")

	case "/export":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /export <file>")
		}
		if err := r.saver.Flush(ctx); err != nil {
			return false, err
		}
		blob, err := r.store.ExportAll(ctx)
		if err != nil {
			return false, err
		}
		if err := os.WriteFile(parts[1], []byte(blob), 0o600); err != nil {
			return false, fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(r.out, "Exported to %s\n", parts[1])

	case "/import":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /import <file>")
		}
		b, err := os.ReadFile(parts[1])
		if err != nil {
			return false, fmt.Errorf("failed to read import: %w", err)
		}
		if err := r.saver.Flush(ctx); err != nil {
			return false, err
		}
		res := r.store.ImportAll(ctx, string(b))
		if !res.Success {
			return false, errors.New(res.Error)
		}
		r.reload(ctx)
		fmt.Fprintln(r.out, "Import complete, previous data was backed up")

	case "/reset":
		keep := len(parts) < 2 || parts[1] != "all"
		if err := r.saver.Flush(ctx); err != nil {
			return false, err
		}
		err := r.store.ClearChatData(ctx, keep)
		// Reload either way so memory matches whatever was deleted.
		r.reload(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Chat data cleared")

	case "/insert":
		var format office.Format
		if len(parts) > 1 {
			format = office.Format(parts[1])
		}
		if err := r.bot.InsertLastResponse(ctx, r.host, format); err != nil {
			return false, err
		}

	case "/usage":
		u, err := r.store.Usage(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%d items, %.1f KB\n", u.Items, float64(u.TotalBytes)/1024)

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /new                       - Start a new conversation")
		fmt.Fprintln(r.out, "  /list                      - List conversations")
		fmt.Fprintln(r.out, "  /open <n>                  - Switch to conversation n")
		fmt.Fprintln(r.out, "  /rename <n> <title>        - Rename conversation n")
		fmt.Fprintln(r.out, "  /delete <n>                - Delete conversation n")
		fmt.Fprintln(r.out, "  /clear                     - Clear the current conversation")
		fmt.Fprintln(r.out, "  /regen                     - Regenerate the last response")
		fmt.Fprintln(r.out, "  /dismiss                   - Dismiss the last error")
		fmt.Fprintln(r.out, "  /settings key|model|url <v> - Change a setting (no value shows settings)")
		fmt.Fprintln(r.out, "  /test                      - Test the API connection")
		fmt.Fprintln(r.out, "  /models                    - List available models")
		fmt.Fprintln(r.out, "  /backup, /backups          - Create or list backups")
		fmt.Fprintln(r.out, "  /restore <id>              - Restore a backup")
		fmt.Fprintln(r.out, "  /export <file>             - Export all chat data")
		fmt.Fprintln(r.out, "  /import <file>             - Import chat data")
		fmt.Fprintln(r.out, "  /reset [all]               - Delete chat data (all: settings too)")
		fmt.Fprintln(r.out, "  /insert [text|table|selection] - Insert the last response into the document")
		fmt.Fprintln(r.out, "  /usage                     - Show storage usage")
		fmt.Fprintln(r.out, "  /quit, /exit               - Exit")
		fmt.Fprintln(r.out, "Press Ctrl-C to stop a response that is streaming.")

	default:
		return false, fmt.Errorf("unknown command %s, see /help", parts[0])
	}
	return false, nil
}

func (r *repl) handleSettings(args []string) error {
	if len(args) == 0 {
		s := r.bot.State().Settings
		key := "(not set)"
		if s.APIKey != "" {
			key = "(set)"
		}
		fmt.Fprintf(r.out, "key:   %s\nmodel: %s\nurl:   %s\n", key, s.SelectedModel, s.BaseURL)
		return nil
	}
	if len(args) < 2 && args[0] != "key" {
		return fmt.Errorf("usage: /settings key|model|url <value>")
	}
	value := strings.Join(args[1:], " ")

	var patch config.SettingsPatch
	switch args[0] {
	case "key":
		patch.APIKey = &value
	case "model":
		patch.SelectedModel = &value
	case "url":
		patch.BaseURL = &value
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}
	if err := r.bot.UpdateSettings(patch); err != nil {
		return err
	}
	if r.bot.State().Settings.APIKey != "" {
		r.bot.SetCurrentPage(conversation.PageChat)
	}
	fmt.Fprintln(r.out, "Settings saved")
	return nil
}
