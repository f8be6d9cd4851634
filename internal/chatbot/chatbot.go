// Package chatbot drives a conversation: it appends the user's message and a
// pending reply, streams the model's answer into that reply and publishes
// every change to its subscribers.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"OfficeChat/internal/backend"
	"OfficeChat/internal/config"
	"OfficeChat/internal/conversation"
	"OfficeChat/internal/office"
	"OfficeChat/internal/security"
)

// Transport sends a conversation to the model.
type Transport interface {
	Send(ctx context.Context, history []conversation.Message, opts backend.SendOptions) (string, error)
}

// TransportFactory builds a Transport for the current settings. It is called
// again whenever the settings change.
type TransportFactory func(cfg backend.Config) Transport

// SettingsValidator checks user-entered settings.
type SettingsValidator interface {
	ValidateAPIKey(key string) error
	ValidateURL(raw string) error
	CheckConversationLimit(count int) error
}

// inflight is the one send that may be streaming at a time.
type inflight struct {
	ctx    context.Context
	cancel context.CancelFunc
	convID string
}

// ChatBot represents the conversation controller
type ChatBot struct {
	mu    sync.Mutex
	state conversation.State

	newTransport TransportFactory
	transport    Transport
	transportCfg backend.Config

	sendOpts  backend.SendOptions
	filter    security.Filter
	validator SettingsValidator

	logger  *slog.Logger
	tracer  trace.Tracer
	sent    metric.Int64Counter
	failed  metric.Int64Counter
	current *inflight

	notifyMu  sync.Mutex // held while handlers run so they see changes in order
	listeners map[int]func(conversation.State)
	nextID    int
}

// Option configures a ChatBot.
type Option func(*ChatBot)

// WithState sets the initial state, usually loaded from the store.
func WithState(s conversation.State) Option {
	return func(cb *ChatBot) {
		cb.state = s.Snapshot()
		cb.state.Reconcile()
	}
}

// WithTransportFactory replaces the default backend client.
func WithTransportFactory(f TransportFactory) Option {
	return func(cb *ChatBot) { cb.newTransport = f }
}

// WithClientOptions are passed to every backend client the default factory
// creates.
func WithClientOptions(opts ...backend.Option) Option {
	return func(cb *ChatBot) {
		cb.newTransport = func(cfg backend.Config) Transport {
			return backend.NewClient(cfg, opts...)
		}
	}
}

// WithSendOptions sets the completion parameters.
func WithSendOptions(opts backend.SendOptions) Option {
	return func(cb *ChatBot) { cb.sendOpts = opts }
}

// WithFilter sanitizes user text and filters model text.
func WithFilter(f security.Filter) Option {
	return func(cb *ChatBot) { cb.filter = f }
}

// WithValidator checks settings updates and the conversation limit.
func WithValidator(v SettingsValidator) Option {
	return func(cb *ChatBot) { cb.validator = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cb *ChatBot) { cb.logger = l }
}

// WithTracer sets the tracer used for one span per send.
func WithTracer(t trace.Tracer) Option {
	return func(cb *ChatBot) { cb.tracer = t }
}

// WithMeter counts sent messages and failures on m.
func WithMeter(m metric.Meter) Option {
	return func(cb *ChatBot) { cb.initInstruments(m) }
}

// New creates a ChatBot.
func New(opts ...Option) *ChatBot {
	cb := &ChatBot{
		state: conversation.NewState(),
		newTransport: func(cfg backend.Config) Transport {
			return backend.NewClient(cfg)
		},
		sendOpts:  backend.DefaultSendOptions(),
		filter:    security.NopFilter{},
		logger:    slog.Default(),
		tracer:    tracenoop.NewTracerProvider().Tracer("chatbot"),
		listeners: make(map[int]func(conversation.State)),
	}
	cb.initInstruments(metricnoop.NewMeterProvider().Meter("chatbot"))
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *ChatBot) initInstruments(m metric.Meter) {
	var err error
	cb.sent, err = m.Int64Counter("officechat.messages.sent",
		metric.WithDescription("Replies completed"))
	if err != nil {
		cb.sent, _ = metricnoop.NewMeterProvider().Meter("chatbot").Int64Counter("officechat.messages.sent")
	}
	cb.failed, err = m.Int64Counter("officechat.errors",
		metric.WithDescription("Failed sends by error kind"))
	if err != nil {
		cb.failed, _ = metricnoop.NewMeterProvider().Meter("chatbot").Int64Counter("officechat.errors")
	}
}

// OnStateChange registers fn to receive a snapshot after every change. Handlers
// run one at a time in change order and must not call back into the ChatBot.
func (cb *ChatBot) OnStateChange(fn func(conversation.State)) (unsubscribe func()) {
	cb.notifyMu.Lock()
	defer cb.notifyMu.Unlock()
	id := cb.nextID
	cb.nextID++
	cb.listeners[id] = fn
	return func() {
		cb.notifyMu.Lock()
		defer cb.notifyMu.Unlock()
		delete(cb.listeners, id)
	}
}

// unlockAndPublish releases the state lock and hands a snapshot of the state
// to every handler. Must be called with cb.mu held.
func (cb *ChatBot) unlockAndPublish() {
	snap := cb.state.Snapshot()
	cb.notifyMu.Lock()
	cb.mu.Unlock()
	defer cb.notifyMu.Unlock()
	for _, fn := range cb.listeners {
		fn(snap)
	}
}

// State returns a snapshot of the current state.
func (cb *ChatBot) State() conversation.State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Snapshot()
}

// Busy reports whether a reply is streaming.
func (cb *ChatBot) Busy() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current != nil
}

func (cb *ChatBot) transportFor(cfg backend.Config) Transport {
	if cb.transport == nil || cb.transportCfg != cfg {
		cb.transport = cb.newTransport(cfg)
		cb.transportCfg = cfg
	}
	return cb.transport
}

// SendMessage sends text in the active conversation, creating one if needed,
// and blocks until the reply is complete, failed or cancelled. Blank text is
// ignored. A missing API key switches the page to settings.
func (cb *ChatBot) SendMessage(ctx context.Context, text string) error {
	return cb.send(ctx, text, false)
}

// RegenerateLastResponse drops the last user→assistant exchange and sends the
// user's message again. Without a completed exchange it does nothing.
func (cb *ChatBot) RegenerateLastResponse(ctx context.Context) error {
	return cb.send(ctx, "", true)
}

func (cb *ChatBot) send(ctx context.Context, text string, regenerate bool) error {
	cb.mu.Lock()
	if cb.current != nil {
		cb.mu.Unlock()
		return ErrSendInProgress
	}
	if regenerate {
		if _, ok := cb.state.LastExchange(); !ok {
			cb.mu.Unlock()
			return nil
		}
	} else {
		text = strings.TrimSpace(text)
		if text == "" {
			cb.mu.Unlock()
			return nil
		}
	}

	cfg := backend.ConfigFromSettings(cb.state.Settings)
	if err := cfg.Validate(); err != nil {
		cb.state.LastError = Classify(err)
		cb.state.CurrentPage = conversation.PageSettings
		cb.unlockAndPublish()
		cb.logger.Warn("send rejected", "error", err)
		return err
	}

	if regenerate {
		text, _ = cb.state.DropLastExchange()
	} else if text = cb.filter.SanitizeInput(text); text == "" {
		cb.mu.Unlock()
		return nil
	}

	transport := cb.transportFor(cfg)
	cb.state.LastError = ""
	cb.state.IsLoading = true
	cb.state.AppendMessage(conversation.RoleUser, text, false)
	history := append([]conversation.Message(nil), cb.state.Active().Messages...)
	cb.state.AppendMessage(conversation.RoleAssistant, "", true)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fl := &inflight{ctx: runCtx, cancel: cancel, convID: cb.state.ActiveID}
	cb.current = fl
	cb.unlockAndPublish()

	runCtx, span := cb.tracer.Start(runCtx, "send_message",
		trace.WithAttributes(
			attribute.String("conversation.id", fl.convID),
			attribute.String("model", cfg.Model),
			attribute.Bool("regenerate", regenerate),
		))
	defer span.End()

	if security.DetectPromptInjection(text) {
		cb.logger.Warn("message looks like a prompt injection attempt", "conversation", fl.convID)
	}
	cb.logger.Info("sending message",
		"conversation", fl.convID,
		"history", len(history),
		"text", security.CleanSensitiveData(text))

	start := time.Now()
	opts := cb.sendOpts
	opts.OnProgress = func(delta string) {
		cb.applyDelta(fl, delta)
	}

	reply, err := transport.Send(runCtx, history, opts)
	return cb.finish(runCtx, span, fl, reply, err, time.Since(start))
}

// applyDelta appends delta to the pending reply. Only the delta is filtered
// here; the whole reply is filtered once when it completes. Deltas for a send
// that was cancelled or replaced are dropped.
func (cb *ChatBot) applyDelta(fl *inflight, delta string) {
	cb.mu.Lock()
	if cb.current != fl || fl.ctx.Err() != nil || cb.state.ActiveID != fl.convID {
		cb.mu.Unlock()
		return
	}
	content, ok := cb.state.PendingContent()
	if !ok {
		cb.mu.Unlock()
		return
	}
	content += cb.filter.FilterOutput(delta)
	cb.state.UpdatePendingMessage(conversation.MessagePatch{Content: &content})
	cb.unlockAndPublish()
}

func (cb *ChatBot) finish(ctx context.Context, span trace.Span, fl *inflight, reply string, err error, elapsed time.Duration) error {
	cb.mu.Lock()
	if cb.current != fl {
		// Cancel or a conversation switch already finalized the reply.
		cb.mu.Unlock()
		span.SetStatus(codes.Error, "cancelled")
		return context.Canceled
	}

	if errors.Is(fl.ctx.Err(), context.Canceled) {
		cb.finalizeCancelledLocked()
		cb.unlockAndPublish()
		span.SetStatus(codes.Error, "cancelled")
		cb.logger.Info("send cancelled", "conversation", fl.convID)
		return fl.ctx.Err()
	}

	cb.current = nil
	cb.state.IsLoading = false
	done := false

	if err != nil {
		content := failureContent(err)
		cb.state.UpdatePendingMessage(conversation.MessagePatch{Content: &content, IsPending: &done})
		cb.state.LastError = Classify(err)
		cb.unlockAndPublish()

		kind := "unknown"
		if apiErr, ok := backend.AsAPIError(err); ok {
			kind = apiErr.Kind.String()
		}
		cb.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cb.logger.Error("failed to send message", "conversation", fl.convID, "kind", kind, "error", err)
		return err
	}

	content := cb.filter.FilterOutput(reply)
	cb.state.UpdatePendingMessage(conversation.MessagePatch{Content: &content, IsPending: &done})
	cb.unlockAndPublish()

	cb.sent.Add(ctx, 1)
	span.SetAttributes(attribute.Int("response.length", len(content)))
	cb.logger.Info("reply received",
		"conversation", fl.convID,
		"length", len(content),
		"duration_ms", elapsed.Milliseconds())
	return nil
}

// finalizeCancelledLocked stops the current send and marks its reply as
// cancelled, keeping whatever text had arrived.
func (cb *ChatBot) finalizeCancelledLocked() {
	fl := cb.current
	if fl == nil {
		return
	}
	cb.current = nil
	fl.cancel()
	cb.state.IsLoading = false
	if cb.state.ActiveID != fl.convID {
		return
	}
	partial, ok := cb.state.PendingContent()
	if !ok {
		return
	}
	content := cancelledContent(cb.filter.FilterOutput(partial))
	done := false
	cb.state.UpdatePendingMessage(conversation.MessagePatch{Content: &content, IsPending: &done})
}

// Cancel stops the reply that is streaming. It reports whether there was one.
func (cb *ChatBot) Cancel() bool {
	cb.mu.Lock()
	if cb.current == nil {
		cb.mu.Unlock()
		return false
	}
	cb.finalizeCancelledLocked()
	cb.unlockAndPublish()
	cb.logger.Info("send cancelled by user")
	return true
}

// CreateConversation starts a new conversation and makes it active.
func (cb *ChatBot) CreateConversation() (string, error) {
	cb.mu.Lock()
	if cb.validator != nil {
		if err := cb.validator.CheckConversationLimit(len(cb.state.Conversations)); err != nil {
			cb.state.LastError = err.Error()
			cb.unlockAndPublish()
			return "", err
		}
	}
	cb.finalizeCancelledLocked()
	id := cb.state.CreateConversation()
	cb.unlockAndPublish()
	cb.logger.Info("conversation created", "conversation", id)
	return id, nil
}

// SelectConversation makes id active. Unknown ids are ignored.
func (cb *ChatBot) SelectConversation(id string) bool {
	cb.mu.Lock()
	if cb.state.Conversation(id) == nil {
		cb.mu.Unlock()
		return false
	}
	if id != cb.state.ActiveID {
		cb.finalizeCancelledLocked()
	}
	cb.state.SelectConversation(id)
	cb.unlockAndPublish()
	return true
}

// DeleteConversation removes id.
func (cb *ChatBot) DeleteConversation(id string) bool {
	cb.mu.Lock()
	if cb.current != nil && cb.current.convID == id {
		cb.finalizeCancelledLocked()
	}
	if !cb.state.DeleteConversation(id) {
		cb.mu.Unlock()
		return false
	}
	cb.unlockAndPublish()
	cb.logger.Info("conversation deleted", "conversation", id)
	return true
}

// RenameConversation retitles id.
func (cb *ChatBot) RenameConversation(id, title string) bool {
	cb.mu.Lock()
	if !cb.state.RenameConversation(id, title) {
		cb.mu.Unlock()
		return false
	}
	cb.unlockAndPublish()
	return true
}

// ClearMessages empties the active conversation.
func (cb *ChatBot) ClearMessages() {
	cb.mu.Lock()
	cb.finalizeCancelledLocked()
	cb.state.ClearMessages()
	cb.unlockAndPublish()
}

// Replace swaps in a whole new state, e.g. after a restore or import.
func (cb *ChatBot) Replace(s conversation.State) {
	cb.mu.Lock()
	cb.finalizeCancelledLocked()
	cb.state = s.Snapshot()
	cb.state.IsLoading = false
	cb.state.Reconcile()
	cb.unlockAndPublish()
}

// UpdateSettings validates and applies patch. Empty values are accepted so
// the key can be cleared.
func (cb *ChatBot) UpdateSettings(patch config.SettingsPatch) error {
	cb.mu.Lock()
	next := patch.Apply(cb.state.Settings)
	if err := cb.validateSettings(patch, next); err != nil {
		cb.mu.Unlock()
		return err
	}
	next = next.WithDefaults()
	if next == cb.state.Settings {
		cb.mu.Unlock()
		return nil
	}
	cb.state.Settings = next
	cb.unlockAndPublish()
	cb.logger.Info("settings updated", "model", next.SelectedModel, "base_url", next.BaseURL)
	return nil
}

func (cb *ChatBot) validateSettings(patch config.SettingsPatch, next config.Settings) error {
	if patch.SelectedModel != nil && next.SelectedModel != "" && !config.IsKnownModel(next.SelectedModel) {
		return fmt.Errorf("unknown model %q", next.SelectedModel)
	}
	if cb.validator == nil {
		return nil
	}
	if patch.APIKey != nil && next.APIKey != "" {
		if err := cb.validator.ValidateAPIKey(next.APIKey); err != nil {
			return err
		}
	}
	if patch.BaseURL != nil && next.BaseURL != "" {
		if err := cb.validator.ValidateURL(next.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

// ReportWarning puts a non-fatal problem, such as a failed save, in the error
// slot. Repeating the message already shown changes nothing and notifies no
// one, so a failing save cannot re-arm the saver that reported it.
func (cb *ChatBot) ReportWarning(err error) {
	cb.mu.Lock()
	if cb.state.LastError == err.Error() {
		cb.mu.Unlock()
		return
	}
	cb.state.LastError = err.Error()
	cb.unlockAndPublish()
}

// DismissError clears the error slot.
func (cb *ChatBot) DismissError() {
	cb.mu.Lock()
	if cb.state.LastError == "" {
		cb.mu.Unlock()
		return
	}
	cb.state.LastError = ""
	cb.unlockAndPublish()
}

// SetCurrentPage switches the page the front end shows.
func (cb *ChatBot) SetCurrentPage(p conversation.Page) {
	cb.mu.Lock()
	if cb.state.CurrentPage == p {
		cb.mu.Unlock()
		return
	}
	cb.state.CurrentPage = p
	cb.unlockAndPublish()
}

// InsertLastResponse inserts the newest finished reply into the document.
func (cb *ChatBot) InsertLastResponse(ctx context.Context, host office.DocumentHost, format office.Format) error {
	cb.mu.Lock()
	msg, ok := cb.state.LastCompletedReply()
	cb.mu.Unlock()
	if !ok || strings.TrimSpace(msg.Content) == "" {
		return ErrNothingToInsert
	}
	if err := office.Insert(ctx, host, msg.Content, format); err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	cb.logger.Info("response inserted", "format", format, "message", msg.ID)
	return nil
}
