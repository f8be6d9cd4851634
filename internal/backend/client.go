// Package backend talks to an OpenAI-compatible chat completions API and
// turns its responses, streamed or not, into text.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"OfficeChat/internal/config"
	"OfficeChat/internal/conversation"
)

const completionsPath = "/v1/chat/completions"

// Config identifies the endpoint and model a Client talks to.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ConfigFromSettings maps user settings onto a client config.
func ConfigFromSettings(s config.Settings) Config {
	return Config{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.SelectedModel}
}

// Validate checks that every field needed for a request is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return configError("API key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return configError("base URL is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return configError("model is required")
	}
	return nil
}

// SendOptions tune a single completion call.
type SendOptions struct {
	Stream      bool
	Temperature float64
	MaxTokens   int

	// OnProgress receives each streamed delta, in arrival order, before the
	// next frame is read. Ignored for non-streaming calls.
	OnProgress func(delta string)
}

// DefaultSendOptions returns the parameters the chat panel uses.
func DefaultSendOptions() SendOptions {
	return SendOptions{Stream: true, Temperature: 0.7, MaxTokens: 4000}
}

// Client issues chat completion requests. It keeps no per-call state and is
// safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	limiter    *rate.Limiter

	requestDuration metric.Float64Histogram
	deltaCount      metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used for one span per request.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRateLimit paces outbound requests to perMinute with the given burst.
func WithRateLimit(perMinute, burst int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), max(burst, 1))
	}
}

// WithMeter records request durations and delta counts on m.
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.initInstruments(m) }
}

// NewClient creates a client bound to cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		logger: slog.Default(),
		tracer: tracenoop.NewTracerProvider().Tracer("backend"),
	}
	c.initInstruments(metricnoop.NewMeterProvider().Meter("backend"))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) initInstruments(m metric.Meter) {
	histogram, err := m.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		c.requestDuration = histogram
	}
	counter, err := m.Int64Counter(
		"officechat.stream.deltas",
		metric.WithDescription("Streamed content deltas received"),
	)
	if err == nil {
		c.deltaCount = counter
	}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}

// AvailableModels lists the models the API offers.
func AvailableModels() []string {
	return append([]string(nil), config.Models...)
}

// convertMessages maps history onto wire messages, dropping blank system
// messages.
func convertMessages(history []conversation.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == conversation.RoleSystem && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// Send requests a completion for history and returns the full response text.
// With opts.Stream set, deltas are handed to opts.OnProgress as they arrive;
// if the stream breaks, the text received so far is returned with the error.
func (c *Client) Send(ctx context.Context, history []conversation.Message, opts SendOptions) (string, error) {
	if err := c.config.Validate(); err != nil {
		return "", err
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultSendOptions().MaxTokens
	}

	ctx, span := c.tracer.Start(ctx, "chat_completion", trace.WithAttributes(
		attribute.String("model", c.config.Model),
		attribute.Bool("stream", opts.Stream),
		attribute.Int("messages", len(history)),
	))
	defer span.End()

	text, err := c.send(ctx, history, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (c *Client) send(ctx context.Context, history []conversation.Message, opts SendOptions) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", networkError("request not sent", err)
		}
	}

	start := time.Now()
	resp, err := c.post(ctx, ChatRequest{
		Model:       c.config.Model,
		Messages:    convertMessages(history),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      opts.Stream,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var text string
	if opts.Stream {
		text, err = c.readStream(ctx, resp.Body, opts.OnProgress)
	} else {
		text, err = readEnvelope(resp.Body)
	}

	if c.requestDuration != nil {
		c.requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.Bool("stream", opts.Stream)))
	}
	c.logger.Debug("completion finished",
		"model", c.config.Model,
		"stream", opts.Stream,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return text, err
}

func (c *Client) post(ctx context.Context, body ChatRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, &APIError{Kind: KindDecode, Message: "failed to marshal request", Err: err}
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + completionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, configError(fmt.Sprintf("invalid base URL %q", c.config.BaseURL))
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError("failed to send request", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &APIError{
			Kind:    KindTransport,
			Status:  resp.StatusCode,
			Message: errorMessage(resp),
		}
	}
	return resp, nil
}

// errorMessage extracts error.message from the body, falling back to the
// status line.
func errorMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || len(body) == 0 {
		return fallback
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return fallback
	}
	return env.Error.Message
}

func readEnvelope(body io.Reader) (string, error) {
	var apiResp ChatResponse
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", networkError("failed to read response", err)
		}
		return "", &APIError{Kind: KindDecode, Message: "failed to unmarshal response", Err: err}
	}
	if len(apiResp.Choices) == 0 {
		return "", &APIError{Kind: KindDecode, Message: "no response from API"}
	}
	return apiResp.Choices[0].Message.Content, nil
}

// TestConnection sends a one-token request and reports whether it succeeded.
// Failures are logged, never returned.
func (c *Client) TestConnection(ctx context.Context) bool {
	probe := []conversation.Message{{ID: "probe", Role: conversation.RoleUser, Content: "Hello", CreatedAt: time.Now()}}
	if _, err := c.Send(ctx, probe, SendOptions{MaxTokens: 1}); err != nil {
		c.logger.Warn("connection test failed", "base_url", c.config.BaseURL, "model", c.config.Model, "error", err)
		return false
	}
	return true
}
