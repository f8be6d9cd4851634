// Package security filters text on its way to and from the model and checks
// user-supplied settings.
package security

import (
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Filter is applied to user text before it is sent and to model text before
// it is displayed or inserted into a document.
type Filter interface {
	SanitizeInput(input string) string
	FilterOutput(output string) string
}

// Config toggles the individual checks.
type Config struct {
	EnableInputSanitization bool
	EnableOutputFiltering   bool
	EnableAPIKeyValidation  bool
	MaxMessageLength        int // runes
	MaxConversationCount    int
}

// DefaultConfig enables every check.
func DefaultConfig() Config {
	return Config{
		EnableInputSanitization: true,
		EnableOutputFiltering:   true,
		EnableAPIKeyValidation:  true,
		MaxMessageLength:        10000,
		MaxConversationCount:    100,
	}
}

// Service implements Filter and the validation helpers.
type Service struct {
	config Config
	policy *bluemonday.Policy
	logger *slog.Logger
}

// New creates a Service. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	// UGC keeps ordinary formatting markup but drops script, iframe, object,
	// embed and applet elements and every on* attribute.
	return &Service{config: cfg, policy: bluemonday.UGCPolicy(), logger: logger}
}

var (
	apiKeyPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	unsafeScheme     = regexp.MustCompile(`(?i)\b(javascript|data):`)
	shortenerPattern = regexp.MustCompile(`(?i)bit\.ly|tinyurl|shorturl`)
)

// SanitizeInput strips active HTML content, limits the length and trims.
func (s *Service) SanitizeInput(input string) string {
	if !s.config.EnableInputSanitization {
		return input
	}
	sanitized := input
	if strings.ContainsAny(sanitized, "<>") {
		// The policy escapes the text it keeps; undo that so prose like
		// "a < b" survives unchanged.
		sanitized = html.UnescapeString(s.policy.Sanitize(sanitized))
	}
	if limit := s.config.MaxMessageLength; limit > 0 {
		if r := []rune(sanitized); len(r) > limit {
			sanitized = string(r[:limit]) + "..."
		}
	}
	return strings.TrimSpace(sanitized)
}

// FilterOutput defuses script and data URIs and warns about link shorteners.
func (s *Service) FilterOutput(output string) string {
	if !s.config.EnableOutputFiltering {
		return output
	}
	filtered := unsafeScheme.ReplaceAllString(output, "blocked:")
	if shortenerPattern.MatchString(filtered) {
		s.logger.Warn("response contains shortened links")
	}
	return filtered
}

// ValidateAPIKey checks the key's length and alphabet.
func (s *Service) ValidateAPIKey(apiKey string) error {
	if !s.config.EnableAPIKeyValidation {
		return nil
	}
	switch {
	case apiKey == "":
		return fmt.Errorf("API key must not be empty")
	case len(apiKey) < 10:
		return fmt.Errorf("API key is too short")
	case len(apiKey) > 500:
		return fmt.Errorf("API key is too long")
	case !apiKeyPattern.MatchString(apiKey):
		return fmt.Errorf("API key contains invalid characters")
	}
	return nil
}

// ValidateURL accepts http and https URLs. Private network hosts are allowed
// but logged.
func (s *Service) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https URLs are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host != "localhost" && isPrivateHost(host) {
		s.logger.Warn("base URL points at a private network address", "host", host)
	}
	return nil
}

func isPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// CheckConversationLimit reports an error once count reaches the limit.
func (s *Service) CheckConversationLimit(count int) error {
	if limit := s.config.MaxConversationCount; limit > 0 && count >= limit {
		return fmt.Errorf("conversation limit reached (%d), delete some old conversations", limit)
	}
	return nil
}

// NopFilter passes text through unchanged.
type NopFilter struct{}

func (NopFilter) SanitizeInput(input string) string  { return input }
func (NopFilter) FilterOutput(output string) string { return output }
