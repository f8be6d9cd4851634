package config

import (
	"strings"
	"time"
)

const (
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"

	DefaultBaseURL = "https://api.deepseek.com"
)

// Models lists the models the settings page offers.
var Models = []string{ModelDeepSeekChat, ModelDeepSeekReasoner}

// Config holds process configuration
type Config struct {
	DBPath string
	LogDir string
	Debug  bool

	// Completion parameters used for every send
	Stream      bool
	Temperature float64
	MaxTokens   int

	SaveDelay  time.Duration // trailing debounce before state is persisted
	MaxBackups int

	// RequestsPerMinute paces outbound completion requests (0 = unlimited)
	RequestsPerMinute int

	// Keyring storage for the API key
	UseKeyring bool
	KeyringDir string // file backend directory, used when no OS keychain is available

	Telemetry bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		DBPath:      "officechat.db",
		LogDir:      "logs",
		Stream:      true,
		Temperature: 0.7,
		MaxTokens:   4000,
		SaveDelay:   500 * time.Millisecond,
		MaxBackups:  5,
	}
}

// Settings are the user-editable options persisted with the chat data.
type Settings struct {
	APIKey        string `json:"apiKey"`
	SelectedModel string `json:"selectedModel"`
	BaseURL       string `json:"baseUrl"`
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() Settings {
	return Settings{
		SelectedModel: ModelDeepSeekChat,
		BaseURL:       DefaultBaseURL,
	}
}

// WithDefaults fills empty fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	def := DefaultSettings()
	if s.SelectedModel == "" {
		s.SelectedModel = def.SelectedModel
	}
	if s.BaseURL == "" {
		s.BaseURL = def.BaseURL
	}
	return s
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	APIKey        *string
	SelectedModel *string
	BaseURL       *string
}

// Apply returns s with the non-nil fields of p applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.APIKey != nil {
		s.APIKey = strings.TrimSpace(*p.APIKey)
	}
	if p.SelectedModel != nil {
		s.SelectedModel = strings.TrimSpace(*p.SelectedModel)
	}
	if p.BaseURL != nil {
		s.BaseURL = strings.TrimSpace(*p.BaseURL)
	}
	return s
}

// IsKnownModel reports whether model is one of Models.
func IsKnownModel(model string) bool {
	for _, m := range Models {
		if m == model {
			return true
		}
	}
	return false
}
