package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvAPIKey  = "OFFICECHAT_API_KEY"
	EnvBaseURL = "OFFICECHAT_BASE_URL"
	EnvModel   = "OFFICECHAT_MODEL"
)

// LoadEnv reads path into the environment. A missing file is not an error.
// Variables already set are left alone.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// EnvSettings returns a patch holding the settings present in the
// environment.
func EnvSettings() SettingsPatch {
	var p SettingsPatch
	if v, ok := os.LookupEnv(EnvAPIKey); ok && v != "" {
		p.APIKey = &v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok && v != "" {
		p.BaseURL = &v
	}
	if v, ok := os.LookupEnv(EnvModel); ok && v != "" {
		p.SelectedModel = &v
	}
	return p
}

// Seed fills the empty fields of s from p.
func (p SettingsPatch) Seed(s Settings) Settings {
	seeded := p.Apply(s)
	if s.APIKey != "" {
		seeded.APIKey = s.APIKey
	}
	if s.BaseURL != "" && s.BaseURL != DefaultBaseURL {
		seeded.BaseURL = s.BaseURL
	}
	if s.SelectedModel != "" && s.SelectedModel != ModelDeepSeekChat {
		seeded.SelectedModel = s.SelectedModel
	}
	return seeded
}
