package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaultsAndPatch(t *testing.T) {
	s := Settings{APIKey: "k"}.WithDefaults()
	assert.Equal(t, ModelDeepSeekChat, s.SelectedModel)
	assert.Equal(t, DefaultBaseURL, s.BaseURL)

	url := "  https://proxy.example.com  "
	s = SettingsPatch{BaseURL: &url}.Apply(s)
	assert.Equal(t, "https://proxy.example.com", s.BaseURL)
	assert.Equal(t, "k", s.APIKey)

	assert.True(t, IsKnownModel(ModelDeepSeekReasoner))
	assert.False(t, IsKnownModel("gpt-4"))
}

func TestLoadEnvAndSeed(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvAPIKey+"=sk-from-env-123456\n"+EnvModel+"=deepseek-reasoner\n"), 0o600))
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")
	os.Unsetenv(EnvAPIKey)
	os.Unsetenv(EnvModel)
	require.NoError(t, LoadEnv(path))

	patch := EnvSettings()
	require.NotNil(t, patch.APIKey)
	assert.Nil(t, patch.BaseURL)

	seeded := patch.Seed(DefaultSettings())
	assert.Equal(t, "sk-from-env-123456", seeded.APIKey)
	assert.Equal(t, ModelDeepSeekReasoner, seeded.SelectedModel)

	kept := patch.Seed(Settings{APIKey: "sk-stored", SelectedModel: ModelDeepSeekChat, BaseURL: DefaultBaseURL})
	assert.Equal(t, "sk-stored", kept.APIKey, "stored settings win")
}
