package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFileKeyring(t *testing.T) *Keyring {
	t.Helper()
	k, err := Open(Config{FileDir: t.TempDir(), FilePassword: "test-password", FileOnly: true})
	require.NoError(t, err)
	return k
}

func TestKeyringRoundTrip(t *testing.T) {
	k := openFileKeyring(t)

	key, err := k.APIKey()
	require.NoError(t, err)
	assert.Empty(t, key, "nothing stored yet")

	require.NoError(t, k.SetAPIKey("sk-abcdef1234567890"))
	key, err = k.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-abcdef1234567890", key)

	require.NoError(t, k.SetAPIKey(""))
	key, err = k.APIKey()
	require.NoError(t, err)
	assert.Empty(t, key)

	require.NoError(t, k.SetAPIKey(""), "removing twice is fine")
}

func TestRemoveWithoutStoredKey(t *testing.T) {
	k := openFileKeyring(t)
	require.NoError(t, k.SetAPIKey(""))

	key, err := k.APIKey()
	require.NoError(t, err)
	assert.Empty(t, key)
}
