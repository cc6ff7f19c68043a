package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := NewStore("", path)

	_, err := s.Token("default")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetToken("default", "jwt-1"))
	tok, err := s.Token("default")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok)

	// the keychain took it, nothing spilled to disk
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Delete("default"))
	_, err = s.Token("default")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackWhenKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: secret service not running"))
	t.Cleanup(keyring.MockInit)

	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := NewStore("raid-test", path)

	require.NoError(t, s.SetToken("alice", "jwt-a"))
	require.NoError(t, s.SetToken("bob", "jwt-b"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := s.Token("alice")
	require.NoError(t, err)
	assert.Equal(t, "jwt-a", tok)

	require.NoError(t, s.Delete("alice"))
	_, err = s.Token("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	tok, err = s.Token("bob")
	require.NoError(t, err)
	assert.Equal(t, "jwt-b", tok)
}

func TestNoFallbackConfigured(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring backend not available"))
	t.Cleanup(keyring.MockInit)

	s := NewStore("raid-test", "")
	assert.Error(t, s.SetToken("alice", "jwt"))
	assert.Error(t, s.SetToken(" ", "jwt"))
}
