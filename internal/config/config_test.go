package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "raid.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Error(t, cfg.Validate(), "no token secret")
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("RAID_ADDR", "127.0.0.1:9999")
	t.Setenv("RAID_TOKEN_SECRET", "0123456789abcdef0123")
	t.Setenv("RAID_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RAID_REQUEST_TIMEOUT", "2s")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadServerBadDuration(t *testing.T) {
	t.Setenv("RAID_REQUEST_TIMEOUT", "soon")
	_, err := LoadServer()
	assert.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("RAID_API_URL", "https://raid.example")
	t.Setenv("RAID_RETRY_MAX", "2")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://raid.example", cfg.APIURL)
	assert.Equal(t, uint64(2), cfg.RetryMax)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
}
