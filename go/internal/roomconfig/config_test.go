package roomconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ROOMS", "DEFAULT_DURATION_MS", "TICK_INTERVAL_MS", "CORS_ALLOWED_ORIGINS", "NATS_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := NewConfigFromEnv()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"room1", "room2", "room3"}, cfg.Rooms)
	assert.Equal(t, 5*time.Minute, cfg.DefaultDuration)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, []string{"http://localhost"}, cfg.AllowedOrigins)
	assert.False(t, cfg.NATS.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8090")
	t.Setenv("ROOMS", " alpha, beta ,,gamma")
	t.Setenv("DEFAULT_DURATION_MS", "60000")
	t.Setenv("TICK_INTERVAL_MS", "not-a-number")
	t.Setenv("NATS_ENABLED", "true")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Rooms)
	assert.Equal(t, time.Minute, cfg.DefaultDuration)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoadWithFile(t *testing.T) {
	t.Setenv("ROOMS", "")
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rooms:
  - kitchen
  - lounge
default_duration_ms: 90000
tick_interval_ms: 500
allowed_origins:
  - https://timer.example.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen", "lounge"}, cfg.Rooms)
	assert.Equal(t, 90*time.Second, cfg.DefaultDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, []string{"https://timer.example.com"}, cfg.AllowedOrigins)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rooms.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rooms: [unterminated"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})

	t.Run("duplicate rooms", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rooms.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rooms: [a, a]\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `duplicate room "a"`)
	})
}

func TestValidate(t *testing.T) {
	cfg := Config{
		NATS: NATSConfig{Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one room is required")
	assert.Contains(t, err.Error(), "default duration must be positive")
	assert.Contains(t, err.Error(), "tick interval must be positive")
	assert.Contains(t, err.Error(), "NATS_URL is required")
}
