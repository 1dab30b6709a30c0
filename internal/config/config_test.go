package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/fetchkit/cache"
)

// clearEnv unsets every variable Load reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		PathEnv, "PORT", "FETCHKIT_LOG_LEVEL",
		"FETCHKIT_CACHE_DIR", "FETCHKIT_SESSION_DSN", "FETCHKIT_CACHE_TTL",
		"FETCHKIT_CACHE_MAX_ENTRIES", "FETCHKIT_CACHE_SWEEP_INTERVAL",
		"FETCHKIT_GRAPHQL_URL", "FETCHKIT_RETRY_ATTEMPTS", "FETCHKIT_RETRY_DELAY",
		"WEATHER_API_URL", "WEATHER_API_KEY", "CONTACTS_GRAPHQL_URL", "CONTACTS_TOKEN",
		"FETCHKIT_ADMIN_TOKEN",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fetchkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, cache.DefaultTTL, cfg.Cache.DefaultTTL)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, "http://localhost:4001/graphql", cfg.Fetch.GraphQLEndpoint)
	assert.Equal(t, time.Second, cfg.Fetch.RetryDelay)
	assert.Zero(t, cfg.Fetch.RetryAttempts)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".fetchkit_cache", "local"), cfg.Cache.Dir)
	assert.False(t, cfg.HasWeather())
	assert.True(t, cfg.HasContacts())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OWM_KEY", "from-env-expansion")

	path := writeConfig(t, `
cache:
  dir: /tmp/fk
  default_ttl: 10m
  max_entries: 5
fetch:
  retry_attempts: 3
  retry_delay: 250ms
weather:
  api_url: https://weather.example/data
  api_key: ${OWM_KEY}
log_level: debug
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fk", cfg.Cache.Dir)
	assert.Equal(t, 10*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 5, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.Fetch.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.RetryDelay)
	assert.Equal(t, "from-env-expansion", cfg.Weather.APIKey)
	assert.True(t, cfg.HasWeather())
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestEnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "cache:\n  max_entries: 5\nport: \"9000\"\n")

	t.Setenv(PathEnv, path)
	t.Setenv("FETCHKIT_CACHE_MAX_ENTRIES", "42")
	t.Setenv("FETCHKIT_CACHE_TTL", "30s")
	t.Setenv("CONTACTS_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "tok", cfg.Contacts.Token)
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)

	t.Setenv("FETCHKIT_CACHE_MAX_ENTRIES", "lots")
	_, err := Load()
	assert.Error(t, err, "unparsable number")

	t.Setenv("FETCHKIT_CACHE_MAX_ENTRIES", "0")
	_, err = Load()
	assert.Error(t, err, "zero capacity")

	t.Setenv("FETCHKIT_CACHE_MAX_ENTRIES", "")
	_ = os.Unsetenv("FETCHKIT_CACHE_MAX_ENTRIES")
	t.Setenv("FETCHKIT_LOG_LEVEL", "loud")
	_, err = Load()
	assert.Error(t, err, "unknown log level")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Cache.DefaultTTL = 0
	cfg.Fetch.RetryAttempts = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_ttl")
	assert.Contains(t, err.Error(), "retry_attempts")
}
