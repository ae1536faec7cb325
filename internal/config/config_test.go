package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets optional variables for the test; t.Setenv restores them.
func clearEnv(t *testing.T) {
	for _, key := range []string{"DEEPMED_API_KEY", "PORT", "REDIS_URL", "JWT_SECRET", "ADMIN_USERNAME", "ADMIN_PASSWORD_HASH", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/deepmed")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/deepmed", cfg.Database.URL)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "amazon/nova-2-lite-v1:free", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Places.OverpassURL)
	assert.Equal(t, 30*time.Second, cfg.Places.Timeout)
	assert.Equal(t, 5, cfg.Outbox.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Outbox.ClaimLease)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.False(t, cfg.Admin.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://db/deepmed")
	t.Setenv("DEEPMED_API_KEY", "sk-test")
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.True(t, cfg.Admin.Enabled())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/deepmed")

	dir := t.TempDir()
	yaml := []byte(`
llm:
  model: meta/llama-3
  timeout: 20s
places:
  cache_ttl: 1m
outbox:
  batch_size: 10
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "meta/llama-3", cfg.LLM.Model)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, time.Minute, cfg.Places.CacheTTL)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
}

func TestLoad_FileAPIKeyKeptWithoutEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/deepmed")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("llm:\n  api_key: sk-from-file\n"), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey)

	t.Setenv("DEEPMED_API_KEY", "sk-from-env")
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_BadConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/deepmed")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("llm: [unterminated"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
