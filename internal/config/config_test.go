package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "AI_TIMEOUT_MS", "AI_CACHE_TTL_MS", "AI_CACHE_REMOTE_ENABLED", "APP_LOCALE", "AI_USE_RESPONSE_FORMAT", "DATA_SOURCE", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DataSource)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, DefaultAI().Timeout, cfg.AI.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.AI.CacheTTL)
	assert.True(t, cfg.AI.RemoteEnabled)
	assert.Equal(t, 700*time.Millisecond, cfg.AI.RemoteTimeout)
	assert.Equal(t, "th-TH", cfg.AI.Locale)
	assert.False(t, cfg.AI.UseResponseFormat)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AI_TIMEOUT_MS", "1500")
	t.Setenv("AI_CACHE_TTL_MS", "not-a-number")
	t.Setenv("AI_CACHE_REMOTE_ENABLED", "no")
	t.Setenv("AI_USE_RESPONSE_FORMAT", "YES")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg := FromEnv()
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, cfg.AI.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.AI.CacheTTL)
	assert.False(t, cfg.AI.RemoteEnabled)
	assert.True(t, cfg.AI.UseResponseFormat)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestStageKeysFallBack(t *testing.T) {
	c := AIConfig{APIKey: "default", APIKeyReco: "reco"}
	assert.Equal(t, "default", c.InsightKey())
	assert.Equal(t, "reco", c.RecoKey())
}

func TestLoadDotEnv(t *testing.T) {
	os.Unsetenv("AI_MODEL_INSIGHT")
	t.Cleanup(func() { os.Unsetenv("AI_MODEL_INSIGHT") })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AI_MODEL_INSIGHT=gpt-test\n"), 0o600))

	cfg := Load(path)
	assert.Equal(t, "gpt-test", cfg.AI.ModelInsight)
}
