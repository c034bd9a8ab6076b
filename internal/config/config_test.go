package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BACKEND_URL", "http://backend.test")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.Retries)
	assert.Equal(t, filepath.Join("./data", "dubber.db"), cfg.Storage.DBPath)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.AudioRetention())
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.PrefetchWindow)
	assert.Equal(t, 60*time.Second, cfg.Sync.GenerationWindow)
	assert.Equal(t, 300*time.Millisecond, cfg.Player.FadeOut)
	assert.Equal(t, 500*time.Millisecond, cfg.Player.ReplayThreshold)
	assert.Equal(t, 3, cfg.Generation.MaxRetries)
	assert.Equal(t, time.Second, cfg.Generation.BaseBackoff)
	assert.Equal(t, ":8787", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "en", cfg.Sync.DefaultLanguage.String())
}

func TestNewFromEnv_RequiresBackendURL(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BACKEND_URL", "")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_RejectsBadCron(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BACKEND_URL", "http://backend.test")
	t.Setenv("MAINTENANCE_CRON", "bad cron")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_ReadsDotEnvWithoutOverriding(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BACKEND_URL=http://from-file.test\nHTTP_ALLOWED_ORIGINS=http://a.test, http://b.test\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("HTTP_ADDR", ":9999")
	// godotenv only fills unset variables; t.Setenv restores them afterwards
	t.Setenv("BACKEND_URL", "")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "")
	require.NoError(t, os.Unsetenv("BACKEND_URL"))
	require.NoError(t, os.Unsetenv("HTTP_ALLOWED_ORIGINS"))

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://from-file.test", cfg.Backend.BaseURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestNewFromEnv_OptionsOverrideEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BACKEND_URL", "http://env.test")
	t.Setenv("SYNC_TICK_MS", "250")

	cfg, err := NewFromEnv(
		WithBackendURL("http://flag.test"),
		WithDataDir("/tmp/dubber"),
		WithHTTPAddr(":1234"),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://flag.test", cfg.Backend.BaseURL)
	assert.Equal(t, filepath.Join("/tmp/dubber", "dubber.db"), cfg.Storage.DBPath)
	assert.Equal(t, ":1234", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.TickInterval)
}
