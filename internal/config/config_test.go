package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("UPLOAD_ALLOWED_MIME_TYPES", "")
	t.Setenv("SYNC_PROPERTY_IDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, []string{"image/jpeg", "image/png", "application/pdf"}, cfg.Upload.AllowedMimeTypes)
	assert.Equal(t, 1000, cfg.Client.BackoffBaseMS)
	assert.Equal(t, 5000, cfg.Client.BackoffCapMS)
	assert.Equal(t, 5, cfg.Client.MaxAttempts)
	assert.Empty(t, cfg.Client.PropertyIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SYNC_PROPERTY_IDS", "p-1, p-2,,")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("REALTIME_SESSION_BUFFER", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, []string{"p-1", "p-2"}, cfg.Client.PropertyIDs)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, 32, cfg.Realtime.SessionBuffer)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	_, err := Load()
	assert.Error(t, err)
}
