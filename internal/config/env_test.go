package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, 20, cfg.Upload.MaxFiles)
	assert.Equal(t, "temp", cfg.Store.Dir)
	assert.Equal(t, 5*time.Minute, cfg.Store.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Store.SweepInterval)
	assert.Empty(t, cfg.Store.IndexPath)
	assert.Empty(t, cfg.Stats.RedisURL)
	assert.Equal(t, "stats:total_api_hits", cfg.Stats.Key)
	assert.Equal(t, "soffice", cfg.Converter.Binary)
	assert.Equal(t, 150, cfg.Render.DPI)
	assert.False(t, cfg.Fetch.Enabled)
	assert.False(t, cfg.Logging.Pretty)
	assert.Equal(t, "pdforganizer", cfg.Logging.Service)
	assert.Equal(t, "production", cfg.Logging.Environment)
	assert.Equal(t, "dev_pdforganizer", cfg.Axiom.Dataset)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MAX_UPLOAD_MB", "25")
	t.Setenv("MAX_UPLOAD_FILES", "5")
	t.Setenv("TEMP_RETENTION", "90s")
	t.Setenv("SWEEP_INTERVAL", "garbage")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("REMOTE_FETCH_ENABLED", "yes")
	t.Setenv("ENVIRONMENT", "Dev")
	t.Setenv("SERVICE_NAME", "pdf-edge")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := FromEnv()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(25<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.Equal(t, 90*time.Second, cfg.Store.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Store.SweepInterval)
	assert.Equal(t, "redis://cache:6379/1", cfg.Stats.RedisURL)
	assert.True(t, cfg.Fetch.Enabled)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, "pdf-edge", cfg.Logging.Service)
	assert.Equal(t, "dev", cfg.Logging.Environment)
	assert.Equal(t, "prod_pdf-edge", cfg.Axiom.Dataset)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 3, parseInt(" 3 ", 1))
	assert.Equal(t, 1, parseInt("-3", 1))
	assert.Equal(t, int64(7), parseInt64("x", 7))
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, parseBool(v), v)
	}
	assert.False(t, parseBool("0"))
	assert.Equal(t, time.Second, parseDuration("-5s", time.Second))
	assert.Empty(t, parseList(" , "))
}
