package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("DISPATCH_CONCURRENCY", "")
	t.Setenv("MINIO_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.App.Port)
	assert.Equal(t, 4, cfg.Dispatch.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Timeout())
	assert.Equal(t, int64(5*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.False(t, cfg.Storage.MinioEnabled())
	assert.Equal(t, "feedback.exchange", cfg.Broker.Exchange)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DISPATCH_CONCURRENCY", "8")
	t.Setenv("REALTIME_REDIS_RELAY", "true")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.App.Addr())
	assert.Equal(t, 8, cfg.Dispatch.Concurrency)
	assert.True(t, cfg.Realtime.RedisRelay)
	assert.True(t, cfg.Storage.MinioEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("REDIS_DB", "0")
	t.Setenv("DISPATCH_CONCURRENCY", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), AppConfig{}.RequestTimeout())
	assert.Equal(t, 5*time.Second, AppConfig{RequestTimeoutSeconds: 5}.RequestTimeout())
}

func TestLoad_RateLimitDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.App.RateLimitMax)
	assert.Equal(t, 10*time.Minute, cfg.App.RateLimitWindow())
	assert.Equal(t, "https://app.example.com", cfg.App.CORSAllowedOrigins)
	assert.Equal(t, 10*time.Minute, AppConfig{}.RateLimitWindow())
	assert.Equal(t, time.Minute, AppConfig{RateLimitWindowSeconds: 60}.RateLimitWindow())
}
