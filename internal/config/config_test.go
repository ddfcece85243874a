package config_test

import (
	"testing"
	"time"

	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() config.Config {
	return config.Config{
		ServerPort:       "8080",
		LocalDBPath:      "test.db",
		OwnerID:          "owner-1",
		ExamDuration:     2 * time.Hour,
		LockDelay:        5 * time.Second,
		TickInterval:     250 * time.Millisecond,
		SyncInterval:     15 * time.Minute,
		RemoteChunkSize:  10,
		RemoteRatePerSec: 20,

		RateLimitPerMinute: 600,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty owner", func(c *config.Config) { c.OwnerID = "" }, "OWNER_ID cannot be empty"},
		{"empty db path", func(c *config.Config) { c.LocalDBPath = "" }, "LOCAL_DB_PATH cannot be empty"},
		{"zero duration", func(c *config.Config) { c.ExamDuration = 0 }, "EXAM_DURATION_MINUTES must be positive"},
		{"lock longer than exam", func(c *config.Config) { c.LockDelay = 3 * time.Hour }, "must be shorter than the exam duration"},
		{"zero tick", func(c *config.Config) { c.TickInterval = 0 }, "SESSION_TICK_MS must be positive"},
		{"zero chunk", func(c *config.Config) { c.RemoteChunkSize = 0 }, "REMOTE_CHUNK_SIZE must be positive"},
		{"zero api rate", func(c *config.Config) { c.RateLimitPerMinute = 0 }, "RATE_LIMIT_PER_MINUTE must be positive"},
		{"zero rate", func(c *config.Config) { c.RemoteRatePerSec = 0 }, "REMOTE_RATE_PER_SEC must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("OWNER_ID", "owner-env")
	t.Setenv("QUESTION_LOCK_MS", "1500")
	t.Setenv("REMOTE_CHUNK_SIZE", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg := config.Load()

	assert.Equal(t, "owner-env", cfg.OwnerID)
	assert.Equal(t, 1500*time.Millisecond, cfg.LockDelay)
	assert.Equal(t, 10, cfg.RemoteChunkSize, "invalid ints fall back to the default")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
}
