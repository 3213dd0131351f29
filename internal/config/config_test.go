package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "UTC", cfg.LocalTimezone)
	assert.Equal(t, 5, cfg.CandidateLimit)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOCAL_TZ", "America/New_York")
	t.Setenv("CANDIDATE_LIMIT", "3")
	t.Setenv("SESSION_TTL", "1h")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "America/New_York", cfg.LocalTimezone)
	assert.Equal(t, 3, cfg.CandidateLimit)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("CANDIDATE_LIMIT", "lots")
	t.Setenv("SESSION_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 5, cfg.CandidateLimit)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}
