package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.DefaultModel)
	assert.Equal(t, 1800*time.Millisecond, cfg.ThinkingPeriod)
	assert.Equal(t, 12*time.Hour, cfg.SessionIdleTTL)
	assert.Zero(t, cfg.HTTPTimeout)
	assert.Equal(t, "@every 6h", cfg.ModelsRefreshSpec)
	assert.Equal(t, "HTML", cfg.MessageParseMode)
	assert.False(t, cfg.VerifyAPIKey)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALLOWED_USERS", "10:20:30")
	t.Setenv("ADMIN_USER", "10")
	t.Setenv("THINKING_PERIOD", "2s")
	t.Setenv("RAGCHAT_API_URL", "https://rag.example.com")
	t.Setenv("VERIFY_API_KEY", "true")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, cfg.AllowedUsers)
	assert.Equal(t, int64(10), cfg.AdminUserID)
	assert.Equal(t, 2*time.Second, cfg.ThinkingPeriod)
	assert.Equal(t, "https://rag.example.com", cfg.APIURL)
	assert.True(t, cfg.VerifyAPIKey)
}

func TestParse_RequiresBotToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	require.NoError(t, os.Unsetenv("TELEGRAM_BOT_TOKEN"))
	_, err := Parse()
	assert.Error(t, err)
}
