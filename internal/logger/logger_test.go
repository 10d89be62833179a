package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(path, true)

	l.Debug("not in file")
	l.Info("session opened", zap.Int64("user_id", 42))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session opened", entry["message"])
	assert.EqualValues(t, 42, entry["user_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_WithoutFile(t *testing.T) {
	l := New("", false)
	assert.NotNil(t, l)
	l.Info("console only")
}
