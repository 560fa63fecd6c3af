package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew(t *testing.T) {
	t.Run("should write JSON records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("info", "json", &buf)
		logger.Info("staged", "job_id", "openmoji-1", "files", 3)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "staged", rec["msg"])
		assert.Equal(t, "openmoji-1", rec["job_id"])
	})

	t.Run("should filter below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("warn", "text", &buf)
		logger.Info("hidden")
		assert.Empty(t, buf.String())

		logger.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})
}
