package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopcast/internal/config"
)

func testConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "debug", Format: "json"}
}

func TestNewLoggerWithWriterFormats(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(testConfig(), &buf)
		logger.Info("hello", slog.String("video", "test.mp4"))

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "test.mp4", record["video"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := testConfig()
		cfg.Format = "text"
		logger := NewLoggerWithWriter(cfg, &buf)
		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})
}

func TestLoggerRedactsStreamKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(testConfig(), &buf)
	logger.Info("starting stream", slog.String("stream_key", "abc123"))

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, "[REDACTED]")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Level = "warn"
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
