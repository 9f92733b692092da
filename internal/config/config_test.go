package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, int64(4*Gibibyte), cfg.Storage.MaxUploadSize.Bytes())
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2", cfg.Stream.RTMPBase)
	assert.Equal(t, 5*time.Second, cfg.Stream.StopGrace)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionIdle)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
storage:
  upload_dir: videos
  max_upload_size: 512MB
stream:
  rtmp_base: rtmp://example.com/live
  stop_grace: 10s
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "videos", cfg.Storage.UploadDir)
	assert.Equal(t, int64(512*Mebibyte), cfg.Storage.MaxUploadSize.Bytes())
	assert.Equal(t, "rtmp://example.com/live", cfg.Stream.RTMPBase)
	assert.Equal(t, 10*time.Second, cfg.Stream.StopGrace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
			Storage: StorageConfig{UploadDir: "uploads", MaxUploadSize: 4 * Gibibyte},
			Stream:  StreamConfig{RTMPBase: "rtmp://a.rtmp.youtube.com/live2", StopGrace: 5 * time.Second},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing upload dir", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.UploadDir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-rtmp base URL", func(t *testing.T) {
		cfg := valid()
		cfg.Stream.RTMPBase = "http://example.com/live"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestWriteDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	written, err := WriteDefaultFile(path)
	require.NoError(t, err)
	assert.True(t, written)

	// The written file must load cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4*Gibibyte), cfg.Storage.MaxUploadSize.Bytes())

	// Second call must not overwrite.
	written, err = WriteDefaultFile(path)
	require.NoError(t, err)
	assert.False(t, written)
}
