// Package config provides configuration management for loopcast using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadSize   = 4 * Gibibyte
	defaultStopGrace       = 5 * time.Second
	defaultRTMPBase        = "rtmp://a.rtmp.youtube.com/live2"
	defaultSweepCron       = "0 0 3 * * *"
	defaultSessionIdle     = 30 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SessionIdle evicts browser sessions with no activity for this long,
	// unless a stream is running. Zero disables eviction.
	SessionIdle time.Duration `mapstructure:"session_idle"`
}

// StorageConfig holds upload storage configuration.
type StorageConfig struct {
	// UploadDir is the directory receiving uploaded videos.
	UploadDir string `mapstructure:"upload_dir"`
	// MaxUploadSize is the maximum allowed upload size.
	// Supports human-readable values like "4GB" or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
	// UploadRetention removes uploads older than this window when the
	// sweeper runs. Zero disables the sweep entirely.
	UploadRetention time.Duration `mapstructure:"upload_retention"`
	// SweepCron is the 6-field cron expression for the retention sweep.
	SweepCron string `mapstructure:"sweep_cron"`
}

// StreamConfig holds encoder and RTMP destination configuration.
type StreamConfig struct {
	// FFmpegPath is the path to the ffmpeg binary (empty = auto-detect).
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	// RTMPBase is the ingest endpoint prefix the stream key is appended to.
	RTMPBase string `mapstructure:"rtmp_base"`
	// StopGrace is how long to wait for ffmpeg to exit after a graceful
	// termination signal before it is killed.
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with LOOPCAST_, using underscores for nesting.
// Example: LOOPCAST_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/loopcast")
		v.AddConfigPath("$HOME/.loopcast")
	}

	v.SetEnvPrefix("LOOPCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	// The text-unmarshaller hook lets ByteSize fields accept values like
	// "4GB"; viper's default hooks cover durations only.
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.session_idle", defaultSessionIdle)

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.max_upload_size", int64(defaultMaxUploadSize))
	v.SetDefault("storage.upload_retention", time.Duration(0))
	v.SetDefault("storage.sweep_cron", defaultSweepCron)

	v.SetDefault("stream.ffmpeg_path", "")
	v.SetDefault("stream.rtmp_base", defaultRTMPBase)
	v.SetDefault("stream.stop_grace", defaultStopGrace)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// WriteDefaultFile writes a default config.yaml at path if no file exists
// there yet. The shipped default raises the upload limit to 4GB so large
// videos can be received out of the box. Returns true if a file was written.
func WriteDefaultFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking config file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("creating config dir: %w", err)
		}
	}

	content := `server:
  host: 0.0.0.0
  port: 8080
  session_idle: 30m

storage:
  upload_dir: uploads
  max_upload_size: 4GB

stream:
  rtmp_base: rtmp://a.rtmp.youtube.com/live2
  stop_grace: 5s

logging:
  level: info
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing default config: %w", err)
	}
	return true, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Server.SessionIdle < 0 {
		return fmt.Errorf("server.session_idle must not be negative")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	if c.Stream.RTMPBase == "" {
		return fmt.Errorf("stream.rtmp_base is required")
	}
	if !strings.HasPrefix(c.Stream.RTMPBase, "rtmp://") && !strings.HasPrefix(c.Stream.RTMPBase, "rtmps://") {
		return fmt.Errorf("stream.rtmp_base must be an rtmp:// or rtmps:// URL")
	}
	if c.Stream.StopGrace <= 0 {
		return fmt.Errorf("stream.stop_grace must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
