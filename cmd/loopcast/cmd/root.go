// Package cmd implements the CLI commands for loopcast.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"loopcast/internal/config"
	"loopcast/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "loopcast",
	Short:   "Loop a video file to a YouTube RTMP ingest endpoint",
	Version: version.Short(),
	Long: `loopcast serves a small web UI where an operator uploads a video file
and pushes it as a continuous looping live stream to YouTube via RTMP.

The encoder runs as a supervised ffmpeg child process; its output is
relayed to a per-session log panel in the UI.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/loopcast, $HOME/.loopcast)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and applies explicit CLI flag overrides.
// Priority: CLI flag > env var > config file > default; viper handles all
// but the first, so only flags the user actually set override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
