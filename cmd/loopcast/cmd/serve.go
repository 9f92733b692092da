package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"loopcast/internal/config"
	"loopcast/internal/ffmpeg"
	internalhttp "loopcast/internal/http"
	"loopcast/internal/http/handlers"
	"loopcast/internal/observability"
	"loopcast/internal/session"
	"loopcast/internal/storage"
	"loopcast/internal/stream"
	"loopcast/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the loopcast server",
	Long: `Start the loopcast HTTP server and web UI.

The server provides:
- Web UI for uploading videos and controlling the stream
- REST API under /api/v1 with OpenAPI documentation at /docs
- Health check endpoint at /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("upload-dir", "", "Directory receiving uploaded videos")
	serveCmd.Flags().String("ffmpeg", "", "Path to the ffmpeg binary (default: auto-detect)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// First run drops a commented starter config next to the binary,
	// unless the operator pointed at one explicitly.
	var wroteConfig bool
	if cfgFile == "" {
		wroteConfig, _ = config.WriteDefaultFile("config.yaml")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("upload-dir") {
		cfg.Storage.UploadDir, _ = flags.GetString("upload-dir")
	}
	if flags.Changed("ffmpeg") {
		cfg.Stream.FFmpegPath, _ = flags.GetString("ffmpeg")
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	if wroteConfig {
		logger.Info("wrote default config file", slog.String("path", "config.yaml"))
	}

	store, err := storage.New(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("initializing upload storage: %w", err)
	}

	sessions := session.NewManager(stream.Config{
		FFmpegPath: cfg.Stream.FFmpegPath,
		RTMPBase:   cfg.Stream.RTMPBase,
		StopGrace:  cfg.Stream.StopGrace,
	}, logger)

	// Probe the encoder once at startup so a missing binary is visible
	// immediately, not only on the first start attempt.
	if binary, err := ffmpeg.FindBinary(cfg.Stream.FFmpegPath); err == nil {
		if v, verr := ffmpeg.Version(cmd.Context(), binary); verr == nil {
			logger.Info("ffmpeg found", slog.String("path", binary), slog.String("version", v))
		} else {
			logger.Warn("ffmpeg found but version probe failed", slog.String("path", binary))
		}
	} else {
		logger.Warn("ffmpeg not found, streaming will be unavailable until it is installed")
	}

	// Background sweeps: stale uploads when a retention window is set, and
	// idle sessions so cookie-less or abandoned browsers do not pin state
	// for the life of the server.
	sweeper := cron.New(cron.WithSeconds())
	if cfg.Storage.UploadRetention > 0 {
		_, err := sweeper.AddFunc(cfg.Storage.SweepCron, func() {
			removed, err := store.SweepStale(cfg.Storage.UploadRetention)
			if err != nil {
				logger.Warn("upload sweep failed", slog.String("error", err.Error()))
			}
			if removed > 0 {
				logger.Info("swept stale uploads", slog.Int("removed", removed))
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling upload sweep: %w", err)
		}
	}
	if cfg.Server.SessionIdle > 0 {
		_, err := sweeper.AddFunc("0 */5 * * * *", func() {
			if evicted := sessions.EvictIdle(cfg.Server.SessionIdle); evicted > 0 {
				logger.Info("evicted idle sessions", slog.Int("evicted", evicted))
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling session sweep: %w", err)
		}
	}
	sweeper.Start()
	defer sweeper.Stop()

	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	if cfg.Server.ReadTimeout > 0 {
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	}
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	if cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}

	server := internalhttp.NewServer(serverConfig, sessions, logger, version.Version)

	// The working directory is also browsed for videos, so a file placed
	// next to the binary can be streamed without uploading.
	const localDir = "."

	healthHandler := handlers.NewHealthHandler(version.Version, cfg.Stream.FFmpegPath, sessions)
	healthHandler.Register(server.API())

	streamHandler := handlers.NewStreamHandler(store, localDir)
	streamHandler.Register(server.API())

	videosHandler := handlers.NewVideosHandler(store, cfg.Storage.MaxUploadSize, logger, localDir)
	videosHandler.Register(server.API())
	videosHandler.RegisterUpload(server.Router())

	logsHandler := handlers.NewLogsHandler()
	logsHandler.Register(server.API())
	logsHandler.RegisterSSE(server.Router())

	if err := handlers.RegisterStatic(server.Router()); err != nil {
		return fmt.Errorf("mounting web UI: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting loopcast server",
		slog.String("address", cfg.Server.Address()),
		slog.String("upload_dir", store.Dir()),
		slog.String("version", version.Version),
	)

	err = server.ListenAndServe(ctx)

	// Leave no encoder pushing after the control plane is gone.
	sessions.StopAll(context.Background())

	return err
}
