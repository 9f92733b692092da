// Package stream supervises the encoder child process for one session:
// start/stop/status plus the relay that drains its output into the
// session log buffer.
package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"loopcast/internal/ffmpeg"
	"loopcast/internal/logbuf"
	"loopcast/internal/models"
)

// redactedKey replaces the stream key wherever it is echoed.
const redactedKey = "[REDACTED]"

// scannerBuffer sizes the relay line scanner; ffmpeg progress lines can
// get long.
const scannerBuffer = 256 * 1024

// Config holds the encoder settings a supervisor spawns with.
type Config struct {
	// FFmpegPath is the configured binary path; empty means auto-detect.
	FFmpegPath string
	// RTMPBase is the ingest endpoint prefix the stream key is appended to.
	RTMPBase string
	// StopGrace bounds the wait for a graceful exit before killing.
	StopGrace time.Duration
}

// StartRequest carries the parameters of a start operation.
type StartRequest struct {
	VideoPath string
	StreamKey string
	Mode      models.StreamMode
}

// Supervisor owns at most one live encoder process. All state lives here,
// one supervisor per session; there are no package globals.
type Supervisor struct {
	cfg    Config
	logs   *logbuf.Buffer
	logger *slog.Logger

	mu      sync.Mutex
	job     *models.StreamJob
	cmd     *ffmpeg.Command
	monitor *ffmpeg.ProcessMonitor
}

// New creates a supervisor writing relay output to logs.
func New(cfg Config, logs *logbuf.Buffer, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logs:   logs,
		logger: logger,
	}
}

// DestinationURL joins the ingest endpoint prefix and the stream key.
func DestinationURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Start validates the request, spawns the encoder and hands its merged
// output to the relay goroutine. It fails with models.ErrAlreadyRunning
// while a previous child is alive and models.ErrBinaryNotFound when no
// ffmpeg can be located; spawn failures surface as models.ErrSpawn.
// No failure is retried automatically.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (*models.StreamJob, error) {
	if req.Mode == "" {
		req.Mode = models.ModeStandard
	}
	job := models.NewStreamJob(req.VideoPath, req.StreamKey, req.Mode)
	if err := job.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.cmd.Running() {
		return nil, models.ErrAlreadyRunning
	}

	binary, err := ffmpeg.FindBinary(s.cfg.FFmpegPath)
	if err != nil {
		s.logs.Append("ffmpeg not found; install it and make sure it is on PATH")
		return nil, err
	}

	cmd := s.buildCommand(binary, req)
	s.logs.Appendf("starting stream: %s", req.VideoPath)
	s.logs.Appendf("running: %s", strings.ReplaceAll(cmd.String(), req.StreamKey, redactedKey))

	// The child must outlive the HTTP request that started it; its
	// lifetime is bound to Stop, not to the request context.
	out, err := cmd.Start(context.WithoutCancel(ctx))
	if err != nil {
		s.logs.Appendf("failed to start encoder: %v", err)
		s.logger.Error("encoder spawn failed",
			slog.String("video", req.VideoPath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", models.ErrSpawn, err)
	}

	job.PID = cmd.PID()
	monitor, merr := ffmpeg.NewProcessMonitor(job.PID)
	if merr == nil {
		monitor.Start()
	} else {
		monitor = nil
	}

	go s.relay(out, monitor)

	s.job = job
	s.cmd = cmd
	s.monitor = monitor

	s.logger.Info("stream started",
		slog.String("job_id", job.ID),
		slog.String("video", job.VideoPath),
		slog.String("mode", string(job.Mode)),
		slog.Int("pid", job.PID),
	)

	return job, nil
}

// buildCommand assembles the looping RTMP push invocation.
func (s *Supervisor) buildCommand(binary string, req StartRequest) *ffmpeg.Command {
	builder := ffmpeg.NewCommandBuilder(binary).
		Realtime().
		LoopInput().
		Input(req.VideoPath).
		VideoCodec("libx264").
		VideoPreset("veryfast").
		VideoBitrate("2500k", "2500k", "5000k").
		GOP(60, 60).
		AudioCodec("aac").
		AudioBitrate("128k")

	if req.Mode == models.ModeVertical {
		builder.VideoFilter("scale=720:1280")
	}

	return builder.
		Format("flv").
		Output(DestinationURL(s.cfg.RTMPBase, req.StreamKey)).
		Build()
}

// relay drains the merged encoder output into the log buffer, one
// timestamped line per entry, then appends the terminal marker. It
// tolerates the stream closing under it; scanner errors end the loop
// the same way EOF does.
func (s *Supervisor) relay(out io.ReadCloser, monitor *ffmpeg.ProcessMonitor) {
	defer out.Close()

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 64*1024), scannerBuffer)
	for scanner.Scan() {
		s.logs.Append(scanner.Text())
	}

	s.logs.Append("process ended")
	if monitor != nil {
		monitor.Stop()
	}
}

// Status reports the session's job state without blocking.
func (s *Supervisor) Status() models.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.cmd == nil:
		return models.JobStateIdle
	case s.cmd.Running():
		return models.JobStateRunning
	default:
		return models.JobStateExited
	}
}

// Job returns a copy of the current job, or nil when none was started.
func (s *Supervisor) Job() *models.StreamJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return nil
	}
	job := *s.job
	return &job
}

// Uptime returns how long the current child has been running.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return 0
	}
	return s.cmd.Duration()
}

// Stats returns resource usage of the child, or nil when not monitored.
func (s *Supervisor) Stats() *ffmpeg.ProcessStats {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()

	if monitor == nil {
		return nil
	}
	stats := monitor.Stats()
	return &stats
}

// Stop terminates the child gracefully, escalating to a kill after the
// grace period. With no live child it is a no-op reporting "nothing to
// stop". The stored handle is always cleared afterward; the stopped
// state is guaranteed regardless of how termination went.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || !cmd.Running() {
		s.logs.Append("nothing to stop")
		s.clear(cmd)
		return nil
	}

	s.logs.Append("stopping encoder")
	if err := cmd.Signal(syscall.SIGTERM); err != nil {
		s.logs.Appendf("failed to signal encoder: %v", err)
	}

	timer := time.NewTimer(s.cfg.StopGrace)
	defer timer.Stop()

	select {
	case <-cmd.Done():
		s.logs.Append("encoder stopped")
	case <-timer.C:
		s.logs.Appendf("%v; killing", models.ErrTermination)
		s.logger.Warn("graceful stop timed out, killing encoder", slog.Int("pid", cmd.PID()))
		_ = cmd.Kill()
		<-cmd.Done()
		s.logs.Append("encoder killed")
	}

	s.clear(cmd)
	s.logger.Info("stream stopped")
	return nil
}

// clear drops the stored handle, but only if it still belongs to cmd;
// a concurrent Start may have replaced it already.
func (s *Supervisor) clear(cmd *ffmpeg.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != cmd {
		return
	}
	s.cmd = nil
	s.job = nil
	s.monitor = nil
}
