// Package handlers provides the HTTP API handlers for loopcast.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"loopcast/internal/models"
	"loopcast/internal/session"
	"loopcast/internal/storage"
	"loopcast/internal/stream"
)

// StreamHandler handles the start/stop/status operations of a session's
// stream.
type StreamHandler struct {
	store     *storage.Store
	extraDirs []string
}

// NewStreamHandler creates a stream handler resolving videos against
// store and extraDirs.
func NewStreamHandler(store *storage.Store, extraDirs ...string) *StreamHandler {
	return &StreamHandler{store: store, extraDirs: extraDirs}
}

// StartStreamInput is the input for starting a stream.
type StartStreamInput struct {
	Body struct {
		VideoPath string `json:"video_path" doc:"Path of an uploaded or local video"`
		StreamKey string `json:"stream_key" doc:"YouTube stream key; never echoed back"`
		Vertical  bool   `json:"vertical,omitempty" doc:"Scale to 720x1280 for vertical streaming"`
	}
}

// StreamJobBody describes a stream job in API responses. The stream key
// is deliberately absent.
type StreamJobBody struct {
	ID        string            `json:"id"`
	VideoPath string            `json:"video_path"`
	Mode      models.StreamMode `json:"mode"`
	PID       int               `json:"pid,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}

// StartStreamOutput is the output for starting a stream.
type StartStreamOutput struct {
	Body StreamJobBody
}

// StopStreamInput is the input for stopping a stream.
type StopStreamInput struct{}

// StopStreamOutput is the output for stopping a stream.
type StopStreamOutput struct {
	Body struct {
		State models.JobState `json:"state"`
	}
}

// StreamStatusInput is the input for the status operation.
type StreamStatusInput struct{}

// StreamStatusBody is the response body of the status operation.
type StreamStatusBody struct {
	State  models.JobState  `json:"state"`
	Job    *StreamJobBody   `json:"job,omitempty"`
	Uptime string           `json:"uptime,omitempty"`
	Stats  *ffmpegStatsBody `json:"stats,omitempty"`
}

type ffmpegStatsBody struct {
	PID            int32   `json:"pid"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
}

// StreamStatusOutput is the output for the status operation.
type StreamStatusOutput struct {
	Body StreamStatusBody
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startStream",
		Method:      "POST",
		Path:        "/api/v1/stream/start",
		Summary:     "Start streaming",
		Description: "Spawns the encoder pushing the chosen video to the RTMP ingest endpoint on a loop",
		Tags:        []string{"Stream"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopStream",
		Method:      "POST",
		Path:        "/api/v1/stream/stop",
		Summary:     "Stop streaming",
		Description: "Terminates the encoder gracefully, killing it after the grace period; a no-op when nothing runs",
		Tags:        []string{"Stream"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamStatus",
		Method:      "GET",
		Path:        "/api/v1/stream/status",
		Summary:     "Get stream status",
		Description: "Returns the session's job state and, while running, process statistics",
		Tags:        []string{"Stream"},
	}, h.Status)
}

func jobBody(job *models.StreamJob) *StreamJobBody {
	if job == nil {
		return nil
	}
	return &StreamJobBody{
		ID:        job.ID,
		VideoPath: job.VideoPath,
		Mode:      job.Mode,
		PID:       job.PID,
		StartedAt: job.StartedAt,
	}
}

// Start validates and launches a stream for the request's session.
func (h *StreamHandler) Start(ctx context.Context, input *StartStreamInput) (*StartStreamOutput, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, huma.Error500InternalServerError("no session on request")
	}

	if input.Body.VideoPath == "" {
		return nil, huma.Error422UnprocessableEntity("video_path is required")
	}
	if input.Body.StreamKey == "" {
		return nil, huma.Error422UnprocessableEntity("stream_key is required")
	}

	resolved, err := h.store.Resolve(input.Body.VideoPath, h.extraDirs...)
	if err != nil {
		return nil, huma.Error404NotFound("video not found")
	}

	mode := models.ModeStandard
	if input.Body.Vertical {
		mode = models.ModeVertical
	}

	job, err := sess.Stream.Start(ctx, stream.StartRequest{
		VideoPath: resolved,
		StreamKey: input.Body.StreamKey,
		Mode:      mode,
	})
	switch {
	case errors.Is(err, models.ErrAlreadyRunning):
		return nil, huma.Error409Conflict("a stream is already running")
	case errors.Is(err, models.ErrBinaryNotFound):
		return nil, huma.Error503ServiceUnavailable("ffmpeg is not installed")
	case err != nil:
		return nil, huma.Error500InternalServerError("failed to start stream", err)
	}

	return &StartStreamOutput{Body: *jobBody(job)}, nil
}

// Stop terminates the session's stream.
func (h *StreamHandler) Stop(ctx context.Context, input *StopStreamInput) (*StopStreamOutput, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, huma.Error500InternalServerError("no session on request")
	}

	if err := sess.Stream.Stop(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to stop stream", err)
	}

	out := &StopStreamOutput{}
	out.Body.State = sess.Stream.Status()
	return out, nil
}

// Status reports the session's current stream state.
func (h *StreamHandler) Status(ctx context.Context, input *StreamStatusInput) (*StreamStatusOutput, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, huma.Error500InternalServerError("no session on request")
	}

	body := StreamStatusBody{
		State: sess.Stream.Status(),
		Job:   jobBody(sess.Stream.Job()),
	}

	if body.State == models.JobStateRunning {
		body.Uptime = sess.Stream.Uptime().Round(time.Second).String()
		if stats := sess.Stream.Stats(); stats != nil {
			body.Stats = &ffmpegStatsBody{
				PID:            stats.PID,
				CPUPercent:     stats.CPUPercent,
				MemoryRSSBytes: stats.MemoryRSSBytes,
				MemoryRSSMB:    stats.MemoryRSSMB,
			}
		}
	}

	return &StreamStatusOutput{Body: body}, nil
}
