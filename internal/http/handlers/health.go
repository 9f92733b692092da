package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"loopcast/internal/ffmpeg"
	"loopcast/internal/session"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version    string
	ffmpegPath string
	sessions   *session.Manager
	startTime  time.Time
}

// NewHealthHandler creates a health handler. ffmpegPath is the configured
// binary path, empty for auto-detection.
func NewHealthHandler(version, ffmpegPath string, sessions *session.Manager) *HealthHandler {
	return &HealthHandler{
		version:    version,
		ffmpegPath: ffmpegPath,
		sessions:   sessions,
		startTime:  time.Now(),
	}
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// MemoryStatus holds system memory metrics.
type MemoryStatus struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// FFmpegStatus reports whether the encoder binary is usable.
type FFmpegStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status     string        `json:"status"`
	Version    string        `json:"version"`
	Uptime     string        `json:"uptime"`
	Goroutines int           `json:"goroutines"`
	Sessions   int           `json:"sessions"`
	FFmpeg     FFmpegStatus  `json:"ffmpeg"`
	Memory     *MemoryStatus `json:"memory,omitempty"`
	Load1      float64       `json:"load1,omitempty"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including encoder availability and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. The service is
// degraded, not down, when ffmpeg is missing: uploads still work.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	if h.sessions != nil {
		resp.Sessions = h.sessions.Count()
	}

	if binary, err := ffmpeg.FindBinary(h.ffmpegPath); err == nil {
		resp.FFmpeg.Available = true
		resp.FFmpeg.Path = binary

		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if v, verr := ffmpeg.Version(probeCtx, binary); verr == nil {
			resp.FFmpeg.Version = v
		}
		cancel()
	} else {
		resp.Status = "degraded"
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &MemoryStatus{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Load1 = avg.Load1
	}

	return &HealthOutput{Body: resp}, nil
}
