// Package models defines the core domain types for loopcast.
package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobState describes the lifecycle state of a stream job.
type JobState string

const (
	// JobStateIdle means no job has been started for the session.
	JobStateIdle JobState = "idle"
	// JobStateRunning means the encoder child process is alive.
	JobStateRunning JobState = "running"
	// JobStateExited means the child process has terminated, either via
	// stop or on its own.
	JobStateExited JobState = "exited"
)

// StreamMode selects the output geometry of the push.
type StreamMode string

const (
	// ModeStandard pushes the video as-is.
	ModeStandard StreamMode = "standard"
	// ModeVertical scales to 720x1280 for vertical (Shorts) streaming.
	ModeVertical StreamMode = "vertical"
)

// StreamJob describes one push of a video to the RTMP endpoint.
// At most one job's child process is alive per session at a time.
type StreamJob struct {
	ID        string     `json:"id"`
	VideoPath string     `json:"video_path"`
	StreamKey string     `json:"-" masq:"secret"`
	Mode      StreamMode `json:"mode"`
	PID       int        `json:"pid,omitempty"`
	StartedAt time.Time  `json:"started_at"`
}

// NewStreamJob creates a job with a fresh ULID.
func NewStreamJob(videoPath, streamKey string, mode StreamMode) *StreamJob {
	return &StreamJob{
		ID:        ulid.Make().String(),
		VideoPath: videoPath,
		StreamKey: streamKey,
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// Validate checks the request fields of a job.
func (j *StreamJob) Validate() error {
	if j.VideoPath == "" {
		return ErrVideoRequired
	}
	if j.StreamKey == "" {
		return ErrStreamKeyRequired
	}
	return nil
}
