package models

import "errors"

// Domain errors. All of them are caught at the boundary where they occur,
// logged to the session buffer and surfaced as API errors; none crash the
// process.
var (
	// ErrBinaryNotFound indicates the ffmpeg executable could not be located.
	ErrBinaryNotFound = errors.New("ffmpeg binary not found")

	// ErrAlreadyRunning indicates a start was attempted while a stream
	// job for the session is still alive.
	ErrAlreadyRunning = errors.New("a stream is already running")

	// ErrSpawn indicates the encoder process failed to launch for a
	// reason other than a missing binary.
	ErrSpawn = errors.New("failed to start encoder process")

	// ErrTermination indicates graceful stop timed out and the process
	// had to be killed.
	ErrTermination = errors.New("encoder did not exit within grace period")

	// ErrIO indicates an upload write failure. Partial output may remain
	// on disk; it is not rolled back automatically.
	ErrIO = errors.New("upload write failed")

	// ErrVideoRequired indicates a start request without a video path.
	ErrVideoRequired = errors.New("video is required")

	// ErrStreamKeyRequired indicates a start request without a stream key.
	ErrStreamKeyRequired = errors.New("stream key is required")

	// ErrVideoNotFound indicates the requested video does not exist on disk.
	ErrVideoNotFound = errors.New("video not found")

	// ErrUnsupportedFormat indicates an upload with an extension other
	// than .mp4 or .flv.
	ErrUnsupportedFormat = errors.New("unsupported video format: must be .mp4 or .flv")
)
