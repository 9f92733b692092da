// Package ffmpeg provides FFmpeg binary detection and a thin wrapper for
// running the encoder as a supervised child process.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"loopcast/internal/models"
)

// EnvBinaryPath is the environment variable overriding binary discovery.
const EnvBinaryPath = "LOOPCAST_FFMPEG"

// FindBinary locates the ffmpeg executable.
// Search order:
//  1. configured path (if non-empty)
//  2. LOOPCAST_FFMPEG environment variable
//  3. ./ffmpeg (current directory, useful for development)
//  4. ffmpeg on PATH (via exec.LookPath)
//
// Each candidate is verified to exist and be executable. Returns
// models.ErrBinaryNotFound if nothing matches.
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("%w: configured path %s is not executable", models.ErrBinaryNotFound, configured)
	}

	if envPath := os.Getenv(EnvBinaryPath); envPath != "" {
		if isExecutable(envPath) {
			return envPath, nil
		}
	}

	if isExecutable("./ffmpeg") {
		return "./ffmpeg", nil
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", models.ErrBinaryNotFound
}

// Version runs `ffmpeg -version` and returns the first line, e.g.
// "ffmpeg version 6.1.1 ...". Used at startup to log what will be spawned.
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("probing ffmpeg version: %w", err)
	}

	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
