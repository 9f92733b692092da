package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthDegradedWithoutFFmpeg(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewHealthHandler("1.2.3", filepath.Join(t.TempDir(), "no-such-ffmpeg"), f.sessions)

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.False(t, out.Body.FFmpeg.Available)
	assert.Equal(t, 1, out.Body.Sessions)
	assert.Positive(t, out.Body.Goroutines)
}

func TestGetHealthWithFFmpeg(t *testing.T) {
	f := newHandlerFixture(t)

	// The fixture's fake binary exists and is executable, which is all
	// availability checks.
	binary := filepath.Join(filepath.Dir(f.store.Dir()), "ffmpeg")
	h := NewHealthHandler("dev", binary, f.sessions)

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Body.Status)
	assert.True(t, out.Body.FFmpeg.Available)
	assert.Equal(t, binary, out.Body.FFmpeg.Path)
	assert.Contains(t, out.Body.FFmpeg.Version, "ffmpeg version")
}
