package handlers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopcast/internal/models"
	"loopcast/internal/session"
	"loopcast/internal/storage"
	"loopcast/internal/stream"
)

// handlerFixture wires a store, a session manager with a fake encoder
// binary and a session-carrying context, the way requests arrive after
// the middleware chain.
type handlerFixture struct {
	store    *storage.Store
	sessions *session.Manager
	sess     *session.Session
	ctx      context.Context
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	binary := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"-version\" ]; then echo \"ffmpeg version 6.1.1\"; exit 0; fi\n" +
		"exec sleep 60\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))

	sessions := session.NewManager(stream.Config{
		FFmpegPath: binary,
		RTMPBase:   "rtmp://a.rtmp.youtube.com/live2",
		StopGrace:  2 * time.Second,
	}, nil)
	sess := sessions.Create()

	f := &handlerFixture{
		store:    store,
		sessions: sessions,
		sess:     sess,
		ctx:      session.NewContext(context.Background(), sess),
	}
	t.Cleanup(func() { sessions.StopAll(context.Background()) })
	return f
}

func (f *handlerFixture) addVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.store.Dir(), name)
	require.NoError(t, os.WriteFile(path, []byte("video-bytes"), 0o644))
	return path
}

func startInput(video, key string) *StartStreamInput {
	input := &StartStreamInput{}
	input.Body.VideoPath = video
	input.Body.StreamKey = key
	return input
}

func TestStartStream(t *testing.T) {
	f := newHandlerFixture(t)
	video := f.addVideo(t, "loop.mp4")
	h := NewStreamHandler(f.store)

	out, err := h.Start(f.ctx, startInput(video, "key"))
	require.NoError(t, err)
	assert.Equal(t, video, out.Body.VideoPath)
	assert.Equal(t, models.ModeStandard, out.Body.Mode)
	assert.NotZero(t, out.Body.PID)
}

func TestStartStreamValidation(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewStreamHandler(f.store)

	_, err := h.Start(f.ctx, startInput("", "key"))
	assertStatus(t, err, 422)

	_, err = h.Start(f.ctx, startInput("a.mp4", ""))
	assertStatus(t, err, 422)

	_, err = h.Start(f.ctx, startInput("missing.mp4", "key"))
	assertStatus(t, err, 404)
}

func TestStartStreamConflict(t *testing.T) {
	f := newHandlerFixture(t)
	video := f.addVideo(t, "loop.mp4")
	h := NewStreamHandler(f.store)

	_, err := h.Start(f.ctx, startInput(video, "key"))
	require.NoError(t, err)

	_, err = h.Start(f.ctx, startInput(video, "key"))
	assertStatus(t, err, 409)
}

func TestStopStream(t *testing.T) {
	f := newHandlerFixture(t)
	video := f.addVideo(t, "loop.mp4")
	h := NewStreamHandler(f.store)

	_, err := h.Start(f.ctx, startInput(video, "key"))
	require.NoError(t, err)

	out, err := h.Stop(f.ctx, &StopStreamInput{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStateIdle, out.Body.State)

	// Stop with nothing running stays a success.
	out, err = h.Stop(f.ctx, &StopStreamInput{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStateIdle, out.Body.State)
}

func TestStreamStatus(t *testing.T) {
	f := newHandlerFixture(t)
	video := f.addVideo(t, "loop.mp4")
	h := NewStreamHandler(f.store)

	out, err := h.Status(f.ctx, &StreamStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStateIdle, out.Body.State)
	assert.Nil(t, out.Body.Job)

	_, err = h.Start(f.ctx, startInput(video, "key"))
	require.NoError(t, err)

	out, err = h.Status(f.ctx, &StreamStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStateRunning, out.Body.State)
	require.NotNil(t, out.Body.Job)
	assert.Equal(t, video, out.Body.Job.VideoPath)
}

func TestStreamHandlersRequireSession(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewStreamHandler(f.store)

	_, err := h.Status(context.Background(), &StreamStatusInput{})
	assertStatus(t, err, 500)
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, want, statusErr.GetStatus())
}
