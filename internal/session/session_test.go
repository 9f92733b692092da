package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopcast/internal/stream"
)

func testManager() *Manager {
	return NewManager(stream.Config{
		RTMPBase:  "rtmp://a.rtmp.youtube.com/live2",
		StopGrace: time.Second,
	}, nil)
}

func TestCreateAndGet(t *testing.T) {
	m := testManager()

	s := m.Create()
	require.NotEmpty(t, s.ID)
	require.NotNil(t, s.Logs)
	require.NotNil(t, s.Stream)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())
}

func TestEvictIdle(t *testing.T) {
	m := testManager()

	stale := m.Create()
	fresh := m.Create()
	stale.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	assert.Equal(t, 1, m.EvictIdle(time.Minute))
	assert.Equal(t, 1, m.Count())

	_, ok := m.Get(stale.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestEvictIdleSkipsRunningStream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))

	m := NewManager(stream.Config{
		FFmpegPath: script,
		RTMPBase:   "rtmp://a.rtmp.youtube.com/live2",
		StopGrace:  time.Second,
	}, nil)

	s := m.Create()
	_, err := s.Stream.Start(context.Background(), stream.StartRequest{
		VideoPath: "loop.mp4",
		StreamKey: "key",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stream.Stop(context.Background()) })

	s.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	assert.Zero(t, m.EvictIdle(time.Minute), "running session must not be evicted")
	assert.Equal(t, 1, m.Count())

	require.NoError(t, s.Stream.Stop(context.Background()))
	assert.Equal(t, 1, m.EvictIdle(time.Minute))
	assert.Zero(t, m.Count())
}

func TestSessionsAreIsolated(t *testing.T) {
	m := testManager()

	a := m.Create()
	b := m.Create()

	a.Logs.Append("only in a")
	assert.Equal(t, 1, a.Logs.Len())
	assert.Equal(t, 0, b.Logs.Len())
	assert.NotSame(t, a.Stream, b.Stream)
}

func TestMiddlewareSetsCookieOnce(t *testing.T) {
	m := testManager()

	var seen *Session
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = s
	}))

	// First request: no cookie, one gets set.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil))
	require.NotNil(t, seen)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, seen.ID, cookies[0].Value)

	// Second request with the cookie: same session, no new cookie.
	first := seen
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Same(t, first, seen)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 1, m.Count())
}

func TestMiddlewareIgnoresNonAPIRequests(t *testing.T) {
	m := testManager()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		assert.False(t, ok)
	}))

	// Health pollers and asset fetches carry no cookie; none of them may
	// grow the session table.
	for i := 0; i < 10; i++ {
		for _, path := range []string{"/health", "/", "/favicon.ico"} {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Empty(t, rec.Result().Cookies())
		}
	}
	assert.Zero(t, m.Count())
}

func TestMiddlewareAttachesExistingSessionOutsideAPI(t *testing.T) {
	m := testManager()
	s := m.Create()

	var ok bool
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: s.ID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, ok)
	assert.Equal(t, 1, m.Count())
}
