package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopcast/internal/session"
)

func TestGetLogs(t *testing.T) {
	f := newHandlerFixture(t)
	f.sess.Logs.Append("first")
	f.sess.Logs.Append("second")

	h := NewLogsHandler()
	out, err := h.GetLogs(f.ctx, &GetLogsInput{})
	require.NoError(t, err)
	require.Len(t, out.Body.Logs, 2)
	assert.Equal(t, "first", out.Body.Logs[0].Line)
	assert.Equal(t, "second", out.Body.Logs[1].Line)
	assert.Contains(t, out.Body.Logs[0].Rendered, "] first")
}

func TestGetLogsRequiresSession(t *testing.T) {
	h := NewLogsHandler()
	_, err := h.GetLogs(context.Background(), &GetLogsInput{})
	assertStatus(t, err, 500)
}

// syncRecorder makes ResponseRecorder safe to read while the SSE
// handler goroutine is still writing.
type syncRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *syncRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestSSEStreamReplaysAndRelays(t *testing.T) {
	f := newHandlerFixture(t)
	f.sess.Logs.Append("replayed")

	h := NewLogsHandler()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/stream", nil)
	req = req.WithContext(session.NewContext(ctx, f.sess))
	rec := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		h.handleSSEStream(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe, then append a live entry.
	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), "replayed")
	}, 2*time.Second, 10*time.Millisecond)

	f.sess.Logs.Append("live-entry")
	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), "live-entry")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sse handler did not return on cancel")
	}

	body := rec.body()
	assert.True(t, strings.HasPrefix(body, ":connected\n\n"))
	assert.Contains(t, body, "event: log\n")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
