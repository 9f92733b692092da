package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"loopcast/internal/logbuf"
	"loopcast/internal/session"
)

// HeartbeatInterval is how often an idle SSE connection gets a comment
// keeping intermediaries from closing it.
const HeartbeatInterval = 30 * time.Second

// LogsHandler exposes the session's log buffer: a snapshot endpoint for
// polling clients and an SSE stream for live tailing.
type LogsHandler struct {
	heartbeatInterval time.Duration
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler() *LogsHandler {
	return &LogsHandler{heartbeatInterval: HeartbeatInterval}
}

// LogEntryBody represents a log entry in API responses.
type LogEntryBody struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
	Rendered  string    `json:"rendered"`
}

func entryBody(e logbuf.Entry) LogEntryBody {
	return LogEntryBody{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Line:      e.Line,
		Rendered:  e.String(),
	}
}

// LogEvent is the SSE event wrapper, required by Huma for OpenAPI schema
// generation.
type LogEvent LogEntryBody

// GetLogsInput is the input for the log snapshot endpoint.
type GetLogsInput struct{}

// GetLogsOutput is the output for the log snapshot endpoint.
type GetLogsOutput struct {
	Body struct {
		Logs []LogEntryBody `json:"logs"`
	}
}

// Register registers the log routes with the API.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogs",
		Method:      "GET",
		Path:        "/api/v1/logs",
		Summary:     "Get the session log",
		Description: "Returns the retained encoder output of the session, oldest first",
		Tags:        []string{"Logs"},
	}, h.GetLogs)

	// Registered with Huma for OpenAPI documentation only; the live
	// handler is registered via RegisterSSE on the chi router, which
	// takes precedence.
	sse.Register(api, huma.Operation{
		OperationID: "logsStream",
		Method:      "GET",
		Path:        "/api/v1/logs/stream",
		Summary:     "Subscribe to log events",
		Description: "Server-Sent Events stream of encoder output lines appended after connecting",
		Tags:        []string{"Logs"},
	}, map[string]any{
		"log": LogEvent{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		<-ctx.Done()
	})
}

// RegisterSSE registers the SSE endpoint on a chi router. Separate from
// Register because Huma doesn't support SSE streaming natively.
func (h *LogsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/logs/stream", h.handleSSEStream)
}

// GetLogs returns the session's retained log entries.
func (h *LogsHandler) GetLogs(ctx context.Context, input *GetLogsInput) (*GetLogsOutput, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, huma.Error500InternalServerError("no session on request")
	}

	entries := sess.Logs.Snapshot()
	out := &GetLogsOutput{}
	out.Body.Logs = make([]LogEntryBody, len(entries))
	for i, e := range entries {
		out.Body.Logs[i] = entryBody(e)
	}
	return out, nil
}

// handleSSEStream is the raw HTTP handler for SSE streaming: replays the
// retained entries, then relays live ones until the client goes away.
func (h *LogsHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "no session on request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Subscribe before replaying so no entry falls between snapshot and
	// live stream; duplicates are possible but gaps are not.
	sub := sess.Logs.Subscribe()
	defer sess.Logs.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for _, entry := range sess.Logs.Snapshot() {
		if _, err := h.writeSSEEvent(w, entry); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case entry := <-sub.Events:
			if _, err := h.writeSSEEvent(w, entry); err != nil {
				slog.Debug("sse write failed, client likely disconnected", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeSSEEvent writes one entry in SSE format, in a single write for
// atomicity.
func (h *LogsHandler) writeSSEEvent(w http.ResponseWriter, entry logbuf.Entry) (int, error) {
	data, err := json.Marshal(entryBody(entry))
	if err != nil {
		return 0, err
	}
	return fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
}
