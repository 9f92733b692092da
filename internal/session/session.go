// Package session ties a browser to its own log buffer and stream
// supervisor. Every piece of mutable state hangs off a Session, so two
// operators on the same server never share a process or a log panel.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"loopcast/internal/logbuf"
	"loopcast/internal/models"
	"loopcast/internal/stream"
)

// CookieName is the browser cookie carrying the session ID.
const CookieName = "loopcast_session"

// Session holds the per-browser state: the log buffer the relay writes
// into and the supervisor owning the encoder child.
type Session struct {
	ID        string
	CreatedAt time.Time

	Logs   *logbuf.Buffer
	Stream *stream.Supervisor

	lastSeen atomic.Int64 // unix nanoseconds
}

// Touch records request activity, deferring idle eviction.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the session's most recent request.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Manager creates and looks up sessions. Safe for concurrent use.
type Manager struct {
	cfg    stream.Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager that equips each new session with a
// supervisor using cfg.
func NewManager(cfg stream.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session with the given ID, if it exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Create registers a new session with a fresh ID.
func (m *Manager) Create() *Session {
	logs := logbuf.New()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Logs:      logs,
		Stream:    stream.New(m.cfg, logs, m.logger),
	}
	s.Touch()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session created", slog.String("session_id", s.ID))
	return s
}

// EvictIdle removes sessions with no request activity for at least
// maxIdle, skipping any whose encoder is still running. It returns the
// number evicted. Without this, every cookie-less client that ever hit
// the API would pin a session for the life of the server.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.Stream.Status() == models.JobStateRunning {
			continue
		}
		if s.LastSeen().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		evicted++
		m.logger.Debug("session evicted", slog.String("session_id", id))
	}
	return evicted
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll stops every session's encoder, used during server shutdown so
// no orphaned children keep pushing.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Stream.Stop(ctx); err != nil {
			m.logger.Warn("failed to stop session stream",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
