// Package logbuf provides the bounded in-memory log buffer a session's
// encoder output is drained into, with live streaming to subscribers.
package logbuf

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxEntries is the number of entries retained; older entries
	// are evicted first.
	DefaultMaxEntries = 200
	// DefaultBufferSize is the subscriber event buffer size.
	DefaultBufferSize = 64
)

// Entry is a single timestamped log line.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// String renders the entry the way the UI log panel shows it.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04:05"), e.Line)
}

// Subscriber receives entries appended after Subscribe was called.
type Subscriber struct {
	ID     string
	Events chan Entry
	Done   chan struct{}
}

// Buffer is a bounded FIFO of log entries. The relay goroutine is the
// single writer; the UI reads snapshots, so a slightly stale read is fine.
type Buffer struct {
	mu          sync.RWMutex
	entries     []Entry
	maxEntries  int
	subscribers map[string]*Subscriber
}

// New creates a buffer retaining DefaultMaxEntries entries.
func New() *Buffer {
	return NewWithCapacity(DefaultMaxEntries)
}

// NewWithCapacity creates a buffer retaining at most maxEntries entries.
func NewWithCapacity(maxEntries int) *Buffer {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	return &Buffer{
		entries:     make([]Entry, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[string]*Subscriber),
	}
}

// Append adds a line with the current wall-clock timestamp, evicting the
// oldest entry when the buffer is full, and broadcasts it to subscribers
// without blocking.
func (b *Buffer) Append(line string) {
	entry := Entry{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Line:      line,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.maxEntries {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry)

	for _, sub := range b.subscribers {
		select {
		case sub.Events <- entry:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// Appendf formats and appends a line.
func (b *Buffer) Appendf(format string, args ...any) {
	b.Append(fmt.Sprintf(format, args...))
}

// Snapshot returns a copy of the retained entries in insertion order.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of retained entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Subscribe registers a subscriber for entries appended from now on.
func (b *Buffer) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan Entry, DefaultBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and signals its Done channel.
func (b *Buffer) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Done)
		delete(b.subscribers, id)
	}
}
