// Package adminbuffer implements the bounded, in-memory admin-visible error
// ring buffer behind the /errors ops route. It is deliberately not
// persisted: a server restart clearing recent error history is acceptable,
// and keeping it out of Postgres keeps capture on the hot error path cheap.
package adminbuffer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// Capacity is the maximum number of entries retained; the oldest entry is
// evicted once a new one arrives past this bound.
const Capacity = 50

// Module provides the process-wide Buffer singleton.
var Module = fx.Module("adminbuffer",
	fx.Provide(NewBuffer),
)

// Entry is one captured internal error.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Route     string    `json:"route"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Buffer is a fixed-capacity, oldest-evicted-first ring of Entry values.
// It is the only process-wide mutable admin-visible state besides the
// environment-capability registry.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

// NewBuffer constructs an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: make([]Entry, 0, Capacity)}
}

// Capture records a new error entry, evicting the oldest if at capacity.
func (b *Buffer) Capture(route, message, stack, requestID string) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Route:     route,
		Message:   message,
		Stack:     stack,
		RequestID: requestID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= Capacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
	return e
}

// List returns a snapshot of the currently retained entries, oldest first.
func (b *Buffer) List() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
