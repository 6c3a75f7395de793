package pipeline

import (
	"sync"
	"time"

	"github.com/teslashibe/go-affect/pkg/face"
)

// DefaultHistorySize is how many results History keeps.
const DefaultHistorySize = 100

// Entry is a timestamped analysis result.
type Entry struct {
	At     time.Time
	Result face.Result
}

func (e Entry) clone() Entry {
	e.Result = e.Result.Clone()
	return e
}

// Cache holds the most recent result.
type Cache struct {
	mu     sync.RWMutex
	latest Entry
	ok     bool
}

// Set replaces the cached result.
func (c *Cache) Set(e Entry) {
	c.mu.Lock()
	c.latest = e
	c.ok = true
	c.mu.Unlock()
}

// Get returns the latest result and whether one exists.
func (c *Cache) Get() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest.clone(), c.ok
}

// History is a bounded FIFO of results; the oldest entry is dropped when a
// new one arrives at capacity.
type History struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewHistory creates a history holding at most limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{entries: make([]Entry, 0, limit), limit: limit}
}

// Append adds e, evicting the oldest entry at capacity.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, e)
}

// Snapshot returns a deep copy of the entries, oldest first.
func (h *History) Snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
