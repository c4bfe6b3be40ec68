package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log line stored in the ring buffer.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the newest entries in a fixed number of slots. Entry with
// sequence number n lives in slot (n-1) % len(slots).
type RingBuffer struct {
	mu    sync.RWMutex
	slots []LogEntry
	last  uint64
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{slots: make([]LogEntry, max(size, 1))}
}

// Write stores entry, replacing the oldest one when full, and returns it
// with its sequence number assigned.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.last++
	entry.Seq = rb.last
	rb.slots[rb.slot(entry.Seq)] = entry
	return entry
}

func (rb *RingBuffer) slot(seq uint64) uint64 {
	return (seq - 1) % uint64(len(rb.slots))
}

// oldest returns the smallest sequence number still held.
func (rb *RingBuffer) oldest() uint64 {
	if n := uint64(len(rb.slots)); rb.last > n {
		return rb.last - n + 1
	}
	return 1
}

// Since returns the held entries with a sequence number greater than seq,
// oldest first, or nil when there are none.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	from := max(seq+1, rb.oldest())
	if from > rb.last {
		return nil
	}
	out := make([]LogEntry, 0, rb.last-from+1)
	for s := from; s <= rb.last; s++ {
		out = append(out, rb.slots[rb.slot(s)])
	}
	return out
}

// ReadAll returns every held entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Tail returns the newest n entries, oldest first. n <= 0 means all.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	all := rb.ReadAll()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Count returns the number of held entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(min(rb.last, uint64(len(rb.slots))))
}
