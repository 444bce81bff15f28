package logging

import (
	"sync"

	"riceserver/internal/buffer"
)

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Add(entry)
}

// List returns buffered entries oldest first.
func (b *LogBuffer) List() []LogEntry {
	return b.Last(0)
}

// Last returns up to limit of the newest entries, oldest first. A limit of zero
// or less returns everything.
func (b *LogBuffer) Last(limit int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Last(limit)
}

func (b *LogBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Len()
}
