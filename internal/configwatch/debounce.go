package configwatch

import (
	"sync"
	"time"

	"riceserver/internal/watcher"
)

const (
	DefaultDebounceWindow = 2 * time.Second
	defaultSweepFactor    = 5
)

// DebounceKey identifies a stream of duplicate changes.
type DebounceKey struct {
	Path string
	Kind watcher.Kind
}

// Debouncer suppresses repeats of a key inside the window. The first allowed
// event of a burst wins: suppressed events do not extend the window.
type Debouncer struct {
	mu          sync.Mutex
	window      time.Duration
	sweepFactor int
	lastActed   map[DebounceKey]time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:      window,
		sweepFactor: defaultSweepFactor,
		lastActed:   make(map[DebounceKey]time.Time),
	}
}

func (debouncer *Debouncer) Window() time.Duration {
	return debouncer.window
}

// ShouldProcess reports whether an event for key at now should be acted on,
// recording now when it should.
func (debouncer *Debouncer) ShouldProcess(key DebounceKey, now time.Time) bool {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()

	if last, ok := debouncer.lastActed[key]; ok && now.Sub(last) < debouncer.window {
		return false
	}
	debouncer.lastActed[key] = now
	return true
}

// Sweep removes entries that can no longer suppress anything and returns how
// many were removed.
func (debouncer *Debouncer) Sweep(now time.Time) int {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()

	maxAge := time.Duration(debouncer.sweepFactor) * debouncer.window
	removed := 0
	for key, last := range debouncer.lastActed {
		if now.Sub(last) >= maxAge {
			delete(debouncer.lastActed, key)
			removed++
		}
	}
	return removed
}

func (debouncer *Debouncer) Len() int {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()
	return len(debouncer.lastActed)
}
