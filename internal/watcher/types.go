package watcher

import (
	"sync"
	"time"

	"riceserver/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a filesystem change.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
	KindMoved    Kind = "moved"
)

// Change is a single filesystem change. Dest is only set for KindMoved.
type Change struct {
	Path      string
	Dest      string
	Kind      Kind
	IsDir     bool
	Timestamp time.Time
}

// Handle releases watcher resources for a registration.
type Handle interface {
	Close() error
}

// Watch registers a callback for changes below a root path.
type Watch interface {
	Watch(root string, callback func(Change)) (Handle, error)
}

// Options controls watcher behavior.
type Options struct {
	Logger       *logging.Logger
	PairWindow   time.Duration
	MaxWatches   int
	ErrorHandler func(error)
}

// Metrics reports watcher counters.
type Metrics struct {
	ActiveWatches   int
	Delivered       uint64
	Errors          uint64
	RestartAttempts int
}

type pendingRename struct {
	path  string
	isDir bool
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher      *fsnotify.Watcher
	mutex        sync.Mutex
	roots        map[string][]rootEntry
	dirs         map[string]struct{}
	events       chan fsnotify.Event
	errors       chan error
	done         chan struct{}
	wg           sync.WaitGroup
	closed       bool
	logger       *logging.Logger
	pairWindow   time.Duration
	maxWatches   int
	errorHandler func(error)
	nextID       uint64

	// pending and pairTimer are owned by the run goroutine.
	pending   *pendingRename
	pairTimer *time.Timer

	delivered  uint64
	errorCount uint64

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int
}

type rootEntry struct {
	id       uint64
	callback func(Change)
}
