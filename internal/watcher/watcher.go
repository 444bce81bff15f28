package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"riceserver/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultPairWindow  = 50 * time.Millisecond
	defaultMaxWatches  = 4096
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrClosed             = errors.New("watcher is closed")
)

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Watcher with custom options.
func NewWithOptions(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	pairWindow := options.PairWindow
	if pairWindow <= 0 {
		pairWindow = defaultPairWindow
	}

	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}

	pairTimer := time.NewTimer(time.Hour)
	pairTimer.Stop()

	instance := &Watcher{
		watcher:      source,
		roots:        make(map[string][]rootEntry),
		dirs:         make(map[string]struct{}),
		events:       make(chan fsnotify.Event, 64),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
		logger:       logger,
		pairWindow:   pairWindow,
		maxWatches:   maxWatches,
		errorHandler: options.ErrorHandler,
		pairTimer:    pairTimer,
	}

	instance.mutex.Lock()
	instance.startForwarderLocked(source)
	instance.mutex.Unlock()
	instance.wg.Add(1)
	go instance.run()
	return instance, nil
}

// Close stops event processing and waits for the watcher goroutines to exit.
// It must not be called from a callback.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	var err error
	if source != nil {
		err = source.Close()
	}
	watcher.wg.Wait()
	return err
}

// Watch registers callback for changes anywhere below root. Directories created
// later under root are watched as they appear.
func (watcher *Watcher) Watch(root string, callback func(Change)) (Handle, error) {
	if watcher == nil {
		return nil, errors.New("watcher is nil")
	}
	if root == "" {
		return nil, errors.New("path is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil, ErrClosed
	}
	watcher.nextID++
	entry := rootEntry{id: watcher.nextID, callback: callback}
	watcher.roots[root] = append(watcher.roots[root], entry)
	watcher.mutex.Unlock()

	if info.IsDir() {
		if err := watcher.addTree(root); err != nil {
			watcher.removeRoot(root, entry.id)
			return nil, err
		}
	} else if err := watcher.addWatch(root); err != nil {
		watcher.removeRoot(root, entry.id)
		return nil, err
	}

	return &watchHandle{watcher: watcher, root: root, id: entry.id}, nil
}

// SetErrorHandler configures a callback for unrecoverable watcher failures.
func (watcher *Watcher) SetErrorHandler(handler func(error)) {
	if watcher == nil {
		return
	}
	watcher.mutex.Lock()
	watcher.errorHandler = handler
	watcher.mutex.Unlock()
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := len(watcher.dirs)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		Delivered:       atomic.LoadUint64(&watcher.delivered),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}

type watchHandle struct {
	watcher *Watcher
	root    string
	id      uint64
	once    sync.Once
}

func (handle *watchHandle) Close() error {
	if handle == nil || handle.watcher == nil {
		return nil
	}
	handle.once.Do(func() {
		handle.watcher.removeRoot(handle.root, handle.id)
	})
	return nil
}

func (watcher *Watcher) removeRoot(root string, id uint64) {
	watcher.mutex.Lock()
	entries := watcher.roots[root]
	for index, candidate := range entries {
		if candidate.id == id {
			entries = append(entries[:index], entries[index+1:]...)
			break
		}
	}
	if len(entries) > 0 {
		watcher.roots[root] = entries
		watcher.mutex.Unlock()
		return
	}
	delete(watcher.roots, root)
	watcher.mutex.Unlock()

	watcher.forgetTree(root)
}

func (watcher *Watcher) run() {
	defer watcher.wg.Done()
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case <-watcher.pairTimer.C:
			watcher.flushPendingRename()
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			watcher.pairTimer.Stop()
			return
		}
	}
}

func (watcher *Watcher) startForwarderLocked(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	watcher.wg.Add(1)
	go func() {
		defer watcher.wg.Done()
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) deliver(change Change) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	callbacks := watcher.callbacksFor(change)
	for _, callback := range callbacks {
		callback(change)
		atomic.AddUint64(&watcher.delivered, 1)
	}
}

func (watcher *Watcher) callbacksFor(change Change) []func(Change) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	if watcher.closed {
		return nil
	}
	var callbacks []func(Change)
	for root, entries := range watcher.roots {
		if !isWithinPath(root, change.Path) && (change.Dest == "" || !isWithinPath(root, change.Dest)) {
			continue
		}
		for _, entry := range entries {
			callbacks = append(callbacks, entry.callback)
		}
	}
	return callbacks
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, fields)
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Debug(message, map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	})
}

func isWithinPath(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
