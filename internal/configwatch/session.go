package configwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/theme"
	"riceserver/internal/watcher"
)

const defaultSweepInterval = 30 * time.Second

// SessionOptions configures a Session. Watch is optional: without it the
// session owns an fsnotify watcher for its lifetime.
type SessionOptions struct {
	Root           string
	Manager        ThemeManager
	Bridge         *Bridge
	Watch          watcher.Watch
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	DebounceWindow time.Duration
	SweepInterval  time.Duration
	Now            func() time.Time
}

// Session watches a configuration root and reacts to its changes until closed.
type Session struct {
	root          string
	classifier    Classifier
	debouncer     *Debouncer
	dispatcher    *Dispatcher
	manager       ThemeManager
	bridge        *Bridge
	logger        *logging.Logger
	metrics       *metrics.Registry
	sweepInterval time.Duration
	now           func() time.Time

	mu         sync.Mutex
	watch      watcher.Watch
	ownedWatch *watcher.Watcher
	handle     watcher.Handle
	started    bool
	closed     bool
	stopSweep  context.CancelFunc
	sweepDone  chan struct{}
}

func NewSession(options SessionOptions) (*Session, error) {
	if options.Root == "" {
		return nil, errors.New("config root is required")
	}
	if options.Manager == nil {
		return nil, errors.New("theme manager is required")
	}
	if options.Bridge == nil {
		return nil, errors.New("apply bridge is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	sweepInterval := options.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	layout := theme.NewLayout(options.Root)
	return &Session{
		root:          layout.Root,
		classifier:    NewClassifier(layout),
		debouncer:     NewDebouncer(options.DebounceWindow),
		dispatcher:    NewDispatcher(options.Manager, layout, logger),
		manager:       options.Manager,
		bridge:        options.Bridge,
		logger:        logger,
		metrics:       registry,
		sweepInterval: sweepInterval,
		now:           now,
		watch:         options.Watch,
	}, nil
}

// Start registers the reaction callback on the root, recursively. Failure to
// start watching is returned.
func (session *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.closed {
		return errors.New("watch session is closed")
	}
	if session.started {
		return errors.New("watch session already started")
	}

	watch := session.watch
	if watch == nil {
		owned, err := watcher.NewWithOptions(watcher.Options{
			Logger: session.logger.Named("watcher").WithMinLevel(logging.LevelWarning),
			ErrorHandler: func(err error) {
				session.logger.Error("config watcher stopped", map[string]string{
					"path":  session.root,
					"error": err.Error(),
				})
			},
		})
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		session.ownedWatch = owned
		watch = owned
	}

	handle, err := watch.Watch(session.root, session.HandleChange)
	if err != nil {
		if session.ownedWatch != nil {
			_ = session.ownedWatch.Close()
			session.ownedWatch = nil
		}
		return fmt.Errorf("watch %s: %w", session.root, err)
	}
	session.handle = handle
	session.started = true

	sweepCtx, cancel := context.WithCancel(ctx)
	session.stopSweep = cancel
	session.sweepDone = make(chan struct{})
	go session.sweepLoop(sweepCtx, session.sweepDone)

	session.logger.Info("watching config dir", map[string]string{"path": session.root})
	return nil
}

// Close stops watching and waits for the session's goroutines to exit.
func (session *Session) Close() error {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return nil
	}
	session.closed = true
	handle := session.handle
	owned := session.ownedWatch
	stopSweep := session.stopSweep
	sweepDone := session.sweepDone
	session.mu.Unlock()

	var errs []error
	if handle != nil {
		errs = append(errs, handle.Close())
	}
	if owned != nil {
		errs = append(errs, owned.Close())
	}
	if stopSweep != nil {
		stopSweep()
		<-sweepDone
	}
	return errors.Join(errs...)
}

// HandleChange is the watcher callback. It never panics and returns only
// after any re-application it triggered has finished.
func (session *Session) HandleChange(change watcher.Change) {
	session.metrics.IncChangeReceived()
	for _, input := range session.expandChange(change) {
		session.process(input)
	}
}

func (session *Session) process(change watcher.Change) {
	var category Category
	defer func() {
		if recovered := recover(); recovered != nil {
			session.metrics.IncDispatchFailure()
			session.logger.Error("config change panicked", map[string]string{
				"path":     change.Path,
				"kind":     string(change.Kind),
				"category": category.String(),
				"error":    fmt.Sprint(recovered),
				"stack":    string(debug.Stack()),
			})
		}
	}()

	if !session.debouncer.ShouldProcess(DebounceKey{Path: change.Path, Kind: change.Kind}, session.now()) {
		session.metrics.IncChangeDebounced()
		return
	}

	category, ok := session.classifier.Classify(change.Path, change.IsDir, change.Kind)
	if !ok {
		session.metrics.IncChangeIgnored()
		return
	}
	session.metrics.IncCategory(string(category.Kind))
	session.logger.Debug("config change", map[string]string{
		"path":     change.Path,
		"kind":     string(change.Kind),
		"category": category.String(),
	})

	ctx := context.Background()
	reapply, needed, err := session.dispatcher.Handle(ctx, category, change)
	if err != nil {
		session.fail("config change failed", change, category, err)
		return
	}
	if !needed {
		return
	}

	err = session.bridge.Run(ctx, "reapply:"+category.String(), func(ctx context.Context) error {
		_, err := session.manager.Apply(ctx, theme.ApplyRequest{Modules: reapply.Modules})
		return err
	})
	if err != nil {
		session.fail("theme reapply failed", change, category, err)
	}
}

func (session *Session) fail(message string, change watcher.Change, category Category, err error) {
	session.metrics.IncDispatchFailure()
	session.logger.Warn(message, map[string]string{
		"path":     change.Path,
		"kind":     string(change.Kind),
		"category": category.String(),
		"error":    err.Error(),
	})
}

func (session *Session) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(session.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := session.debouncer.Sweep(session.now())
			if removed == 0 {
				continue
			}
			session.metrics.AddDebounceEvictions(removed)
			session.logger.Debug("debounce entries evicted", map[string]string{
				"removed":   strconv.Itoa(removed),
				"remaining": strconv.Itoa(session.debouncer.Len()),
			})
		}
	}
}

// expandChange turns a move into the changes the classifier understands. A
// moved file is a deletion at its source and a creation at its destination.
// A moved directory is reported as is, followed by the same pair for the
// theme.json it may carry. A module directory moved out of or into the
// modules root also gets a manifest deletion or creation.
func (session *Session) expandChange(change watcher.Change) []watcher.Change {
	if change.Kind != watcher.KindMoved {
		return []watcher.Change{change}
	}
	if !change.IsDir {
		return []watcher.Change{
			{Path: change.Path, Kind: watcher.KindDeleted, Timestamp: change.Timestamp},
			{Path: change.Dest, Kind: watcher.KindCreated, Timestamp: change.Timestamp},
		}
	}

	changes := []watcher.Change{
		change,
		{Path: filepath.Join(change.Path, theme.ThemeFileName), Kind: watcher.KindDeleted, Timestamp: change.Timestamp},
		{Path: filepath.Join(change.Dest, theme.ThemeFileName), Kind: watcher.KindCreated, Timestamp: change.Timestamp},
	}
	modulesDir := session.classifier.layout.ModulesDir()
	if filepath.Dir(filepath.Clean(change.Path)) == modulesDir {
		changes = append(changes, watcher.Change{
			Path:      filepath.Join(change.Path, theme.ManifestFileName),
			Kind:      watcher.KindDeleted,
			Timestamp: change.Timestamp,
		})
	}
	if filepath.Dir(filepath.Clean(change.Dest)) == modulesDir {
		changes = append(changes, watcher.Change{
			Path:      filepath.Join(change.Dest, theme.ManifestFileName),
			Kind:      watcher.KindCreated,
			Timestamp: change.Timestamp,
		})
	}
	return changes
}
