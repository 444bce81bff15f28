package watcher

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// handleEvent runs on the delivery goroutine. A Rename is held back until the
// next event: a Create arriving inside the pair window is its destination.
func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Op.Has(fsnotify.Create):
		isDir := statIsDir(path)
		watched := false
		if isDir {
			if err := watcher.addTree(path); err != nil {
				watcher.logWarn("watch new directory failed", map[string]string{
					"path":  path,
					"error": err.Error(),
				})
			} else {
				watched = true
			}
		}
		if pending := watcher.takePendingRename(); pending != nil {
			if pending.isDir {
				watcher.forgetTree(pending.path)
			}
			watcher.deliver(Change{Path: pending.path, Dest: path, Kind: KindMoved, IsDir: isDir})
			return
		}
		watcher.deliver(Change{Path: path, Kind: KindCreated, IsDir: isDir})
		if watched {
			// Entries written before the watch landed, or carried in by a
			// move from outside the tree, produce no events of their own.
			watcher.reportTree(path)
		}

	case event.Op.Has(fsnotify.Rename):
		if watcher.pending != nil && watcher.pending.path == path {
			// A renamed watched directory reports once from its parent and
			// once from its own watch.
			return
		}
		watcher.flushPendingRename()
		watcher.pending = &pendingRename{path: path, isDir: watcher.isWatchedDir(path)}
		watcher.pairTimer.Reset(watcher.pairWindow)

	case event.Op.Has(fsnotify.Remove):
		watcher.flushPendingRename()
		isDir := watcher.isWatchedDir(path)
		if isDir {
			watcher.forgetTree(path)
		}
		watcher.deliver(Change{Path: path, Kind: KindDeleted, IsDir: isDir})

	case event.Op.Has(fsnotify.Write):
		watcher.flushPendingRename()
		watcher.deliver(Change{Path: path, Kind: KindModified})
	}
}

func (watcher *Watcher) takePendingRename() *pendingRename {
	pending := watcher.pending
	if pending == nil {
		return nil
	}
	watcher.pending = nil
	watcher.pairTimer.Stop()
	return pending
}

// flushPendingRename reports an unpaired rename as a deletion: the path moved
// somewhere outside the watched tree.
func (watcher *Watcher) flushPendingRename() {
	pending := watcher.takePendingRename()
	if pending == nil {
		return
	}
	if pending.isDir {
		watcher.forgetTree(pending.path)
	}
	watcher.deliver(Change{Path: pending.path, Kind: KindDeleted, IsDir: pending.isDir})
}

func statIsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
