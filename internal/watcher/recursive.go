package watcher

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// addTree watches root and every directory below it.
func (watcher *Watcher) addTree(root string) error {
	paths, err := collectDirs(root)
	if err != nil {
		return err
	}

	added := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := watcher.addWatch(path); err != nil {
			for _, previous := range added {
				watcher.removeWatch(previous)
			}
			return err
		}
		added = append(added, path)
	}
	return nil
}

// reportTree delivers a created change for everything already below root,
// parents before their children.
func (watcher *Watcher) reportTree(root string) {
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		watcher.deliver(Change{Path: path, Kind: KindCreated, IsDir: entry.IsDir()})
		return nil
	})
}

func collectDirs(root string) ([]string, error) {
	dirs := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func (watcher *Watcher) addWatch(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return ErrClosed
	}
	if _, ok := watcher.dirs[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	if len(watcher.dirs) >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return ErrMaxWatchesExceeded
	}
	watcher.dirs[path] = struct{}{}
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	watcher.mutex.Unlock()

	if source == nil {
		return nil
	}
	if err := source.Add(path); err != nil {
		watcher.mutex.Lock()
		delete(watcher.dirs, path)
		watcher.mutex.Unlock()
		watcher.logWarn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	watcher.logDebug("watch added", path, activeCount)
	return nil
}

func (watcher *Watcher) removeWatch(path string) {
	watcher.mutex.Lock()
	if _, ok := watcher.dirs[path]; !ok {
		watcher.mutex.Unlock()
		return
	}
	delete(watcher.dirs, path)
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	closed := watcher.closed
	watcher.mutex.Unlock()

	if source == nil || closed {
		return
	}
	// The kernel drops watches on deleted directories itself, so a failed
	// remove here is expected and only worth a debug line.
	if err := source.Remove(path); err != nil {
		watcher.logDebug("watch remove skipped", path, activeCount)
		return
	}
	watcher.logDebug("watch removed", path, activeCount)
}

// forgetTree drops the watches for root and everything below it.
func (watcher *Watcher) forgetTree(root string) {
	watcher.mutex.Lock()
	paths := make([]string, 0)
	for path := range watcher.dirs {
		if isWithinPath(root, path) {
			paths = append(paths, path)
		}
	}
	watcher.mutex.Unlock()

	// Children first so parents stay watched until their subtree is gone.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, path := range paths {
		watcher.removeWatch(path)
	}
}

func (watcher *Watcher) isWatchedDir(path string) bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	_, ok := watcher.dirs[path]
	return ok
}
