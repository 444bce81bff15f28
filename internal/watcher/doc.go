// Package watcher delivers filesystem changes for directory trees.
//
// A Watcher observes every directory below a registered root, translates raw
// fsnotify operations into created, modified, deleted and moved changes, and
// invokes callbacks serially from a single goroutine. A callback that blocks
// holds back delivery of the next change; callers rely on this to finish the
// side effects of one change before the next is seen.
package watcher
