// Package configwatch reacts to changes in the configuration directory.
//
// A Session receives changes from the filesystem watcher, drops duplicates
// with a Debouncer, tags them with a Classifier and hands them to a Dispatcher,
// which refreshes the theme manager's registries. Re-applications it requests
// run on the Bridge worker, one at a time; the watcher's delivery goroutine
// waits for each to finish before delivering the next change.
package configwatch
