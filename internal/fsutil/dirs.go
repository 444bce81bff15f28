package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// ReadDirOrEmpty returns an empty slice when the directory does not exist.
func ReadDirOrEmpty(rootFS fs.FS, dir string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(rootFS, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// ListDirs returns the sorted names of the visible subdirectories of dir.
// Unreadable or missing directories yield nil.
func ListDirs(dir string) []string {
	entries, err := ReadDirOrEmpty(os.DirFS(dir), ".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !IsHidden(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// IsHidden reports dot-prefixed names.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
