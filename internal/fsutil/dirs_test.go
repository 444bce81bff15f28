package fsutil

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"
)

func TestReadDirOrEmptyMissing(t *testing.T) {
	entries, err := ReadDirOrEmpty(fstest.MapFS{}, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestListDirsSkipsFilesAndHidden(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"b", "a", ".git"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "theme.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := ListDirs(root)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %v", got)
	}
	if dirs := ListDirs(filepath.Join(root, "missing")); dirs != nil && len(dirs) != 0 {
		t.Fatalf("expected nothing for missing dir, got %v", dirs)
	}
}
