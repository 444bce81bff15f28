package configwatch

import (
	"os"
	"path/filepath"
	"strings"

	"riceserver/internal/theme"
	"riceserver/internal/watcher"
)

// CategoryKind names what a changed path represents.
type CategoryKind string

const (
	CategoryBaseStyle  CategoryKind = "base_style"
	CategoryTheme      CategoryKind = "theme"
	CategoryAlbum      CategoryKind = "album"
	CategoryAlbumTheme CategoryKind = "album_theme"
	CategoryModule     CategoryKind = "module"
)

// Category is a classified change target. Name is the theme, album or module
// name; Album is only set for CategoryAlbumTheme.
type Category struct {
	Kind  CategoryKind
	Name  string
	Album string
}

func (category Category) String() string {
	switch category.Kind {
	case CategoryBaseStyle:
		return string(category.Kind)
	case CategoryAlbumTheme:
		return string(category.Kind) + ":" + category.Album + "/" + category.Name
	default:
		return string(category.Kind) + ":" + category.Name
	}
}

// Classifier maps paths under a configuration root to categories.
type Classifier struct {
	layout theme.Layout
}

func NewClassifier(layout theme.Layout) Classifier {
	return Classifier{layout: layout}
}

// Classify tags a change. Paths that match no pattern, including paths that
// are too shallow for the pattern they resemble, report false.
func (classifier Classifier) Classify(path string, isDir bool, _ watcher.Kind) (Category, bool) {
	if path == "" {
		return Category{}, false
	}
	path = filepath.Clean(path)
	layout := classifier.layout

	if path == layout.BaseStyleFile() {
		if isDir {
			return Category{}, false
		}
		return Category{Kind: CategoryBaseStyle}, true
	}

	if parts, ok := relativeParts(layout.ThemesDir(), path); ok {
		if !isDir && len(parts) == 2 && parts[1] == theme.ThemeFileName {
			return Category{Kind: CategoryTheme, Name: parts[0]}, true
		}
		return Category{}, false
	}

	if parts, ok := relativeParts(layout.AlbumsDir(), path); ok {
		if isDir && len(parts) == 1 {
			return Category{Kind: CategoryAlbum, Name: parts[0]}, true
		}
		if !isDir && len(parts) == 3 && parts[2] == theme.ThemeFileName {
			return Category{Kind: CategoryAlbumTheme, Album: parts[0], Name: parts[1]}, true
		}
		return Category{}, false
	}

	if parts, ok := relativeParts(layout.ModulesDir(), path); ok {
		if len(parts) < 2 {
			return Category{}, false
		}
		base := parts[len(parts)-1]
		switch {
		case theme.IsManifestFile(base) && len(parts) == 2,
			!isDir && theme.IsTemplateFile(base),
			containsSegment(parts[1:], theme.TemplatesDirName):
			return Category{Kind: CategoryModule, Name: parts[0]}, true
		}
	}

	return Category{}, false
}

// relativeParts splits path below root into components. It reports false for
// root itself and for paths outside root.
func relativeParts(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return nil, false
	}
	return strings.Split(rel, string(os.PathSeparator)), true
}

func containsSegment(parts []string, segment string) bool {
	for _, part := range parts {
		if part == segment {
			return true
		}
	}
	return false
}
