package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var (
	ErrThemeNotFound  = errors.New("theme not found")
	ErrAlbumNotFound  = errors.New("album not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrNoActiveTheme  = errors.New("no active theme")
	ErrInvalidName    = errors.New("invalid name")
)

// Theme is a parsed theme.json.
type Theme struct {
	Name      string                    `json:"name" jsonschema_description:"Ignored on load; the directory name wins"`
	Wallpaper string                    `json:"wallpaper,omitempty" jsonschema_description:"Image path, relative to the theme directory"`
	Tags      []string                  `json:"tags,omitempty"`
	Style     map[string]any            `json:"style,omitempty"`
	Modes     map[string]map[string]any `json:"modes,omitempty"`
	Path      string                    `json:"-"`
}

// Mode values understood by Apply.
const (
	ModeDark  = "dark"
	ModeLight = "light"
)

// Config is the active selection persisted as config.json.
type Config struct {
	Theme string `json:"theme,omitempty"`
	Album string `json:"album,omitempty"`
	Mode  string `json:"mode,omitempty" jsonschema:"enum=dark,enum=light"`
}

// ParseThemeFile reads and validates a theme.json. The theme name always comes
// from its directory.
func ParseThemeFile(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read theme file %s: %w", path, err)
	}
	theme, err := ParseTheme(data)
	if err != nil {
		return nil, fmt.Errorf("parse theme file %s: %w", path, err)
	}
	theme.Path = filepath.Dir(path)
	theme.Name = filepath.Base(theme.Path)
	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("validate theme file %s: %w", path, err)
	}
	if theme.Wallpaper != "" && !filepath.IsAbs(theme.Wallpaper) {
		theme.Wallpaper = filepath.Join(theme.Path, theme.Wallpaper)
	}
	return theme, nil
}

// ParseTheme decodes theme.json content.
func ParseTheme(data []byte) (*Theme, error) {
	var theme Theme
	if err := json.Unmarshal(data, &theme); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(theme.Tags))
	for _, tag := range theme.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	theme.Tags = tags
	return &theme, nil
}

func (theme *Theme) Validate() error {
	if theme == nil {
		return errors.New("theme is nil")
	}
	if err := ValidateName(theme.Name); err != nil {
		return err
	}
	for mode := range theme.Modes {
		if mode != ModeDark && mode != ModeLight {
			return fmt.Errorf("unknown mode %q", mode)
		}
	}
	return nil
}

// ValidateName rejects names that cannot be used as a single path component.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (theme *Theme) HasTag(tag string) bool {
	for _, candidate := range theme.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// ResolveStyle merges base, the theme style and the style for mode, later
// layers winning. Nested maps are merged key by key.
func ResolveStyle(base map[string]any, theme *Theme, mode string) map[string]any {
	resolved := mergeStyle(nil, base)
	if theme == nil {
		return resolved
	}
	resolved = mergeStyle(resolved, theme.Style)
	if modeStyle, ok := theme.Modes[mode]; ok {
		resolved = mergeStyle(resolved, modeStyle)
	}
	return resolved
}

func mergeStyle(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = mergeStyle(mergeStyle(nil, dstMap), srcMap)
			continue
		}
		if srcIsMap {
			dst[key] = mergeStyle(nil, srcMap)
			continue
		}
		dst[key] = value
	}
	return dst
}
