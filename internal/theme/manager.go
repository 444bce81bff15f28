package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"riceserver/internal/event"
	"riceserver/internal/fsutil"
	"riceserver/internal/logging"
	"riceserver/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	Root     string
	Logger   *logging.Logger
	Bus      *event.Bus[event.ThemeEvent]
	Metrics  *metrics.Registry
	Renderer *Renderer
}

// Manager owns the theme, album and module registries, the base style and the
// active configuration. All access goes through its methods.
type Manager struct {
	layout   Layout
	logger   *logging.Logger
	bus      *event.Bus[event.ThemeEvent]
	metrics  *metrics.Registry
	renderer *Renderer

	mu        sync.RWMutex
	themes    map[string]*Theme
	albums    map[string]map[string]*Theme
	modules   map[string]*Module
	baseStyle map[string]any
	config    Config
}

func NewManager(options Options) (*Manager, error) {
	if strings.TrimSpace(options.Root) == "" {
		return nil, errors.New("config root is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	renderer := options.Renderer
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Manager{
		layout:    NewLayout(options.Root),
		logger:    logger,
		bus:       options.Bus,
		metrics:   registry,
		renderer:  renderer,
		themes:    make(map[string]*Theme),
		albums:    make(map[string]map[string]*Theme),
		modules:   make(map[string]*Module),
		baseStyle: map[string]any{},
		config:    Config{Mode: ModeDark},
	}, nil
}

func (manager *Manager) Layout() Layout {
	return manager.layout
}

// Load scans the whole configuration root. Broken themes and modules are
// logged and skipped.
func (manager *Manager) Load() error {
	if err := manager.ReloadBaseStyle(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		manager.logger.Warn("base style load failed", map[string]string{"error": err.Error()})
	}
	if err := manager.loadConfig(); err != nil {
		manager.logger.Warn("config load failed", map[string]string{"error": err.Error()})
	}

	for _, name := range fsutil.ListDirs(manager.layout.ThemesDir()) {
		if err := manager.LoadTheme(name); err != nil {
			manager.logger.Warn("theme load failed", map[string]string{"theme": name, "error": err.Error()})
		}
	}
	for _, album := range fsutil.ListDirs(manager.layout.AlbumsDir()) {
		if err := manager.loadAlbumDir(album, manager.layout.AlbumDir(album)); err != nil {
			manager.logger.Warn("album load failed", map[string]string{"album": album, "error": err.Error()})
		}
	}
	for _, name := range fsutil.ListDirs(manager.layout.ModulesDir()) {
		if _, err := manager.LoadModule(name); err != nil {
			manager.logger.Warn("module load failed", map[string]string{"module": name, "error": err.Error()})
		}
	}

	manager.mu.RLock()
	fields := map[string]string{
		"themes":  fmt.Sprintf("%d", len(manager.themes)),
		"albums":  fmt.Sprintf("%d", len(manager.albums)),
		"modules": fmt.Sprintf("%d", len(manager.modules)),
	}
	manager.mu.RUnlock()
	manager.logger.Info("config loaded", fields)
	return nil
}

func (manager *Manager) loadConfig() error {
	data, err := os.ReadFile(manager.layout.ConfigFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if config.Mode == "" {
		config.Mode = ModeDark
	}
	manager.mu.Lock()
	manager.config = config
	manager.mu.Unlock()
	return nil
}

func (manager *Manager) saveConfigLocked() error {
	data, err := json.MarshalIndent(manager.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(manager.layout.Root, 0o755); err != nil {
		return fmt.Errorf("create config root: %w", err)
	}
	if err := os.WriteFile(manager.layout.ConfigFile(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadTheme parses themes/<name>/theme.json into the registry, replacing any
// previous entry.
func (manager *Manager) LoadTheme(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	theme, err := ParseThemeFile(manager.layout.ThemeFile(name))
	if err != nil {
		return err
	}
	manager.mu.Lock()
	manager.themes[name] = theme
	manager.mu.Unlock()
	manager.logger.Info("theme loaded", map[string]string{"theme": name})
	manager.publish(manager.themeEvent(event.TypeThemeLoaded, name, ""))
	return nil
}

// RemoveTheme drops a theme from the registry. Missing themes are ignored.
func (manager *Manager) RemoveTheme(name string) {
	manager.mu.Lock()
	_, ok := manager.themes[name]
	delete(manager.themes, name)
	manager.mu.Unlock()
	if !ok {
		return
	}
	manager.logger.Info("theme removed", map[string]string{"theme": name})
	manager.publish(manager.themeEvent(event.TypeThemeRemoved, name, ""))
}

// AddAlbum registers an album with no themes unless it already exists.
func (manager *Manager) AddAlbum(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	manager.mu.Lock()
	if _, ok := manager.albums[name]; !ok {
		manager.albums[name] = make(map[string]*Theme)
	}
	manager.mu.Unlock()
	manager.publish(manager.themeEvent(event.TypeAlbumChanged, "", name))
	return nil
}

func (manager *Manager) RemoveAlbum(name string) {
	manager.mu.Lock()
	_, ok := manager.albums[name]
	delete(manager.albums, name)
	manager.mu.Unlock()
	if ok {
		manager.publish(manager.themeEvent(event.TypeAlbumChanged, "", name))
	}
}

// RenameAlbum re-scans the album now stored under newName, drops oldName and
// points the active configuration at newName if oldName was active. It
// reports whether the active album changed.
func (manager *Manager) RenameAlbum(oldName, newName string) (bool, error) {
	if err := ValidateName(newName); err != nil {
		return false, err
	}
	themes, err := manager.scanAlbum(manager.layout.AlbumDir(newName))
	if err != nil {
		return false, err
	}

	manager.mu.Lock()
	delete(manager.albums, oldName)
	manager.albums[newName] = themes
	activeChanged := manager.config.Album == oldName && oldName != ""
	var saveErr error
	if activeChanged {
		manager.config.Album = newName
		saveErr = manager.saveConfigLocked()
	}
	config := manager.config
	manager.mu.Unlock()

	manager.logger.Info("album renamed", map[string]string{"from": oldName, "to": newName})
	manager.publish(manager.themeEvent(event.TypeAlbumChanged, "", newName))
	if activeChanged {
		manager.publishConfig(config)
	}
	if saveErr != nil {
		return activeChanged, saveErr
	}
	return activeChanged, nil
}

func (manager *Manager) loadAlbumDir(album, dir string) error {
	if err := ValidateName(album); err != nil {
		return err
	}
	themes, err := manager.scanAlbum(dir)
	if err != nil {
		return err
	}
	manager.mu.Lock()
	manager.albums[album] = themes
	manager.mu.Unlock()
	return nil
}

func (manager *Manager) scanAlbum(dir string) (map[string]*Theme, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat album %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("album %s is not a directory", dir)
	}
	themes := make(map[string]*Theme)
	for _, name := range fsutil.ListDirs(dir) {
		theme, err := ParseThemeFile(filepath.Join(dir, name, ThemeFileName))
		if err != nil {
			manager.logger.Warn("album theme load failed", map[string]string{
				"album": filepath.Base(dir),
				"theme": name,
				"error": err.Error(),
			})
			continue
		}
		themes[name] = theme
	}
	return themes, nil
}

// LoadAlbumTheme parses albums/<album>/<name>/theme.json into the nested
// registry, creating the album entry if needed.
func (manager *Manager) LoadAlbumTheme(album, name string) error {
	if err := ValidateName(album); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	theme, err := ParseThemeFile(manager.layout.AlbumThemeFile(album, name))
	if err != nil {
		return err
	}
	manager.mu.Lock()
	themes, ok := manager.albums[album]
	if !ok {
		themes = make(map[string]*Theme)
		manager.albums[album] = themes
	}
	themes[name] = theme
	manager.mu.Unlock()
	manager.logger.Info("album theme loaded", map[string]string{"album": album, "theme": name})
	manager.publish(manager.themeEvent(event.TypeThemeLoaded, name, album))
	return nil
}

func (manager *Manager) RemoveAlbumTheme(album, name string) {
	manager.mu.Lock()
	themes, ok := manager.albums[album]
	if ok {
		_, ok = themes[name]
		delete(themes, name)
	}
	manager.mu.Unlock()
	if ok {
		manager.publish(manager.themeEvent(event.TypeThemeRemoved, name, album))
	}
}

// LoadModule re-reads modules/<name> wholesale.
func (manager *Manager) LoadModule(name string) (*Module, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	module, err := ParseModuleDir(manager.layout.ModuleDir(name))
	if err != nil {
		return nil, err
	}
	manager.mu.Lock()
	manager.modules[name] = module
	manager.mu.Unlock()
	manager.logger.Info("module loaded", map[string]string{
		"module":  name,
		"enabled": fmt.Sprintf("%t", module.Enabled),
	})
	reloaded := manager.themeEvent(event.TypeModuleReloaded, "", "")
	reloaded.Modules = []string{name}
	manager.publish(reloaded)
	copied := *module
	return &copied, nil
}

func (manager *Manager) RemoveModule(name string) {
	manager.mu.Lock()
	_, ok := manager.modules[name]
	delete(manager.modules, name)
	manager.mu.Unlock()
	if ok {
		manager.logger.Info("module unloaded", map[string]string{"module": name})
	}
}

// ReloadBaseStyle reads base_style.json. A missing file leaves the current
// style untouched and returns an error wrapping fs.ErrNotExist.
func (manager *Manager) ReloadBaseStyle() error {
	data, err := os.ReadFile(manager.layout.BaseStyleFile())
	if err != nil {
		return fmt.Errorf("read base style: %w", err)
	}
	style := map[string]any{}
	if err := json.Unmarshal(data, &style); err != nil {
		return fmt.Errorf("parse base style: %w", err)
	}
	manager.mu.Lock()
	manager.baseStyle = style
	manager.mu.Unlock()
	manager.publish(manager.themeEvent(event.TypeBaseStyleReloaded, "", ""))
	return nil
}

// ResetBaseStyle falls back to an empty base style.
func (manager *Manager) ResetBaseStyle() {
	manager.mu.Lock()
	manager.baseStyle = map[string]any{}
	manager.mu.Unlock()
	manager.publish(manager.themeEvent(event.TypeBaseStyleReloaded, "", ""))
}

func (manager *Manager) BaseStyle() map[string]any {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return mergeStyle(nil, manager.baseStyle)
}

func (manager *Manager) Config() Config {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.config
}

// SetActiveAlbum updates and persists the active album. An empty name clears it.
func (manager *Manager) SetActiveAlbum(name string) error {
	manager.mu.Lock()
	if name != "" {
		if _, ok := manager.albums[name]; !ok {
			manager.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlbumNotFound, name)
		}
	}
	manager.config.Album = name
	err := manager.saveConfigLocked()
	config := manager.config
	manager.mu.Unlock()
	manager.publishConfig(config)
	return err
}

// SetMode selects the dark or light variant.
func (manager *Manager) SetMode(mode string) error {
	if mode != ModeDark && mode != ModeLight {
		return fmt.Errorf("unknown mode %q", mode)
	}
	manager.mu.Lock()
	manager.config.Mode = mode
	err := manager.saveConfigLocked()
	config := manager.config
	manager.mu.Unlock()
	manager.publishConfig(config)
	return err
}

// SetTheme selects the active theme. The theme must exist in the active album
// or, without an album, in the theme registry.
func (manager *Manager) SetTheme(name string) error {
	manager.mu.Lock()
	if _, err := manager.lookupLocked(manager.config.Album, name); err != nil {
		manager.mu.Unlock()
		return err
	}
	manager.config.Theme = name
	err := manager.saveConfigLocked()
	config := manager.config
	manager.mu.Unlock()
	manager.publishConfig(config)
	return err
}

// RandomTheme selects a random theme whose name contains substr, different
// from the current one when there is a choice. It returns the chosen name.
func (manager *Manager) RandomTheme(substr string) (string, error) {
	manager.mu.RLock()
	pool := manager.themes
	if manager.config.Album != "" {
		pool = manager.albums[manager.config.Album]
	}
	current := manager.config.Theme
	var candidates []string
	for name := range pool {
		if substr == "" || strings.Contains(name, substr) {
			candidates = append(candidates, name)
		}
	}
	manager.mu.RUnlock()

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no theme matches %q", ErrThemeNotFound, substr)
	}
	sort.Strings(candidates)
	if len(candidates) > 1 {
		filtered := candidates[:0]
		for _, name := range candidates {
			if name != current {
				filtered = append(filtered, name)
			}
		}
		candidates = filtered
	}
	choice := candidates[rand.IntN(len(candidates))]
	if err := manager.SetTheme(choice); err != nil {
		return "", err
	}
	return choice, nil
}

func (manager *Manager) Themes() map[string]*Theme {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	themes := make(map[string]*Theme, len(manager.themes))
	for name, theme := range manager.themes {
		themes[name] = theme
	}
	return themes
}

func (manager *Manager) Theme(name string) (*Theme, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	theme, ok := manager.themes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThemeNotFound, name)
	}
	return theme, nil
}

// AlbumTheme returns a theme from the nested album registry.
func (manager *Manager) AlbumTheme(album, name string) (*Theme, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	themes, ok := manager.albums[album]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlbumNotFound, album)
	}
	theme, ok := themes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrThemeNotFound, album, name)
	}
	return theme, nil
}

// CurrentTheme returns the active theme, or nil when none is selected.
func (manager *Manager) CurrentTheme() (*Theme, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.config.Theme == "" {
		return nil, nil
	}
	return manager.lookupLocked(manager.config.Album, manager.config.Theme)
}

// Albums maps album names to their sorted theme names.
func (manager *Manager) Albums() map[string][]string {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	albums := make(map[string][]string, len(manager.albums))
	for album, themes := range manager.albums {
		names := make([]string, 0, len(themes))
		for name := range themes {
			names = append(names, name)
		}
		sort.Strings(names)
		albums[album] = names
	}
	return albums
}

func (manager *Manager) Modules() map[string]Module {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	modules := make(map[string]Module, len(manager.modules))
	for name, module := range manager.modules {
		modules[name] = *module
	}
	return modules
}

func (manager *Manager) Module(name string) (Module, bool) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	module, ok := manager.modules[name]
	if !ok {
		return Module{}, false
	}
	return *module, true
}

// Tags returns the sorted set of tags across all registered themes.
func (manager *Manager) Tags() []string {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, theme := range manager.themes {
		for _, tag := range theme.Tags {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (manager *Manager) lookupLocked(album, name string) (*Theme, error) {
	if album != "" {
		themes, ok := manager.albums[album]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAlbumNotFound, album)
		}
		if theme, ok := themes[name]; ok {
			return theme, nil
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrThemeNotFound, album, name)
	}
	theme, ok := manager.themes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThemeNotFound, name)
	}
	return theme, nil
}

func (manager *Manager) publish(themeEvent event.ThemeEvent) {
	if manager.bus == nil {
		return
	}
	manager.bus.Publish(themeEvent)
}

func (manager *Manager) publishConfig(config Config) {
	changed := event.NewThemeEvent(event.TypeConfigChanged, config.Theme, toActiveConfig(config))
	changed.Album = config.Album
	manager.publish(changed)
}

func (manager *Manager) themeEvent(eventType, name, album string) event.ThemeEvent {
	themeEvent := event.NewThemeEvent(eventType, name, toActiveConfig(manager.Config()))
	themeEvent.Album = album
	return themeEvent
}

func toActiveConfig(config Config) event.ActiveConfig {
	return event.ActiveConfig{Theme: config.Theme, Album: config.Album, Mode: config.Mode}
}
