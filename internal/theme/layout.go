package theme

import "path/filepath"

const (
	BaseStyleFileName = "base_style.json"
	ConfigFileName    = "config.json"
	ThemeFileName     = "theme.json"
	ManifestFileName  = "module.yaml"
	ThemesDirName     = "themes"
	AlbumsDirName     = "albums"
	ModulesDirName    = "modules"
	TemplatesDirName  = "templates"
)

// Layout resolves the fixed locations inside a configuration root.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (layout Layout) BaseStyleFile() string {
	return filepath.Join(layout.Root, BaseStyleFileName)
}

func (layout Layout) ConfigFile() string {
	return filepath.Join(layout.Root, ConfigFileName)
}

func (layout Layout) ThemesDir() string {
	return filepath.Join(layout.Root, ThemesDirName)
}

func (layout Layout) AlbumsDir() string {
	return filepath.Join(layout.Root, AlbumsDirName)
}

func (layout Layout) ModulesDir() string {
	return filepath.Join(layout.Root, ModulesDirName)
}

func (layout Layout) ThemeFile(name string) string {
	return filepath.Join(layout.ThemesDir(), name, ThemeFileName)
}

func (layout Layout) AlbumDir(album string) string {
	return filepath.Join(layout.AlbumsDir(), album)
}

func (layout Layout) AlbumThemeFile(album, name string) string {
	return filepath.Join(layout.AlbumsDir(), album, name, ThemeFileName)
}

func (layout Layout) ModuleDir(name string) string {
	return filepath.Join(layout.ModulesDir(), name)
}
