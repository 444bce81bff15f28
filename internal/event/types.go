package event

import "time"

const (
	TypeThemeApplied      = "theme_applied"
	TypeConfigChanged     = "config_changed"
	TypeThemeLoaded       = "theme_loaded"
	TypeThemeRemoved      = "theme_removed"
	TypeAlbumChanged      = "album_changed"
	TypeModuleReloaded    = "module_reloaded"
	TypeBaseStyleReloaded = "base_style_reloaded"
)

// ActiveConfig mirrors the selected theme, album and mode.
type ActiveConfig struct {
	Theme string `json:"theme,omitempty"`
	Album string `json:"album,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// ThemeEvent reports a change in theme state.
type ThemeEvent struct {
	EventType  string       `json:"type"`
	Name       string       `json:"name,omitempty"`
	Album      string       `json:"album,omitempty"`
	Modules    []string     `json:"modules,omitempty"`
	Config     ActiveConfig `json:"config"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func NewThemeEvent(eventType, name string, config ActiveConfig) ThemeEvent {
	return ThemeEvent{
		EventType:  eventType,
		Name:       name,
		Config:     config,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ThemeEvent) Type() string {
	return e.EventType
}

func (e ThemeEvent) Timestamp() time.Time {
	return e.OccurredAt
}
