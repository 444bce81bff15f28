package api

import (
	"time"

	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/theme"
)

type statusResponse struct {
	Version       string           `json:"version"`
	GitCommit     string           `json:"git_commit,omitempty"`
	ServerTime    time.Time        `json:"server_time"`
	Uptime        string           `json:"uptime"`
	ConfigDir     string           `json:"config_dir"`
	Config        theme.Config     `json:"config"`
	ThemeCount    int              `json:"theme_count"`
	AlbumCount    int              `json:"album_count"`
	ModuleCount   int              `json:"module_count"`
	PendingApply  int              `json:"pending_apply"`
	Subscribers   int              `json:"subscribers"`
	EventsDropped int64            `json:"events_dropped"`
	Pipeline      metrics.Snapshot `json:"pipeline"`
}

type currentThemeResponse struct {
	Event  string            `json:"event"`
	Config theme.Config      `json:"config"`
	Result theme.ApplyResult `json:"result"`
}

type configMessage struct {
	Type   string       `json:"type"`
	Config theme.Config `json:"config"`
}

type logQuery struct {
	Limit int
	Since *time.Time
	Level logging.Level
}
