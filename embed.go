package riceserver

import "embed"

// EmbeddedConfigFS provides the default server settings.
//
//go:embed config
var EmbeddedConfigFS embed.FS

// DefaultSettingsPath is the location of the defaults inside EmbeddedConfigFS.
const DefaultSettingsPath = "config/server.toml"
