package api

import (
	"time"

	"riceserver/internal/configwatch"
	"riceserver/internal/event"
	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/theme"
)

// RestHandler serves the /v1 JSON endpoints.
type RestHandler struct {
	Manager   *theme.Manager
	Bridge    *configwatch.Bridge
	Bus       *event.Bus[event.ThemeEvent]
	Logger    *logging.Logger
	Metrics   *metrics.Registry
	StartedAt time.Time
}
