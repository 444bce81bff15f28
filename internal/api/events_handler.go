package api

import (
	"net/http"

	"riceserver/internal/event"
	"riceserver/internal/logging"
	"riceserver/internal/theme"

	"github.com/gorilla/websocket"
)

// EventsHandler streams config_changed messages: one on connect and one for
// every theme application or selection change.
type EventsHandler struct {
	Manager        *theme.Manager
	Bus            *event.Bus[event.ThemeEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveWSBusStream(w, r, wsBusStreamConfig[event.ThemeEvent]{
		Logger:            h.Logger,
		AuthToken:         h.AuthToken,
		AllowedOrigins:    h.AllowedOrigins,
		Bus:               h.Bus,
		EventTypes:        []string{event.TypeThemeApplied, event.TypeConfigChanged},
		UnavailableReason: "theme event stream unavailable",
		PreWrite: func(conn *websocket.Conn) error {
			if h.Manager == nil {
				return nil
			}
			return conn.WriteJSON(configMessage{
				Type:   event.TypeConfigChanged,
				Config: h.Manager.Config(),
			})
		},
		BuildPayload: func(themeEvent event.ThemeEvent) (any, bool) {
			return configMessage{
				Type:   event.TypeConfigChanged,
				Config: theme.Config{
					Theme: themeEvent.Config.Theme,
					Album: themeEvent.Config.Album,
					Mode:  themeEvent.Config.Mode,
				},
			}, true
		},
	})
}
