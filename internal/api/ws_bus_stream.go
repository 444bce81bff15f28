package api

import (
	"net/http"
	"strings"

	"riceserver/internal/event"
	"riceserver/internal/logging"

	"github.com/gorilla/websocket"
)

type wsBusStreamConfig[T any] struct {
	Logger            *logging.Logger
	AuthToken         string
	AllowedOrigins    []string
	Bus               *event.Bus[T]
	EventTypes        []string
	UnavailableReason string
	BuildPayload      func(T) (any, bool)
	PreWrite          func(*websocket.Conn) error
}

// serveWSBusStream subscribes to a bus and streams payloads to a websocket
// connection. EventTypes, when set, limits the subscription.
func serveWSBusStream[T any](w http.ResponseWriter, r *http.Request, config wsBusStreamConfig[T]) {
	if !requireWSToken(w, r, config.AuthToken, config.Logger) {
		return
	}

	conn, err := upgradeWebSocket(w, r, config.AllowedOrigins)
	if err != nil {
		logWSError(config.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	bus := config.Bus
	if bus == nil {
		writeWSError(w, r, conn, config.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      unavailableReason(config.UnavailableReason),
			SendEnvelope: true,
		})
		return
	}

	var output <-chan T
	var cancel func()
	if len(config.EventTypes) > 0 {
		output, cancel = bus.SubscribeTypes(config.EventTypes...)
	} else {
		output, cancel = bus.Subscribe()
	}
	defer cancel()

	spanCtx, span := startWebSocketSpan(r, r.URL.Path)
	defer span.End()
	r = r.WithContext(spanCtx)

	serveWSStream(r, wsStreamConfig[T]{
		Conn:         conn,
		Logger:       config.Logger,
		Output:       output,
		BuildPayload: config.BuildPayload,
		PreWrite:     config.PreWrite,
	})
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "event stream unavailable"
	}
	return reason
}
