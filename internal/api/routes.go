package api

import (
	"net/http"
	"time"

	"riceserver/internal/configwatch"
	"riceserver/internal/event"
	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/otel"
	"riceserver/internal/theme"

	otelapi "go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	defaultApplyRate  = rate.Limit(2)
	defaultApplyBurst = 4
)

// Options carries the collaborators the API serves.
type Options struct {
	Manager        *theme.Manager
	Bridge         *configwatch.Bridge
	Bus            *event.Bus[event.ThemeEvent]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	// ApplyLimiter bounds PUT /v1/current_theme and POST /v1/cli_command. Nil
	// uses the default of two applies per second with a burst of four.
	ApplyLimiter *rate.Limiter
}

func RegisterRoutes(mux *http.ServeMux, options Options) {
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	limiter := options.ApplyLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(defaultApplyRate, defaultApplyBurst)
	}
	logger := options.Logger
	authToken := options.AuthToken

	rest := &RestHandler{
		Manager:   options.Manager,
		Bridge:    options.Bridge,
		Bus:       options.Bus,
		Logger:    logger,
		Metrics:   registry,
		StartedAt: time.Now(),
	}

	instrument := otel.NewAPIInstrumentationMiddleware(
		otel.WithAPITracer(otelapi.Tracer("riceserver/api")),
		otel.WithRequestRecorder(func(info otel.RouteInfo, status int, duration time.Duration) {
			registry.RecordHTTPRequest(info.Route, status, duration)
		}),
	)
	wrap := func(route, category, operation string, handler http.Handler) http.Handler {
		return otel.WithRouteInfo(instrument(loggingMiddleware(logger, handler)), otel.RouteInfo{
			Route:     route,
			Category:  category,
			Operation: operation,
		})
	}

	events := securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Manager:        options.Manager,
		Bus:            options.Bus,
		Logger:         logger,
		AuthToken:      authToken,
		AllowedOrigins: options.AllowedOrigins,
	})
	mux.Handle("/v1/ws", events)
	mux.Handle("/v1/ws/{client}", events)

	mux.Handle("/v1/status", wrap("/v1/status", "status", "read", restHandler(authToken, rest.handleStatus)))
	mux.Handle("/v1/themes", wrap("/v1/themes", "themes", "read", restHandler(authToken, rest.handleThemes)))
	mux.Handle("/v1/themes/{name}", wrap("/v1/themes/{name}", "themes", "read", restHandler(authToken, rest.handleTheme)))
	mux.Handle("/v1/theme/{name}", wrap("/v1/theme/{name}", "themes", "read", restHandler(authToken, rest.handleTheme)))
	mux.Handle("/v1/tags", wrap("/v1/tags", "themes", "read", restHandler(authToken, rest.handleTags)))
	mux.Handle("/v1/albums", wrap("/v1/albums", "albums", "read", restHandler(authToken, rest.handleAlbums)))
	mux.Handle("/v1/base_style", wrap("/v1/base_style", "themes", "read", restHandler(authToken, rest.handleBaseStyle)))
	mux.Handle("/v1/current_theme", wrap("/v1/current_theme", "apply", "auto", restHandler(authToken, writeLimit(limiter, rest.handleCurrentTheme))))
	mux.Handle("/v1/cli_command", wrap("/v1/cli_command", "apply", "write", restHandler(authToken, writeLimit(limiter, rest.handleCLICommand))))
	mux.Handle("/v1/schema", wrap("/v1/schema", "schema", "read", restHandler(authToken, rest.handleSchemaList)))
	mux.Handle("/v1/schema/{name}", wrap("/v1/schema/{name}", "schema", "read", restHandler(authToken, rest.handleSchema)))
	mux.Handle("/v1/image", wrap("/v1/image", "themes", "read", restHandler(authToken, rest.handleImage)))
	mux.Handle("/v1/logs", wrap("/v1/logs", "logs", "auto", restHandler(authToken, rest.handleLogs)))
	mux.Handle("/v1/metrics", wrap("/v1/metrics", "status", "read", restHandler(authToken, rest.handleMetrics)))
	mux.Handle("/metrics", wrap("/metrics", "status", "read", restHandler(authToken, rest.handleMetrics)))
}

// writeLimit rate limits writes only.
func writeLimit(limiter *rate.Limiter, next apiHandler) apiHandler {
	limited := rateLimitMiddleware(limiter, next)
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			return limited(w, r)
		}
		return next(w, r)
	}
}
