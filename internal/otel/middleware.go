package otel

import (
	"context"
	"net/http"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const spanNameHTTPRequest = "http.request"

type RouteInfo struct {
	Route     string
	Category  string
	Operation string
}

type routeInfoKey struct{}

type APIErrorInfo struct {
	Status  int
	Code    string
	Message string
}

type apiErrorKey struct{}

// RequestRecorder receives one call per finished request.
type RequestRecorder func(info RouteInfo, status int, duration time.Duration)

type apiMiddleware struct {
	tracer   trace.Tracer
	recorder RequestRecorder
}

type apiMiddlewareOptions struct {
	tracer   trace.Tracer
	recorder RequestRecorder
}

type APIMiddlewareOption func(*apiMiddlewareOptions)

func WithAPITracer(tracer trace.Tracer) APIMiddlewareOption {
	return func(options *apiMiddlewareOptions) {
		options.tracer = tracer
	}
}

func WithRequestRecorder(recorder RequestRecorder) APIMiddlewareOption {
	return func(options *apiMiddlewareOptions) {
		options.recorder = recorder
	}
}

// NewAPIInstrumentationMiddleware wraps handlers in a server span and reports
// each request to the configured recorder.
func NewAPIInstrumentationMiddleware(opts ...APIMiddlewareOption) func(http.Handler) http.Handler {
	options := apiMiddlewareOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.tracer == nil {
		options.tracer = otelapi.Tracer("riceserver/api")
	}
	middleware := &apiMiddleware{
		tracer:   options.tracer,
		recorder: options.recorder,
	}
	return middleware.wrap
}

func WithRouteInfo(next http.Handler, info RouteInfo) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), routeInfoKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecordAPIError hands an API error to the enclosing middleware so it lands on
// the request span.
func RecordAPIError(ctx context.Context, info APIErrorInfo) {
	if ctx == nil {
		return
	}
	tracker, ok := ctx.Value(apiErrorKey{}).(*APIErrorInfo)
	if !ok || tracker == nil {
		return
	}
	*tracker = info
}

func apiErrorFromContext(ctx context.Context) (APIErrorInfo, bool) {
	if ctx == nil {
		return APIErrorInfo{}, false
	}
	tracker, ok := ctx.Value(apiErrorKey{}).(*APIErrorInfo)
	if !ok || tracker == nil {
		return APIErrorInfo{}, false
	}
	if tracker.Status == 0 && tracker.Code == "" && tracker.Message == "" {
		return APIErrorInfo{}, false
	}
	return *tracker, true
}

func (middleware *apiMiddleware) wrap(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		routeInfo := resolveRouteInfo(r)

		ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = context.WithValue(ctx, apiErrorKey{}, &APIErrorInfo{})
		ctx, span := middleware.tracer.Start(ctx, spanNameHTTPRequest,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(buildAttributes(r, routeInfo)...),
		)
		defer span.End()
		r = r.WithContext(ctx)

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("response.size", recorder.bytes),
		)

		errorInfo, hasErrorInfo := apiErrorFromContext(ctx)
		if hasErrorInfo || status >= http.StatusBadRequest {
			message := errorInfo.Message
			if message == "" {
				message = http.StatusText(status)
			}
			span.SetStatus(codes.Error, message)
			if errorInfo.Code != "" {
				span.SetAttributes(attribute.String("error_type", errorInfo.Code))
			}
		}

		if middleware.recorder != nil {
			middleware.recorder(routeInfo, status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (recorder *statusRecorder) WriteHeader(statusCode int) {
	recorder.status = statusCode
	recorder.ResponseWriter.WriteHeader(statusCode)
}

func (recorder *statusRecorder) Write(data []byte) (int, error) {
	if recorder.status == 0 {
		recorder.status = http.StatusOK
	}
	n, err := recorder.ResponseWriter.Write(data)
	recorder.bytes += int64(n)
	return n, err
}

func resolveRouteInfo(r *http.Request) RouteInfo {
	info := RouteInfo{}
	if r == nil {
		return info
	}
	if ctxInfo, ok := r.Context().Value(routeInfoKey{}).(RouteInfo); ok {
		info = ctxInfo
	}
	if info.Route == "" {
		info.Route = r.URL.Path
	}
	if info.Operation == "" || info.Operation == "auto" {
		info.Operation = operationForMethod(r.Method)
	}
	return info
}

func operationForMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "other"
	}
}

func buildAttributes(r *http.Request, info RouteInfo) []attribute.KeyValue {
	attributes := []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.route", info.Route),
		attribute.String("http.target", sanitizeTarget(r)),
		attribute.String("riceserver.operation", info.Operation),
	}
	if info.Category != "" {
		attributes = append(attributes, attribute.String("riceserver.category", info.Category))
	}
	return attributes
}

func sanitizeTarget(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	copyURL := *r.URL
	query := copyURL.Query()
	query.Del("token")
	copyURL.RawQuery = query.Encode()
	return copyURL.RequestURI()
}
