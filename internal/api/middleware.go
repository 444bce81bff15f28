package api

import (
	"net/http"
	"time"

	"riceserver/internal/logging"
	"riceserver/internal/otel"

	"golang.org/x/time/rate"
)

type apiError struct {
	Status  int
	Message string
	Code    string
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

const (
	cacheControlNoStore = "no-store, must-revalidate"
	cacheControlPrivate = "private, max-age=300"
)

func setSecurityHeaders(w http.ResponseWriter, cacheControl string) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		headers.Set("Cache-Control", cacheControl)
	}
}

func securityHeadersHandler(cacheControl string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next(w, r)
	}
}

func securityHeadersMiddleware(cacheControl string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			otel.RecordSpanEvent(r.Context(), "auth.token_rejected")
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		otel.RecordSpanEvent(r.Context(), "auth.token_validated")
		return next(w, r)
	}
}

// rateLimitMiddleware rejects requests beyond the limiter's budget. A nil
// limiter disables the check.
func rateLimitMiddleware(limiter *rate.Limiter, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if limiter != nil && !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			return &apiError{Status: http.StatusTooManyRequests, Message: "too many requests"}
		}
		return next(w, r)
	}
}

func jsonErrorMiddleware(next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			code := err.Code
			if code == "" {
				code = errorCodeForStatus(err.Status)
			}
			otel.RecordAPIError(r.Context(), otel.APIErrorInfo{
				Status:  err.Status,
				Code:    code,
				Message: err.Message,
			})
			writeJSONError(w, err)
		}
	}
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logger != nil {
			logger.Debug("api request", map[string]string{
				"riceserver.category": "api",
				"http.route":          r.URL.Path,
				"method":              r.Method,
				"duration":            time.Since(start).String(),
			})
		}
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}

func restHandler(token string, handler apiHandler) http.HandlerFunc {
	return securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(authMiddleware(token, handler)))
}
