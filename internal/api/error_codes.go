package api

import (
	"context"
	"errors"
	"net/http"

	"riceserver/internal/configwatch"
	"riceserver/internal/theme"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// errorFor maps engine and bridge errors onto API errors.
func errorFor(err error) *apiError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, theme.ErrThemeNotFound), errors.Is(err, theme.ErrAlbumNotFound), errors.Is(err, theme.ErrModuleNotFound):
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, theme.ErrInvalidName):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, theme.ErrNoActiveTheme):
		return &apiError{Status: http.StatusConflict, Message: err.Error(), Code: "no_active_theme"}
	case errors.Is(err, configwatch.ErrBridgeClosed):
		return &apiError{Status: http.StatusServiceUnavailable, Message: "server is shutting down"}
	case errors.Is(err, context.DeadlineExceeded):
		return &apiError{Status: http.StatusGatewayTimeout, Message: "theme application timed out"}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}
