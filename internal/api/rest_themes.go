package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"riceserver/internal/event"
	"riceserver/internal/theme"
)

func (h *RestHandler) handleThemes(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}

	themes := h.Manager.Themes()
	if tag := strings.TrimSpace(r.URL.Query().Get("tag")); tag != "" {
		for name, candidate := range themes {
			if !candidate.HasTag(tag) {
				delete(themes, name)
			}
		}
	}
	writeJSON(w, http.StatusOK, themes)
	return nil
}

func (h *RestHandler) handleTheme(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}

	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing theme name"}
	}
	found, err := h.Manager.Theme(name)
	if err != nil {
		return errorFor(err)
	}
	writeJSON(w, http.StatusOK, found)
	return nil
}

func (h *RestHandler) handleTags(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h.Manager.Tags())
	return nil
}

func (h *RestHandler) handleAlbums(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h.Manager.Albums())
	return nil
}

func (h *RestHandler) handleBaseStyle(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h.Manager.BaseStyle())
	return nil
}

// handleCurrentTheme reads the active theme, or selects and applies one. A PUT
// with random set picks a theme whose name contains name.
func (h *RestHandler) handleCurrentTheme(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireManager(); err != nil {
		return err
	}
	switch r.Method {
	case http.MethodGet:
		current, err := h.Manager.CurrentTheme()
		if err != nil {
			return errorFor(err)
		}
		writeJSON(w, http.StatusOK, current)
		return nil
	case http.MethodPut:
		return h.setCurrentTheme(w, r)
	default:
		return methodNotAllowed(w, "GET, PUT")
	}
}

func (h *RestHandler) setCurrentTheme(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireBridge(); err != nil {
		return err
	}

	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	mode := strings.TrimSpace(query.Get("mode"))
	random, apiErr := parseRandomFlag(query.Get("random"), query.Has("random"))
	if apiErr != nil {
		return apiErr
	}
	if name == "" && !random {
		return &apiError{Status: http.StatusBadRequest, Message: "missing theme name"}
	}

	var result theme.ApplyResult
	var applyErr error
	err := h.Bridge.Run(r.Context(), "set_theme", func(ctx context.Context) error {
		if mode != "" {
			if err := h.Manager.SetMode(mode); err != nil {
				return &selectionError{err: err}
			}
		}
		if random {
			if _, err := h.Manager.RandomTheme(name); err != nil {
				return &selectionError{err: err}
			}
		} else if err := h.Manager.SetTheme(name); err != nil {
			return &selectionError{err: err}
		}
		result, applyErr = h.Manager.Apply(ctx, theme.ApplyRequest{})
		if applyErr != nil && !result.Failed() {
			return applyErr
		}
		return nil
	})
	if err != nil {
		var selection *selectionError
		if errors.As(err, &selection) {
			if errors.Is(selection.err, theme.ErrThemeNotFound) || errors.Is(selection.err, theme.ErrAlbumNotFound) {
				return errorFor(selection.err)
			}
			return &apiError{Status: http.StatusBadRequest, Message: selection.err.Error()}
		}
		return errorFor(err)
	}

	if applyErr != nil && h.Logger != nil {
		h.Logger.Warn("theme applied with module failures", map[string]string{
			"theme": result.Theme,
			"error": applyErr.Error(),
		})
	}
	writeJSON(w, http.StatusOK, currentThemeResponse{
		Event:  event.TypeThemeApplied,
		Config: h.Manager.Config(),
		Result: result,
	})
	return nil
}

// selectionError marks failures that happened before Apply ran.
type selectionError struct {
	err error
}

func (e *selectionError) Error() string { return e.err.Error() }

func (e *selectionError) Unwrap() error { return e.err }

// parseRandomFlag treats a bare ?random as true.
func parseRandomFlag(raw string, present bool) (bool, *apiError) {
	if !present {
		return false, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &apiError{Status: http.StatusBadRequest, Message: "invalid random flag"}
	}
	return value, nil
}
