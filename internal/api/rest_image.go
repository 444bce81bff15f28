package api

import (
	"net/http"
	"path/filepath"
	"strings"
)

// handleImage serves a wallpaper. Only paths referenced by a registered theme
// are readable.
func (h *RestHandler) handleImage(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return methodNotAllowed(w, "GET, HEAD")
	}
	if err := h.requireManager(); err != nil {
		return err
	}

	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing image path"}
	}
	path := filepath.Clean(raw)
	if !h.isKnownWallpaper(path) {
		return &apiError{Status: http.StatusNotFound, Message: "image not found"}
	}

	w.Header().Set("Cache-Control", cacheControlPrivate)
	http.ServeFile(w, r, path)
	return nil
}

func (h *RestHandler) isKnownWallpaper(path string) bool {
	for _, candidate := range h.Manager.Themes() {
		if candidate.Wallpaper != "" && filepath.Clean(candidate.Wallpaper) == path {
			return true
		}
	}
	for album, names := range h.Manager.Albums() {
		for _, name := range names {
			candidate, err := h.Manager.AlbumTheme(album, name)
			if err != nil || candidate.Wallpaper == "" {
				continue
			}
			if filepath.Clean(candidate.Wallpaper) == path {
				return true
			}
		}
	}
	return false
}
