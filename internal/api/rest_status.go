package api

import (
	"net/http"
	"time"

	"riceserver/internal/metrics"
	"riceserver/internal/version"
)

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireManager(); err != nil {
		return err
	}

	versionInfo := version.GetVersionInfo()
	registry := h.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	response := statusResponse{
		Version:       versionInfo.Version,
		GitCommit:     versionInfo.GitCommit,
		ServerTime:    time.Now().UTC(),
		ConfigDir:     h.Manager.Layout().Root,
		Config:        h.Manager.Config(),
		ThemeCount:    len(h.Manager.Themes()),
		AlbumCount:    len(h.Manager.Albums()),
		ModuleCount:   len(h.Manager.Modules()),
		PendingApply:  h.Bridge.Pending(),
		Subscribers:   h.Bus.SubscriberCount(),
		EventsDropped: h.Bus.Dropped(),
		Pipeline:      registry.Snapshot(),
	}
	if !h.StartedAt.IsZero() {
		response.Uptime = time.Since(h.StartedAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	registry := h.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := registry.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to write metrics"}
	}
	return nil
}
