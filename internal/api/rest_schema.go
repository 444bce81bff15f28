package api

import (
	"net/http"
	"strings"

	"riceserver/internal/schema"
)

func (h *RestHandler) handleSchemaList(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	writeJSON(w, http.StatusOK, schema.Names())
	return nil
}

func (h *RestHandler) handleSchema(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	name := strings.TrimSuffix(strings.TrimSpace(r.PathValue("name")), ".json")
	document, err := schema.Resolve(name)
	if err != nil {
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	}
	payload, err := document.MarshalJSON()
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to encode schema"}
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	return nil
}
