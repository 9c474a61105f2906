package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	backend string
}

// NewHealthHandler reports backend, the letter store in use, on /health-check/info.
func NewHealthHandler(backend string) *HealthHandler { return &HealthHandler{backend: backend} }

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "info":
		writeJSON(w, http.StatusOK, map[string]string{"store": h.backend})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
