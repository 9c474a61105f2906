package handler

import (
	"context"
	"net/http"
)

type BadgeService interface {
	Refresh(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Current() int
}

// BadgeHandler handles the unread badge endpoints.
type BadgeHandler struct {
	svc BadgeService
}

func NewBadgeHandler(svc BadgeService) *BadgeHandler { return &BadgeHandler{svc: svc} }

func (h *BadgeHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CountEnvelope{Count: h.svc.Current()})
}

func (h *BadgeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Refresh(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: n})
}

// Clear zeroes the displayed badge only; read state is untouched.
func (h *BadgeHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: 0})
}
