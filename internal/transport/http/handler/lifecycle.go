package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-futureme/internal/application/lifecycle"
)

type EventSubmitter interface {
	Submit(ctx context.Context, ev lifecycle.Event) error
	InForeground() bool
}

// LifecycleHandler turns shell lifecycle signals into coordinator events.
type LifecycleHandler struct {
	events EventSubmitter
}

func NewLifecycleHandler(events EventSubmitter) *LifecycleHandler {
	return &LifecycleHandler{events: events}
}

// Signal accepts background, foreground, active and tick. Taps have their
// own route.
func (h *LifecycleHandler) Signal(w http.ResponseWriter, r *http.Request) {
	kind, ok := lifecycle.ParseEventKind(chi.URLParam(r, "kind"))
	if !ok || kind == lifecycle.Tap {
		writeError(w, http.StatusBadRequest, "unknown lifecycle event")
		return
	}
	if err := h.events.Submit(r.Context(), lifecycle.Event{Kind: kind}); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: string(kind)})
}

func (h *LifecycleHandler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"foreground": h.events.InForeground()})
}

// Tap reports that the user tapped the notification for letter {id}.
func (h *LifecycleHandler) Tap(w http.ResponseWriter, r *http.Request) {
	ev := lifecycle.Event{Kind: lifecycle.Tap, LetterID: chi.URLParam(r, "id")}
	if err := h.events.Submit(r.Context(), ev); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "tap queued"})
}
