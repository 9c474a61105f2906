package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-futureme/internal/application/letter"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/pkg/validate"
)

// LetterHandler handles letter endpoints.
type LetterHandler struct {
	svc letter.Service
}

func NewLetterHandler(svc letter.Service) *LetterHandler { return &LetterHandler{svc: svc} }

func (h *LetterHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *LetterHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Inbox(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *LetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Compose answers 201 whenever the letter was stored, with a warning when its
// notification could not be scheduled.
func (h *LetterHandler) Compose(w http.ResponseWriter, r *http.Request) {
	var req domain.ComposeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.svc.Compose(r.Context(), req)
	if l == nil {
		httpError(w, err)
		return
	}
	env := LetterEnvelope{Letter: l}
	if err != nil {
		env.Warning = err.Error()
	}
	writeJSON(w, http.StatusCreated, env)
}

func (h *LetterHandler) Open(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Reschedule accepts an absolute deliver_at or a positive delay_seconds.
func (h *LetterHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req domain.RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	var (
		l   *domain.Letter
		err error
	)
	switch {
	case req.DeliverAt != nil:
		l, err = h.svc.Reschedule(r.Context(), id, *req.DeliverAt)
	case req.DelaySeconds != nil:
		l, err = h.svc.RescheduleBy(r.Context(), id, time.Duration(*req.DelaySeconds)*time.Second)
	default:
		writeError(w, http.StatusBadRequest, "deliver_at or delay_seconds is required")
		return
	}
	if l == nil {
		httpError(w, err)
		return
	}
	env := LetterEnvelope{Letter: l}
	if errors.Is(err, domain.ErrSchedulingDenied) {
		env.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *LetterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "letter deleted"})
}

func (h *LetterHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid attachment index")
		return
	}
	data, contentType, err := h.svc.Attachment(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		httpError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
