package handler

import (
	"context"
	"net/http"

	"github.com/go-futureme/internal/domain"
)

type PermissionService interface {
	RequestPermission(ctx context.Context) (bool, error)
	Permission(ctx context.Context) (domain.PermissionState, error)
}

// NotificationCenter is the local center's inspection surface.
type NotificationCenter interface {
	SetPermission(state domain.PermissionState)
	Pending() []domain.Delivery
	Recent() []domain.Delivery
}

// NotificationHandler handles notification permission and inspection endpoints.
type NotificationHandler struct {
	perms  PermissionService
	center NotificationCenter
}

func NewNotificationHandler(perms PermissionService, center NotificationCenter) *NotificationHandler {
	return &NotificationHandler{perms: perms, center: center}
}

func (h *NotificationHandler) Permission(w http.ResponseWriter, r *http.Request) {
	st, err := h.perms.Permission(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.PermissionState{"state": st})
}

func (h *NotificationHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	granted, err := h.perms.RequestPermission(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

// SetPermission mirrors a change the user made in system settings.
func (h *NotificationHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st := domain.ParsePermissionState(body.State)
	h.center.SetPermission(st)
	writeJSON(w, http.StatusOK, map[string]domain.PermissionState{"state": st})
}

func (h *NotificationHandler) Pending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.center.Pending())
}

func (h *NotificationHandler) Delivered(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.center.Recent())
}
