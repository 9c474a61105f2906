package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-futureme/internal/application/applock"
	"github.com/go-futureme/internal/domain"
)

// SessionLock is the session lock state machine as the API drives it.
type SessionLock interface {
	Status() applock.Status
	Unlock(ctx context.Context) (domain.AuthOutcome, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// AuthPrompt is the shell-facing side of the authentication provider.
type AuthPrompt interface {
	CanAuthenticate(ctx context.Context) bool
	SetCapable(v bool)
	Resolve(outcome domain.AuthOutcome) error
	Prompting() bool
}

// GrantSigner issues access grants bound to a lock epoch.
type GrantSigner interface {
	Sign(epoch uint64) (string, time.Time, error)
}

// LockHandler handles the session lock endpoints.
type LockHandler struct {
	lock   SessionLock
	auth   AuthPrompt
	grants GrantSigner
}

func NewLockHandler(lock SessionLock, auth AuthPrompt, grants GrantSigner) *LockHandler {
	return &LockHandler{lock: lock, auth: auth, grants: grants}
}

type lockStatus struct {
	State           domain.LockState `json:"state"`
	Enabled         bool             `json:"enabled"`
	Epoch           uint64           `json:"epoch"`
	CanAuthenticate bool             `json:"can_authenticate"`
	Prompting       bool             `json:"prompting"`
}

func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.lock.Status()
	writeJSON(w, http.StatusOK, lockStatus{
		State:           st.State,
		Enabled:         st.Enabled,
		Epoch:           st.Epoch,
		CanAuthenticate: h.auth.CanAuthenticate(r.Context()),
		Prompting:       h.auth.Prompting(),
	})
}

// Unlock blocks until the shell reports the prompt outcome, then issues a
// grant for the current epoch.
func (h *LockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.lock.Unlock(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error(), "outcome": string(outcome)})
			return
		}
		httpError(w, err)
		return
	}
	h.issue(w)
}

// Grant re-issues a grant while unlocked, e.g. after the previous one expired.
func (h *LockHandler) Grant(w http.ResponseWriter, _ *http.Request) {
	if h.lock.Status().State != domain.Unlocked {
		writeError(w, http.StatusLocked, "session locked")
		return
	}
	h.issue(w)
}

func (h *LockHandler) issue(w http.ResponseWriter) {
	epoch := h.lock.Status().Epoch
	token, exp, err := h.grants.Sign(epoch)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GrantEnvelope{Bearer: token, ExpiresAt: exp, Epoch: epoch})
}

func (h *LockHandler) Settings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := h.lock.SetEnabled(r.Context(), *body.Enabled); err != nil {
		httpError(w, err)
		return
	}
	h.Status(w, r)
}

// AuthResult is where the shell posts the outcome of a prompt it was asked
// to show through an auth-requested change.
func (h *LockHandler) AuthResult(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, ok := domain.ParseAuthOutcome(body.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown outcome")
		return
	}
	if err := h.auth.Resolve(outcome); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}

func (h *LockHandler) Capability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Available *bool `json:"available"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}
	h.auth.SetCapable(*body.Available)
	h.Status(w, r)
}
