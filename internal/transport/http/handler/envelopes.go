package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-futureme/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LetterEnvelope carries a letter that was saved even though a follow-up
// step, usually notification scheduling, did not succeed.
type LetterEnvelope struct {
	Letter  *domain.Letter `json:"letter"`
	Warning string         `json:"warning,omitempty"`
}

// GrantEnvelope wraps an access grant issued after an unlock.
type GrantEnvelope struct {
	Bearer    string    `json:"Bearer"`
	ExpiresAt time.Time `json:"expires_at"`
	Epoch     uint64    `json:"epoch"`
}

type CountEnvelope struct {
	Count int `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// decodeJSON caps bodies at 16 MiB, enough for two base64 attachments.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20)).Decode(v)
}

// httpError maps domain sentinels to status codes. Anything unrecognised is
// logged and reported as a 500 without its message.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidDeliverAt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, domain.ErrSchedulingDenied):
		writeError(w, http.StatusAccepted, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
