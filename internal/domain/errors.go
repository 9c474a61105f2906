package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// ErrLocked is returned when content is requested before it is deliverable,
	// or while the session lock is pending re-authentication.
	ErrLocked = errors.New("locked")

	// ErrSchedulingDenied means notification permission is not granted. It is
	// never fatal: the letter is saved and reconciliation still delivers it.
	ErrSchedulingDenied = errors.New("scheduling denied")

	ErrInvalidDeliverAt = errors.New("deliver_at is too far in the past")
)
