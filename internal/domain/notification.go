package domain

import "time"

type PermissionState string

const (
	PermissionUndetermined PermissionState = "undetermined"
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
)

// ParsePermissionState falls back to undetermined for unknown input.
func ParsePermissionState(s string) PermissionState {
	switch PermissionState(s) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionUndetermined
	}
}

// NotificationPayload is what the notification center shows when a trigger fires.
type NotificationPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	LetterID string `json:"letter_id"`
	// Badge is advisory; the aggregator recomputes the real count on foreground.
	Badge int `json:"badge"`
}

// Delivery is a fired notification handed to a presenter.
type Delivery struct {
	ID      string              `json:"id"`
	FireAt  time.Time           `json:"fire_at"`
	FiredAt time.Time           `json:"fired_at"`
	Payload NotificationPayload `json:"payload"`
}
