package domain

import "time"

type ChangeKind string

const (
	LetterChanged    ChangeKind = "letter-changed"
	LetterDeleted    ChangeKind = "letter-deleted"
	LetterDelivered  ChangeKind = "letter-delivered"
	BadgeChanged     ChangeKind = "badge-changed"
	LockStateChanged ChangeKind = "lock-state-changed"
	OpenRequested    ChangeKind = "open-requested"
	AuthRequested    ChangeKind = "auth-requested"

	// NotificationFired is emitted when the local notification center fires.
	NotificationFired ChangeKind = "notification-fired"
)

// Change is emitted by the core to whatever UI layer subscribes.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	LetterID  string     `json:"letter_id,omitempty"`
	Badge     int        `json:"badge,omitempty"`
	LockState LockState  `json:"lock_state,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Delivery  *Delivery  `json:"delivery,omitempty"`
	At        time.Time  `json:"at"`
}
