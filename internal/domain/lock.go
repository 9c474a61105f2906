package domain

type LockState string

const (
	Unlocked      LockState = "unlocked"
	PendingReauth LockState = "pending_reauth"
)

// AuthOutcome is the result reported by the device authentication provider.
type AuthOutcome string

const (
	AuthSuccess     AuthOutcome = "success"
	AuthFailure     AuthOutcome = "failure"
	AuthCancelled   AuthOutcome = "cancelled"
	AuthUnavailable AuthOutcome = "unavailable"
)

func ParseAuthOutcome(s string) (AuthOutcome, bool) {
	switch o := AuthOutcome(s); o {
	case AuthSuccess, AuthFailure, AuthCancelled, AuthUnavailable:
		return o, true
	}
	return "", false
}
