package domain

type DeliveryState string

const (
	Locked      DeliveryState = "locked"
	Deliverable DeliveryState = "deliverable"
)

// LetterView is a letter annotated with its state at a given instant.
// Body and attachments are withheld while the letter is locked.
type LetterView struct {
	Letter
	State DeliveryState `json:"state"`
	IsNew bool          `json:"is_new"`
}
