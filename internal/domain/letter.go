package domain

import (
	"context"
	"time"
)

// MaxAttachments is the number of image blobs a letter can carry.
const MaxAttachments = 2

// Letter is the only persisted entity. Delivered is a lazily refreshed cache of
// DeliverAt <= now, written exclusively by the reconciliation pass.
type Letter struct {
	LetterID    string       `json:"id" dynamodbav:"letter_id"`
	Title       string       `json:"title" dynamodbav:"title"`
	Body        string       `json:"body" dynamodbav:"body"`
	CreatedAt   time.Time    `json:"created" dynamodbav:"created_at"`
	DeliverAt   time.Time    `json:"deliver_at" dynamodbav:"deliver_at"`
	Delivered   bool         `json:"delivered" dynamodbav:"delivered"`
	IsRead      bool         `json:"is_read" dynamodbav:"is_read"`
	Attachments []Attachment `json:"attachments,omitempty" dynamodbav:"attachments"`
	UpdatedAt   time.Time    `json:"updated" dynamodbav:"updated_at"`
}

// Attachment references an opaque blob held by the attachment store.
type Attachment struct {
	Key         string `json:"key" dynamodbav:"key"`
	ContentType string `json:"content_type" dynamodbav:"content_type"`
	Size        int64  `json:"size" dynamodbav:"size"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (l Letter) Clone() Letter {
	c := l
	if l.Attachments != nil {
		c.Attachments = append([]Attachment(nil), l.Attachments...)
	}
	return c
}

type ComposeRequest struct {
	Title       string            `json:"title" validate:"max=200"`
	Body        string            `json:"body" validate:"notblank"`
	DeliverAt   time.Time         `json:"deliver_at"` // zero: two minutes from now
	Attachments []AttachmentInput `json:"attachments" validate:"max=2,dive"`
}

// AttachmentInput carries raw bytes; JSON transports them base64-encoded.
type AttachmentInput struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data" validate:"required"`
}

type RescheduleRequest struct {
	DeliverAt *time.Time `json:"deliver_at"`
	// DelaySeconds reschedules relative to now when DeliverAt is nil. The
	// upper bound keeps the delay representable as a time.Duration.
	DelaySeconds *int64 `json:"delay_seconds" validate:"omitempty,gt=0,lte=9223372036"`
}

// LetterRepository is the durable letter collection. Mutations return only
// after a durable commit.
type LetterRepository interface {
	Insert(ctx context.Context, l *Letter) error
	Update(ctx context.Context, l *Letter) error
	Delete(ctx context.Context, letterID string) error
	Get(ctx context.Context, letterID string) (*Letter, error)
	// QueryAll returns every letter ordered by DeliverAt ascending.
	QueryAll(ctx context.Context) ([]Letter, error)
}

// SettingsRepository persists user preferences that outlive the process.
type SettingsRepository interface {
	// LockEnabled reports the stored flag and whether it was ever set.
	LockEnabled(ctx context.Context) (enabled bool, ok bool, err error)
	SetLockEnabled(ctx context.Context, enabled bool) error
}
