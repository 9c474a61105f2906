// Package delivery classifies letters as locked or deliverable. Everything
// here is a pure function of the letter and the instant passed in; the device
// clock is trusted as ground truth and no skew compensation is attempted.
package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-futureme/internal/domain"
)

// ComposeGrace is how far in the past a new deliverAt may be before compose
// or reschedule rejects it.
const ComposeGrace = 60 * time.Second

// DefaultLead is the delay preselected for a fresh compose form.
const DefaultLead = 2 * time.Minute

// Classify is Deliverable iff now >= DeliverAt (closed lower bound). Instants
// before CreatedAt are always Locked. Both rules only ever move a letter from
// Locked to Deliverable as now grows, so classification never flaps.
func Classify(l domain.Letter, now time.Time) domain.DeliveryState {
	if !l.CreatedAt.IsZero() && now.Before(l.CreatedAt) {
		return domain.Locked
	}
	if now.Before(l.DeliverAt) {
		return domain.Locked
	}
	return domain.Deliverable
}

func IsDeliverable(l domain.Letter, now time.Time) bool {
	return Classify(l, now) == domain.Deliverable
}

// ValidateDeliverAt rejects instants earlier than now - ComposeGrace.
func ValidateDeliverAt(deliverAt, now time.Time) error {
	if deliverAt.Before(now.Add(-ComposeGrace)) {
		return fmt.Errorf("deliver_at %s is before %s: %w",
			deliverAt.UTC().Format(time.RFC3339), now.Add(-ComposeGrace).UTC().Format(time.RFC3339), domain.ErrInvalidDeliverAt)
	}
	return nil
}

func DefaultDeliverAt(now time.Time) time.Time {
	return now.Add(DefaultLead)
}

// Clock abstracts "now" so reconciliation can run against simulated time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
