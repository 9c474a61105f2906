// Package badge derives the unread count from a store snapshot and pushes it
// to the badge surface. There are no incremental counters; every refresh
// recomputes from scratch.
package badge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/domain"
)

// Surface is wherever the count is displayed (app icon, metrics gauge...).
type Surface interface {
	SetBadge(ctx context.Context, n int) error
}

// Surfaces pushes to each surface in turn and joins their errors.
type Surfaces []Surface

func (s Surfaces) SetBadge(ctx context.Context, n int) error {
	var errs []error
	for _, sf := range s {
		if err := sf.SetBadge(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LetterLister interface {
	QueryAll(ctx context.Context) ([]domain.Letter, error)
}

// IsNew reports whether l is deliverable at now and not yet opened.
func IsNew(l domain.Letter, now time.Time) bool {
	return !l.IsRead && delivery.IsDeliverable(l, now)
}

func UnreadCount(letters []domain.Letter, now time.Time) int {
	n := 0
	for _, l := range letters {
		if IsNew(l, now) {
			n++
		}
	}
	return n
}

type Aggregator struct {
	letters LetterLister
	surface Surface
	clock   delivery.Clock
	pub     events.Publisher

	mu     sync.Mutex
	last   int
	pushed bool
}

func NewAggregator(letters LetterLister, surface Surface, clock delivery.Clock, pub events.Publisher) *Aggregator {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Aggregator{letters: letters, surface: surface, clock: clock, pub: pub}
}

// Refresh recomputes the unread count from a fresh snapshot and pushes it.
func (a *Aggregator) Refresh(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	letters, err := a.letters.QueryAll(ctx)
	if err != nil {
		return a.last, fmt.Errorf("badge snapshot: %w", err)
	}
	n := UnreadCount(letters, a.clock.Now())
	if err := a.push(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Clear zeroes the displayed badge. Letters are untouched, so the next
// Refresh restores the real count.
func (a *Aggregator) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.push(ctx, 0)
}

// Current is the last value pushed to the surface.
func (a *Aggregator) Current() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Aggregator) push(ctx context.Context, n int) error {
	if err := a.surface.SetBadge(ctx, n); err != nil {
		slog.Warn("badge push failed", "badge", n, "error", err)
		return fmt.Errorf("set badge: %w", err)
	}
	changed := !a.pushed || a.last != n
	a.last, a.pushed = n, true
	if changed {
		a.pub.Publish(domain.Change{Kind: domain.BadgeChanged, Badge: n})
	}
	return nil
}
