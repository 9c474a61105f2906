// Package reconcile brings persisted delivery state in line with the clock
// after the process was suspended or not running.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/pkg/keylock"
)

// Recorder observes how many letters each pass flipped.
type Recorder interface {
	ObserveReconcile(flipped int, err error)
}

type Pass struct {
	letters domain.LetterRepository
	locks   *keylock.Locker
	pub     events.Publisher
	rec     Recorder
}

// New returns a Pass that shares locks with every other writer of letters.
func New(letters domain.LetterRepository, locks *keylock.Locker, pub events.Publisher, rec Recorder) *Pass {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Pass{letters: letters, locks: locks, pub: pub, rec: rec}
}

// Reconcile marks every deliverable letter as delivered and returns the ones
// it flipped. It is the only writer of Delivered and never clears it, so
// running it twice for the same now is a no-op.
func (p *Pass) Reconcile(ctx context.Context, now time.Time) ([]domain.Letter, error) {
	all, err := p.letters.QueryAll(ctx)
	if err != nil {
		p.observe(0, err)
		return nil, fmt.Errorf("reconcile snapshot: %w", err)
	}

	var flipped []domain.Letter
	var errs []error
	for _, l := range all {
		if l.Delivered || !delivery.IsDeliverable(l, now) {
			continue
		}
		updated, ok, err := p.markDelivered(ctx, l.LetterID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			flipped = append(flipped, *updated)
		}
	}

	for _, l := range flipped {
		p.pub.Publish(domain.Change{Kind: domain.LetterDelivered, LetterID: l.LetterID})
	}
	err = errors.Join(errs...)
	p.observe(len(flipped), err)
	if len(flipped) > 0 {
		slog.Info("reconciled letters", "delivered", len(flipped), "at", now)
	}
	return flipped, err
}

// markDelivered re-reads under the id lock so a concurrent delete or
// reschedule is observed before writing.
func (p *Pass) markDelivered(ctx context.Context, id string, now time.Time) (*domain.Letter, bool, error) {
	unlock := p.locks.Lock(id)
	defer unlock()

	l, err := p.letters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reload letter %s: %w", id, err)
	}
	if l.Delivered || !delivery.IsDeliverable(*l, now) {
		return nil, false, nil
	}
	l.Delivered = true
	l.UpdatedAt = now
	if err := p.letters.Update(ctx, l); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mark delivered %s: %w", id, err)
	}
	return l, true, nil
}

// ResolveTap looks up the letter a notification points at. A letter deleted
// after its notification fired resolves to nil without error.
func (p *Pass) ResolveTap(ctx context.Context, id string) (*domain.Letter, error) {
	l, err := p.letters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("notification tap for missing letter dropped", "letter_id", id)
			return nil, nil
		}
		return nil, fmt.Errorf("resolve tap %s: %w", id, err)
	}
	return l, nil
}

func (p *Pass) observe(n int, err error) {
	if p.rec != nil {
		p.rec.ObserveReconcile(n, err)
	}
}
