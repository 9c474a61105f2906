// Package lifecycle owns the event loop that turns app lifecycle signals,
// periodic ticks and notification taps into reconcile, badge and lock work.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/domain"
)

type EventKind string

const (
	Background EventKind = "background" // didEnterBackground
	Foreground EventKind = "foreground" // willEnterForeground
	Active     EventKind = "active"     // didBecomeActive
	Tick       EventKind = "tick"
	Tap        EventKind = "tap" // notificationTapped(letterID)
)

func ParseEventKind(s string) (EventKind, bool) {
	switch k := EventKind(s); k {
	case Background, Foreground, Active, Tick, Tap:
		return k, true
	}
	return "", false
}

type Event struct {
	Kind     EventKind `json:"kind"`
	LetterID string    `json:"letter_id,omitempty"`
}

type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) ([]domain.Letter, error)
	ResolveTap(ctx context.Context, id string) (*domain.Letter, error)
}

type BadgeRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

type Lock interface {
	DidEnterBackground()
	Foreground(ctx context.Context)
}

const DefaultInterval = 30 * time.Second

type Coordinator struct {
	reconciler Reconciler
	badge      BadgeRefresher
	lock       Lock
	clock      delivery.Clock
	pub        events.Publisher
	interval   time.Duration

	events    chan Event
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu         sync.Mutex
	foreground bool
}

func New(reconciler Reconciler, badge BadgeRefresher, lock Lock, clock delivery.Clock, pub events.Publisher, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{
		reconciler: reconciler,
		badge:      badge,
		lock:       lock,
		clock:      clock,
		pub:        pub,
		interval:   interval,
		events:     make(chan Event, 64),
		afterFunc:  time.AfterFunc,
	}
}

// Run processes submitted events one at a time and reconciles on every tick
// while the app is in the foreground. It returns when ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("lifecycle loop started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle loop stopped")
			return ctx.Err()
		case ev := <-c.events:
			if err := c.Handle(ctx, ev); err != nil {
				slog.Warn("lifecycle event failed", "kind", ev.Kind, "letter_id", ev.LetterID, "error", err)
			}
		case <-ticker.C:
			if !c.InForeground() {
				continue
			}
			if err := c.Handle(ctx, Event{Kind: Tick}); err != nil {
				slog.Warn("periodic reconcile failed", "error", err)
			}
		}
	}
}

// Submit queues ev for the loop.
func (c *Coordinator) Submit(ctx context.Context, ev Event) error {
	if _, ok := ParseEventKind(string(ev.Kind)); !ok {
		return fmt.Errorf("%w: unknown event %q", domain.ErrBadRequest, ev.Kind)
	}
	if ev.Kind == Tap && ev.LetterID == "" {
		return fmt.Errorf("%w: tap without letter_id", domain.ErrBadRequest)
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) InForeground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

// Handle applies ev synchronously. Run calls it from the loop goroutine.
func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case Background:
		c.setForeground(false)
		c.lock.DidEnterBackground()
		return nil
	case Foreground:
		c.setForeground(true)
		err := c.resync(ctx)
		c.lock.Foreground(ctx)
		return err
	case Active, Tick:
		if ev.Kind == Active {
			c.setForeground(true)
		}
		return c.resync(ctx)
	case Tap:
		c.setForeground(true)
		return c.tap(ctx, ev)
	default:
		return fmt.Errorf("%w: unknown event %q", domain.ErrBadRequest, ev.Kind)
	}
}

func (c *Coordinator) resync(ctx context.Context) error {
	if _, err := c.reconciler.Reconcile(ctx, c.clock.Now()); err != nil {
		// A partial pass still changed state the badge should reflect.
		if _, berr := c.badge.Refresh(ctx); berr != nil {
			slog.Warn("badge refresh failed", "error", berr)
		}
		return fmt.Errorf("reconcile: %w", err)
	}
	if _, err := c.badge.Refresh(ctx); err != nil {
		return fmt.Errorf("badge refresh: %w", err)
	}
	return nil
}

// tap resolves a notification tap. The trigger fires on the minute, so a tap
// can arrive up to 59s before the letter unlocks; it is replayed once the
// letter becomes deliverable. A tap further out is dropped.
func (c *Coordinator) tap(ctx context.Context, ev Event) error {
	if err := c.resync(ctx); err != nil {
		slog.Warn("resync before tap failed", "error", err)
	}
	l, err := c.reconciler.ResolveTap(ctx, ev.LetterID)
	if err != nil {
		return err
	}
	if l == nil {
		return nil
	}
	now := c.clock.Now()
	if delivery.Classify(*l, now) == domain.Locked {
		wait := l.DeliverAt.Sub(now)
		if wait > time.Minute {
			// Older than the trigger skew: the letter was rescheduled since.
			slog.Info("tap on locked letter dropped", "letter_id", l.LetterID, "deliver_at", l.DeliverAt)
			return nil
		}
		if wait < time.Second {
			wait = time.Second
		}
		slog.Info("tap arrived before delivery, deferring", "letter_id", l.LetterID, "wait", wait)
		c.afterFunc(wait, func() {
			if err := c.Submit(ctx, ev); err != nil {
				slog.Warn("deferred tap dropped", "letter_id", ev.LetterID, "error", err)
			}
		})
		return nil
	}
	c.pub.Publish(domain.Change{Kind: domain.OpenRequested, LetterID: l.LetterID})
	return nil
}

func (c *Coordinator) setForeground(v bool) {
	c.mu.Lock()
	c.foreground = v
	c.mu.Unlock()
}
