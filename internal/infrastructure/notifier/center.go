// Package notifier is an in-process stand-in for the device notification
// center: pending requests keyed by id, a permission state, and a timer loop
// that hands due notifications to a Presenter.
package notifier

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-futureme/internal/domain"
)

// Presenter shows a fired notification to the user.
type Presenter interface {
	Present(ctx context.Context, d domain.Delivery) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

const (
	DefaultCheckPeriod = time.Second
	recentLimit        = 50
)

type Options struct {
	Permission     domain.PermissionState
	GrantOnRequest bool
	CheckPeriod    time.Duration
	Clock          Clock
}

type Center struct {
	presenter      Presenter
	clock          Clock
	checkPeriod    time.Duration
	grantOnRequest bool

	mu         sync.Mutex
	permission domain.PermissionState
	byID       map[string]*pending
	queue      queue
	recent     []domain.Delivery
	wake       chan struct{}
}

func NewCenter(presenter Presenter, opts Options) *Center {
	if opts.CheckPeriod <= 0 {
		opts.CheckPeriod = DefaultCheckPeriod
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Permission == "" {
		opts.Permission = domain.PermissionUndetermined
	}
	c := &Center{
		presenter:      presenter,
		clock:          opts.Clock,
		checkPeriod:    opts.CheckPeriod,
		grantOnRequest: opts.GrantOnRequest,
		permission:     opts.Permission,
		byID:           make(map[string]*pending),
		wake:           make(chan struct{}, 1),
	}
	heap.Init(&c.queue)
	return c
}

// RequestPermission resolves an undetermined state once; later requests
// return the stored answer.
func (c *Center) RequestPermission(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permission == domain.PermissionUndetermined {
		if c.grantOnRequest {
			c.permission = domain.PermissionGranted
		} else {
			c.permission = domain.PermissionDenied
		}
		slog.Info("notification permission resolved", "state", c.permission)
	}
	return c.permission == domain.PermissionGranted, nil
}

func (c *Center) PermissionState(_ context.Context) (domain.PermissionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission, nil
}

// SetPermission mirrors a change the user made in system settings. Revoking
// does not drop already registered requests, matching device behavior.
func (c *Center) SetPermission(state domain.PermissionState) {
	c.mu.Lock()
	c.permission = state
	c.mu.Unlock()
}

// Register adds or replaces the pending request for id.
func (c *Center) Register(_ context.Context, id string, fireAt time.Time, p domain.NotificationPayload) error {
	if id == "" {
		return fmt.Errorf("%w: empty notification id", domain.ErrBadRequest)
	}
	c.mu.Lock()
	if old, ok := c.byID[id]; ok {
		heap.Remove(&c.queue, old.index)
	}
	item := &pending{id: id, fireAt: fireAt, payload: p}
	heap.Push(&c.queue, item)
	c.byID[id] = item
	c.mu.Unlock()

	c.poke()
	return nil
}

// Unregister removes the pending request for id, if any.
func (c *Center) Unregister(_ context.Context, id string) error {
	c.mu.Lock()
	if old, ok := c.byID[id]; ok {
		heap.Remove(&c.queue, old.index)
		delete(c.byID, id)
	}
	c.mu.Unlock()
	return nil
}

// Pending lists requests in firing order.
func (c *Center) Pending() []domain.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Delivery, 0, len(c.queue))
	for _, p := range c.queue {
		out = append(out, domain.Delivery{ID: p.id, FireAt: p.fireAt, Payload: p.payload})
	}
	sortDeliveries(out)
	return out
}

// Recent lists the most recently fired notifications, newest last.
func (c *Center) Recent() []domain.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(make([]domain.Delivery, 0, len(c.recent)), c.recent...)
}

// Run fires due requests until ctx is done.
func (c *Center) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		c.FireDue(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake:
		}
	}
}

// FireDue presents every request whose fireAt has passed and returns how
// many fired. A failed presentation is logged and not retried.
func (c *Center) FireDue(ctx context.Context) int {
	fired := 0
	for {
		now := c.clock.Now()
		c.mu.Lock()
		next := c.queue.peek()
		if next == nil || next.fireAt.After(now) {
			c.mu.Unlock()
			return fired
		}
		heap.Pop(&c.queue)
		delete(c.byID, next.id)
		d := domain.Delivery{ID: next.id, FireAt: next.fireAt, FiredAt: now, Payload: next.payload}
		c.recent = append(c.recent, d)
		if len(c.recent) > recentLimit {
			c.recent = c.recent[len(c.recent)-recentLimit:]
		}
		c.mu.Unlock()

		fired++
		if err := c.presenter.Present(ctx, d); err != nil {
			slog.Warn("present notification failed", "id", d.ID, "error", err)
		}
	}
}

func (c *Center) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
