// Package events fans core changes out to subscribers (the UI shell stream,
// metrics).
package events

import (
	"sync"
	"time"

	"github.com/go-futureme/internal/domain"
)

// Publisher is the narrow interface components depend on.
type Publisher interface {
	Publish(c domain.Change)
}

// Bus delivers every change to every subscriber synchronously, in publish
// order. Subscribers must not block; slow consumers buffer on their side.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(domain.Change)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(domain.Change))}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Bus) Subscribe(fn func(domain.Change)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(c domain.Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	fns := make([]func(domain.Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Nop drops every change.
type Nop struct{}

func (Nop) Publish(domain.Change) {}
