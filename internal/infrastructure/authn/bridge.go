// Package authn relays authentication prompts to the UI shell, which owns the
// actual biometric or passcode dialog, and waits for it to post the result.
package authn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-futureme/internal/domain"
)

type publisher interface {
	Publish(c domain.Change)
}

type Bridge struct {
	pub     publisher
	capable atomic.Bool

	mu      sync.Mutex
	pending chan domain.AuthOutcome
}

func NewBridge(pub publisher, capable bool) *Bridge {
	b := &Bridge{pub: pub}
	b.capable.Store(capable)
	return b
}

func (b *Bridge) CanAuthenticate(context.Context) bool { return b.capable.Load() }

// SetCapable records whether the device has any authentication method set up.
func (b *Bridge) SetCapable(v bool) { b.capable.Store(v) }

// Authenticate asks the shell to prompt and blocks until Resolve is called or
// ctx ends. A cancelled ctx counts as the user dismissing the prompt.
func (b *Bridge) Authenticate(ctx context.Context, reason string) (domain.AuthOutcome, error) {
	ch := make(chan domain.AuthOutcome, 1)
	b.mu.Lock()
	b.pending = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if b.pending == ch {
			b.pending = nil
		}
		b.mu.Unlock()
	}()

	b.pub.Publish(domain.Change{Kind: domain.AuthRequested, Reason: reason})

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		slog.Info("authentication prompt withdrawn", "reason", ctx.Err())
		return domain.AuthCancelled, nil
	}
}

// Resolve delivers the shell's answer to the prompt on screen.
func (b *Bridge) Resolve(outcome domain.AuthOutcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return fmt.Errorf("no authentication in progress: %w", domain.ErrConflict)
	}
	select {
	case b.pending <- outcome:
	default:
		return fmt.Errorf("authentication already answered: %w", domain.ErrConflict)
	}
	return nil
}

// Prompting reports whether a prompt is waiting for an answer.
func (b *Bridge) Prompting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}
