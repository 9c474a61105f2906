// Package applock gates the app behind device authentication after it has
// been backgrounded.
package applock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/domain"
)

const DefaultReason = "Unlock your letters"

// Authenticator is the device authentication capability. Authenticate must
// return promptly once ctx is cancelled.
type Authenticator interface {
	CanAuthenticate(ctx context.Context) bool
	Authenticate(ctx context.Context, reason string) (domain.AuthOutcome, error)
}

type Status struct {
	State   domain.LockState `json:"state"`
	Enabled bool             `json:"enabled"`
	Epoch   uint64           `json:"epoch"`
}

// Machine is the Unlocked / PendingReauth state machine. Failed or cancelled
// attempts leave it pending until the user calls Unlock again; a device that
// cannot authenticate at all fails open.
type Machine struct {
	auth     Authenticator
	settings domain.SettingsRepository
	pub      events.Publisher
	reason   string

	sf singleflight.Group

	mu           sync.Mutex
	state        domain.LockState
	enabled      bool
	epoch        uint64
	prompted     bool
	cancelPrompt context.CancelFunc
}

// New loads the persisted enabled flag, falling back to defaultEnabled when it
// was never stored. The machine always starts Unlocked.
func New(ctx context.Context, auth Authenticator, settings domain.SettingsRepository, pub events.Publisher, defaultEnabled bool) (*Machine, error) {
	enabled, ok, err := settings.LockEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lock setting: %w", err)
	}
	if !ok {
		enabled = defaultEnabled
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Machine{
		auth:     auth,
		settings: settings,
		pub:      pub,
		reason:   DefaultReason,
		state:    domain.Unlocked,
		enabled:  enabled,
	}, nil
}

func (m *Machine) State() domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Epoch increments every time the machine locks.
func (m *Machine) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Enabled: m.enabled, Epoch: m.epoch}
}

// DidEnterBackground locks when the feature is on. The process only reaches
// this after having been in the foreground, so a cold start never locks.
// Any prompt still on screen is cancelled.
func (m *Machine) DidEnterBackground() {
	var changes []domain.Change
	m.mu.Lock()
	if m.enabled && m.state == domain.Unlocked {
		m.epoch++
		m.prompted = false
		changes = append(changes, m.setStateLocked(domain.PendingReauth, "background"))
	}
	if m.cancelPrompt != nil {
		m.cancelPrompt()
	}
	m.mu.Unlock()
	m.emit(changes)
}

// Foreground re-shows the lock surface while pending. A device without an
// authentication method unlocks immediately; otherwise one automatic prompt
// is started per lock episode, off the caller's goroutine.
func (m *Machine) Foreground(ctx context.Context) {
	if m.State() != domain.PendingReauth {
		return
	}
	canAuth := m.auth.CanAuthenticate(ctx)

	var changes []domain.Change
	autoPrompt := false
	m.mu.Lock()
	if m.state != domain.PendingReauth {
		m.mu.Unlock()
		return
	}
	changes = append(changes, domain.Change{Kind: domain.LockStateChanged, LockState: m.state, Reason: "reshow"})
	switch {
	case !canAuth:
		changes = append(changes, m.setStateLocked(domain.Unlocked, string(domain.AuthUnavailable)))
	case !m.prompted:
		m.prompted = true
		autoPrompt = true
	}
	m.mu.Unlock()
	m.emit(changes)

	if autoPrompt {
		go func() {
			if _, err := m.Unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Info("automatic unlock prompt did not unlock", "error", err)
			}
		}()
	}
}

// Unlock runs (or joins) an authentication attempt. Success and capability
// absence unlock; failure and cancellation return ErrUnauthorized and leave
// the machine pending.
func (m *Machine) Unlock(ctx context.Context) (domain.AuthOutcome, error) {
	m.mu.Lock()
	if m.state == domain.Unlocked {
		m.mu.Unlock()
		return domain.AuthSuccess, nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	outcome, err := m.prompt(ctx)
	if err != nil {
		slog.Warn("authentication error", "error", err)
		return outcome, fmt.Errorf("authenticate: %w", err)
	}

	var changes []domain.Change
	m.mu.Lock()
	if m.epoch == epoch && m.state == domain.PendingReauth &&
		(outcome == domain.AuthSuccess || outcome == domain.AuthUnavailable) {
		changes = append(changes, m.setStateLocked(domain.Unlocked, string(outcome)))
	}
	m.mu.Unlock()
	m.emit(changes)

	if outcome == domain.AuthFailure || outcome == domain.AuthCancelled {
		return outcome, fmt.Errorf("authentication %s: %w", outcome, domain.ErrUnauthorized)
	}
	return outcome, nil
}

// SetEnabled turns the feature on or off. Enabling is confirmed with an
// authentication attempt; disabling is refused while the lock is showing.
func (m *Machine) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	current, state := m.enabled, m.state
	m.mu.Unlock()

	if enabled == current {
		return nil
	}
	if !enabled && state == domain.PendingReauth {
		return fmt.Errorf("disable app lock: %w", domain.ErrLocked)
	}
	if enabled {
		outcome, err := m.prompt(ctx)
		if err != nil {
			return fmt.Errorf("confirm app lock: %w", err)
		}
		if outcome == domain.AuthFailure || outcome == domain.AuthCancelled {
			return fmt.Errorf("confirm app lock %s: %w", outcome, domain.ErrUnauthorized)
		}
	}

	if err := m.settings.SetLockEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("persist lock setting: %w", err)
	}
	m.mu.Lock()
	if !enabled && m.state == domain.PendingReauth {
		m.mu.Unlock()
		return fmt.Errorf("disable app lock: %w", domain.ErrLocked)
	}
	m.enabled = enabled
	c := domain.Change{Kind: domain.LockStateChanged, LockState: m.state, Reason: fmt.Sprintf("enabled=%t", enabled)}
	m.mu.Unlock()

	slog.Info("app lock setting changed", "enabled", enabled)
	m.emit([]domain.Change{c})
	return nil
}

// prompt runs at most one authentication at a time. Concurrent callers join
// the attempt already on screen and share its outcome.
func (m *Machine) prompt(ctx context.Context) (domain.AuthOutcome, error) {
	ch := m.sf.DoChan("auth", func() (any, error) {
		pctx, cancel := context.WithCancel(context.Background())
		m.mu.Lock()
		m.cancelPrompt = cancel
		m.mu.Unlock()
		defer func() {
			cancel()
			m.mu.Lock()
			m.cancelPrompt = nil
			m.mu.Unlock()
		}()

		if !m.auth.CanAuthenticate(pctx) {
			return domain.AuthUnavailable, nil
		}
		outcome, err := m.auth.Authenticate(pctx, m.reason)
		if err == nil && pctx.Err() != nil {
			outcome = domain.AuthCancelled
		}
		return outcome, err
	})

	select {
	case res := <-ch:
		outcome, _ := res.Val.(domain.AuthOutcome)
		return outcome, res.Err
	case <-ctx.Done():
		return domain.AuthCancelled, ctx.Err()
	}
}

func (m *Machine) setStateLocked(s domain.LockState, reason string) domain.Change {
	m.state = s
	slog.Info("lock state changed", "state", s, "reason", reason, "epoch", m.epoch)
	return domain.Change{Kind: domain.LockStateChanged, LockState: s, Reason: reason}
}

func (m *Machine) emit(changes []domain.Change) {
	for _, c := range changes {
		m.pub.Publish(c)
	}
}
