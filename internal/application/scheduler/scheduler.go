// Package scheduler keeps at most one pending local notification per letter.
// The notification id is the letter id, so re-registering replaces.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-futureme/internal/application/badge"
	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/pkg/keylock"
)

const (
	NotificationTitle   = "Letter to Future You"
	DefaultNotification = "Your future letter has arrived."
)

// NotificationCenter is the device notification service. Register replaces
// any pending request with the same id; Unregister of an unknown id is a no-op.
type NotificationCenter interface {
	RequestPermission(ctx context.Context) (bool, error)
	PermissionState(ctx context.Context) (domain.PermissionState, error)
	Register(ctx context.Context, id string, fireAt time.Time, p domain.NotificationPayload) error
	Unregister(ctx context.Context, id string) error
}

// Recorder observes scheduling outcomes ("scheduled", "denied", "cancelled", "error").
type Recorder interface {
	ObserveSchedule(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSchedule(string) {}

type Scheduler struct {
	center  NotificationCenter
	letters badge.LetterLister
	clock   delivery.Clock
	locks   *keylock.Locker
	rec     Recorder

	permMu sync.Mutex
}

// New returns a Scheduler. letters may be nil, in which case the advisory
// badge only counts the letter being scheduled.
func New(center NotificationCenter, letters badge.LetterLister, clock delivery.Clock, rec Recorder) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Scheduler{
		center:  center,
		letters: letters,
		clock:   clock,
		locks:   keylock.New(),
		rec:     rec,
	}
}

// TriggerAt is the minute-precision instant the notification fires. A letter
// can therefore be announced up to 59s before it classifies as deliverable.
func TriggerAt(deliverAt time.Time) time.Time {
	return deliverAt.Truncate(time.Minute)
}

// Payload builds the user-visible notification for l.
func Payload(l domain.Letter, badgeCount int) domain.NotificationPayload {
	body := l.Title
	if body == "" {
		body = DefaultNotification
	}
	return domain.NotificationPayload{
		Title:    NotificationTitle,
		Body:     body,
		LetterID: l.LetterID,
		Badge:    badgeCount,
	}
}

// Schedule registers (or replaces) the trigger for l. A past trigger fires
// immediately. ErrSchedulingDenied is returned when permission is not granted;
// callers treat it as non-fatal.
func (s *Scheduler) Schedule(ctx context.Context, l domain.Letter) error {
	unlock := s.locks.Lock(l.LetterID)
	defer unlock()
	return s.schedule(ctx, l)
}

// Cancel removes the pending trigger for id, if any.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.cancel(ctx, id)
}

// Reschedule cancels the old trigger and schedules l's current DeliverAt as
// one unit with respect to other operations on the same id.
func (s *Scheduler) Reschedule(ctx context.Context, l domain.Letter) error {
	unlock := s.locks.Lock(l.LetterID)
	defer unlock()
	if err := s.cancel(ctx, l.LetterID); err != nil {
		return err
	}
	return s.schedule(ctx, l)
}

// Restore re-registers the trigger of every letter that is still locked.
// Pending requests live only as long as the process, so launch calls this
// before serving. Registering replaces, so running it twice is harmless.
// A denied permission stops the walk without error.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.letters == nil {
		return 0, nil
	}
	all, err := s.letters.QueryAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore snapshot: %w", err)
	}

	now := s.clock.Now()
	restored := 0
	var errs []error
	for _, l := range all {
		if l.Delivered || delivery.Classify(l, now) != domain.Locked {
			continue
		}
		if err := s.Schedule(ctx, l); err != nil {
			if errors.Is(err, domain.ErrSchedulingDenied) {
				slog.Warn("notification triggers not restored", "error", err)
				break
			}
			errs = append(errs, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		slog.Info("notification triggers restored", "count", restored)
	}
	return restored, errors.Join(errs...)
}

func (s *Scheduler) RequestPermission(ctx context.Context) (bool, error) {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	return s.center.RequestPermission(ctx)
}

func (s *Scheduler) Permission(ctx context.Context) (domain.PermissionState, error) {
	return s.center.PermissionState(ctx)
}

func (s *Scheduler) schedule(ctx context.Context, l domain.Letter) error {
	if err := s.ensurePermission(ctx); err != nil {
		s.rec.ObserveSchedule(outcome(err))
		return err
	}

	now := s.clock.Now()
	fireAt := TriggerAt(l.DeliverAt)
	if fireAt.Before(now) {
		fireAt = now
	}
	payload := Payload(l, s.advisoryBadge(ctx, l, fireAt))
	if err := s.center.Register(ctx, l.LetterID, fireAt, payload); err != nil {
		s.rec.ObserveSchedule("error")
		return fmt.Errorf("register notification %s: %w", l.LetterID, err)
	}
	s.rec.ObserveSchedule("scheduled")
	slog.Debug("notification scheduled", "letter_id", l.LetterID, "fire_at", fireAt, "badge", payload.Badge)
	return nil
}

func (s *Scheduler) cancel(ctx context.Context, id string) error {
	if err := s.center.Unregister(ctx, id); err != nil {
		s.rec.ObserveSchedule("error")
		return fmt.Errorf("unregister notification %s: %w", id, err)
	}
	s.rec.ObserveSchedule("cancelled")
	return nil
}

// ensurePermission asks once when the state is undetermined. The answer is
// remembered by the center, so later calls go straight to the stored state.
func (s *Scheduler) ensurePermission(ctx context.Context) error {
	s.permMu.Lock()
	defer s.permMu.Unlock()

	state, err := s.center.PermissionState(ctx)
	if err != nil {
		return fmt.Errorf("permission state: %w", err)
	}
	if state == domain.PermissionUndetermined {
		granted, err := s.center.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
		if granted {
			state = domain.PermissionGranted
		} else {
			state = domain.PermissionDenied
		}
	}
	if state != domain.PermissionGranted {
		return fmt.Errorf("notification permission %s: %w", state, domain.ErrSchedulingDenied)
	}
	return nil
}

// advisoryBadge counts letters deliverable and unread at fireAt, with l at its
// new deliverAt. Other letters' later reads are unknowable, so this is a hint.
func (s *Scheduler) advisoryBadge(ctx context.Context, l domain.Letter, fireAt time.Time) int {
	var snapshot []domain.Letter
	if s.letters != nil {
		all, err := s.letters.QueryAll(ctx)
		if err != nil {
			slog.Warn("advisory badge snapshot failed", "letter_id", l.LetterID, "error", err)
		}
		for _, other := range all {
			if other.LetterID != l.LetterID {
				snapshot = append(snapshot, other)
			}
		}
	}
	// The notification announces l, so count it even inside the truncation skew.
	n := badge.UnreadCount(snapshot, fireAt)
	if !l.IsRead {
		n++
	}
	return n
}

func outcome(err error) string {
	if errors.Is(err, domain.ErrSchedulingDenied) {
		return "denied"
	}
	return "error"
}
