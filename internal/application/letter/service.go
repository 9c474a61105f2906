package letter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-futureme/internal/application/badge"
	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/pkg/id"
	"github.com/go-futureme/internal/pkg/keylock"
	"github.com/go-futureme/internal/pkg/validate"
)

// AttachmentStore holds attachment bytes keyed by an opaque string.
type AttachmentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

type Scheduler interface {
	Schedule(ctx context.Context, l domain.Letter) error
	Cancel(ctx context.Context, id string) error
	Reschedule(ctx context.Context, l domain.Letter) error
}

type BadgeRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

type Service interface {
	Compose(ctx context.Context, req domain.ComposeRequest) (*domain.Letter, error)
	Open(ctx context.Context, letterID string) (*domain.Letter, error)
	Delete(ctx context.Context, letterID string) error
	Reschedule(ctx context.Context, letterID string, deliverAt time.Time) (*domain.Letter, error)
	RescheduleBy(ctx context.Context, letterID string, d time.Duration) (*domain.Letter, error)
	List(ctx context.Context) ([]domain.LetterView, error)
	Inbox(ctx context.Context) ([]domain.LetterView, error)
	Get(ctx context.Context, letterID string) (*domain.LetterView, error)
	Attachment(ctx context.Context, letterID string, index int) ([]byte, string, error)
}

type service struct {
	repo      domain.LetterRepository
	blobs     AttachmentStore
	scheduler Scheduler
	badge     BadgeRefresher
	clock     delivery.Clock
	locks     *keylock.Locker
	pub       events.Publisher
}

// NewService wires the letter workflows. locks must be the same Locker the
// reconciliation pass uses so per-letter mutations never interleave.
func NewService(repo domain.LetterRepository, blobs AttachmentStore, scheduler Scheduler, badge BadgeRefresher, clock delivery.Clock, locks *keylock.Locker, pub events.Publisher) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &service{
		repo:      repo,
		blobs:     blobs,
		scheduler: scheduler,
		badge:     badge,
		clock:     clock,
		locks:     locks,
		pub:       pub,
	}
}

// Compose stores a new letter and schedules its notification. A zero
// deliverAt means the default lead from now. When only the scheduling step
// fails the letter is kept and returned alongside the error.
func (s *service) Compose(ctx context.Context, req domain.ComposeRequest) (*domain.Letter, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadRequest, err.Error())
	}
	now := s.clock.Now()
	if req.DeliverAt.IsZero() {
		req.DeliverAt = delivery.DefaultDeliverAt(now)
	}
	if err := delivery.ValidateDeliverAt(req.DeliverAt, now); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}

	l := &domain.Letter{
		LetterID:  id.New(),
		Title:     req.Title,
		Body:      req.Body,
		CreatedAt: now,
		DeliverAt: req.DeliverAt.UTC(),
		UpdatedAt: now,
	}

	unlock := s.locks.Lock(l.LetterID)
	if err := s.uploadAttachments(ctx, l, req.Attachments); err != nil {
		unlock()
		return nil, err
	}
	if err := s.repo.Insert(ctx, l); err != nil {
		s.removeBlobs(ctx, l.Attachments)
		unlock()
		return nil, fmt.Errorf("insert letter: %w", err)
	}
	schedErr := s.scheduler.Schedule(ctx, *l)
	unlock()

	slog.Info("letter composed", "letter_id", l.LetterID, "deliver_at", l.DeliverAt, "attachments", len(l.Attachments))
	s.changed(ctx, domain.LetterChanged, l.LetterID)

	if schedErr != nil {
		logScheduleError(l.LetterID, schedErr)
		return l, fmt.Errorf("schedule notification: %w", schedErr)
	}
	return l, nil
}

// Open returns the letter and marks it read. Locked letters are refused.
func (s *service) Open(ctx context.Context, letterID string) (*domain.Letter, error) {
	unlock := s.locks.Lock(letterID)
	l, err := s.repo.Get(ctx, letterID)
	if err != nil {
		unlock()
		return nil, err
	}
	now := s.clock.Now()
	if delivery.Classify(*l, now) == domain.Locked {
		unlock()
		return nil, fmt.Errorf("letter %s opens at %s: %w", letterID, l.DeliverAt.Format(time.RFC3339), domain.ErrLocked)
	}
	if l.IsRead {
		unlock()
		return l, nil
	}
	l.IsRead = true
	l.UpdatedAt = now
	if err := s.repo.Update(ctx, l); err != nil {
		unlock()
		return nil, fmt.Errorf("mark read: %w", err)
	}
	unlock()

	s.changed(ctx, domain.LetterChanged, letterID)
	return l, nil
}

// Delete cancels the trigger, removes the record, then the blobs. If the
// record cannot be removed a still-locked letter gets its trigger back.
func (s *service) Delete(ctx context.Context, letterID string) error {
	unlock := s.locks.Lock(letterID)
	l, err := s.repo.Get(ctx, letterID)
	if err != nil {
		unlock()
		return err
	}
	if err := s.scheduler.Cancel(ctx, letterID); err != nil {
		unlock()
		return fmt.Errorf("cancel notification: %w", err)
	}
	if err := s.repo.Delete(ctx, letterID); err != nil {
		if delivery.Classify(*l, s.clock.Now()) == domain.Locked {
			if rerr := s.scheduler.Schedule(ctx, *l); rerr != nil {
				logScheduleError(letterID, rerr)
			}
		}
		unlock()
		return fmt.Errorf("delete letter: %w", err)
	}
	unlock()

	s.removeBlobs(ctx, l.Attachments)
	slog.Info("letter deleted", "letter_id", letterID)
	s.changed(ctx, domain.LetterDeleted, letterID)
	return nil
}

// Reschedule moves deliverAt and the trigger together. A store failure changes
// nothing; a scheduler failure other than denial rolls the record back.
func (s *service) Reschedule(ctx context.Context, letterID string, deliverAt time.Time) (*domain.Letter, error) {
	now := s.clock.Now()
	if err := delivery.ValidateDeliverAt(deliverAt, now); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}

	unlock := s.locks.Lock(letterID)
	l, err := s.repo.Get(ctx, letterID)
	if err != nil {
		unlock()
		return nil, err
	}
	old := l.Clone()
	l.DeliverAt = deliverAt.UTC()
	l.UpdatedAt = now
	if err := s.repo.Update(ctx, l); err != nil {
		unlock()
		return nil, fmt.Errorf("update deliver_at: %w", err)
	}

	schedErr := s.scheduler.Reschedule(ctx, *l)
	if schedErr != nil && !errors.Is(schedErr, domain.ErrSchedulingDenied) {
		// The restored trigger follows whichever record is actually stored.
		persisted := old
		if rerr := s.repo.Update(ctx, &old); rerr != nil {
			slog.Error("reschedule rollback failed", "letter_id", letterID, "error", rerr)
			persisted = *l
		}
		if delivery.Classify(persisted, now) == domain.Locked {
			if rerr := s.scheduler.Schedule(ctx, persisted); rerr != nil {
				logScheduleError(letterID, rerr)
			}
		}
		unlock()
		return nil, fmt.Errorf("reschedule notification: %w", schedErr)
	}
	unlock()

	slog.Info("letter rescheduled", "letter_id", letterID, "from", old.DeliverAt, "to", l.DeliverAt)
	s.changed(ctx, domain.LetterChanged, letterID)
	if schedErr != nil {
		logScheduleError(letterID, schedErr)
		return l, fmt.Errorf("reschedule notification: %w", schedErr)
	}
	return l, nil
}

func (s *service) RescheduleBy(ctx context.Context, letterID string, d time.Duration) (*domain.Letter, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: delay must be positive", domain.ErrBadRequest)
	}
	return s.Reschedule(ctx, letterID, s.clock.Now().Add(d))
}

// List returns every letter in deliverAt order with contents withheld while locked.
func (s *service) List(ctx context.Context) ([]domain.LetterView, error) {
	all, err := s.repo.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	now := s.clock.Now()
	views := make([]domain.LetterView, 0, len(all))
	for _, l := range all {
		views = append(views, view(l, now))
	}
	return views, nil
}

// Inbox is the deliverable letters, newest delivery first.
func (s *service) Inbox(ctx context.Context) ([]domain.LetterView, error) {
	all, err := s.repo.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	now := s.clock.Now()
	views := []domain.LetterView{}
	for _, l := range all {
		if delivery.IsDeliverable(l, now) {
			views = append(views, view(l, now))
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].DeliverAt.After(views[j].DeliverAt)
	})
	return views, nil
}

func (s *service) Get(ctx context.Context, letterID string) (*domain.LetterView, error) {
	l, err := s.repo.Get(ctx, letterID)
	if err != nil {
		return nil, err
	}
	v := view(*l, s.clock.Now())
	return &v, nil
}

func (s *service) Attachment(ctx context.Context, letterID string, index int) ([]byte, string, error) {
	l, err := s.repo.Get(ctx, letterID)
	if err != nil {
		return nil, "", err
	}
	if delivery.Classify(*l, s.clock.Now()) == domain.Locked {
		return nil, "", fmt.Errorf("letter %s: %w", letterID, domain.ErrLocked)
	}
	if index < 0 || index >= len(l.Attachments) {
		return nil, "", fmt.Errorf("attachment %d of letter %s: %w", index, letterID, domain.ErrNotFound)
	}
	return s.blobs.Get(ctx, l.Attachments[index].Key)
}

func (s *service) uploadAttachments(ctx context.Context, l *domain.Letter, inputs []domain.AttachmentInput) error {
	for i, in := range inputs {
		ct := in.ContentType
		if ct == "" {
			ct = http.DetectContentType(in.Data)
		}
		a := domain.Attachment{
			Key:         fmt.Sprintf("letters/%s/%d", l.LetterID, i),
			ContentType: ct,
			Size:        int64(len(in.Data)),
		}
		if err := s.blobs.Put(ctx, a.Key, in.Data, ct); err != nil {
			s.removeBlobs(ctx, l.Attachments)
			l.Attachments = nil
			return fmt.Errorf("store attachment %d: %w", i, err)
		}
		l.Attachments = append(l.Attachments, a)
	}
	return nil
}

func (s *service) removeBlobs(ctx context.Context, atts []domain.Attachment) {
	for _, a := range atts {
		if err := s.blobs.Delete(ctx, a.Key); err != nil {
			slog.Warn("attachment cleanup failed", "key", a.Key, "error", err)
		}
	}
}

func (s *service) changed(ctx context.Context, kind domain.ChangeKind, letterID string) {
	s.pub.Publish(domain.Change{Kind: kind, LetterID: letterID})
	if _, err := s.badge.Refresh(ctx); err != nil {
		slog.Warn("badge refresh failed", "error", err)
	}
}

func view(l domain.Letter, now time.Time) domain.LetterView {
	v := domain.LetterView{
		Letter: l.Clone(),
		State:  delivery.Classify(l, now),
		IsNew:  badge.IsNew(l, now),
	}
	if v.State == domain.Locked {
		v.Body = ""
		v.Attachments = nil
	}
	return v
}

func logScheduleError(letterID string, err error) {
	if errors.Is(err, domain.ErrSchedulingDenied) {
		slog.Info("notification not scheduled", "letter_id", letterID, "reason", err)
		return
	}
	slog.Warn("notification scheduling failed", "letter_id", letterID, "error", err)
}
