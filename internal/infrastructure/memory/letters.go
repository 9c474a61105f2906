// Package memory holds process-local stores for tests and memory:// runs.
// Values are cloned on the way in and out so callers never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-futureme/internal/domain"
)

type LetterRepo struct {
	mu      sync.RWMutex
	letters map[string]domain.Letter
}

func NewLetterRepo() *LetterRepo {
	return &LetterRepo{letters: make(map[string]domain.Letter)}
}

func (r *LetterRepo) Insert(_ context.Context, l *domain.Letter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[l.LetterID]; ok {
		return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrConflict)
	}
	r.letters[l.LetterID] = l.Clone()
	return nil
}

func (r *LetterRepo) Update(_ context.Context, l *domain.Letter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[l.LetterID]; !ok {
		return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrNotFound)
	}
	r.letters[l.LetterID] = l.Clone()
	return nil
}

func (r *LetterRepo) Delete(_ context.Context, letterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[letterID]; !ok {
		return fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
	}
	delete(r.letters, letterID)
	return nil
}

func (r *LetterRepo) Get(_ context.Context, letterID string) (*domain.Letter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.letters[letterID]
	if !ok {
		return nil, fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
	}
	c := l.Clone()
	return &c, nil
}

func (r *LetterRepo) QueryAll(_ context.Context) ([]domain.Letter, error) {
	r.mu.RLock()
	out := make([]domain.Letter, 0, len(r.letters))
	for _, l := range r.letters {
		out = append(out, l.Clone())
	}
	r.mu.RUnlock()
	SortByDeliverAt(out)
	return out, nil
}

// SortByDeliverAt orders ascending by DeliverAt, then by id for stability.
func SortByDeliverAt(ls []domain.Letter) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].DeliverAt.Equal(ls[j].DeliverAt) {
			return ls[i].DeliverAt.Before(ls[j].DeliverAt)
		}
		return ls[i].LetterID < ls[j].LetterID
	})
}

type SettingsRepo struct {
	mu          sync.Mutex
	lockEnabled *bool
}

func NewSettingsRepo() *SettingsRepo { return &SettingsRepo{} }

func (r *SettingsRepo) LockEnabled(_ context.Context) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockEnabled == nil {
		return false, false, nil
	}
	return *r.lockEnabled, true, nil
}

func (r *SettingsRepo) SetLockEnabled(_ context.Context, enabled bool) error {
	r.mu.Lock()
	r.lockEnabled = &enabled
	r.mu.Unlock()
	return nil
}
