// Package pebblestore is the on-device letter store. Every write is synced
// before it returns, so a mutation is durable once the call succeeds.
package pebblestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/go-futureme/internal/domain"
)

const (
	letterPrefix   = "letter:"
	lockEnabledKey = "setting:lock_enabled"
)

type DB struct {
	db *pebble.DB
	// serializes read-check-write sequences (insert conflict, update existence)
	mu sync.Mutex
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{
		Logger: slogLogger{log: slog.Default().With("component", "pebble")},
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func letterKey(id string) []byte { return []byte(letterPrefix + id) }

func (d *DB) get(key []byte) ([]byte, error) {
	v, closer, err := d.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// LetterRepo implements domain.LetterRepository over a DB.
type LetterRepo struct {
	d *DB
}

func NewLetterRepo(d *DB) *LetterRepo { return &LetterRepo{d: d} }

func (r *LetterRepo) Insert(_ context.Context, l *domain.Letter) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode letter: %w", err)
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, err := r.d.get(letterKey(l.LetterID)); err == nil {
		return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrConflict)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("pebble get: %w", err)
	}
	if err := r.d.db.Set(letterKey(l.LetterID), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (r *LetterRepo) Update(_ context.Context, l *domain.Letter) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode letter: %w", err)
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, err := r.d.get(letterKey(l.LetterID)); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrNotFound)
		}
		return fmt.Errorf("pebble get: %w", err)
	}
	if err := r.d.db.Set(letterKey(l.LetterID), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (r *LetterRepo) Delete(_ context.Context, letterID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, err := r.d.get(letterKey(letterID)); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
		}
		return fmt.Errorf("pebble get: %w", err)
	}
	if err := r.d.db.Delete(letterKey(letterID), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (r *LetterRepo) Get(_ context.Context, letterID string) (*domain.Letter, error) {
	v, err := r.d.get(letterKey(letterID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	var l domain.Letter
	if err := json.Unmarshal(v, &l); err != nil {
		return nil, fmt.Errorf("decode letter %s: %w", letterID, err)
	}
	return &l, nil
}

// QueryAll scans the letter prefix and sorts by DeliverAt. Keys are ids, so
// the scan order alone is creation order.
func (r *LetterRepo) QueryAll(_ context.Context) ([]domain.Letter, error) {
	prefix := []byte(letterPrefix)
	iter, err := r.d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	var out []domain.Letter
	for ok := iter.First(); ok; ok = iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			continue
		}
		var l domain.Letter
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, l)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeliverAt.Before(out[j].DeliverAt)
	})
	return out, nil
}

// SettingsRepo implements domain.SettingsRepository over a DB.
type SettingsRepo struct {
	d *DB
}

func NewSettingsRepo(d *DB) *SettingsRepo { return &SettingsRepo{d: d} }

func (r *SettingsRepo) LockEnabled(_ context.Context) (bool, bool, error) {
	v, err := r.d.get([]byte(lockEnabledKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("pebble get: %w", err)
	}
	var enabled bool
	if err := json.Unmarshal(v, &enabled); err != nil {
		return false, false, fmt.Errorf("decode lock setting: %w", err)
	}
	return enabled, true, nil
}

func (r *SettingsRepo) SetLockEnabled(_ context.Context, enabled bool) error {
	v, _ := json.Marshal(enabled)
	if err := r.d.db.Set([]byte(lockEnabledKey), v, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
