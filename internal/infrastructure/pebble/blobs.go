package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/go-futureme/internal/domain"
)

const blobPrefix = "blob:"

type blobRecord struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func blobKey(key string) []byte { return []byte(blobPrefix + key) }

// BlobStore keeps attachment bytes next to the letters that reference them.
type BlobStore struct {
	d *DB
}

func NewBlobStore(d *DB) *BlobStore { return &BlobStore{d: d} }

func (s *BlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	v, err := json.Marshal(blobRecord{ContentType: contentType, Data: data})
	if err != nil {
		return fmt.Errorf("encode blob: %w", err)
	}
	if err := s.d.db.Set(blobKey(key), v, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	v, err := s.d.get(blobKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, "", fmt.Errorf("blob %s: %w", key, domain.ErrNotFound)
		}
		return nil, "", fmt.Errorf("pebble get: %w", err)
	}
	var rec blobRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, "", fmt.Errorf("decode blob %s: %w", key, err)
	}
	return rec.Data, rec.ContentType, nil
}

// Delete is idempotent.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	if err := s.d.db.Delete(blobKey(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}
