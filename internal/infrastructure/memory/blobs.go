package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-futureme/internal/domain"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore keeps attachment bytes in memory.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

func (s *BlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	s.blobs[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("blob %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), b.data...), b.contentType, nil
}

// Delete is idempotent.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
