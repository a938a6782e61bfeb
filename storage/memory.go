package storage

import (
	"context"
	"fmt"
	"sync"

	"supportdesk_back/apperr"
)

// MemoryStore is a process-local BlobStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	// FailUploads makes Upload return an error.
	FailUploads bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *MemoryStore) Upload(_ context.Context, objectPath string, data []byte, contentType string) error {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUploads {
		return fmt.Errorf("storage: upload %s: simulated failure", name)
	}
	s.objects[name] = append([]byte(nil), data...)
	s.types[name] = contentType
	return nil
}

func (s *MemoryStore) Download(_ context.Context, objectPath string) ([]byte, error) {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("storage: object %s: %w", name, apperr.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Remove(_ context.Context, objectPath string) error {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	delete(s.types, name)
	return nil
}

// Has reports whether objectPath is stored.
func (s *MemoryStore) Has(objectPath string) bool {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok
}
