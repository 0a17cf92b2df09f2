// Package memory provides an in-process fast layer.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store keeps record bytes in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[uuid.UUID][]byte)}
}

// Load returns a copy of the stored bytes, or nil if absent.
func (s *Store) Load(_ context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), rec...), nil
}

// Store replaces the bytes held for id.
func (s *Store) Store(_ context.Context, id uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = append([]byte(nil), data...)
	return nil
}

// CompareAndSwap replaces the bytes held for id only while they equal old.
func (s *Store) CompareAndSwap(_ context.Context, id uuid.UUID, old, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || !bytes.Equal(rec, old) {
		return false, nil
	}
	s.records[id] = append([]byte(nil), data...)
	return true, nil
}

// Remove drops the bytes held for id. Removing an absent id is a no-op.
func (s *Store) Remove(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Len reports how many records are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements io.Closer.
func (s *Store) Close() error { return nil }
