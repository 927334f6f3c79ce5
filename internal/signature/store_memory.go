package signature

import (
	"context"
	"sync"

	"brgycert/pkg/sentinel"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.Username] = *rec
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, username string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := rec
	return &out, nil
}
