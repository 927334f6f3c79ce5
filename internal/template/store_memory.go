package template

import (
	"context"
	"sync"

	"brgycert/internal/certificate/models"
	"brgycert/pkg/sentinel"
)

// InMemoryStore keeps template records in a map. Used in tests and when the
// server runs without a database.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[models.DocumentKind]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[models.DocumentKind]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.Kind] = *rec
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, kind models.DocumentKind) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[kind]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.rows))
	for _, rec := range s.rows {
		r := rec
		out = append(out, &r)
	}
	return out, nil
}
