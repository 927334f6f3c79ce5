package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"brgycert/internal/certificate/models"
)

// InMemory keeps certificates in maps. It favors clarity over performance and
// backs tests and single-process runs.
type InMemory struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	byID        map[uuid.UUID]*models.Certificate
	byUniqueID  map[string]uuid.UUID
	reissueLogs map[uuid.UUID][]*models.ReissueLog
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:        make(map[uuid.UUID]*models.Certificate),
		byUniqueID:  make(map[string]uuid.UUID),
		reissueLogs: make(map[uuid.UUID][]*models.ReissueLog),
	}
}

// RunInTx serializes mutating sequences. The in-memory store has no real
// transactions; mutual exclusion gives the same "validate then persist"
// atomicity the Postgres store gets from BEGIN/COMMIT.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// LockNaturalKey is a no-op; RunInTx already serializes all writers.
func (s *InMemory) LockNaturalKey(context.Context, string, models.DocumentKind, string) error {
	return nil
}

func (s *InMemory) Create(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUniqueID[cert.UniqueID]; exists {
		return ErrConflict
	}
	if _, exists := s.byID[cert.ID]; exists {
		return ErrConflict
	}
	copied := *cert
	s.byID[cert.ID] = &copied
	s.byUniqueID[cert.UniqueID] = cert.ID
	return nil
}

func (s *InMemory) Update(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[cert.ID]; !exists {
		return ErrNotFound
	}
	copied := *cert
	s.byID[cert.ID] = &copied
	return nil
}

// UpdateGenerated writes the generated-document reference and status as one
// unit, mirroring the partial UPDATE the Postgres store issues.
func (s *InMemory) UpdateGenerated(_ context.Context, id uuid.UUID, docxPath string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, exists := s.byID[id]
	if !exists {
		return ErrNotFound
	}
	cert.DocxPath = docxPath
	cert.Status = status
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cert, ok := s.byID[id]; ok {
		copied := *cert
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *InMemory) FindByToken(_ context.Context, token uuid.UUID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cert := range s.byID {
		if cert.VerificationToken == token {
			copied := *cert
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// FindActiveConflict returns a certificate with the same kind and normalized
// (name, purpose) that is still active at now, excluding the given id.
func (s *InMemory) FindActiveConflict(_ context.Context, fullName string, kind models.DocumentKind, purpose string, exclude uuid.UUID, now time.Time) (*models.Certificate, error) {
	name := models.Normalize(fullName)
	wantPurpose := models.Normalize(purpose)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cert := range s.byID {
		if cert.ID == exclude || cert.Kind != kind {
			continue
		}
		if models.Normalize(cert.FullName) != name || models.Normalize(cert.Purpose) != wantPurpose {
			continue
		}
		if cert.IsActive(now) {
			copied := *cert
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) List(_ context.Context, filter Filter) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Certificate
	search := models.Normalize(filter.Search)
	for _, cert := range s.byID {
		if filter.Kind != "" && cert.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && cert.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(models.Normalize(cert.FullName), search) &&
			!strings.Contains(models.Normalize(cert.Address), search) {
			continue
		}
		copied := *cert
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) AppendReissueLog(_ context.Context, log *models.ReissueLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *log
	s.reissueLogs[log.CertificateID] = append(s.reissueLogs[log.CertificateID], &copied)
	return nil
}

func (s *InMemory) ListReissueLogs(_ context.Context, certificateID uuid.UUID) ([]*models.ReissueLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.reissueLogs[certificateID]
	out := make([]*models.ReissueLog, len(logs))
	for i, log := range logs {
		copied := *log
		out[i] = &copied
	}
	return out, nil
}
