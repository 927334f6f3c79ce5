// Package service implements the certificate lifecycle: creation with
// duplicate detection, reissue, and the hand-off to document generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"brgycert/internal/audit"
	"brgycert/internal/certificate/certid"
	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/store"
	"brgycert/internal/identity"
	"brgycert/internal/platform/metrics"
	"brgycert/pkg/cerrors"
)

// Store is the persistence surface the lifecycle consumes.
type Store interface {
	LockNaturalKey(ctx context.Context, fullName string, kind models.DocumentKind, purpose string) error
	Create(ctx context.Context, cert *models.Certificate) error
	Update(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	FindActiveConflict(ctx context.Context, fullName string, kind models.DocumentKind, purpose string, exclude uuid.UUID, now time.Time) (*models.Certificate, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Certificate, error)
	AppendReissueLog(ctx context.Context, log *models.ReissueLog) error
	ListReissueLogs(ctx context.Context, certificateID uuid.UUID) ([]*models.ReissueLog, error)
}

// Transactor runs a validate-then-persist sequence atomically.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Generator renders the output document for a certificate and persists the
// document reference together with the COMPLETED status.
type Generator interface {
	Generate(ctx context.Context, cert *models.Certificate, actor identity.Identity, skipAudit bool) error
}

// AuditPublisher records lifecycle events. Fire-and-forget.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates certificate lifecycle operations.
type Service struct {
	store     Store
	tx        Transactor
	generator Generator
	publisher AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	barangay  string
	now       func() time.Time
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the lifecycle service. barangay is the locality subject
// addresses must mention unless the caller bypasses the check.
func New(st Store, tx Transactor, gen Generator, logger *slog.Logger, barangay string, opts ...Option) *Service {
	s := &Service{
		store:     st,
		tx:        tx,
		generator: gen,
		logger:    logger,
		barangay:  barangay,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the validated form fields for a new certificate.
type CreateRequest struct {
	FullName      string `json:"full_name"`
	Address       string `json:"address"`
	Age           int    `json:"age"`
	Occupation    string `json:"occupation"`
	Purpose       string `json:"purpose"`
	ResidentSince string `json:"resident_since"`
	Kind          string `json:"document_kind"`

	// BypassLocalityCheck skips the barangay address validation. Honored only
	// when the actor holds the capability.
	BypassLocalityCheck bool `json:"bypass_locality_check,omitempty"`
}

func (r *CreateRequest) normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Address = strings.TrimSpace(r.Address)
	r.Occupation = strings.TrimSpace(r.Occupation)
	r.Purpose = strings.TrimSpace(r.Purpose)
	r.ResidentSince = strings.TrimSpace(r.ResidentSince)
}

// idRetries bounds retries after a unique-id collision. The 6-hex-char
// disambiguator makes more than one retry essentially unreachable.
const idRetries = 3

// Create validates the request, runs the duplicate check and the insert in
// one transaction, and returns the persisted certificate.
func (s *Service) Create(ctx context.Context, actor identity.Identity, req CreateRequest) (*models.Certificate, error) {
	req.normalize()

	kind, ok := models.ParseKind(req.Kind)
	if !ok {
		return nil, cerrors.Newf(cerrors.CodeValidation, "unknown document kind %q", req.Kind)
	}
	if req.FullName == "" {
		return nil, cerrors.New(cerrors.CodeValidation, "full name is required")
	}
	if req.Address == "" {
		return nil, cerrors.New(cerrors.CodeValidation, "address is required")
	}
	if req.Purpose == "" {
		return nil, cerrors.New(cerrors.CodeValidation, "purpose is required")
	}
	if req.Age < 0 {
		return nil, cerrors.New(cerrors.CodeValidation, "age must not be negative")
	}
	if err := s.checkLocality(actor, req); err != nil {
		return nil, err
	}

	var cert *models.Certificate
	created := false
	for attempt := 0; attempt < idRetries; attempt++ {
		now := s.now()
		cert = &models.Certificate{
			ID:                uuid.New(),
			UniqueID:          certid.New(kind, 0, now),
			FullName:          req.FullName,
			Address:           req.Address,
			Age:               req.Age,
			Occupation:        req.Occupation,
			Purpose:           req.Purpose,
			ResidentSince:     req.ResidentSince,
			Kind:              kind,
			Status:            models.StatusPending,
			VerificationToken: uuid.New(),
			ExpiresAt:         models.AddYear(now),
			CreatedAt:         now,
		}

		err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.store.LockNaturalKey(ctx, cert.FullName, kind, cert.Purpose); err != nil {
				return err
			}
			if err := s.requireNoConflict(ctx, cert.FullName, kind, cert.Purpose, uuid.Nil, now); err != nil {
				return err
			}
			return s.store.Create(ctx, cert)
		})
		if err == nil {
			created = true
			break
		}
		if cerrors.HasCode(err, cerrors.CodeConflict) {
			s.incDuplicatesRejected()
			return nil, err
		}
		if errors.Is(err, store.ErrConflict) {
			// Generated id collided; retry with a fresh one.
			s.logger.WarnContext(ctx, "certificate id collision, retrying",
				"unique_id", cert.UniqueID,
				"attempt", attempt+1,
			)
			continue
		}
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to create certificate")
	}
	if !created {
		return nil, cerrors.New(cerrors.CodeInternal, "could not assign a unique certificate id")
	}

	s.incCertificatesCreated()
	s.emit(ctx, audit.Event{
		Actor:         actor.Username,
		Action:        audit.ActionCertificateCreated,
		CertificateID: cert.UniqueID,
		Detail:        fmt.Sprintf("Created %s certificate for %s", kind.Label(), cert.FullName),
	})
	return cert, nil
}

// Get returns a certificate by internal id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	cert, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, cerrors.New(cerrors.CodeNotFound, "certificate not found")
		}
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to load certificate")
	}
	return cert, nil
}

// List returns certificates matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Certificate, error) {
	certs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to list certificates")
	}
	return certs, nil
}

// Logs returns the reissue history for a certificate, oldest first.
func (s *Service) Logs(ctx context.Context, id uuid.UUID) ([]*models.ReissueLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.store.ListReissueLogs(ctx, id)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to list reissue logs")
	}
	return logs, nil
}

// Reissue re-grants a certificate: reissue instant now, artifacts cleared,
// status back to PENDING, expiration recomputed, one ReissueLog row. It then
// triggers regeneration and propagates its result; a failed regeneration
// leaves the certificate reissued but PENDING.
//
// Reissuing revives an expired certificate into active state, so the
// duplicate check re-runs (excluding self) inside the same transaction.
//
// Status is reset to PENDING together with clearing the document reference so
// "reference set iff COMPLETED" holds even when the regeneration fails.
func (s *Service) Reissue(ctx context.Context, actor identity.Identity, id uuid.UUID, remarks string) (*models.Certificate, error) {
	cert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cert.ReissuedAt = &now
	cert.Reissued = true
	cert.DocxPath = ""
	cert.Status = models.StatusPending
	cert.ExpiresAt = models.AddYear(now)

	if remarks == "" {
		remarks = fmt.Sprintf("Reissued %s certificate for %s", cert.Kind.Label(), cert.FullName)
	}
	logRow := &models.ReissueLog{
		ID:            uuid.New(),
		CertificateID: cert.ID,
		Actor:         actor.Username,
		ReissuedAt:    now,
		Remarks:       remarks,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockNaturalKey(ctx, cert.FullName, cert.Kind, cert.Purpose); err != nil {
			return err
		}
		if err := s.requireNoConflict(ctx, cert.FullName, cert.Kind, cert.Purpose, cert.ID, now); err != nil {
			return err
		}
		if err := s.store.Update(ctx, cert); err != nil {
			return err
		}
		return s.store.AppendReissueLog(ctx, logRow)
	})
	if err != nil {
		if cerrors.HasCode(err, cerrors.CodeConflict) {
			s.incDuplicatesRejected()
			return nil, err
		}
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to reissue certificate")
	}

	s.incReissues()
	s.emit(ctx, audit.Event{
		Actor:         actor.Username,
		Action:        audit.ActionCertificateReissued,
		CertificateID: cert.UniqueID,
		Detail:        remarks,
	})

	// The reissue already logged; generation skips its own audit event.
	if err := s.generator.Generate(ctx, cert, actor, true); err != nil {
		s.logger.WarnContext(ctx, "regeneration after reissue failed",
			"unique_id", cert.UniqueID,
			"error", err,
		)
		return cert, err
	}
	return cert, nil
}

// Generate renders the document for an existing certificate.
func (s *Service) Generate(ctx context.Context, actor identity.Identity, id uuid.UUID) (*models.Certificate, error) {
	cert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.generator.Generate(ctx, cert, actor, false); err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *Service) requireNoConflict(ctx context.Context, fullName string, kind models.DocumentKind, purpose string, exclude uuid.UUID, now time.Time) error {
	conflict, err := s.store.FindActiveConflict(ctx, fullName, kind, purpose, exclude, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return cerrors.Wrap(err, cerrors.CodeInternal, "duplicate check failed")
	}
	return cerrors.Newf(cerrors.CodeConflict,
		"A %s certificate for '%s' with purpose '%s' already exists and is still active until %s.",
		conflict.Kind.Label(), conflict.FullName, conflict.Purpose,
		conflict.ExpiresAt.Format("January 2, 2006"),
	)
}

func (s *Service) checkLocality(actor identity.Identity, req CreateRequest) error {
	if s.barangay == "" {
		return nil
	}
	if req.BypassLocalityCheck && actor.HasCapability(identity.CapBypassLocalityCheck) {
		return nil
	}
	if !strings.Contains(models.Normalize(req.Address), models.Normalize(s.barangay)) {
		return cerrors.Newf(cerrors.CodeValidation, "address must contain Barangay %s", s.barangay)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher != nil {
		s.publisher.Emit(ctx, event)
	}
}

func (s *Service) incCertificatesCreated() {
	if s.metrics != nil {
		s.metrics.CertificatesCreated.Inc()
	}
}

func (s *Service) incDuplicatesRejected() {
	if s.metrics != nil {
		s.metrics.DuplicatesRejected.Inc()
	}
}

func (s *Service) incReissues() {
	if s.metrics != nil {
		s.metrics.Reissues.Inc()
	}
}
