// Package verify serves the public QR verification endpoint: a scanned token
// resolves to the certificate's validity without exposing anything an
// elevated identity would need.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/store"
	"brgycert/internal/platform/metrics"
	"brgycert/internal/render"
	"brgycert/pkg/cerrors"
)

const (
	cacheKeyPrefix = "verify:"
	cacheTTL       = 5 * time.Minute
	qrSizePx       = 256
)

// Store is the read-only slice of the certificate store verification needs.
type Store interface {
	FindByToken(ctx context.Context, token uuid.UUID) (*models.Certificate, error)
}

// Cache is the optional result cache. A nil *redis.Client satisfies neither
// method call, so the service takes the interface and tolerates nil.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Result is the public verification outcome. Valid means the certificate is
// COMPLETED and not expired; Expired distinguishes the lapsed case.
type Result struct {
	Valid      bool      `json:"valid"`
	Expired    bool      `json:"expired"`
	UniqueID   string    `json:"unique_id"`
	Kind       string    `json:"document_kind"`
	FullName   string    `json:"full_name"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Service answers verification lookups.
type Service struct {
	store   Store
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	dataDir string
	now     func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, logger *slog.Logger, dataDir string, opts ...Option) *Service {
	s := &Service{
		store:   st,
		logger:  logger,
		dataDir: dataDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify resolves a token to its certificate's validity. Unknown tokens are
// NotFound. Cached results may lag a reissue by up to the cache TTL.
func (s *Service) Verify(ctx context.Context, token uuid.UUID) (*Result, error) {
	if s.metrics != nil {
		s.metrics.Verifications.Inc()
	}

	key := cacheKeyPrefix + token.String()
	if cached := s.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	cert, err := s.store.FindByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, cerrors.New(cerrors.CodeNotFound, "no certificate matches this verification code")
	}
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "verification lookup failed")
	}

	now := s.now()
	expired := cert.IsExpired(now)
	result := &Result{
		Valid:      cert.Status == models.StatusCompleted && !expired,
		Expired:    expired,
		UniqueID:   cert.UniqueID,
		Kind:       cert.Kind.Label(),
		FullName:   cert.FullName,
		IssuedAt:   cert.IssueDate(),
		ExpiresAt:  cert.ExpiresAt,
		VerifiedAt: now,
	}
	s.toCache(ctx, key, result)
	return result, nil
}

// QRImage returns the PNG bytes for a token's verification QR. The on-disk
// artifact from generation is preferred; absent that, the code is rendered
// in memory from the same URL.
func (s *Service) QRImage(ctx context.Context, baseURL string, token uuid.UUID) ([]byte, error) {
	cert, err := s.store.FindByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, cerrors.New(cerrors.CodeNotFound, "no certificate matches this verification code")
	}
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "verification lookup failed")
	}

	if data, err := os.ReadFile(render.QRPath(s.dataDir, cert.UniqueID)); err == nil {
		return data, nil
	}

	data, err := qrcode.Encode(render.VerificationURL(baseURL, token), qrcode.Medium, qrSizePx)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to render qr code")
	}
	return data, nil
}

func (s *Service) fromCache(ctx context.Context, key string) *Result {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	result := &Result{}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		s.logger.WarnContext(ctx, "discarding malformed cached verification", "key", key)
		return nil
	}
	return result
}

func (s *Service) toCache(ctx context.Context, key string, result *Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "verification cache write failed", "key", key, "error", err)
	}
}
