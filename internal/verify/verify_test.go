package verify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/store"
	"brgycert/internal/render"
	"brgycert/pkg/cerrors"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
	gets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.data[key], nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = value
	return nil
}

func seedCert(t *testing.T, st *store.InMemory, status models.Status, expiresAt time.Time) *models.Certificate {
	t.Helper()
	cert := &models.Certificate{
		ID:                uuid.New(),
		UniqueID:          "RES-20260110-0F1E2D",
		FullName:          "Maria Santos",
		Address:           "7 Bonifacio St, Longos",
		Purpose:           "scholarship",
		Kind:              models.KindResidency,
		Status:            status,
		VerificationToken: uuid.New(),
		ExpiresAt:         expiresAt,
		CreatedAt:         expiresAt.AddDate(-1, 0, 0),
	}
	if status == models.StatusCompleted {
		cert.DocxPath = "generated/docx/residency_Maria_Santos.docx"
	}
	require.NoError(t, st.Create(context.Background(), cert))
	return cert
}

func newService(t *testing.T, st *store.InMemory, now time.Time, opts ...Option) *Service {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return now }))
	return New(st, slog.New(slog.DiscardHandler), t.TempDir(), opts...)
}

func TestVerifyValidCertificate(t *testing.T) {
	st := store.NewInMemory()
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	cert := seedCert(t, st, models.StatusCompleted, now.AddDate(0, 6, 0))
	svc := newService(t, st, now)

	result, err := svc.Verify(context.Background(), cert.VerificationToken)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.False(t, result.Expired)
	require.Equal(t, "Residency", result.Kind)
	require.Equal(t, "Maria Santos", result.FullName)
	require.Equal(t, cert.UniqueID, result.UniqueID)
}

func TestVerifyExpiredCertificate(t *testing.T) {
	st := store.NewInMemory()
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	cert := seedCert(t, st, models.StatusCompleted, now.AddDate(0, -1, 0))
	svc := newService(t, st, now)

	result, err := svc.Verify(context.Background(), cert.VerificationToken)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.True(t, result.Expired)
}

func TestVerifyPendingCertificateNotValid(t *testing.T) {
	st := store.NewInMemory()
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	cert := seedCert(t, st, models.StatusPending, now.AddDate(0, 6, 0))
	svc := newService(t, st, now)

	result, err := svc.Verify(context.Background(), cert.VerificationToken)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.False(t, result.Expired)
}

func TestVerifyUnknownToken(t *testing.T) {
	svc := newService(t, store.NewInMemory(), time.Now())

	_, err := svc.Verify(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, cerrors.HasCode(err, cerrors.CodeNotFound))
}

func TestVerifyUsesCache(t *testing.T) {
	st := store.NewInMemory()
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	cert := seedCert(t, st, models.StatusCompleted, now.AddDate(0, 6, 0))
	cache := newMapCache()
	svc := newService(t, st, now, WithCache(cache))

	first, err := svc.Verify(context.Background(), cert.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	second, err := svc.Verify(context.Background(), cert.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets) // served from cache
	require.Equal(t, first.UniqueID, second.UniqueID)
	require.Equal(t, first.Valid, second.Valid)
}

func TestQRImagePrefersDiskArtifact(t *testing.T) {
	st := store.NewInMemory()
	now := time.Now()
	cert := seedCert(t, st, models.StatusCompleted, now.AddDate(0, 6, 0))
	dataDir := t.TempDir()
	svc := New(st, slog.New(slog.DiscardHandler), dataDir)

	qrPath := render.QRPath(dataDir, cert.UniqueID)
	require.NoError(t, os.MkdirAll(filepath.Dir(qrPath), 0o755))
	require.NoError(t, os.WriteFile(qrPath, []byte("png-from-generation"), 0o644))

	data, err := svc.QRImage(context.Background(), "https://brgy.example.org", cert.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, []byte("png-from-generation"), data)
}

func TestQRImageRegeneratesWhenArtifactMissing(t *testing.T) {
	st := store.NewInMemory()
	now := time.Now()
	cert := seedCert(t, st, models.StatusCompleted, now.AddDate(0, 6, 0))
	svc := New(st, slog.New(slog.DiscardHandler), t.TempDir())

	data, err := svc.QRImage(context.Background(), "https://brgy.example.org", cert.VerificationToken)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// PNG signature.
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}

func TestQRImageUnknownToken(t *testing.T) {
	svc := newService(t, store.NewInMemory(), time.Now())

	_, err := svc.QRImage(context.Background(), "https://brgy.example.org", uuid.New())
	require.True(t, cerrors.HasCode(err, cerrors.CodeNotFound))
}
