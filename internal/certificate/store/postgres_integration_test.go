//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/store"
	"brgycert/pkg/sentinel"
	"brgycert/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "reissue_logs", "certificates"))
}

func newCert(name, purpose string, kind models.DocumentKind) *models.Certificate {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Certificate{
		ID:                uuid.New(),
		UniqueID:          kind.Prefix() + "-20260828-" + uuid.NewString()[:6],
		FullName:          name,
		Address:           "Purok 2, Longos, Malabon City",
		Purpose:           purpose,
		Kind:              kind,
		Status:            models.StatusPending,
		VerificationToken: uuid.New(),
		ExpiresAt:         now.AddDate(1, 0, 0),
		CreatedAt:         now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	cert := newCert("Juan Dela Cruz", "employment", models.KindResidency)
	s.Require().NoError(s.store.Create(ctx, cert))

	got, err := s.store.FindByID(ctx, cert.ID)
	s.Require().NoError(err)
	s.Equal(cert.UniqueID, got.UniqueID)
	s.Equal(models.StatusPending, got.Status)
	s.Empty(got.DocxPath)
	s.Nil(got.ReissuedAt)
	s.WithinDuration(cert.ExpiresAt, got.ExpiresAt, time.Millisecond)

	byToken, err := s.store.FindByToken(ctx, cert.VerificationToken)
	s.Require().NoError(err)
	s.Equal(cert.ID, byToken.ID)
}

func (s *PostgresStoreSuite) TestUniqueIDCollision() {
	ctx := context.Background()
	a := newCert("A", "p", models.KindClearance)
	b := newCert("B", "q", models.KindClearance)
	b.UniqueID = a.UniqueID

	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().ErrorIs(s.store.Create(ctx, b), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindActiveConflictQuery() {
	ctx := context.Background()
	now := time.Now().UTC()
	cert := newCert("Juan Dela Cruz", "Employment", models.KindResidency)
	s.Require().NoError(s.store.Create(ctx, cert))

	found, err := s.store.FindActiveConflict(ctx, "  JUAN DELA CRUZ ", models.KindResidency, "employment ", uuid.Nil, now)
	s.Require().NoError(err)
	s.Equal(cert.ID, found.ID)

	_, err = s.store.FindActiveConflict(ctx, "Juan Dela Cruz", models.KindResidency, "employment", uuid.Nil, cert.ExpiresAt.Add(time.Hour))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateGeneratedIsAtomic() {
	ctx := context.Background()
	cert := newCert("Maria Santos", "scholarship", models.KindIndigency)
	s.Require().NoError(s.store.Create(ctx, cert))

	s.Require().NoError(s.store.UpdateGenerated(ctx, cert.ID, "generated/docx/indigency_Maria_Santos.docx", models.StatusCompleted))

	got, err := s.store.FindByID(ctx, cert.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.NotEmpty(got.DocxPath)
}

func (s *PostgresStoreSuite) TestReissueUpdatePersistsEverything() {
	ctx := context.Background()
	cert := newCert("Juan Dela Cruz", "employment", models.KindResidency)
	s.Require().NoError(s.store.Create(ctx, cert))

	reissuedAt := time.Now().UTC().Truncate(time.Microsecond)
	cert.ReissuedAt = &reissuedAt
	cert.Reissued = true
	cert.DocxPath = ""
	cert.Status = models.StatusPending
	cert.ExpiresAt = models.AddYear(reissuedAt)
	s.Require().NoError(s.store.Update(ctx, cert))

	got, err := s.store.FindByID(ctx, cert.ID)
	s.Require().NoError(err)
	s.True(got.Reissued)
	s.Require().NotNil(got.ReissuedAt)
	s.WithinDuration(reissuedAt, *got.ReissuedAt, time.Millisecond)
	s.Empty(got.DocxPath)

	log := &models.ReissueLog{
		ID:            uuid.New(),
		CertificateID: cert.ID,
		Actor:         "admin2",
		ReissuedAt:    reissuedAt,
		Remarks:       "Reissued Residency certificate for Juan Dela Cruz",
	}
	s.Require().NoError(s.store.AppendReissueLog(ctx, log))

	logs, err := s.store.ListReissueLogs(ctx, cert.ID)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal("admin2", logs[0].Actor)
}

// TestConcurrentCreatesSameSubject verifies the lock-then-validate-then-insert
// sequence admits exactly one active certificate per natural key. Without the
// advisory lock, READ COMMITTED lets multiple transactions pass the duplicate
// check before any of them commits.
func (s *PostgresStoreSuite) TestConcurrentCreatesSameSubject() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(ctx, func(ctx context.Context) error {
				if err := s.store.LockNaturalKey(ctx, "Pedro Penduko", models.KindClearance, "travel"); err != nil {
					return err
				}
				if _, err := s.store.FindActiveConflict(ctx, "Pedro Penduko", models.KindClearance, "travel", uuid.Nil, time.Now()); err == nil {
					return sentinel.ErrConflict
				} else if !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				return s.store.Create(ctx, newCert("Pedro Penduko", "travel", models.KindClearance))
			})
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	certs, err := s.store.List(ctx, store.Filter{Search: "penduko", Limit: 100})
	s.Require().NoError(err)
	s.Equal(int(successes.Load()), len(certs))
	s.Equal(1, int(successes.Load()))
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()
	a := newCert("Ana Reyes", "employment", models.KindClearance)
	b := newCert("Ben Cruz", "travel", models.KindResidency)
	b.Status = models.StatusCompleted
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	certs, err := s.store.List(ctx, store.Filter{Kind: models.KindResidency})
	s.Require().NoError(err)
	s.Require().Len(certs, 1)
	s.Equal("Ben Cruz", certs[0].FullName)

	certs, err = s.store.List(ctx, store.Filter{Status: models.StatusCompleted})
	s.Require().NoError(err)
	s.Len(certs, 1)

	certs, err = s.store.List(ctx, store.Filter{Search: "reyes"})
	s.Require().NoError(err)
	s.Len(certs, 1)
}
