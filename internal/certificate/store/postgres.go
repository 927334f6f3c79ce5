package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"brgycert/internal/certificate/models"
	txcontext "brgycert/pkg/tx"
)

// Postgres persists certificates via database/sql and lib/pq. Store methods
// join a caller-owned transaction when the context carries one.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside a single database transaction. The validate-
// then-persist sequences in the service run through here so the duplicate
// check and the insert commit or roll back together. The transaction alone
// does not exclude concurrent duplicate checks at READ COMMITTED; writers
// call LockNaturalKey inside fn to serialize on the natural key.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(txcontext.With(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockNaturalKey serializes writers of one (name, kind, purpose) key within
// the surrounding transaction. READ COMMITTED alone lets two concurrent
// transactions both pass the duplicate check before either commits; the
// xact-scoped advisory lock closes that window and releases on commit or
// rollback.
func (s *Postgres) LockNaturalKey(ctx context.Context, fullName string, kind models.DocumentKind, purpose string) error {
	key := models.Normalize(fullName) + "|" + string(kind) + "|" + models.Normalize(purpose)
	if _, err := s.q(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock natural key: %w", err)
	}
	return nil
}

const certColumns = `
	id, unique_id, full_name, address, age, occupation, purpose, resident_since,
	document_kind, status, docx_path, verification_token,
	expires_at, created_at, reissued_at, reissued`

func (s *Postgres) Create(ctx context.Context, cert *models.Certificate) error {
	const q = `
		INSERT INTO certificates (` + certColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        NULLIF($11, ''), $12, $13, $14, $15, $16)`
	_, err := s.q(ctx).ExecContext(ctx, q,
		cert.ID, cert.UniqueID, cert.FullName, cert.Address, cert.Age,
		cert.Occupation, cert.Purpose, cert.ResidentSince,
		string(cert.Kind), string(cert.Status), cert.DocxPath,
		cert.VerificationToken, cert.ExpiresAt, cert.CreatedAt,
		nullTime(cert.ReissuedAt), cert.Reissued,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, cert *models.Certificate) error {
	const q = `
		UPDATE certificates SET
			full_name = $2, address = $3, age = $4, occupation = $5, purpose = $6,
			resident_since = $7, document_kind = $8, status = $9,
			docx_path = NULLIF($10, ''),
			expires_at = $11, reissued_at = $12, reissued = $13
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q,
		cert.ID, cert.FullName, cert.Address, cert.Age, cert.Occupation,
		cert.Purpose, cert.ResidentSince, string(cert.Kind), string(cert.Status),
		cert.DocxPath, cert.ExpiresAt,
		nullTime(cert.ReissuedAt), cert.Reissued,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return requireRow(res)
}

// UpdateGenerated sets the document reference and status in one statement so
// the two can never diverge.
func (s *Postgres) UpdateGenerated(ctx context.Context, id uuid.UUID, docxPath string, status models.Status) error {
	const q = `
		UPDATE certificates SET docx_path = NULLIF($2, ''), status = $3
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id, docxPath, string(status))
	if err != nil {
		return fmt.Errorf("update generated document: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	const q = `SELECT ` + certColumns + ` FROM certificates WHERE id = $1`
	return s.scanOne(s.q(ctx).QueryRowContext(ctx, q, id))
}

func (s *Postgres) FindByToken(ctx context.Context, token uuid.UUID) (*models.Certificate, error) {
	const q = `SELECT ` + certColumns + ` FROM certificates WHERE verification_token = $1`
	return s.scanOne(s.q(ctx).QueryRowContext(ctx, q, token))
}

// FindActiveConflict is the duplicate check expressed as a single filtered
// query so it stays atomic with the surrounding transaction.
func (s *Postgres) FindActiveConflict(ctx context.Context, fullName string, kind models.DocumentKind, purpose string, exclude uuid.UUID, now time.Time) (*models.Certificate, error) {
	const q = `
		SELECT ` + certColumns + ` FROM certificates
		WHERE document_kind = $1
		  AND lower(btrim(full_name)) = $2
		  AND lower(btrim(purpose)) = $3
		  AND id <> $4
		  AND status IN ('PENDING', 'COMPLETED')
		  AND expires_at > $5
		LIMIT 1`
	return s.scanOne(s.q(ctx).QueryRowContext(ctx, q,
		string(kind), models.Normalize(fullName), models.Normalize(purpose), exclude, now,
	))
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*models.Certificate, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Search != "" {
		p := arg("%" + models.Normalize(filter.Search) + "%")
		conds = append(conds, fmt.Sprintf("(lower(full_name) LIKE %s OR lower(address) LIKE %s)", p, p))
	}
	if filter.Kind != "" {
		conds = append(conds, "document_kind = "+arg(string(filter.Kind)))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}

	q := `SELECT ` + certColumns + ` FROM certificates`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT " + arg(filter.limit()) + " OFFSET " + arg(filter.Offset)

	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

func (s *Postgres) AppendReissueLog(ctx context.Context, log *models.ReissueLog) error {
	const q = `
		INSERT INTO reissue_logs (id, certificate_id, actor, reissued_at, remarks)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`
	if _, err := s.q(ctx).ExecContext(ctx, q,
		log.ID, log.CertificateID, log.Actor, log.ReissuedAt, log.Remarks,
	); err != nil {
		return fmt.Errorf("append reissue log: %w", err)
	}
	return nil
}

func (s *Postgres) ListReissueLogs(ctx context.Context, certificateID uuid.UUID) ([]*models.ReissueLog, error) {
	const q = `
		SELECT id, certificate_id, COALESCE(actor, ''), reissued_at, remarks
		FROM reissue_logs
		WHERE certificate_id = $1
		ORDER BY reissued_at ASC`
	rows, err := s.q(ctx).QueryContext(ctx, q, certificateID)
	if err != nil {
		return nil, fmt.Errorf("list reissue logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ReissueLog
	for rows.Next() {
		var log models.ReissueLog
		if err := rows.Scan(&log.ID, &log.CertificateID, &log.Actor, &log.ReissuedAt, &log.Remarks); err != nil {
			return nil, fmt.Errorf("scan reissue log: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanOne(row *sql.Row) (*models.Certificate, error) {
	cert, err := scanCert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cert, err
}

func scanCert(row rowScanner) (*models.Certificate, error) {
	var (
		cert       models.Certificate
		kind       string
		status     string
		docxPath   sql.NullString
		reissuedAt sql.NullTime
	)
	err := row.Scan(
		&cert.ID, &cert.UniqueID, &cert.FullName, &cert.Address, &cert.Age,
		&cert.Occupation, &cert.Purpose, &cert.ResidentSince,
		&kind, &status, &docxPath, &cert.VerificationToken,
		&cert.ExpiresAt, &cert.CreatedAt, &reissuedAt, &cert.Reissued,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	cert.Kind = models.DocumentKind(kind)
	cert.Status = models.Status(status)
	cert.DocxPath = docxPath.String
	if reissuedAt.Valid {
		t := reissuedAt.Time
		cert.ReissuedAt = &t
	}
	return &cert, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
