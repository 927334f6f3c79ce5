package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brgycert/internal/certificate/models"
	"brgycert/pkg/sentinel"
)

// PostgresStore persists template records in the certificate_templates table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	const q = `
		INSERT INTO certificate_templates (document_kind, file_path, uploaded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_kind)
		DO UPDATE SET file_path = EXCLUDED.file_path, uploaded_at = EXCLUDED.uploaded_at`
	if _, err := s.db.ExecContext(ctx, q, rec.Kind, rec.FilePath, rec.UploadedAt); err != nil {
		return fmt.Errorf("upsert template record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, kind models.DocumentKind) (*Record, error) {
	const q = `
		SELECT document_kind, file_path, uploaded_at
		FROM certificate_templates WHERE document_kind = $1`
	rec := &Record{}
	err := s.db.QueryRowContext(ctx, q, kind).Scan(&rec.Kind, &rec.FilePath, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Record, error) {
	const q = `
		SELECT document_kind, file_path, uploaded_at
		FROM certificate_templates ORDER BY document_kind`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list template records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.Kind, &rec.FilePath, &rec.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan template record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
