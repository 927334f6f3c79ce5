package signature

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brgycert/pkg/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	const q = `
		INSERT INTO signatures (username, image_path, bypass, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET image_path = EXCLUDED.image_path,
		              bypass = EXCLUDED.bypass,
		              updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, rec.Username, rec.ImagePath, rec.Bypass, rec.UpdatedAt); err != nil {
		return fmt.Errorf("upsert signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, username string) (*Record, error) {
	const q = `SELECT username, image_path, bypass, updated_at FROM signatures WHERE username = $1`
	rec := &Record{}
	err := s.db.QueryRowContext(ctx, q, username).Scan(&rec.Username, &rec.ImagePath, &rec.Bypass, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find signature: %w", err)
	}
	return rec, nil
}
