package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends events to the audit_events table. Rows are never
// updated or deleted.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	const q = `
		INSERT INTO audit_events (occurred_at, actor, action, certificate_id, detail)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5)`
	if _, err := s.db.ExecContext(ctx, q,
		event.Timestamp, event.Actor, event.Action, event.CertificateID, event.Detail,
	); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT occurred_at, COALESCE(actor, ''), action, COALESCE(certificate_id, ''), detail
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.Actor, &e.Action, &e.CertificateID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
