// Package signature keeps the per-identity signature images stamped onto
// generated documents, plus the per-identity bypass flag.
package signature

import (
	"context"
	"time"
)

// Record is one identity's signature registration.
type Record struct {
	Username  string    `json:"username"`
	ImagePath string    `json:"image_path,omitempty"`
	Bypass    bool      `json:"bypass"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists signature records.
type Store interface {
	Upsert(ctx context.Context, rec *Record) error
	Find(ctx context.Context, username string) (*Record, error)
}
