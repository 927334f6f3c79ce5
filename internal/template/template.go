// Package template manages the docx templates certificates are rendered
// from: per-kind overrides uploaded by admins, bundled defaults, and the
// startup reconciliation that seeds an empty template directory.
package template

import (
	"context"
	"time"

	"brgycert/internal/certificate/models"
)

// Record tracks an uploaded template override.
type Record struct {
	Kind       models.DocumentKind `json:"document_kind"`
	FilePath   string              `json:"file_path"`
	UploadedAt time.Time           `json:"uploaded_at"`
}

// Store persists template override records. The file itself lives on disk;
// the record is the authoritative pointer to it.
type Store interface {
	Upsert(ctx context.Context, rec *Record) error
	Find(ctx context.Context, kind models.DocumentKind) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
}

// Info describes the template currently in effect for a kind.
type Info struct {
	Kind       models.DocumentKind `json:"document_kind"`
	Source     string              `json:"source"` // "override" or "default"
	FilePath   string              `json:"file_path"`
	UploadedAt *time.Time          `json:"uploaded_at,omitempty"`
}
