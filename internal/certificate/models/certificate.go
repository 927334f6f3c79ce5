package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentKind enumerates the certificate types the office issues.
type DocumentKind string

const (
	KindClearance DocumentKind = "clearance"
	KindResidency DocumentKind = "residency"
	KindIndigency DocumentKind = "indigency"
)

// ParseKind normalizes and validates a kind string.
func ParseKind(s string) (DocumentKind, bool) {
	kind := DocumentKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case KindClearance, KindResidency, KindIndigency:
		return kind, true
	}
	return "", false
}

// Label returns the display name used in messages and rendered documents.
func (k DocumentKind) Label() string {
	switch k {
	case KindClearance:
		return "Clearance"
	case KindResidency:
		return "Residency"
	case KindIndigency:
		return "Indigency"
	}
	return "Document"
}

// Prefix is the identifier prefix for the kind; unknown kinds fall back to DOC.
func (k DocumentKind) Prefix() string {
	switch k {
	case KindClearance:
		return "CLR"
	case KindResidency:
		return "RES"
	case KindIndigency:
		return "IND"
	}
	return "DOC"
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Certificate is the aggregate owned by the lifecycle engine.
//
// Invariants:
//   - UniqueID is assigned exactly once and never reused across saves
//   - VerificationToken is assigned at creation and never changes; it is the
//     stable external identity for public verification
//   - ExpiresAt equals the issue instant plus one year (reissue instant when
//     set, else creation instant), with Feb 29 clamped to Feb 28
//   - No two active certificates share (normalized name, kind, purpose)
//   - Reissued never reverts to false
//   - DocxPath is set if and only if Status is COMPLETED
type Certificate struct {
	ID            uuid.UUID    `json:"id"`
	UniqueID      string       `json:"unique_id"`
	FullName      string       `json:"full_name"`
	Address       string       `json:"address"`
	Age           int          `json:"age,omitempty"`
	Occupation    string       `json:"occupation,omitempty"`
	Purpose       string       `json:"purpose"`
	ResidentSince string       `json:"resident_since,omitempty"`
	Kind          DocumentKind `json:"document_kind"`
	Status        Status       `json:"status"`

	DocxPath string `json:"docx_path,omitempty"`

	VerificationToken uuid.UUID  `json:"verification_token"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	ReissuedAt        *time.Time `json:"reissued_at,omitempty"`
	Reissued          bool       `json:"reissued"`
}

// IsExpired reports whether the certificate has passed its expiration.
// A zero ExpiresAt is treated as not yet expired (pre-first-save state).
func (c *Certificate) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// IsActive reports whether the certificate still blocks duplicates.
func (c *Certificate) IsActive(now time.Time) bool {
	if c.Status != StatusPending && c.Status != StatusCompleted {
		return false
	}
	return !c.IsExpired(now)
}

// IssueDate returns the reissue instant when set, else the creation instant.
func (c *Certificate) IssueDate() time.Time {
	if c.ReissuedAt != nil {
		return *c.ReissuedAt
	}
	return c.CreatedAt
}

// Normalize returns the case- and whitespace-insensitive form used by the
// duplicate check.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AddYear advances t by one calendar year, keeping month and day. A Feb 29
// issue date maps to Feb 28 when the target year is not a leap year; it never
// rolls over to March 1.
func AddYear(t time.Time) time.Time {
	year := t.Year() + 1
	day := t.Day()
	if t.Month() == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ReissueLog is the append-only record of a reissue. Rows are never mutated
// or deleted.
type ReissueLog struct {
	ID            uuid.UUID `json:"id"`
	CertificateID uuid.UUID `json:"certificate_id"`
	Actor         string    `json:"actor,omitempty"` // empty when system-initiated
	ReissuedAt    time.Time `json:"reissued_at"`
	Remarks       string    `json:"remarks,omitempty"`
}
