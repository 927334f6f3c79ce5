// Package store persists certificates and reissue logs. The service package
// declares the interfaces it consumes; both implementations here satisfy them
// and share the sentinel errors from pkg/sentinel.
package store

import (
	"brgycert/internal/certificate/models"
	"brgycert/pkg/sentinel"
)

var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)

// Filter narrows List results. Search matches name or address,
// case-insensitively on a substring. Zero values mean "no filter".
type Filter struct {
	Search string
	Kind   models.DocumentKind
	Status models.Status
	Limit  int
	Offset int
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 100 {
		return 20
	}
	return f.Limit
}
