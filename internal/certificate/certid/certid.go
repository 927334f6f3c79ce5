// Package certid generates human-readable certificate identifiers of the form
// <PREFIX>-<YYYYMMDD>-<6 uppercase hex chars>, with an -R<n> suffix for
// reissues. The generator itself guarantees nothing about uniqueness; the
// store's unique constraint is the backstop and callers retry on collision.
package certid

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"brgycert/internal/certificate/models"
)

// New builds an identifier for the given kind dated at now.
func New(kind models.DocumentKind, reissueCount int, now time.Time) string {
	u := uuid.New()
	random := strings.ToUpper(hex.EncodeToString(u[:3]))
	id := fmt.Sprintf("%s-%s-%s", kind.Prefix(), now.Format("20060102"), random)
	if reissueCount > 0 {
		id = fmt.Sprintf("%s-R%d", id, reissueCount)
	}
	return id
}
