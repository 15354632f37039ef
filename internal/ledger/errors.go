package ledger

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// ErrInvalidEntry is returned by Append for entries that cannot be stored.
var ErrInvalidEntry = errors.New("ledger: invalid entry")

var fingerprintRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

func validate(e core.LedgerEntry) error {
	if !fingerprintRegex.MatchString(e.Fingerprint) {
		return fmt.Errorf("%w: fingerprint %q is not a hex SHA-256", ErrInvalidEntry, e.Fingerprint)
	}
	switch e.Status {
	case core.StatusNormalized, core.StatusQuarantined:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidEntry, e.Status)
	}
	if e.ProcessedAt.IsZero() {
		return fmt.Errorf("%w: processed_at is zero", ErrInvalidEntry)
	}
	return nil
}
