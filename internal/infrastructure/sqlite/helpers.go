package sqlite

import "strings"

// isUniqueViolation reports whether err is SQLite's UNIQUE constraint error.
// modernc.org/sqlite exposes no typed error for it, so the repositories match
// on the message. Two constraints funnel through here: duplicate primary keys
// (surfaced as [domain.ErrAlreadyExists]) and the ledger's single-pending
// index (surfaced as [domain.ErrReleaseInFlight]).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
