package sqlite

import (
	"database/sql"
	"testing"
)

// OpenTestDB opens an in-memory ledger database with the full migration set
// applied, ready for the repository and ledger contract suites. The handle
// is closed when the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}
