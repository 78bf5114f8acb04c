package persistence

import (
	"testing"

	"github.com/mvstudio/backend/tests/testutil"
	"gorm.io/gorm"
)

// newTestDB returns an in-memory sqlite database with every ledger table
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLiteDB(t, Models()...)
}
