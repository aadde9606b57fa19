// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Sternrassler/dog-photo-cache/pkg/database"
)

var dbCounter atomic.Int64

// MustOpenTestDB opens a private in-memory SQLite database, migrates the
// given models and closes it via t.Cleanup.
//
// The pool is limited to one connection so concurrent callers are
// serialized by database/sql instead of failing on SQLite table locks.
func MustOpenTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), dbCounter.Add(1))
	db, err := database.Open(database.Config{
		Driver:       database.DriverSQLite,
		DSN:          database.MemoryDSN(name),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db, models...))

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}
