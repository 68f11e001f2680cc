package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/RealZimboGuy/stepflow/internal/config"
	"github.com/RealZimboGuy/stepflow/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite migrates a fresh SQLite file in a temp dir and points the SQL dialect at it.
// Tests using it must not run in parallel because the dialect is read from the environment.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	t.Setenv(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)

	path := filepath.Join(t.TempDir(), "stepflow.db")
	if err := migrations.Run("sqllite3", "sqlite3://"+path); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
