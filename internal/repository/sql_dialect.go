package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/config"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// placeholder returns the correct bind variable for the given index based on DB type.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func placeholder(i int) string {
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	if db == config.DATABASE_TYPE_POSTGRES {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// dateBefore returns a DB-specific SQL predicate that checks the datetime column is strictly
// before the bound parameter at index i. SQLite goes through julianday() so TEXT timestamps compare correctly.
func dateBefore(column string, i int) string {
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	switch db {
	case config.DATABASE_TYPE_POSTGRES, config.DATABASE_TYPE_MYSQL:
		return fmt.Sprintf("%s < %s", column, placeholder(i))
	default:
		return fmt.Sprintf("julianday(%s) < julianday(%s)", column, placeholder(i))
	}
}

func supportsReturning() bool {
	return config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_POSTGRES
}

func formatDateInDatabase(t time.Time) string {
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_SQLLITE {
		return t.UTC().Format("2006-01-02 15:04:05.000")
	}
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_MYSQL {
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	// PostgreSQL supports RFC3339
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDateInDatabaseNull(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return formatDateInDatabase(t.Time)
}

func nullString(s sql.NullString) interface{} {
	if !s.Valid {
		return nil
	}
	return s.String
}

// isUniqueViolation reports whether err is a primary key or unique constraint failure
// from any of the supported drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// insertReturningID runs an insert and returns the generated id, using RETURNING where supported.
func insertReturningID(ctx context.Context, db *sql.DB, base string, vals ...interface{}) (int64, error) {
	if supportsReturning() {
		var id int64
		err := db.QueryRowContext(ctx, base+" RETURNING id", vals...).Scan(&id)
		return id, err
	}
	res, err := db.ExecContext(ctx, base, vals...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
