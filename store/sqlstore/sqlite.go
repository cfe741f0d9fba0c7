package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name:       "sqlite3",
	dir:        "migrations/sqlite",
	classifier: classifySQLite,
}

// OpenSQLite opens (or creates) a SQLite database at path and applies the
// schema migrations. Use ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: serializes writers and keeps a :memory: database
	// alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, q: db, d: sqliteDialect}
	if err := migrate(ctx, db, sqliteDialect); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	return dsn
}

func classifySQLite(err error) errClass {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return errOther
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return errUnique
	// ON DELETE RESTRICT is enforced by an internal trigger and reports
	// SQLITE_CONSTRAINT_TRIGGER rather than SQLITE_CONSTRAINT_FOREIGNKEY.
	case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintTrigger:
		return errForeignKey
	}
	if se.Code == sqlite3.ErrConstraint && strings.Contains(se.Error(), "FOREIGN KEY") {
		return errForeignKey
	}
	return errOther
}
