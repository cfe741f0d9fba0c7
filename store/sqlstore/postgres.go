package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	name:     "postgres",
	dir:      "migrations/postgres",
	numbered: true,
	// Held until commit or rollback of the writing transaction.
	lockStock:  "SELECT pg_advisory_xact_lock(?)",
	classifier: classifyPostgres,
}

// OpenPostgres connects a pgx pool to dsn, exposes it through database/sql
// and applies the schema migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s := &Store{db: db, q: db, d: postgresDialect, onClose: pool.Close}
	if err := migrate(ctx, db, postgresDialect); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func classifyPostgres(err error) errClass {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return errOther
	}
	switch pe.Code {
	case "23505": // unique_violation
		return errUnique
	case "23503": // foreign_key_violation
		return errForeignKey
	}
	return errOther
}
