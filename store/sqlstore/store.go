/*
Package sqlstore provides the relational implementation of ledger.TxStore.

PURPOSE:
  One implementation of every persistence method, written against
  database/sql, serving two engines:

    OpenSQLite:   mattn/go-sqlite3, single connection, WAL, foreign keys on
    OpenPostgres: pgx/v5 pool exposed as *sql.DB through pgx/v5/stdlib

  Queries are written with '?' placeholders and rebound per dialect.

SCHEMA:
  Versioned goose migrations embedded per dialect (migrations/sqlite,
  migrations/postgres), applied on open.

KEY TABLES:
  units, material_categories, warehouses, materials: reference data
  orders, employees:                                  external mirrors
  entrances:                                          goods receipts
  turnovers:                                          ledger rows (signed
                                                      quantity and sum)

LEDGER ROWS:
  turnovers rows are inserted and deleted, never updated. Direction and
  magnitudes are converted to the signed persisted form here and back on
  read.

PROTECT ON DELETE:
  Every reference is ON DELETE RESTRICT. A foreign key violation on delete
  becomes *ledger.ReferencedError; a unique violation becomes
  *ledger.DuplicateError.

CONCURRENCY:
  SQLite runs on one pooled connection, so transactions are serialized.
  PostgreSQL takes a transaction-scoped advisory lock per
  (material, warehouse) in LockStock, keyed by a 64-bit hash of the pair.

USAGE:
  store, err := sqlstore.OpenSQLite(ctx, "./data/warehouse.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/warp/stock-ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures the differences between the two engines.
type dialect struct {
	name       string // goose dialect
	dir        string // migrations subdirectory
	numbered   bool   // $1, $2 placeholders
	lockStock  string // empty when the engine serializes writers itself
	classifier func(err error) errClass
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements ledger.TxStore. The same type serves the base handle and
// the transactional view handed to WithTx callbacks.
type Store struct {
	db      *sql.DB
	q       querier
	d       dialect
	inTx    bool
	onClose func()
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = (*Store)(nil)
)

// Close closes the database connection.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the goose dialect name of the store's engine.
func (s *Store) Dialect() string {
	return s.d.name
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.d.rebind(query), args...)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Nested calls reuse the
// outer transaction. The error returned by fn is passed through unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &Store{db: s.db, q: sqlTx, d: s.d, inTx: true}
	if err := fn(view); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockStock serializes writers of one (material, warehouse) pair until the
// surrounding transaction ends.
func (s *Store) LockStock(ctx context.Context, material ledger.MaterialID, warehouse ledger.WarehouseID) error {
	if !s.inTx || s.d.lockStock == "" {
		return nil
	}
	if _, err := s.exec(ctx, s.d.lockStock, stockLockKey(material, warehouse)); err != nil {
		return fmt.Errorf("failed to lock stock %d/%d: %w", material, warehouse, err)
	}
	return nil
}

// stockLockKey folds both ids into one bigint advisory lock key.
func stockLockKey(material ledger.MaterialID, warehouse ledger.WarehouseID) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(material))
	binary.BigEndian.PutUint64(buf[8:], uint64(warehouse))
	return int64(xxhash.Sum64(buf[:]))
}

// Reset deletes all rows, children first. Used by tests and demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(ls ledger.Store) error {
		tx := ls.(*Store)
		for _, table := range []string{
			"turnovers", "entrances", "materials", "units", "material_categories",
			"warehouses", "orders", "employees",
		} {
			if _, err := tx.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

type errClass int

const (
	errOther errClass = iota
	errUnique
	errForeignKey
)

// mapWriteErr maps a unique violation on table to a DuplicateError naming the
// column when it can be recovered from the driver error.
func (s *Store) mapWriteErr(err error, entity, table string) error {
	if err == nil {
		return nil
	}
	switch s.d.classifier(err) {
	case errUnique:
		return &ledger.DuplicateError{Entity: entity, Field: uniqueField(err.Error(), table)}
	case errForeignKey:
		return &ledger.ValidationError{
			Field:   entity,
			Rule:    ledger.RuleUnknownReference,
			Message: "references a row that does not exist",
			Err:     err,
		}
	}
	return fmt.Errorf("failed to save %s: %w", entity, err)
}

func (s *Store) mapDeleteErr(err error, entity string, id int64) error {
	if err == nil {
		return nil
	}
	if s.d.classifier(err) == errForeignKey {
		return &ledger.ReferencedError{Entity: entity, ID: id}
	}
	return fmt.Errorf("failed to delete %s %d: %w", entity, id, err)
}

// uniqueField extracts the column from "UNIQUE constraint failed:
// materials.name" (SQLite) or from a "<table>_<column>_key" constraint name
// (PostgreSQL).
func uniqueField(msg, table string) string {
	if i := strings.Index(msg, table+"."); i >= 0 {
		rest := msg[i+len(table)+1:]
		if j := strings.IndexAny(rest, ", \""); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	if i := strings.Index(msg, table+"_"); i >= 0 {
		rest := msg[i+len(table)+1:]
		if j := strings.Index(rest, "_key"); j >= 0 {
			return rest[:j]
		}
	}
	return "name"
}

func notFound(entity string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("failed to load %s %d: %w", entity, id, err)
}

func affected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// Helper functions

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func dateArg(t interface{ Format(string) string }) string {
	return t.Format(ledger.DateLayout)
}
