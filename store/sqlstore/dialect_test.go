package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/warp/stock-ledger/ledger"
)

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2`, postgresDialect.rebind(q))
}

func TestUniqueField(t *testing.T) {
	tests := []struct {
		msg, table, want string
	}{
		{"UNIQUE constraint failed: materials.article_number", "materials", "article_number"},
		{"UNIQUE constraint failed: warehouses.name", "warehouses", "name"},
		{`ERROR: duplicate key value violates unique constraint "materials_article_number_key" (SQLSTATE 23505)`, "materials", "article_number"},
		{`ERROR: duplicate key value violates unique constraint "units_name_key" (SQLSTATE 23505)`, "units", "name"},
		{"something else", "units", "name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, uniqueField(tt.msg, tt.table), tt.msg)
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=on&_busy_timeout=5000", sqliteDSN(":memory:"))
	assert.Contains(t, sqliteDSN("data/w.db"), "_journal_mode=WAL")
}

func TestClassifySQLite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errClass
	}{
		{"restrict on delete", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintTrigger}, errForeignKey},
		{"foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, errForeignKey},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, errUnique},
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, errUnique},
		{"wrapped", fmt.Errorf("delete: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintTrigger}), errForeignKey},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, errOther},
		{"not sqlite", errors.New("boom"), errOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySQLite(tt.err))
		})
	}
}

func TestStockLockKey(t *testing.T) {
	// ids above 2^31 must not fold onto small ones
	pairs := [][2]int64{{1, 1}, {1, 2}, {2, 1}, {1<<32 + 1, 1}, {1, 1<<32 + 1}, {1<<31 + 5, 7}, {5, 7}}
	seen := map[int64][2]int64{}
	for _, p := range pairs {
		key := stockLockKey(ledger.MaterialID(p[0]), ledger.WarehouseID(p[1]))
		prev, dup := seen[key]
		assert.False(t, dup, "%v collides with %v", p, prev)
		seen[key] = p
	}
	assert.Equal(t, stockLockKey(3, 4), stockLockKey(3, 4))
}
