package sqlstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newSQLiteStore(t *testing.T) *sqlstore.Store {
	store, err := sqlstore.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newPostgresStore connects to TEST_DATABASE_URL, loading it from the
// repository .env when present. Tests are skipped without a database.
func newPostgresStore(t *testing.T) *sqlstore.Store {
	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := sqlstore.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

// fixture is the minimal catalog every ledger row needs.
type fixture struct {
	unit      ledger.Unit
	category  ledger.Category
	warehouse ledger.Warehouse
	material  ledger.Material
	employee  ledger.Employee
}

func seed(t *testing.T, store *sqlstore.Store) fixture {
	ctx := context.Background()
	f := fixture{
		unit:      ledger.Unit{Name: "pcs"},
		category:  ledger.Category{Name: "Filters"},
		warehouse: ledger.Warehouse{Name: "Main"},
		employee:  ledger.Employee{ID: 7, Name: "Head of stores", Role: ledger.RoleManagement},
	}
	require.NoError(t, store.SaveUnit(ctx, &f.unit))
	require.NoError(t, store.SaveCategory(ctx, &f.category))
	require.NoError(t, store.SaveWarehouse(ctx, &f.warehouse))
	require.NoError(t, store.SaveEmployee(ctx, &f.employee))

	f.material = ledger.Material{
		Name:          "Oil filter",
		UnitID:        f.unit.ID,
		CategoryID:    f.category.ID,
		Compatibility: []string{"Volvo FH"},
	}
	require.NoError(t, store.SaveMaterial(ctx, &f.material))
	return f
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func row(f fixture, dir ledger.Direction, date time.Time, qty, price string) ledger.Turnover {
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(price)
	return ledger.Turnover{
		Direction:   dir,
		Date:        date,
		MaterialID:  f.material.ID,
		WarehouseID: f.warehouse.ID,
		Price:       p,
		Quantity:    q,
		Sum:         q.Mul(p).Round(2),
		UserID:      1,
		CreatedAt:   time.Now(),
	}
}

// forEachEngine runs fn against SQLite and, when configured, PostgreSQL.
func forEachEngine(t *testing.T, fn func(t *testing.T, store *sqlstore.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPostgresStore(t)) })
}

// =============================================================================
// CATALOG
// =============================================================================

func TestStore_Catalog_RoundTrip(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		article := "OF-100"
		f.material.ArticleNumber = &article
		f.material.Compatibility = []string{"Volvo FH", "Scania R"}
		require.NoError(t, store.SaveMaterial(ctx, &f.material))

		got, err := store.GetMaterial(ctx, f.material.ID)
		require.NoError(t, err)
		assert.Equal(t, "Oil filter", got.Name)
		require.NotNil(t, got.ArticleNumber)
		assert.Equal(t, "OF-100", *got.ArticleNumber)
		assert.Equal(t, []string{"Volvo FH", "Scania R"}, got.Compatibility)

		unit, err := store.GetUnit(ctx, f.unit.ID)
		require.NoError(t, err)
		assert.False(t, unit.Precise)
	})
}

func TestStore_ListMaterials_Filters(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		other := ledger.Category{Name: "Tyres"}
		require.NoError(t, store.SaveCategory(ctx, &other))
		tyre := ledger.Material{Name: "Winter tyre", UnitID: f.unit.ID, CategoryID: other.ID}
		require.NoError(t, store.SaveMaterial(ctx, &tyre))

		byCategory, err := store.ListMaterials(ctx, ledger.MaterialFilter{CategoryID: other.ID})
		require.NoError(t, err)
		require.Len(t, byCategory, 1)
		assert.Equal(t, tyre.ID, byCategory[0].ID)

		// search matches compatibility tags case-insensitively
		byTag, err := store.ListMaterials(ctx, ledger.MaterialFilter{Search: "volvo"})
		require.NoError(t, err)
		require.Len(t, byTag, 1)
		assert.Equal(t, f.material.ID, byTag[0].ID)
	})
}

func TestStore_DuplicateName(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		seed(t, store)

		err := store.SaveWarehouse(ctx, &ledger.Warehouse{Name: "Main"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrDuplicate)

		var dup *ledger.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "name", dup.Field)
	})
}

func TestStore_DuplicateArticleNumber(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		article := "A-1"
		f.material.ArticleNumber = &article
		require.NoError(t, store.SaveMaterial(ctx, &f.material))

		second := ledger.Material{Name: "Air filter", UnitID: f.unit.ID, CategoryID: f.category.ID, ArticleNumber: &article}
		err := store.SaveMaterial(ctx, &second)

		var dup *ledger.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "article_number", dup.Field)
	})
}

func TestStore_DeleteReferencedUnit_Protected(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		err := store.DeleteUnit(ctx, f.unit.ID)
		assert.ErrorIs(t, err, ledger.ErrReferenced)

		_, err = store.GetUnit(ctx, f.unit.ID)
		assert.NoError(t, err)
	})
}

func TestStore_GetMissing_NotFound(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.GetWarehouse(ctx, 404)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = store.SaveWarehouse(ctx, &ledger.Warehouse{ID: 404, Name: "Ghost"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestStore_Mirrors_Upsert(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()

		o := ledger.Order{ID: 42, Number: "42", Status: "OPEN", Vehicle: "AB123"}
		require.NoError(t, store.SaveOrder(ctx, &o))
		o.Status = ledger.OrderCompleted
		require.NoError(t, store.SaveOrder(ctx, &o))

		got, err := store.GetOrder(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, ledger.OrderCompleted, got.Status)
		assert.Equal(t, "AB123", got.Vehicle)
	})
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

func TestStore_Turnover_SignedPersistence(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		in := row(f, ledger.Incoming, day(2026, 3, 1), "2.00", "10.00")
		require.NoError(t, store.InsertTurnover(ctx, &in))
		out := row(f, ledger.Expense, day(2026, 3, 2), "0.50", "10.00")
		require.NoError(t, store.InsertTurnover(ctx, &out))

		got, err := store.GetTurnover(ctx, out.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Expense, got.Direction)
		assert.True(t, got.Quantity.Equal(decimal.RequireFromString("0.50")), "magnitude is unsigned")
		assert.True(t, got.SignedSum().Equal(decimal.RequireFromString("-5.00")))
		assert.Equal(t, day(2026, 3, 2), got.Date)
		assert.Nil(t, got.OrderID)
		assert.Nil(t, got.EntranceID)
	})
}

func TestStore_Turnovers_FilterAndOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		for _, tr := range []ledger.Turnover{
			row(f, ledger.Incoming, day(2026, 1, 10), "5", "1"),
			row(f, ledger.Incoming, day(2026, 1, 1), "1", "1"),
			row(f, ledger.Expense, day(2026, 1, 20), "2", "1"),
		} {
			tr := tr
			require.NoError(t, store.InsertTurnover(ctx, &tr))
		}

		chrono, err := store.Turnovers(ctx, ledger.TurnoverFilter{MaterialID: f.material.ID})
		require.NoError(t, err)
		require.Len(t, chrono, 3)
		assert.Equal(t, day(2026, 1, 1), chrono[0].Date)
		assert.Equal(t, day(2026, 1, 20), chrono[2].Date)

		newest, err := store.Turnovers(ctx, ledger.TurnoverFilter{Order: ledger.NewestFirst, Limit: 1})
		require.NoError(t, err)
		require.Len(t, newest, 1)
		assert.Equal(t, day(2026, 1, 20), newest[0].Date)

		through, err := store.Turnovers(ctx, ledger.TurnoverFilter{Through: day(2026, 1, 10)})
		require.NoError(t, err)
		assert.Len(t, through, 2)

		n, err := store.CountTurnovers(ctx, ledger.TurnoverFilter{Direction: ledger.Incoming})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.CountTurnovers(ctx, ledger.TurnoverFilter{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_DeleteMaterialWithRows_Protected(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		tr := row(f, ledger.Incoming, day(2026, 1, 1), "1", "1")
		require.NoError(t, store.InsertTurnover(ctx, &tr))

		err := store.DeleteMaterial(ctx, f.material.ID)
		var ref *ledger.ReferencedError
		require.ErrorAs(t, err, &ref)
		assert.Equal(t, int64(f.material.ID), ref.ID)
	})
}

// =============================================================================
// ENTRANCES
// =============================================================================

func TestStore_Entrances_SearchAndProviders(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)

		first := ledger.Entrance{Date: day(2026, 2, 1), Provider: "Acme", DocumentNumber: "INV-1", ResponsibleID: f.employee.ID, UserID: 1}
		second := ledger.Entrance{Date: day(2026, 2, 5), Provider: "Bolt Ltd", ResponsibleID: f.employee.ID, UserID: 1}
		empty := ledger.Entrance{Date: day(2026, 2, 6), ResponsibleID: f.employee.ID, UserID: 1}
		for _, e := range []*ledger.Entrance{&first, &second, &empty} {
			require.NoError(t, store.SaveEntrance(ctx, e))
		}

		line := row(f, ledger.Incoming, second.Date, "1", "3")
		line.EntranceID = &second.ID
		require.NoError(t, store.InsertTurnover(ctx, &line))

		all, err := store.ListEntrances(ctx, ledger.EntranceFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, empty.ID, all[0].ID, "newest first")

		byMaterial, err := store.ListEntrances(ctx, ledger.EntranceFilter{Search: "OIL"})
		require.NoError(t, err)
		require.Len(t, byMaterial, 1)
		assert.Equal(t, second.ID, byMaterial[0].ID)

		byRange, err := store.ListEntrances(ctx, ledger.EntranceFilter{From: day(2026, 2, 2), To: day(2026, 2, 5)})
		require.NoError(t, err)
		require.Len(t, byRange, 1)
		assert.Equal(t, "Bolt Ltd", byRange[0].Provider)

		providers, err := store.ListProviders(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Acme", "Bolt Ltd"}, providers)

		err = store.DeleteEntrance(ctx, second.ID)
		assert.ErrorIs(t, err, ledger.ErrReferenced)
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollbackOnError(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *sqlstore.Store) {
		ctx := context.Background()
		f := seed(t, store)
		boom := errors.New("boom")

		err := store.WithTx(ctx, func(tx ledger.Store) error {
			tr := row(f, ledger.Incoming, day(2026, 1, 1), "1", "1")
			require.NoError(t, tx.InsertTurnover(ctx, &tr))
			require.NoError(t, tx.LockStock(ctx, f.material.ID, f.warehouse.ID))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		n, err := store.CountTurnovers(ctx, ledger.TurnoverFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_Reset(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	f := seed(t, store)
	tr := row(f, ledger.Incoming, day(2026, 1, 1), "1", "1")
	require.NoError(t, store.InsertTurnover(ctx, &tr))

	require.NoError(t, store.Reset(ctx))

	materials, err := store.ListMaterials(ctx, ledger.MaterialFilter{})
	require.NoError(t, err)
	assert.Empty(t, materials)
}
