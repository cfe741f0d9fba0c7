package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	admin = ledger.Actor{UserID: 1, Name: "admin", Superuser: true}
	clerk = ledger.Actor{UserID: 2, Name: "clerk"}

	today = time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
)

// env is a ledger over an in-memory store with a small catalog:
// two warehouses, one material measured in precise units, a management
// employee and an open order.
type env struct {
	ledger  *ledger.Ledger
	catalog *ledger.Catalog
	store   *sqlstore.Store

	unit      ledger.Unit
	category  ledger.Category
	main      ledger.Warehouse
	annex     ledger.Warehouse
	oil       ledger.Material
	manager   ledger.Employee
	openOrder ledger.Order
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &env{
		ledger:  ledger.New(store, ledger.WithClock(func() time.Time { return today.Add(10 * time.Hour) })),
		catalog: ledger.NewCatalog(store, nil),
		store:   store,
	}

	e.unit = ledger.Unit{Name: "l", Precise: true}
	require.NoError(t, e.catalog.SaveUnit(ctx, &e.unit))
	e.category = ledger.Category{Name: "Oils"}
	require.NoError(t, e.catalog.SaveCategory(ctx, &e.category))
	e.main = ledger.Warehouse{Name: "Main"}
	require.NoError(t, e.catalog.SaveWarehouse(ctx, &e.main))
	e.annex = ledger.Warehouse{Name: "Annex"}
	require.NoError(t, e.catalog.SaveWarehouse(ctx, &e.annex))
	e.oil = ledger.Material{Name: "Engine oil 5W-30", UnitID: e.unit.ID, CategoryID: e.category.ID, Compatibility: []string{"Volvo FH"}}
	require.NoError(t, e.catalog.SaveMaterial(ctx, &e.oil))

	e.manager = ledger.Employee{ID: 10, Name: "Stores manager", Role: ledger.RoleManagement}
	require.NoError(t, e.ledger.SaveEmployee(ctx, &e.manager))
	e.openOrder = ledger.Order{ID: 100, Number: "100", Status: "IN_PROGRESS", Vehicle: "AB 123"}
	require.NoError(t, e.ledger.SaveOrder(ctx, &e.openOrder))
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

// line builds an entry with sum = quantity * price.
func line(material ledger.MaterialID, warehouse ledger.WarehouseID, qty, price string) ledger.Turnover {
	q, p := dec(qty), dec(price)
	return ledger.Turnover{
		MaterialID:  material,
		WarehouseID: warehouse,
		Quantity:    q,
		Price:       p,
		Sum:         q.Mul(p).Round(2),
	}
}

// receive books a goods receipt into warehouse on date.
func (e *env) receive(t *testing.T, warehouse ledger.WarehouseID, date time.Time, qty, price string) []ledger.Turnover {
	t.Helper()
	_, rows, err := e.ledger.CreateEntrance(context.Background(), clerk,
		ledger.Entrance{Date: date, Provider: "Acme", ResponsibleID: e.manager.ID},
		[]ledger.Turnover{line(e.oil.ID, warehouse, qty, price)})
	require.NoError(t, err)
	return rows
}

func (e *env) remaining(t *testing.T, warehouse *ledger.WarehouseID) decimal.Decimal {
	t.Helper()
	q, err := e.ledger.Stock().Remaining(context.Background(), e.oil.ID, warehouse, time.Time{})
	require.NoError(t, err)
	return q
}

func (e *env) count(t *testing.T) int {
	t.Helper()
	n, err := e.store.CountTurnovers(context.Background(), ledger.TurnoverFilter{})
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T {
	return &v
}
