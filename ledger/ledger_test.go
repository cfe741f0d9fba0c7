package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// RECEIPTS
// =============================================================================

func TestLedger_Receipt_FiguresFollow(t *testing.T) {
	// GIVEN: a receipt of 2.00 at 10.00 into Main
	e := newEnv(t)
	rows := e.receive(t, e.main.ID, day(3, 1), "2.00", "10.00")
	ctx := context.Background()

	// THEN: one incoming row, remaining 2.00, average and last price 10.00
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.Incoming, rows[0].Direction)
	assert.Equal(t, clerk.UserID, rows[0].UserID)
	assert.True(t, rows[0].SignedSum().Equal(dec("20")))

	main := e.main.ID
	assert.True(t, e.remaining(t, &main).Equal(dec("2")))

	prices, err := e.ledger.Stock().Prices(ctx, e.oil.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", prices.AveragePrice.StringFixed(2))
	assert.Equal(t, "10.00", prices.LastPrice.StringFixed(2))
}

func TestLedger_CreateEntrance_LinesInheritDocument(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// GIVEN: lines submitted as expense with their own dates
	l1 := line(e.oil.ID, e.main.ID, "1", "5")
	l1.Direction = ledger.Expense
	l1.Date = day(1, 1)
	l2 := line(e.oil.ID, e.annex.ID, "3", "5")

	// WHEN: the receipt is created
	entrance, rows, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 5), DocumentNumber: "INV-7", Provider: "Acme", ResponsibleID: e.manager.ID},
		[]ledger.Turnover{l1, l2})
	require.NoError(t, err)

	// THEN: every line is incoming, dated and linked to the receipt
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, ledger.Incoming, r.Direction)
		assert.Equal(t, day(3, 5), r.Date)
		require.NotNil(t, r.EntranceID)
		assert.Equal(t, entrance.ID, *r.EntranceID)
	}

	got, lines, err := e.ledger.Entrance(ctx, entrance.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", got.DocumentNumber)
	assert.Equal(t, clerk.UserID, got.UserID)
	assert.Len(t, lines, 2)
	assert.True(t, lines[0].ID < lines[1].ID)
}

func TestLedger_CreateEntrance_ResponsibleMustBeManagement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	driver := ledger.Employee{ID: 11, Name: "Driver", Role: "driver"}
	require.NoError(t, e.ledger.SaveEmployee(ctx, &driver))

	_, _, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 5), ResponsibleID: driver.ID},
		[]ledger.Turnover{line(e.oil.ID, e.main.ID, "1", "1")})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ledger.RuleResponsibleRole, verr.Rule)
	assert.Zero(t, e.count(t))
}

func TestLedger_CreateEntrance_BadLineRollsBackDocument(t *testing.T) {
	// GIVEN: a receipt whose second line has a wrong sum
	e := newEnv(t)
	ctx := context.Background()
	bad := line(e.oil.ID, e.main.ID, "2", "3")
	bad.Sum = dec("7")

	// WHEN: it is created
	_, _, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 5), ResponsibleID: e.manager.ID},
		[]ledger.Turnover{line(e.oil.ID, e.main.ID, "1", "1"), bad})

	// THEN: neither the document nor any line exists
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "turnovers_from_entrance[1].sum", verr.Field)
	assert.Zero(t, e.count(t))
	entrances, err := e.ledger.Entrances(ctx, ledger.EntranceFilter{})
	require.NoError(t, err)
	assert.Empty(t, entrances)
}

func TestLedger_UpdateEntrance_OnlyNewLinesPersisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	entrance, rows, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 5), Provider: "Acme", ResponsibleID: e.manager.ID},
		[]ledger.Turnover{line(e.oil.ID, e.main.ID, "1", "4")})
	require.NoError(t, err)

	// GIVEN: the existing line resubmitted with a changed quantity, plus a new line
	existing := rows[0]
	existing.Quantity = dec("99")
	update := *entrance
	update.Provider = "Acme Ltd"
	update.Date = day(3, 6)

	// WHEN: the receipt is updated by another user
	_, created, err := e.ledger.UpdateEntrance(ctx, admin, update, []ledger.EntranceLine{
		{ID: &existing.ID, Turnover: existing},
		{Turnover: line(e.oil.ID, e.annex.ID, "2", "4")},
	})
	require.NoError(t, err)

	// THEN: only the new line is written, with the receipt's date and the acting user
	require.Len(t, created, 1)
	assert.Equal(t, day(3, 6), created[0].Date)
	assert.Equal(t, admin.UserID, created[0].UserID)

	got, lines, err := e.ledger.Entrance(ctx, entrance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", got.Provider)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Quantity.Equal(dec("1")), "existing line untouched")
}

func TestLedger_DeleteEntrance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rows := e.receive(t, e.main.ID, day(3, 1), "1", "1")
	err := e.ledger.DeleteEntrance(ctx, *rows[0].EntranceID)
	assert.ErrorIs(t, err, ledger.ErrReferenced)

	empty, _, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 2), ResponsibleID: e.manager.ID}, nil)
	require.NoError(t, err)
	require.NoError(t, e.ledger.DeleteEntrance(ctx, empty.ID))

	_, _, err = e.ledger.Entrance(ctx, empty.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedger_EntranceSearchAndProviders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.main.ID, day(3, 1), "1", "1")
	_, _, err := e.ledger.CreateEntrance(ctx, clerk,
		ledger.Entrance{Date: day(3, 2), Provider: "Northwind", Note: "urgent", ResponsibleID: e.manager.ID}, nil)
	require.NoError(t, err)

	found, err := e.ledger.Entrances(ctx, ledger.EntranceFilter{Search: "5w-30"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Acme", found[0].Provider)

	found, err = e.ledger.Entrances(ctx, ledger.EntranceFilter{Search: "URGENT"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Northwind", found[0].Provider)

	providers, err := e.ledger.Providers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Northwind"}, providers)
}

// =============================================================================
// ORDERS
// =============================================================================

func TestLedger_ConsumeForOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.main.ID, day(3, 1), "5", "2")

	// GIVEN: an order line submitted as incoming without a date
	tr := line(e.oil.ID, e.main.ID, "2", "2")
	tr.Direction = ledger.Incoming

	// WHEN: it is consumed for the order
	rows, err := e.ledger.ConsumeForOrder(ctx, clerk, e.openOrder.ID, []ledger.EntranceLine{{Turnover: tr}})
	require.NoError(t, err)

	// THEN: it is an expense dated today and linked to the order
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.Expense, rows[0].Direction)
	assert.Equal(t, today, rows[0].Date)
	require.NotNil(t, rows[0].OrderID)
	assert.Equal(t, e.openOrder.ID, *rows[0].OrderID)
	assert.True(t, e.remaining(t, nil).Equal(dec("3")))

	byOrder, err := e.ledger.TurnoversByOrder(ctx, e.openOrder.ID)
	require.NoError(t, err)
	assert.Len(t, byOrder, 1)
}

func TestLedger_ConsumeForOrder_UnknownOrder(t *testing.T) {
	e := newEnv(t)
	_, err := e.ledger.ConsumeForOrder(context.Background(), clerk, 404, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// DELETION
// =============================================================================

func TestLedger_DeleteTurnover_CompletedOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.main.ID, day(3, 1), "5", "2")
	rows, err := e.ledger.ConsumeForOrder(ctx, clerk, e.openOrder.ID,
		[]ledger.EntranceLine{{Turnover: line(e.oil.ID, e.main.ID, "1", "2")}, {Turnover: line(e.oil.ID, e.main.ID, "1", "2")}})
	require.NoError(t, err)

	// GIVEN: the order is completed
	completed := e.openOrder
	completed.Status = ledger.OrderCompleted
	require.NoError(t, e.ledger.SaveOrder(ctx, &completed))

	// WHEN: a regular user deletes one of its lines
	err = e.ledger.DeleteTurnover(ctx, clerk, rows[0].ID)

	// THEN: forbidden, the row stays
	assert.ErrorIs(t, err, ledger.ErrDeleteForbidden)
	_, err = e.ledger.Turnover(ctx, rows[0].ID)
	assert.NoError(t, err)

	// A superuser may delete it
	require.NoError(t, e.ledger.DeleteTurnover(ctx, admin, rows[0].ID))
	_, err = e.ledger.Turnover(ctx, rows[0].ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedger_DeleteTurnover_OpenOrderOrNoOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	receipt := e.receive(t, e.main.ID, day(3, 1), "5", "2")
	rows, err := e.ledger.ConsumeForOrder(ctx, clerk, e.openOrder.ID,
		[]ledger.EntranceLine{{Turnover: line(e.oil.ID, e.main.ID, "1", "2")}})
	require.NoError(t, err)

	require.NoError(t, e.ledger.DeleteTurnover(ctx, clerk, rows[0].ID))
	require.NoError(t, e.ledger.DeleteTurnover(ctx, clerk, receipt[0].ID))
	assert.Zero(t, e.count(t))

	err = e.ledger.DeleteTurnover(ctx, clerk, receipt[0].ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedger_DirectoryMirrorsRequireID(t *testing.T) {
	e := newEnv(t)
	err := e.ledger.SaveOrder(context.Background(), &ledger.Order{Status: "NEW"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	err = e.ledger.SaveEmployee(context.Background(), &ledger.Employee{Name: "x"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}
