/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	warehouse data. Each scenario builds the catalog and then books its
	movements through the ledger, so every entry passes the same write
	rules as production traffic.

AVAILABLE SCENARIOS:

	empty-catalog:     Units, categories, warehouses and materials, no stock
	first-delivery:    One goods receipt into the main warehouse
	busy-workshop:     Receipts, order consumption, a transfer and corrections

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create units, categories, warehouses, materials
 3. Push directory mirrors (manager, work orders)
 4. Book receipts, consumption, transfers through the ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-workshop"}

NOTE:

	Scenarios reset the database. Routes are only mounted in the dev
	environment.

SEE ALSO:
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-catalog",
		Name:        "Empty Catalog",
		Description: "Units, categories, two warehouses and a few materials without stock",
	},
	{
		ID:          "first-delivery",
		Name:        "First Delivery",
		Description: "One goods receipt booked into the main warehouse",
	},
	{
		ID:          "busy-workshop",
		Name:        "Busy Workshop",
		Description: "Receipts, order consumption, a transfer to the annex and a stock correction",
	},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var load func(context.Context, ledger.Actor) error
	switch req.ScenarioID {
	case "empty-catalog":
		load = func(ctx context.Context, _ ledger.Actor) error {
			_, err := h.seedCatalog(ctx)
			return err
		}
	case "first-delivery":
		load = h.loadFirstDeliveryScenario
	case "busy-workshop":
		load = h.loadBusyWorkshopScenario
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, actor(r)); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase deletes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoCatalog holds the IDs created by seedCatalog.
type demoCatalog struct {
	main, annex   ledger.WarehouseID
	oil, filter   ledger.MaterialID
	brakePads     ledger.MaterialID
	manager       ledger.EmployeeID
	openOrder     ledger.OrderID
	finishedOrder ledger.OrderID
}

func (h *Handler) seedCatalog(ctx context.Context) (*demoCatalog, error) {
	liters := ledger.Unit{Name: "l", Precise: true}
	pieces := ledger.Unit{Name: "pcs"}
	for _, u := range []*ledger.Unit{&liters, &pieces} {
		if err := h.Catalog.SaveUnit(ctx, u); err != nil {
			return nil, err
		}
	}

	oils := ledger.Category{Name: "Oils and fluids"}
	parts := ledger.Category{Name: "Spare parts"}
	for _, c := range []*ledger.Category{&oils, &parts} {
		if err := h.Catalog.SaveCategory(ctx, c); err != nil {
			return nil, err
		}
	}

	main := ledger.Warehouse{Name: "Main warehouse"}
	annex := ledger.Warehouse{Name: "Annex"}
	for _, wh := range []*ledger.Warehouse{&main, &annex} {
		if err := h.Catalog.SaveWarehouse(ctx, wh); err != nil {
			return nil, err
		}
	}

	article := "OF-2201"
	oil := ledger.Material{Name: "Engine oil 5W-30", UnitID: liters.ID, CategoryID: oils.ID,
		Compatibility: []string{"Volvo FH", "MAN TGX"}}
	filter := ledger.Material{Name: "Oil filter", UnitID: pieces.ID, CategoryID: parts.ID,
		ArticleNumber: &article, Compatibility: []string{"Volvo FH"}}
	pads := ledger.Material{Name: "Brake pads, front", UnitID: pieces.ID, CategoryID: parts.ID}
	for _, m := range []*ledger.Material{&oil, &filter, &pads} {
		if err := h.Catalog.SaveMaterial(ctx, m); err != nil {
			return nil, err
		}
	}

	manager := ledger.Employee{ID: 1, Name: "Store manager", Role: ledger.RoleManagement}
	if err := h.Ledger.SaveEmployee(ctx, &manager); err != nil {
		return nil, err
	}
	open := ledger.Order{ID: 1001, Number: "1001", Status: "IN_PROGRESS", Vehicle: "Volvo FH AB 123"}
	finished := ledger.Order{ID: 1000, Number: "1000", Status: ledger.OrderCompleted, Vehicle: "MAN TGX CD 456"}
	for _, o := range []*ledger.Order{&open, &finished} {
		if err := h.Ledger.SaveOrder(ctx, o); err != nil {
			return nil, err
		}
	}

	return &demoCatalog{
		main: main.ID, annex: annex.ID,
		oil: oil.ID, filter: filter.ID, brakePads: pads.ID,
		manager: manager.ID, openOrder: open.ID, finishedOrder: finished.ID,
	}, nil
}

func (h *Handler) loadFirstDeliveryScenario(ctx context.Context, a ledger.Actor) error {
	c, err := h.seedCatalog(ctx)
	if err != nil {
		return err
	}
	_, err = h.receive(ctx, a, c, time.Now().AddDate(0, 0, -7), "INV-0001", []ledger.Turnover{
		demoLine(c.oil, c.main, "60", "8.75"),
		demoLine(c.filter, c.main, "12", "14.90"),
	})
	return err
}

func (h *Handler) loadBusyWorkshopScenario(ctx context.Context, a ledger.Actor) error {
	c, err := h.seedCatalog(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	if _, err := h.receive(ctx, a, c, now.AddDate(0, 0, -30), "INV-0001", []ledger.Turnover{
		demoLine(c.oil, c.main, "100", "8.50"),
		demoLine(c.filter, c.main, "20", "14.90"),
		demoLine(c.brakePads, c.main, "8", "42.00"),
	}); err != nil {
		return err
	}
	if _, err := h.receive(ctx, a, c, now.AddDate(0, 0, -10), "INV-0002", []ledger.Turnover{
		demoLine(c.oil, c.main, "40", "9.10"),
	}); err != nil {
		return err
	}

	consume := func(order ledger.OrderID, daysAgo int, lines ...ledger.Turnover) error {
		entries := make([]ledger.EntranceLine, len(lines))
		for i, t := range lines {
			t.Date = now.AddDate(0, 0, -daysAgo)
			entries[i] = ledger.EntranceLine{Turnover: t}
		}
		_, err := h.Ledger.ConsumeForOrder(ctx, a, order, entries)
		return err
	}
	if err := consume(c.finishedOrder, 20,
		demoLine(c.oil, c.main, "32", "8.50"),
		demoLine(c.filter, c.main, "1", "14.90"),
	); err != nil {
		return err
	}
	if err := consume(c.openOrder, 2,
		demoLine(c.oil, c.main, "28", "8.50"),
		demoLine(c.filter, c.main, "1", "14.90"),
		demoLine(c.brakePads, c.main, "2", "42.00"),
	); err != nil {
		return err
	}

	if _, err := h.Ledger.Transfer(ctx, a, ledger.TransferRequest{
		MaterialID: c.oil,
		Date:       now.AddDate(0, 0, -1),
		From:       c.main,
		To:         c.annex,
		Price:      decimal.RequireFromString("8.50"),
		Quantity:   decimal.RequireFromString("20"),
		Sum:        decimal.RequireFromString("170.00"),
	}); err != nil {
		return err
	}

	// one filter was found damaged during stocktaking
	_, err = h.Ledger.Record(ctx, a, ledger.Turnover{
		Direction:    ledger.Expense,
		Date:         now,
		IsCorrection: true,
		Note:         "stocktaking: damaged packaging",
		MaterialID:   c.filter,
		WarehouseID:  c.main,
		Price:        decimal.RequireFromString("14.90"),
		Quantity:     decimal.NewFromInt(1),
		Sum:          decimal.RequireFromString("14.90"),
	})
	return err
}

func (h *Handler) receive(ctx context.Context, a ledger.Actor, c *demoCatalog, date time.Time, doc string, lines []ledger.Turnover) (*ledger.Entrance, error) {
	e, _, err := h.Ledger.CreateEntrance(ctx, a, ledger.Entrance{
		Date:           date,
		DocumentNumber: doc,
		Provider:       "Nordic Lubricants",
		ResponsibleID:  c.manager,
	}, lines)
	return e, err
}

// demoLine builds a line whose sum is quantity × price.
func demoLine(m ledger.MaterialID, wh ledger.WarehouseID, qty, price string) ledger.Turnover {
	q, p := decimal.RequireFromString(qty), decimal.RequireFromString(price)
	return ledger.Turnover{
		MaterialID:  m,
		WarehouseID: wh,
		Price:       p,
		Quantity:    q,
		Sum:         q.Mul(p).Round(2),
	}
}
