/*
stock.go - Point-in-time inventory facts derived from ledger history

PURPOSE:
  Answers "how much, at what cost, where, as of when" by summing Turnover
  rows. Nothing here reads a stored balance; every call re-aggregates the
  history visible to the Store it was built on. Built over a
  transactional Store (inside WithTx) it sees that transaction's writes,
  which is what the Gate relies on.

ROUNDING:
  Sums are rounded to 2 decimal places at the point of aggregation, and
  averages are computed from the rounded sums, then rounded again.

OPERATIONS:
  Remaining:    Σ signed quantity, optionally per warehouse, date <= as-of
  AveragePrice: Σ signed sum / Σ signed quantity over all history
  LastPrice:    price of the newest non-correction incoming entry
  Breakdown:    per-warehouse quantity, value, average and last price
  Remains:      bulk listing across materials with filters and grouping
*/
package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stock computes inventory figures from ledger history.
type Stock struct {
	store Store
	now   func() time.Time
}

// NewStock creates a query helper over store.
func NewStock(store Store) *Stock {
	return &Stock{store: store, now: time.Now}
}

func (s *Stock) withClock(now func() time.Time) *Stock {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Stock) today() time.Time {
	return DateOf(s.now())
}

// =============================================================================
// SINGLE-MATERIAL QUERIES
// =============================================================================

// Remaining returns the signed quantity of material on hand as of asOf,
// in one warehouse or (nil) across all of them. A zero asOf means today.
func (s *Stock) Remaining(ctx context.Context, material MaterialID, warehouse *WarehouseID, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	filter := TurnoverFilter{MaterialID: material, Through: DateOf(asOf)}
	if warehouse != nil {
		filter.WarehouseID = *warehouse
	}
	rows, err := s.store.Turnovers(ctx, filter)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		total = total.Add(t.SignedQuantity())
	}
	return total.Round(2), nil
}

// AveragePrice is the value-weighted price of everything ever booked for
// the material, or zero when nothing is on hand.
func (s *Stock) AveragePrice(ctx context.Context, material MaterialID) (decimal.Decimal, error) {
	rows, err := s.store.Turnovers(ctx, TurnoverFilter{MaterialID: material})
	if err != nil {
		return decimal.Zero, err
	}
	var agg aggregate
	for _, t := range rows {
		agg.add(t)
	}
	return agg.averagePrice(), nil
}

// LastPrice returns the price of the most recent non-correction receipt,
// optionally scoped to a warehouse. Zero when there is none.
func (s *Stock) LastPrice(ctx context.Context, material MaterialID, warehouse *WarehouseID) (decimal.Decimal, error) {
	filter := TurnoverFilter{
		MaterialID:         material,
		Direction:          Incoming,
		ExcludeCorrections: true,
		Order:              NewestFirst,
		Limit:              1,
	}
	if warehouse != nil {
		filter.WarehouseID = *warehouse
	}
	rows, err := s.store.Turnovers(ctx, filter)
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Price, nil
}

// Prices groups the two price figures reported for a material.
type Prices struct {
	LastPrice    decimal.Decimal
	AveragePrice decimal.Decimal
}

func (s *Stock) Prices(ctx context.Context, material MaterialID) (Prices, error) {
	last, err := s.LastPrice(ctx, material, nil)
	if err != nil {
		return Prices{}, err
	}
	avg, err := s.AveragePrice(ctx, material)
	if err != nil {
		return Prices{}, err
	}
	return Prices{LastPrice: last, AveragePrice: avg}, nil
}

// WarehouseStock is one row of a per-warehouse breakdown.
type WarehouseStock struct {
	WarehouseID   WarehouseID
	WarehouseName string
	Quantity      decimal.Decimal
	Sum           decimal.Decimal
	AveragePrice  decimal.Decimal
	LastPrice     decimal.Decimal
}

// Breakdown groups the material's history by warehouse. With skipEmpty,
// warehouses whose quantity is not strictly positive are left out.
func (s *Stock) Breakdown(ctx context.Context, material MaterialID, skipEmpty bool) ([]WarehouseStock, error) {
	rows, err := s.store.Turnovers(ctx, TurnoverFilter{MaterialID: material})
	if err != nil {
		return nil, err
	}
	names, err := s.warehouseNames(ctx)
	if err != nil {
		return nil, err
	}
	return breakdown(rows, names, skipEmpty), nil
}

// Availability is the full stock picture of a single material.
type Availability struct {
	Material   Material
	Unit       Unit
	Quantity   decimal.Decimal
	Prices     Prices
	Warehouses []WarehouseStock
}

func (s *Stock) Availability(ctx context.Context, id MaterialID) (*Availability, error) {
	m, err := s.store.GetMaterial(ctx, id)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUnit(ctx, m.UnitID)
	if err != nil {
		return nil, err
	}
	qty, err := s.Remaining(ctx, id, nil, time.Time{})
	if err != nil {
		return nil, err
	}
	prices, err := s.Prices(ctx, id)
	if err != nil {
		return nil, err
	}
	warehouses, err := s.Breakdown(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &Availability{Material: *m, Unit: *u, Quantity: qty, Prices: prices, Warehouses: warehouses}, nil
}

// =============================================================================
// BULK REMAINS
// =============================================================================

// RemainsFilter narrows the bulk remains listing.
type RemainsFilter struct {
	CategoryID  CategoryID
	WarehouseID WarehouseID
	// Compatibility matches materials sharing at least one tag. When
	// grouping by warehouse, untagged materials match as well.
	Compatibility    []string
	HideEmpty        bool
	Search           string // material name substring
	GroupByWarehouse bool
	// AsOf limits history to date <= AsOf when non-zero.
	AsOf time.Time

	SortField  string // name, category_name, quantity, sum, price
	Descending bool
}

// RemainsRow is one line of the remains listing. In grouped listings each
// (material, warehouse) pair gets its own row and Warehouse is set unless
// the material has no history at all.
type RemainsRow struct {
	MaterialID    MaterialID
	Name          string
	CategoryID    CategoryID
	CategoryName  string
	UnitName      string
	UnitPrecise   bool
	Compatibility []string

	WarehouseID   *WarehouseID
	WarehouseName string

	Quantity decimal.Decimal
	Sum      decimal.Decimal
	Price    decimal.Decimal

	// Warehouses is the non-empty breakdown, filled for ungrouped rows
	// with a positive quantity.
	Warehouses []WarehouseStock
}

// Remains lists materials with their aggregated stock.
func (s *Stock) Remains(ctx context.Context, f RemainsFilter) ([]RemainsRow, error) {
	materials, err := s.store.ListMaterials(ctx, MaterialFilter{CategoryID: f.CategoryID})
	if err != nil {
		return nil, err
	}
	units, err := s.store.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.warehouseNames(ctx)
	if err != nil {
		return nil, err
	}

	filter := TurnoverFilter{}
	if !f.AsOf.IsZero() {
		filter.Through = DateOf(f.AsOf)
	}
	rows, err := s.store.Turnovers(ctx, filter)
	if err != nil {
		return nil, err
	}
	byMaterial := make(map[MaterialID][]Turnover)
	for _, t := range rows {
		byMaterial[t.MaterialID] = append(byMaterial[t.MaterialID], t)
	}

	unitByID := make(map[UnitID]Unit, len(units))
	for _, u := range units {
		unitByID[u.ID] = u
	}
	categoryByID := make(map[CategoryID]string, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = c.Name
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	excludeEmpty := f.HideEmpty || f.WarehouseID != 0

	var out []RemainsRow
	for _, m := range materials {
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) {
			continue
		}
		if len(f.Compatibility) > 0 {
			untagged := f.GroupByWarehouse && len(m.Compatibility) == 0
			if !untagged && !m.Overlaps(f.Compatibility) {
				continue
			}
		}

		base := RemainsRow{
			MaterialID:    m.ID,
			Name:          m.Name,
			CategoryID:    m.CategoryID,
			CategoryName:  categoryByID[m.CategoryID],
			UnitName:      unitByID[m.UnitID].Name,
			UnitPrecise:   unitByID[m.UnitID].Precise,
			Compatibility: m.Compatibility,
		}
		history := byMaterial[m.ID]

		if f.GroupByWarehouse {
			groups := groupByWarehouse(history, f.WarehouseID)
			if len(groups) == 0 {
				// no history: a single row without a warehouse
				if !excludeEmpty {
					row := base
					row.Quantity, row.Sum, row.Price = decimal.Zero, decimal.Zero, decimal.Zero
					out = append(out, row)
				}
				continue
			}
			for _, g := range groups {
				if excludeEmpty && !g.agg.quantity().IsPositive() {
					continue
				}
				row := base
				id := g.warehouse
				row.WarehouseID = &id
				row.WarehouseName = names[g.warehouse]
				row.Quantity, row.Sum, row.Price = g.agg.quantity(), g.agg.sum(), g.agg.price()
				out = append(out, row)
			}
			continue
		}

		var agg aggregate
		for _, t := range history {
			if f.WarehouseID != 0 && t.WarehouseID != f.WarehouseID {
				continue
			}
			agg.add(t)
		}
		if excludeEmpty && !agg.quantity().IsPositive() {
			continue
		}
		row := base
		row.Quantity, row.Sum, row.Price = agg.quantity(), agg.sum(), agg.price()
		if row.Quantity.IsPositive() {
			row.Warehouses = breakdown(history, names, true)
		}
		out = append(out, row)
	}

	sortRemains(out, f.SortField, f.Descending)
	return out, nil
}

func sortRemains(rows []RemainsRow, field string, desc bool) {
	less := func(a, b RemainsRow) int {
		switch field {
		case "category_name":
			return strings.Compare(a.CategoryName, b.CategoryName)
		case "quantity":
			return a.Quantity.Cmp(b.Quantity)
		case "sum":
			return a.Sum.Cmp(b.Sum)
		case "price":
			return a.Price.Cmp(b.Price)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := less(rows[i], rows[j])
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return rows[i].MaterialID < rows[j].MaterialID
	})
}

// =============================================================================
// AGGREGATION HELPERS
// =============================================================================

type aggregate struct {
	qty  decimal.Decimal
	val  decimal.Decimal
	rows int
}

func (a *aggregate) add(t Turnover) {
	a.qty = a.qty.Add(t.SignedQuantity())
	a.val = a.val.Add(t.SignedSum())
	a.rows++
}

func (a aggregate) quantity() decimal.Decimal { return a.qty.Round(2) }
func (a aggregate) sum() decimal.Decimal      { return a.val.Round(2) }

// averagePrice is sum/quantity while stock is on hand, zero otherwise.
func (a aggregate) averagePrice() decimal.Decimal {
	q := a.quantity()
	if !q.IsPositive() {
		return decimal.Zero
	}
	return a.sum().Div(q).Round(2)
}

// price is sum/quantity whenever both are non-zero.
func (a aggregate) price() decimal.Decimal {
	q, v := a.quantity(), a.sum()
	if q.IsZero() || v.IsZero() {
		return decimal.Zero
	}
	return v.Div(q).Round(2)
}

type warehouseGroup struct {
	warehouse WarehouseID
	agg       aggregate
	last      *Turnover
}

// groupByWarehouse keeps first-seen order; only is an optional filter.
func groupByWarehouse(rows []Turnover, only WarehouseID) []*warehouseGroup {
	var groups []*warehouseGroup
	index := make(map[WarehouseID]*warehouseGroup)
	for i := range rows {
		t := rows[i]
		if only != 0 && t.WarehouseID != only {
			continue
		}
		g, ok := index[t.WarehouseID]
		if !ok {
			g = &warehouseGroup{warehouse: t.WarehouseID}
			index[t.WarehouseID] = g
			groups = append(groups, g)
		}
		g.agg.add(t)
		if t.Direction == Incoming && !t.IsCorrection && newer(t, g.last) {
			g.last = &rows[i]
		}
	}
	return groups
}

func newer(t Turnover, than *Turnover) bool {
	if than == nil {
		return true
	}
	if !t.Date.Equal(than.Date) {
		return t.Date.After(than.Date)
	}
	return t.ID > than.ID
}

func breakdown(rows []Turnover, names map[WarehouseID]string, skipEmpty bool) []WarehouseStock {
	groups := groupByWarehouse(rows, 0)
	out := make([]WarehouseStock, 0, len(groups))
	for _, g := range groups {
		if skipEmpty && !g.agg.quantity().IsPositive() {
			continue
		}
		ws := WarehouseStock{
			WarehouseID:   g.warehouse,
			WarehouseName: names[g.warehouse],
			Quantity:      g.agg.quantity(),
			Sum:           g.agg.sum(),
			AveragePrice:  g.agg.averagePrice(),
			LastPrice:     decimal.Zero,
		}
		if g.last != nil {
			ws.LastPrice = g.last.Price
		}
		out = append(out, ws)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WarehouseName < out[j].WarehouseName
	})
	return out
}

func (s *Stock) warehouseNames(ctx context.Context) (map[WarehouseID]string, error) {
	warehouses, err := s.store.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[WarehouseID]string, len(warehouses))
	for _, w := range warehouses {
		names[w.ID] = w.Name
	}
	return names, nil
}
