package ledger

import (
	"context"
	"fmt"
	"sort"
)

// MaterialHistoryFilter selects the movement history of one material.
type MaterialHistoryFilter struct {
	MaterialID  MaterialID
	WarehouseID WarehouseID
	Direction   Direction
	SortField   string // date, quantity, price, sum, type; default date desc
	Descending  bool
}

// HistoryRow is a ledger row decorated for display.
type HistoryRow struct {
	Turnover
	WarehouseName    string
	Label            string
	QuantityWithUnit string
}

// MaterialHistory lists the movements of a material, newest first unless a
// sort field is given. Without a warehouse the direction filter only keeps
// document-driven rows, so corrections and transfers drop out.
func (l *Ledger) MaterialHistory(ctx context.Context, f MaterialHistoryFilter) ([]HistoryRow, error) {
	m, err := l.store.GetMaterial(ctx, f.MaterialID)
	if err != nil {
		return nil, err
	}
	unit, err := l.store.GetUnit(ctx, m.UnitID)
	if err != nil {
		return nil, err
	}

	filter := TurnoverFilter{MaterialID: f.MaterialID, WarehouseID: f.WarehouseID, Order: NewestFirst}
	if f.Direction != 0 {
		filter.Direction = f.Direction
		filter.ExcludeCorrections = f.WarehouseID == 0
	}
	rows, err := l.store.Turnovers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if f.SortField != "" {
		sortHistory(rows, f.SortField, f.Descending)
	}

	names, err := NewStock(l.store).warehouseNames(ctx)
	if err != nil {
		return nil, err
	}
	labels := labeler{store: l.store, orders: map[OrderID]*Order{}, entrances: map[EntranceID]*Entrance{}}

	out := make([]HistoryRow, len(rows))
	for i, t := range rows {
		label, err := labels.label(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = HistoryRow{
			Turnover:         t,
			WarehouseName:    names[t.WarehouseID],
			Label:            label,
			QuantityWithUnit: QuantityWithUnit(t, *unit),
		}
	}
	return out, nil
}

// QuantityWithUnit renders the signed quantity with the unit name, with
// decimals only for precise units.
func QuantityWithUnit(t Turnover, u Unit) string {
	places := int32(0)
	if u.Precise {
		places = 2
	}
	return fmt.Sprintf("%s %s", t.SignedQuantity().Round(places).StringFixed(places), u.Name)
}

func sortHistory(rows []Turnover, field string, desc bool) {
	cmp := func(a, b Turnover) int {
		switch field {
		case "quantity":
			return a.SignedQuantity().Cmp(b.SignedQuantity())
		case "price":
			return a.Price.Cmp(b.Price)
		case "sum":
			return a.SignedSum().Cmp(b.SignedSum())
		case "type":
			return int(a.Direction) - int(b.Direction)
		default:
			return a.Date.Compare(b.Date)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(rows[i], rows[j])
		if c == 0 {
			c = int(rows[i].ID - rows[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

type labeler struct {
	store     Store
	orders    map[OrderID]*Order
	entrances map[EntranceID]*Entrance
}

func (lb *labeler) label(ctx context.Context, t Turnover) (string, error) {
	switch {
	case t.IsCorrection:
		return fmt.Sprintf("Correction (%s)", t.Note), nil
	case t.OrderID != nil:
		o, ok := lb.orders[*t.OrderID]
		if !ok {
			var err error
			if o, err = lb.store.GetOrder(ctx, *t.OrderID); err != nil {
				return "", err
			}
			lb.orders[o.ID] = o
		}
		if o.Vehicle == "" {
			return fmt.Sprintf("Write-off for order #%s", o.Number), nil
		}
		return fmt.Sprintf("Write-off for order #%s (%s)", o.Number, o.Vehicle), nil
	case t.EntranceID != nil:
		e, ok := lb.entrances[*t.EntranceID]
		if !ok {
			var err error
			if e, err = lb.store.GetEntrance(ctx, *t.EntranceID); err != nil {
				return "", err
			}
			lb.entrances[e.ID] = e
		}
		label := "Receipt"
		if e.Provider != "" {
			label += " from " + e.Provider
		}
		if e.DocumentNumber != "" {
			label += fmt.Sprintf(" (document no. %s)", e.DocumentNumber)
		}
		return label, nil
	}
	return "", nil
}
