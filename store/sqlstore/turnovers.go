package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

const turnoverColumns = `id, type, date, is_correction, note, user_id, material_id, warehouse_id,
	price, quantity, sum, order_id, entrance_id, created_at`

// InsertTurnover appends a ledger row. Quantity and sum are stored signed.
func (s *Store) InsertTurnover(ctx context.Context, t *ledger.Turnover) error {
	var orderID, entranceID *int64
	if t.OrderID != nil {
		v := int64(*t.OrderID)
		orderID = &v
	}
	if t.EntranceID != nil {
		v := int64(*t.EntranceID)
		entranceID = &v
	}

	err := s.queryRow(ctx,
		`INSERT INTO turnovers (type, date, is_correction, note, user_id, material_id, warehouse_id,
			price, quantity, sum, order_id, entrance_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		int(t.Direction),
		dateArg(t.Date),
		t.IsCorrection,
		t.Note,
		int64(t.UserID),
		int64(t.MaterialID),
		int64(t.WarehouseID),
		t.Price.Abs().StringFixed(2),
		t.SignedQuantity().StringFixed(2),
		t.SignedSum().StringFixed(2),
		nullInt(orderID),
		nullInt(entranceID),
		t.CreatedAt.UTC(),
	).Scan(&t.ID)
	return s.mapWriteErr(err, "turnover", "turnovers")
}

func (s *Store) GetTurnover(ctx context.Context, id ledger.TurnoverID) (*ledger.Turnover, error) {
	row := s.queryRow(ctx, `SELECT `+turnoverColumns+` FROM turnovers WHERE id = ?`, int64(id))
	t, err := scanTurnover(row)
	if err != nil {
		return nil, notFound("turnover", int64(id), err)
	}
	return t, nil
}

func (s *Store) DeleteTurnover(ctx context.Context, id ledger.TurnoverID) error {
	return s.deleteByID(ctx, "turnovers", "turnover", int64(id))
}

func (s *Store) Turnovers(ctx context.Context, filter ledger.TurnoverFilter) ([]ledger.Turnover, error) {
	where, args := turnoverWhere(filter)
	query := `SELECT ` + turnoverColumns + ` FROM turnovers` + where
	switch filter.Order {
	case ledger.NewestFirst:
		query += ` ORDER BY date DESC, id DESC`
	case ledger.Insertion:
		query += ` ORDER BY id`
	default:
		query += ` ORDER BY date, id`
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turnovers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Turnover
	for rows.Next() {
		t, err := scanTurnover(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountTurnovers counts matching rows, stopping at Limit when it is set.
func (s *Store) CountTurnovers(ctx context.Context, filter ledger.TurnoverFilter) (int, error) {
	where, args := turnoverWhere(filter)
	query := `SELECT COUNT(*) FROM turnovers` + where
	if filter.Limit > 0 {
		query = fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT 1 FROM turnovers%s LIMIT %d) AS matched`, where, filter.Limit)
	}
	var n int
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count turnovers: %w", err)
	}
	return n, nil
}

func turnoverWhere(f ledger.TurnoverFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.MaterialID != 0 {
		add("material_id = ?", int64(f.MaterialID))
	}
	if f.WarehouseID != 0 {
		add("warehouse_id = ?", int64(f.WarehouseID))
	}
	if f.OrderID != 0 {
		add("order_id = ?", int64(f.OrderID))
	}
	if f.EntranceID != 0 {
		add("entrance_id = ?", int64(f.EntranceID))
	}
	if f.Direction != 0 {
		add("type = ?", int(f.Direction))
	}
	if f.ExcludeCorrections {
		add("is_correction = ?", false)
	}
	if !f.Through.IsZero() {
		add("date <= ?", dateArg(f.Through))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanTurnover(row scanner) (*ledger.Turnover, error) {
	var (
		t          ledger.Turnover
		quantity   decimal.Decimal
		sum        decimal.Decimal
		orderID    sql.NullInt64
		entranceID sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.Direction, &t.Date, &t.IsCorrection, &t.Note, &t.UserID,
		&t.MaterialID, &t.WarehouseID, &t.Price, &quantity, &sum,
		&orderID, &entranceID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Date = ledger.DateOf(t.Date)
	t.FromSigned(quantity, sum)
	if orderID.Valid {
		id := ledger.OrderID(orderID.Int64)
		t.OrderID = &id
	}
	if entranceID.Valid {
		id := ledger.EntranceID(entranceID.Int64)
		t.EntranceID = &id
	}
	return &t, nil
}
