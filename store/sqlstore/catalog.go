package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// UNITS
// =============================================================================

func (s *Store) SaveUnit(ctx context.Context, u *ledger.Unit) error {
	if u.ID == 0 {
		err := s.queryRow(ctx,
			`INSERT INTO units (name, is_precision_point) VALUES (?, ?) RETURNING id`,
			u.Name, u.Precise,
		).Scan(&u.ID)
		return s.mapWriteErr(err, "unit", "units")
	}
	res, err := s.exec(ctx,
		`UPDATE units SET name = ?, is_precision_point = ? WHERE id = ?`,
		u.Name, u.Precise, int64(u.ID),
	)
	if err != nil {
		return s.mapWriteErr(err, "unit", "units")
	}
	return affected(res, "unit", int64(u.ID))
}

func (s *Store) GetUnit(ctx context.Context, id ledger.UnitID) (*ledger.Unit, error) {
	var u ledger.Unit
	err := s.queryRow(ctx,
		`SELECT id, name, is_precision_point FROM units WHERE id = ?`, int64(id),
	).Scan(&u.ID, &u.Name, &u.Precise)
	if err != nil {
		return nil, notFound("unit", int64(id), err)
	}
	return &u, nil
}

func (s *Store) ListUnits(ctx context.Context) ([]ledger.Unit, error) {
	rows, err := s.query(ctx, `SELECT id, name, is_precision_point FROM units ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var out []ledger.Unit
	for rows.Next() {
		var u ledger.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Precise); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUnit(ctx context.Context, id ledger.UnitID) error {
	return s.deleteByID(ctx, "units", "unit", int64(id))
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *Store) SaveCategory(ctx context.Context, c *ledger.Category) error {
	if c.ID == 0 {
		err := s.queryRow(ctx,
			`INSERT INTO material_categories (name) VALUES (?) RETURNING id`, c.Name,
		).Scan(&c.ID)
		return s.mapWriteErr(err, "material category", "material_categories")
	}
	res, err := s.exec(ctx, `UPDATE material_categories SET name = ? WHERE id = ?`, c.Name, int64(c.ID))
	if err != nil {
		return s.mapWriteErr(err, "material category", "material_categories")
	}
	return affected(res, "material category", int64(c.ID))
}

func (s *Store) GetCategory(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	var c ledger.Category
	err := s.queryRow(ctx,
		`SELECT id, name FROM material_categories WHERE id = ?`, int64(id),
	).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, notFound("material category", int64(id), err)
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := s.query(ctx, `SELECT id, name FROM material_categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	return s.deleteByID(ctx, "material_categories", "material category", int64(id))
}

// =============================================================================
// WAREHOUSES
// =============================================================================

func (s *Store) SaveWarehouse(ctx context.Context, w *ledger.Warehouse) error {
	if w.ID == 0 {
		err := s.queryRow(ctx,
			`INSERT INTO warehouses (name) VALUES (?) RETURNING id`, w.Name,
		).Scan(&w.ID)
		return s.mapWriteErr(err, "warehouse", "warehouses")
	}
	res, err := s.exec(ctx, `UPDATE warehouses SET name = ? WHERE id = ?`, w.Name, int64(w.ID))
	if err != nil {
		return s.mapWriteErr(err, "warehouse", "warehouses")
	}
	return affected(res, "warehouse", int64(w.ID))
}

func (s *Store) GetWarehouse(ctx context.Context, id ledger.WarehouseID) (*ledger.Warehouse, error) {
	var w ledger.Warehouse
	err := s.queryRow(ctx, `SELECT id, name FROM warehouses WHERE id = ?`, int64(id)).Scan(&w.ID, &w.Name)
	if err != nil {
		return nil, notFound("warehouse", int64(id), err)
	}
	return &w, nil
}

func (s *Store) ListWarehouses(ctx context.Context) ([]ledger.Warehouse, error) {
	rows, err := s.query(ctx, `SELECT id, name FROM warehouses ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	defer rows.Close()

	var out []ledger.Warehouse
	for rows.Next() {
		var w ledger.Warehouse
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWarehouse(ctx context.Context, id ledger.WarehouseID) error {
	return s.deleteByID(ctx, "warehouses", "warehouse", int64(id))
}

// =============================================================================
// MATERIALS
// =============================================================================

const materialColumns = `id, name, unit_id, category_id, article_number, compatibility`

func (s *Store) SaveMaterial(ctx context.Context, m *ledger.Material) error {
	tags := m.Compatibility
	if tags == nil {
		tags = []string{}
	}
	compat, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode compatibility: %w", err)
	}

	if m.ID == 0 {
		err := s.queryRow(ctx,
			`INSERT INTO materials (name, unit_id, category_id, article_number, compatibility)
			 VALUES (?, ?, ?, ?, ?) RETURNING id`,
			m.Name, int64(m.UnitID), int64(m.CategoryID), nullString(m.ArticleNumber), string(compat),
		).Scan(&m.ID)
		return s.mapWriteErr(err, "material", "materials")
	}
	res, err := s.exec(ctx,
		`UPDATE materials SET name = ?, unit_id = ?, category_id = ?, article_number = ?, compatibility = ?
		 WHERE id = ?`,
		m.Name, int64(m.UnitID), int64(m.CategoryID), nullString(m.ArticleNumber), string(compat), int64(m.ID),
	)
	if err != nil {
		return s.mapWriteErr(err, "material", "materials")
	}
	return affected(res, "material", int64(m.ID))
}

func (s *Store) GetMaterial(ctx context.Context, id ledger.MaterialID) (*ledger.Material, error) {
	row := s.queryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = ?`, int64(id))
	m, err := scanMaterial(row)
	if err != nil {
		return nil, notFound("material", int64(id), err)
	}
	return m, nil
}

// ListMaterials filters by category in SQL and by search text in Go, so
// that case folding behaves the same for non-ASCII names on both engines.
func (s *Store) ListMaterials(ctx context.Context, filter ledger.MaterialFilter) ([]ledger.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials`
	var args []any
	if filter.CategoryID != 0 {
		query += ` WHERE category_id = ?`
		args = append(args, int64(filter.CategoryID))
	}
	query += ` ORDER BY name, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	var out []ledger.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		if filter.Search != "" && !m.MatchesSearch(filter.Search) {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMaterial(ctx context.Context, id ledger.MaterialID) error {
	return s.deleteByID(ctx, "materials", "material", int64(id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row scanner) (*ledger.Material, error) {
	var (
		m       ledger.Material
		article sql.NullString
		compat  string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.UnitID, &m.CategoryID, &article, &compat); err != nil {
		return nil, err
	}
	if article.Valid {
		m.ArticleNumber = &article.String
	}
	if err := json.Unmarshal([]byte(compat), &m.Compatibility); err != nil {
		return nil, fmt.Errorf("failed to decode compatibility of material %d: %w", m.ID, err)
	}
	return &m, nil
}

// =============================================================================
// EXTERNAL MIRRORS
// =============================================================================

func (s *Store) SaveOrder(ctx context.Context, o *ledger.Order) error {
	_, err := s.exec(ctx,
		`INSERT INTO orders (id, number, status, vehicle) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET number = excluded.number, status = excluded.status, vehicle = excluded.vehicle`,
		int64(o.ID), o.Number, string(o.Status), o.Vehicle,
	)
	return s.mapWriteErr(err, "order", "orders")
}

func (s *Store) GetOrder(ctx context.Context, id ledger.OrderID) (*ledger.Order, error) {
	var o ledger.Order
	err := s.queryRow(ctx,
		`SELECT id, number, status, vehicle FROM orders WHERE id = ?`, int64(id),
	).Scan(&o.ID, &o.Number, &o.Status, &o.Vehicle)
	if err != nil {
		return nil, notFound("order", int64(id), err)
	}
	return &o, nil
}

func (s *Store) SaveEmployee(ctx context.Context, e *ledger.Employee) error {
	_, err := s.exec(ctx,
		`INSERT INTO employees (id, name, role) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role`,
		int64(e.ID), e.Name, e.Role,
	)
	return s.mapWriteErr(err, "employee", "employees")
}

func (s *Store) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	var e ledger.Employee
	err := s.queryRow(ctx,
		`SELECT id, name, role FROM employees WHERE id = ?`, int64(id),
	).Scan(&e.ID, &e.Name, &e.Role)
	if err != nil {
		return nil, notFound("employee", int64(id), err)
	}
	return &e, nil
}

func (s *Store) deleteByID(ctx context.Context, table, entity string, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return s.mapDeleteErr(err, entity, id)
	}
	return affected(res, entity, id)
}
