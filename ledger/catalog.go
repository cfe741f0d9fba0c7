package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Catalog manages the reference data ledger entries point into: units,
// categories, warehouses and materials.
type Catalog struct {
	store TxStore
	log   *slog.Logger
}

func NewCatalog(store TxStore, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{store: store, log: log}
}

// =============================================================================
// UNITS
// =============================================================================

func (c *Catalog) SaveUnit(ctx context.Context, u *Unit) error {
	u.Name = strings.TrimSpace(u.Name)
	if err := required("name", u.Name); err != nil {
		return err
	}
	if err := maxLen("name", u.Name, 16); err != nil {
		return err
	}
	if u.ID != 0 {
		if _, err := c.store.GetUnit(ctx, u.ID); err != nil {
			return err
		}
	}
	return c.store.SaveUnit(ctx, u)
}

func (c *Catalog) Unit(ctx context.Context, id UnitID) (*Unit, error) {
	return c.store.GetUnit(ctx, id)
}

func (c *Catalog) Units(ctx context.Context) ([]Unit, error) {
	return c.store.ListUnits(ctx)
}

// DeleteUnit is blocked while any material is measured in the unit.
func (c *Catalog) DeleteUnit(ctx context.Context, id UnitID) error {
	return c.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetUnit(ctx, id); err != nil {
			return err
		}
		materials, err := tx.ListMaterials(ctx, MaterialFilter{})
		if err != nil {
			return err
		}
		for _, m := range materials {
			if m.UnitID == id {
				return &ReferencedError{Entity: "unit", ID: int64(id), By: "materials"}
			}
		}
		return tx.DeleteUnit(ctx, id)
	})
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CategoryCount is a category with the number of materials in it.
type CategoryCount struct {
	Category
	Materials int
}

func (c *Catalog) SaveCategory(ctx context.Context, cat *Category) error {
	cat.Name = strings.TrimSpace(cat.Name)
	if err := required("name", cat.Name); err != nil {
		return err
	}
	if err := maxLen("name", cat.Name, 32); err != nil {
		return err
	}
	if cat.ID != 0 {
		if _, err := c.store.GetCategory(ctx, cat.ID); err != nil {
			return err
		}
	}
	return c.store.SaveCategory(ctx, cat)
}

func (c *Catalog) Category(ctx context.Context, id CategoryID) (*Category, error) {
	return c.store.GetCategory(ctx, id)
}

// Categories lists categories with their material counts.
func (c *Catalog) Categories(ctx context.Context) ([]CategoryCount, error) {
	cats, err := c.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	materials, err := c.store.ListMaterials(ctx, MaterialFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[CategoryID]int)
	for _, m := range materials {
		counts[m.CategoryID]++
	}
	out := make([]CategoryCount, len(cats))
	for i, cat := range cats {
		out[i] = CategoryCount{Category: cat, Materials: counts[cat.ID]}
	}
	return out, nil
}

// DeleteCategory is blocked while the category has materials.
func (c *Catalog) DeleteCategory(ctx context.Context, id CategoryID) error {
	return c.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			return err
		}
		materials, err := tx.ListMaterials(ctx, MaterialFilter{CategoryID: id})
		if err != nil {
			return err
		}
		if len(materials) > 0 {
			return &ReferencedError{Entity: "material category", ID: int64(id), By: "materials"}
		}
		return tx.DeleteCategory(ctx, id)
	})
}

// =============================================================================
// WAREHOUSES
// =============================================================================

// WarehouseUsage is a warehouse plus whether ledger rows reference it.
type WarehouseUsage struct {
	Warehouse
	DeleteForbidden bool
}

func (c *Catalog) SaveWarehouse(ctx context.Context, w *Warehouse) error {
	w.Name = strings.TrimSpace(w.Name)
	if err := required("name", w.Name); err != nil {
		return err
	}
	if err := maxLen("name", w.Name, 32); err != nil {
		return err
	}
	if w.ID != 0 {
		if _, err := c.store.GetWarehouse(ctx, w.ID); err != nil {
			return err
		}
	}
	return c.store.SaveWarehouse(ctx, w)
}

func (c *Catalog) Warehouse(ctx context.Context, id WarehouseID) (*Warehouse, error) {
	return c.store.GetWarehouse(ctx, id)
}

func (c *Catalog) Warehouses(ctx context.Context) ([]WarehouseUsage, error) {
	warehouses, err := c.store.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]WarehouseUsage, len(warehouses))
	for i, w := range warehouses {
		n, err := c.store.CountTurnovers(ctx, TurnoverFilter{WarehouseID: w.ID, Limit: 1})
		if err != nil {
			return nil, err
		}
		out[i] = WarehouseUsage{Warehouse: w, DeleteForbidden: n > 0}
	}
	return out, nil
}

// DeleteWarehouse is blocked while any ledger row references it.
func (c *Catalog) DeleteWarehouse(ctx context.Context, id WarehouseID) error {
	err := c.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetWarehouse(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountTurnovers(ctx, TurnoverFilter{WarehouseID: id, Limit: 1})
		if err != nil {
			return err
		}
		if n > 0 {
			return &ReferencedError{Entity: "warehouse", ID: int64(id), By: "turnovers"}
		}
		return tx.DeleteWarehouse(ctx, id)
	})
	if err == nil {
		c.log.Info("warehouse deleted", "warehouse", id)
	}
	return err
}

// =============================================================================
// MATERIALS
// =============================================================================

// MaterialRow is a material listing entry.
type MaterialRow struct {
	Material
	UnitName        string
	UnitPrecise     bool
	DeleteForbidden bool
}

func (c *Catalog) SaveMaterial(ctx context.Context, m *Material) error {
	m.Name = strings.TrimSpace(m.Name)
	if err := required("name", m.Name); err != nil {
		return err
	}
	if err := maxLen("name", m.Name, 128); err != nil {
		return err
	}
	if m.ArticleNumber != nil {
		article := strings.TrimSpace(*m.ArticleNumber)
		if article == "" {
			// blank and null both mean "no article number"
			m.ArticleNumber = nil
		} else {
			if err := maxLen("article_number", article, 32); err != nil {
				return err
			}
			m.ArticleNumber = &article
		}
	}
	tags := make([]string, 0, len(m.Compatibility))
	for i, tag := range m.Compatibility {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if err := maxLen(fmt.Sprintf("compatibility[%d]", i), tag, 64); err != nil {
			return err
		}
		tags = append(tags, tag)
	}
	m.Compatibility = tags

	return c.store.WithTx(ctx, func(tx Store) error {
		if m.ID != 0 {
			if _, err := tx.GetMaterial(ctx, m.ID); err != nil {
				return err
			}
		}
		if _, err := tx.GetUnit(ctx, m.UnitID); err != nil {
			return refError("unit", err)
		}
		if _, err := tx.GetCategory(ctx, m.CategoryID); err != nil {
			return refError("category", err)
		}
		return tx.SaveMaterial(ctx, m)
	})
}

func (c *Catalog) Material(ctx context.Context, id MaterialID) (*Material, error) {
	return c.store.GetMaterial(ctx, id)
}

// Materials lists materials with unit details and whether they may be
// deleted.
func (c *Catalog) Materials(ctx context.Context, filter MaterialFilter) ([]MaterialRow, error) {
	materials, err := c.store.ListMaterials(ctx, filter)
	if err != nil {
		return nil, err
	}
	units, err := c.store.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	unitByID := make(map[UnitID]Unit, len(units))
	for _, u := range units {
		unitByID[u.ID] = u
	}
	out := make([]MaterialRow, len(materials))
	for i, m := range materials {
		n, err := c.store.CountTurnovers(ctx, TurnoverFilter{MaterialID: m.ID, Limit: 1})
		if err != nil {
			return nil, err
		}
		u := unitByID[m.UnitID]
		out[i] = MaterialRow{Material: m, UnitName: u.Name, UnitPrecise: u.Precise, DeleteForbidden: n > 0}
	}
	return out, nil
}

// DeleteMaterial is blocked while any ledger row references it.
func (c *Catalog) DeleteMaterial(ctx context.Context, id MaterialID) error {
	return c.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetMaterial(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountTurnovers(ctx, TurnoverFilter{MaterialID: id, Limit: 1})
		if err != nil {
			return err
		}
		if n > 0 {
			return &ReferencedError{Entity: "material", ID: int64(id), By: "turnovers"}
		}
		return tx.DeleteMaterial(ctx, id)
	})
}

// RenameCompatibilityTag replaces oldTag with newTag in every material that
// lists it. It runs when a vehicle is renamed elsewhere and returns the
// number of materials changed.
func (c *Catalog) RenameCompatibilityTag(ctx context.Context, oldTag, newTag string) (int, error) {
	oldTag, newTag = strings.TrimSpace(oldTag), strings.TrimSpace(newTag)
	if err := required("old_name", oldTag); err != nil {
		return 0, err
	}
	if err := required("new_name", newTag); err != nil {
		return 0, err
	}
	if err := maxLen("new_name", newTag, 64); err != nil {
		return 0, err
	}
	if oldTag == newTag {
		return 0, nil
	}

	changed := 0
	err := c.store.WithTx(ctx, func(tx Store) error {
		materials, err := tx.ListMaterials(ctx, MaterialFilter{})
		if err != nil {
			return err
		}
		for _, m := range materials {
			if !m.HasTag(oldTag) {
				continue
			}
			for i, tag := range m.Compatibility {
				if tag == oldTag {
					m.Compatibility[i] = newTag
				}
			}
			if err := tx.SaveMaterial(ctx, &m); err != nil {
				return fmt.Errorf("save material %d: %w", m.ID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.log.Info("compatibility tag renamed", "old", oldTag, "new", newTag, "materials", changed)
	return changed, nil
}
