/*
store.go - Persistence interface for the stock ledger

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations live in store/sqlstore (SQLite and PostgreSQL).

KEY INTERFACES:
  Store:   Catalog, documents, directory mirrors and ledger rows
  TxStore: Store plus WithTx for atomic multi-row writes

LEDGER ROWS:
  Turnover rows are only inserted or deleted, never updated. InsertTurnover
  does not validate anything: every production write goes through
  Ledger, which runs the Gate on the same transactional Store first.

LOCKING:
  LockStock serializes writers of one (material, warehouse) pair for the
  rest of the current transaction. Outside a transaction it is a no-op.

NOT FOUND:
  Get* methods return *NotFoundError (ErrNotFound) for missing rows.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// MaterialFilter narrows material listings. Zero values mean "any".
type MaterialFilter struct {
	CategoryID CategoryID
	Search     string // name or compatibility tag, case-insensitive
}

// TurnoverFilter narrows ledger row loads. Zero values mean "any".
type TurnoverFilter struct {
	MaterialID  MaterialID
	WarehouseID WarehouseID
	OrderID     OrderID
	EntranceID  EntranceID
	Direction   Direction
	// ExcludeCorrections drops correction entries.
	ExcludeCorrections bool
	// Through keeps rows with date <= Through when non-zero.
	Through time.Time
	Order   TurnoverOrder
	Limit   int
}

// TurnoverOrder selects the row order of a Turnovers load.
type TurnoverOrder int

const (
	// Chronological is date asc, id asc.
	Chronological TurnoverOrder = iota
	// NewestFirst is date desc, id desc.
	NewestFirst
	// Insertion is id asc.
	Insertion
)

// EntranceFilter narrows entrance listings.
type EntranceFilter struct {
	From   time.Time
	To     time.Time
	Search string
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of the warehouse data.
type Store interface {
	// Catalog. Save* inserts when the ID is zero and updates otherwise,
	// filling the ID on insert.
	SaveUnit(ctx context.Context, u *Unit) error
	GetUnit(ctx context.Context, id UnitID) (*Unit, error)
	ListUnits(ctx context.Context) ([]Unit, error)
	DeleteUnit(ctx context.Context, id UnitID) error

	SaveCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id CategoryID) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, id CategoryID) error

	SaveWarehouse(ctx context.Context, w *Warehouse) error
	GetWarehouse(ctx context.Context, id WarehouseID) (*Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	DeleteWarehouse(ctx context.Context, id WarehouseID) error

	SaveMaterial(ctx context.Context, m *Material) error
	GetMaterial(ctx context.Context, id MaterialID) (*Material, error)
	ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, error)
	DeleteMaterial(ctx context.Context, id MaterialID) error

	// External mirrors.
	SaveOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id OrderID) (*Order, error)
	SaveEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// Documents.
	SaveEntrance(ctx context.Context, e *Entrance) error
	GetEntrance(ctx context.Context, id EntranceID) (*Entrance, error)
	ListEntrances(ctx context.Context, filter EntranceFilter) ([]Entrance, error)
	DeleteEntrance(ctx context.Context, id EntranceID) error
	ListProviders(ctx context.Context) ([]string, error)

	// Ledger rows.
	InsertTurnover(ctx context.Context, t *Turnover) error
	GetTurnover(ctx context.Context, id TurnoverID) (*Turnover, error)
	DeleteTurnover(ctx context.Context, id TurnoverID) error
	Turnovers(ctx context.Context, filter TurnoverFilter) ([]Turnover, error)
	CountTurnovers(ctx context.Context, filter TurnoverFilter) (int, error)
	LockStock(ctx context.Context, material MaterialID, warehouse WarehouseID) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
