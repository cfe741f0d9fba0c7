/*
types.go - Core domain types for the warehouse stock ledger

PURPOSE:
  Defines the catalog entities (Unit, Category, Warehouse, Material), the
  source documents (Entrance, plus mirrors of the external Order and
  Employee records) and the ledger entry itself (Turnover).

DIRECTION + MAGNITUDE:
  A Turnover carries an explicit Direction and unsigned magnitudes for
  quantity, price and sum. The signed view used by callers and by the
  persisted rows is derived on demand:

    Incoming:  +quantity, +sum
    Expense:   -quantity, -sum

  Price is always a positive magnitude.

DATES:
  Value dates are calendar days. DateOf() truncates any time.Time to a
  UTC midnight so comparisons and persistence agree.

SEE ALSO:
  - gate.go: Invariants enforced before a Turnover is stored
  - stock.go: Aggregation over Turnover history
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UnitID      int64
	CategoryID  int64
	WarehouseID int64
	MaterialID  int64
	EntranceID  int64
	OrderID     int64
	EmployeeID  int64
	TurnoverID  int64
	UserID      int64
)

// DateLayout is the calendar-day layout used for persistence.
const DateLayout = "2006-01-02"

// DateOf truncates t to the calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// CATALOG
// =============================================================================

// Unit is a unit of measure. Precise units allow fractional quantities.
type Unit struct {
	ID      UnitID
	Name    string
	Precise bool
}

type Category struct {
	ID   CategoryID
	Name string
}

type Warehouse struct {
	ID   WarehouseID
	Name string
}

// Material is a stock-keeping unit.
type Material struct {
	ID            MaterialID
	Name          string
	UnitID        UnitID
	CategoryID    CategoryID
	ArticleNumber *string
	Compatibility []string
}

// HasTag reports whether the material lists tag in its compatibility list.
func (m Material) HasTag(tag string) bool {
	for _, t := range m.Compatibility {
		if t == tag {
			return true
		}
	}
	return false
}

// Overlaps reports whether any of tags is in the compatibility list.
func (m Material) Overlaps(tags []string) bool {
	for _, tag := range tags {
		if m.HasTag(tag) {
			return true
		}
	}
	return false
}

// MatchesSearch is a case-insensitive substring match on the name or any
// compatibility tag.
func (m Material) MatchesSearch(search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(m.Name), needle) {
		return true
	}
	for _, t := range m.Compatibility {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// =============================================================================
// EXTERNAL MIRRORS
// =============================================================================

// OrderStatus is owned by the order subsystem. Only OrderCompleted has a
// meaning for the ledger.
type OrderStatus string

const OrderCompleted OrderStatus = "COMPLETED"

// Order mirrors an external work order.
type Order struct {
	ID      OrderID
	Number  string
	Status  OrderStatus
	Vehicle string
}

// RoleManagement is the employee role allowed to sign goods receipts.
const RoleManagement = "management"

// Employee mirrors an external employee record.
type Employee struct {
	ID   EmployeeID
	Name string
	Role string
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID    UserID
	Name      string
	Superuser bool
}

// =============================================================================
// SOURCE DOCUMENTS
// =============================================================================

// Entrance is a goods-receipt document grouping incoming entries.
type Entrance struct {
	ID             EntranceID
	Date           time.Time
	DocumentNumber string
	Provider       string
	ResponsibleID  EmployeeID
	Note           string
	UserID         UserID
}

func (e Entrance) String() string {
	return fmt.Sprintf("%s - %s", e.Date.Format("02.01.2006"), e.Provider)
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

// Direction is the movement direction of a Turnover. The numeric values
// match the wire encoding.
type Direction int

const (
	Incoming Direction = 1
	Expense  Direction = 2
)

func (d Direction) Valid() bool {
	return d == Incoming || d == Expense
}

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "incoming"
	case Expense:
		return "expense"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Sign returns +1 for Incoming and -1 for Expense.
func (d Direction) Sign() decimal.Decimal {
	if d == Expense {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Turnover is a single stock movement.
type Turnover struct {
	ID           TurnoverID
	Direction    Direction
	Date         time.Time
	IsCorrection bool
	Note         string
	UserID       UserID
	MaterialID   MaterialID
	WarehouseID  WarehouseID
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Sum          decimal.Decimal
	OrderID      *OrderID
	EntranceID   *EntranceID
	CreatedAt    time.Time
}

// Normalize forces magnitudes to be non-negative and truncates the date to
// a calendar day. Callers may pass signed values; direction decides the
// sign of the stored row.
func (t *Turnover) Normalize() {
	t.Price = t.Price.Abs()
	t.Quantity = t.Quantity.Abs()
	t.Sum = t.Sum.Abs()
	t.Date = DateOf(t.Date)
}

// SignedQuantity is the quantity with the direction's sign applied.
func (t Turnover) SignedQuantity() decimal.Decimal {
	return t.Quantity.Abs().Mul(t.Direction.Sign())
}

// SignedSum is the sum with the direction's sign applied.
func (t Turnover) SignedSum() decimal.Decimal {
	return t.Sum.Abs().Mul(t.Direction.Sign())
}

// FromSigned sets direction-independent magnitudes from signed values.
func (t *Turnover) FromSigned(quantity, sum decimal.Decimal) {
	t.Quantity = quantity.Abs()
	t.Sum = sum.Abs()
}

func (t Turnover) String() string {
	return fmt.Sprintf("%s %s material=%d warehouse=%d qty=%s",
		t.Date.Format(DateLayout), t.Direction, t.MaterialID, t.WarehouseID, t.SignedQuantity().StringFixed(2))
}

// EntranceLine is a nested entry submitted with a document update. Lines
// with a nil ID are new and get persisted; lines with an ID already exist
// and are left untouched.
type EntranceLine struct {
	ID       *TurnoverID
	Turnover Turnover
}
