/*
ledger.go - Write service for the stock ledger

PURPOSE:
  Ledger is the only way to persist a Turnover. Every write path runs in
  one store transaction and, for every entry it creates, normalizes signs
  and runs the Gate on the transactional Store before inserting:

    Record           single entry (corrections, ad-hoc movements)
    CreateEntrance   goods receipt with its incoming lines
    UpdateEntrance   header edit plus newly added lines only
    ConsumeForOrder  expense lines booked against an external order
    Transfer         paired expense/incoming correction (transfer.go)

  If any entry fails, the whole operation rolls back.

DELETION:
  DeleteTurnover enforces the completed-order rule; DeleteEntrance is
  blocked while the receipt still has lines.

SEE ALSO:
  - gate.go: Rules checked before each insert
  - stock.go: Read-side aggregation
  - transfer.go: Two-leg stock move
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Observer receives ledger events after they are committed or rejected.
// The metrics package provides the production implementation.
type Observer interface {
	TurnoverRecorded(t Turnover)
	TurnoverRejected(rule Rule)
	TransferFinished(err error)
}

type nopObserver struct{}

func (nopObserver) TurnoverRecorded(Turnover) {}
func (nopObserver) TurnoverRejected(Rule)     {}
func (nopObserver) TransferFinished(error)    {}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.obs = o }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store TxStore
	gate  Gate
	log   *slog.Logger
	obs   Observer
	now   func() time.Time
}

// New creates a ledger over store.
func New(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   slog.Default(),
		obs:   nopObserver{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stock returns the read-side query helper over committed history.
func (l *Ledger) Stock() *Stock {
	return NewStock(l.store).withClock(l.now)
}

func (l *Ledger) today() time.Time {
	return DateOf(l.now())
}

// write normalizes, validates and inserts t on the transactional store.
func (l *Ledger) write(ctx context.Context, tx Store, actor Actor, t *Turnover) error {
	t.Normalize()
	t.UserID = actor.UserID
	t.CreatedAt = l.now().UTC()
	if err := l.gate.Check(ctx, tx, t); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			l.obs.TurnoverRejected(verr.Rule)
			l.log.Debug("turnover rejected",
				"material", t.MaterialID, "warehouse", t.WarehouseID,
				"field", verr.Field, "rule", verr.Rule)
		}
		return err
	}
	if err := tx.InsertTurnover(ctx, t); err != nil {
		return fmt.Errorf("insert turnover: %w", err)
	}
	return nil
}

func (l *Ledger) committed(rows ...Turnover) {
	for _, t := range rows {
		l.obs.TurnoverRecorded(t)
	}
}

// Record stores a single entry. Document-linked entries normally arrive
// through CreateEntrance or ConsumeForOrder, but any entry that passes the
// gate is accepted here.
func (l *Ledger) Record(ctx context.Context, actor Actor, t Turnover) (*Turnover, error) {
	t.ID = 0
	err := l.store.WithTx(ctx, func(tx Store) error {
		return l.write(ctx, tx, actor, &t)
	})
	if err != nil {
		return nil, err
	}
	l.committed(t)
	return &t, nil
}

// =============================================================================
// ENTRANCES
// =============================================================================

// CreateEntrance stores a goods receipt and its lines atomically. Lines are
// forced to incoming, dated by the receipt and linked to it.
func (l *Ledger) CreateEntrance(ctx context.Context, actor Actor, e Entrance, lines []Turnover) (*Entrance, []Turnover, error) {
	e.ID = 0
	e.UserID = actor.UserID
	e.Date = DateOf(e.Date)

	var created []Turnover
	err := l.store.WithTx(ctx, func(tx Store) error {
		if err := validateEntrance(ctx, tx, &e); err != nil {
			return err
		}
		if err := tx.SaveEntrance(ctx, &e); err != nil {
			return fmt.Errorf("save entrance: %w", err)
		}
		var err error
		created, err = l.writeEntranceLines(ctx, tx, actor, e, lines)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	l.committed(created...)
	l.log.Info("entrance created", "entrance", e.ID, "lines", len(created), "user", actor.UserID)
	return &e, created, nil
}

// UpdateEntrance edits the receipt header and persists lines that carry no
// ID. Lines that already exist are not modified.
func (l *Ledger) UpdateEntrance(ctx context.Context, actor Actor, e Entrance, lines []EntranceLine) (*Entrance, []Turnover, error) {
	e.UserID = actor.UserID
	e.Date = DateOf(e.Date)

	var created []Turnover
	err := l.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetEntrance(ctx, e.ID); err != nil {
			return err
		}
		if err := validateEntrance(ctx, tx, &e); err != nil {
			return err
		}
		if err := tx.SaveEntrance(ctx, &e); err != nil {
			return fmt.Errorf("save entrance: %w", err)
		}
		var err error
		created, err = l.writeEntranceLines(ctx, tx, actor, e, newLines(lines))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	l.committed(created...)
	l.log.Info("entrance updated", "entrance", e.ID, "new_lines", len(created), "user", actor.UserID)
	return &e, created, nil
}

func (l *Ledger) writeEntranceLines(ctx context.Context, tx Store, actor Actor, e Entrance, lines []Turnover) ([]Turnover, error) {
	created := make([]Turnover, 0, len(lines))
	for i, t := range lines {
		id := e.ID
		t.ID = 0
		t.Direction = Incoming
		t.Date = e.Date
		t.EntranceID = &id
		t.OrderID = nil
		if err := l.write(ctx, tx, actor, &t); err != nil {
			return nil, prefixField(err, fmt.Sprintf("turnovers_from_entrance[%d]", i))
		}
		created = append(created, t)
	}
	return created, nil
}

// DeleteEntrance removes a receipt that has no lines left.
func (l *Ledger) DeleteEntrance(ctx context.Context, id EntranceID) error {
	return l.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetEntrance(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountTurnovers(ctx, TurnoverFilter{EntranceID: id})
		if err != nil {
			return err
		}
		if n > 0 {
			return &ReferencedError{Entity: "entrance", ID: int64(id), By: "turnovers"}
		}
		return tx.DeleteEntrance(ctx, id)
	})
}

// Entrance returns a receipt and its lines in insertion order.
func (l *Ledger) Entrance(ctx context.Context, id EntranceID) (*Entrance, []Turnover, error) {
	e, err := l.store.GetEntrance(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	lines, err := l.store.Turnovers(ctx, TurnoverFilter{EntranceID: id, Order: Insertion})
	if err != nil {
		return nil, nil, err
	}
	return e, lines, nil
}

func (l *Ledger) Entrances(ctx context.Context, filter EntranceFilter) ([]Entrance, error) {
	return l.store.ListEntrances(ctx, filter)
}

// Providers lists the distinct non-empty provider names seen on receipts.
func (l *Ledger) Providers(ctx context.Context) ([]string, error) {
	return l.store.ListProviders(ctx)
}

func validateEntrance(ctx context.Context, tx Store, e *Entrance) error {
	if e.Date.IsZero() {
		return invalid("date", RuleRequired, "date is required")
	}
	if err := maxLen("document_number", e.DocumentNumber, 64); err != nil {
		return err
	}
	if err := maxLen("provider", e.Provider, 128); err != nil {
		return err
	}
	if e.ResponsibleID == 0 {
		return invalid("responsible", RuleRequired, "responsible employee is required")
	}
	emp, err := tx.GetEmployee(ctx, e.ResponsibleID)
	if err != nil {
		return refError("responsible", err)
	}
	if emp.Role != RoleManagement {
		return invalid("responsible", RuleResponsibleRole, "employee %d is not in the %s role", emp.ID, RoleManagement)
	}
	return nil
}

// =============================================================================
// ORDERS
// =============================================================================

// ConsumeForOrder books expense lines against an external order. Only lines
// without an ID are stored; a line without a date takes today.
func (l *Ledger) ConsumeForOrder(ctx context.Context, actor Actor, order OrderID, lines []EntranceLine) ([]Turnover, error) {
	var created []Turnover
	err := l.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetOrder(ctx, order); err != nil {
			return err
		}
		for i, t := range newLines(lines) {
			id := order
			t.ID = 0
			t.Direction = Expense
			t.IsCorrection = false
			t.OrderID = &id
			t.EntranceID = nil
			if t.Date.IsZero() {
				t.Date = l.today()
			}
			if err := l.write(ctx, tx, actor, &t); err != nil {
				return prefixField(err, fmt.Sprintf("turnovers_from_order[%d]", i))
			}
			created = append(created, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.committed(created...)
	return created, nil
}

// SaveOrder stores the state pushed by the order subsystem.
func (l *Ledger) SaveOrder(ctx context.Context, o *Order) error {
	if o.ID == 0 {
		return invalid("id", RuleRequired, "order id is required")
	}
	return l.store.SaveOrder(ctx, o)
}

// SaveEmployee stores the state pushed by the employee directory.
func (l *Ledger) SaveEmployee(ctx context.Context, e *Employee) error {
	if e.ID == 0 {
		return invalid("id", RuleRequired, "employee id is required")
	}
	return l.store.SaveEmployee(ctx, e)
}

// =============================================================================
// TURNOVERS
// =============================================================================

func (l *Ledger) Turnover(ctx context.Context, id TurnoverID) (*Turnover, error) {
	return l.store.GetTurnover(ctx, id)
}

// TurnoversByOrder lists the lines of an order in insertion order.
func (l *Ledger) TurnoversByOrder(ctx context.Context, id OrderID) ([]Turnover, error) {
	return l.store.Turnovers(ctx, TurnoverFilter{OrderID: id, Order: Insertion})
}

// TurnoversByEntrance lists the lines of a receipt in insertion order.
func (l *Ledger) TurnoversByEntrance(ctx context.Context, id EntranceID) ([]Turnover, error) {
	return l.store.Turnovers(ctx, TurnoverFilter{EntranceID: id, Order: Insertion})
}

// DeleteTurnover removes an entry unless it belongs to a completed order
// and the actor is not a superuser.
func (l *Ledger) DeleteTurnover(ctx context.Context, actor Actor, id TurnoverID) error {
	err := l.store.WithTx(ctx, func(tx Store) error {
		t, err := tx.GetTurnover(ctx, id)
		if err != nil {
			return err
		}
		if t.OrderID != nil && !actor.Superuser {
			o, err := tx.GetOrder(ctx, *t.OrderID)
			if err != nil {
				return err
			}
			if o.Status == OrderCompleted {
				return &DeleteForbiddenError{TurnoverID: id, OrderID: o.ID}
			}
		}
		return tx.DeleteTurnover(ctx, id)
	})
	if err != nil {
		return err
	}
	l.log.Info("turnover deleted", "turnover", id, "user", actor.UserID, "superuser", actor.Superuser)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newLines(lines []EntranceLine) []Turnover {
	out := make([]Turnover, 0, len(lines))
	for _, line := range lines {
		if line.ID == nil {
			out = append(out, line.Turnover)
		}
	}
	return out
}

// prefixField qualifies a validation error with the nested line it came from.
func prefixField(err error, prefix string) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	cp := *verr
	cp.Field = prefix + "." + verr.Field
	return &cp
}

func maxLen(field, value string, n int) error {
	if utf8.RuneCountInString(value) > n {
		return invalid(field, RuleTooLong, "must be at most %d characters", n)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, RuleRequired, "%s is required", field)
	}
	return nil
}
