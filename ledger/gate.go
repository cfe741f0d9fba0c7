/*
gate.go - Pre-persist invariant checker for ledger entries

PURPOSE:
  Every Turnover passes through Gate.Check inside the transaction that
  will store it. The gate is called explicitly by every Ledger write path;
  there is no other exported way to persist an entry.

RULES (checked in this order, first failure wins):
  0. Well-formed:      direction valid, material and warehouse set and
                       existing, decimals fit the stored precision
  1. Single source:    never both order and entrance; corrections carry
                       neither
  2. Correction note:  corrections need a non-blank note
  3. Document:         incoming needs an entrance, expense needs an order
                       (unless it is a correction)
  4. Positive:         quantity, price and sum magnitudes > 0
  5. Sum matches:      sum == round(quantity * price, 2)
  6. Stock sufficient: an expense never exceeds the remaining stock of
                       its material at its warehouse as of its date

STOCK CHECK:
  Rule 6 takes the (material, warehouse) stock lock first, then asks
  Stock.Remaining on the same transactional Store, so it sees the rows
  already written by the current operation (e.g. earlier lines of the
  same batch) and no concurrent writer can slip in between.

The gate reads magnitudes only; Turnover.Normalize runs before it.
*/
package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	quantityIntDigits = 7
	amountIntDigits   = 10
	decimalPlaces     = 2
)

// Gate validates ledger entries before they are stored.
type Gate struct{}

// Check returns nil when t may be persisted through store, or a
// *ValidationError describing the first violated rule.
func (g *Gate) Check(ctx context.Context, store Store, t *Turnover) error {
	if err := g.checkShape(t); err != nil {
		return err
	}
	if err := g.checkRefs(ctx, store, t); err != nil {
		return err
	}
	if err := g.checkLinks(t); err != nil {
		return err
	}
	if err := g.checkAmounts(t); err != nil {
		return err
	}
	if t.Direction == Expense {
		return g.checkStock(ctx, store, t)
	}
	return nil
}

func (g *Gate) checkShape(t *Turnover) error {
	if !t.Direction.Valid() {
		return invalid("type", RuleWellFormed, "unknown turnover type %d", int(t.Direction))
	}
	if t.MaterialID == 0 {
		return invalid("material", RuleRequired, "material is required")
	}
	if t.WarehouseID == 0 {
		return invalid("warehouse", RuleRequired, "warehouse is required")
	}
	if t.Date.IsZero() {
		return invalid("date", RuleRequired, "date is required")
	}
	if err := checkPrecision("quantity", t.Quantity, quantityIntDigits); err != nil {
		return err
	}
	if err := checkPrecision("price", t.Price, amountIntDigits); err != nil {
		return err
	}
	return checkPrecision("sum", t.Sum, amountIntDigits)
}

// checkRefs turns a missing referenced row into a field error instead of a
// foreign key failure at insert time.
func (g *Gate) checkRefs(ctx context.Context, store Store, t *Turnover) error {
	if _, err := store.GetMaterial(ctx, t.MaterialID); err != nil {
		return refError("material", err)
	}
	if _, err := store.GetWarehouse(ctx, t.WarehouseID); err != nil {
		return refError("warehouse", err)
	}
	if t.OrderID != nil {
		if _, err := store.GetOrder(ctx, *t.OrderID); err != nil {
			return refError("order", err)
		}
	}
	if t.EntranceID != nil {
		if _, err := store.GetEntrance(ctx, *t.EntranceID); err != nil {
			return refError("entrance", err)
		}
	}
	return nil
}

func refError(field string, err error) error {
	if !IsNotFound(err) {
		return err
	}
	return &ValidationError{Field: field, Rule: RuleUnknownReference, Message: err.Error(), Err: err}
}

func (g *Gate) checkLinks(t *Turnover) error {
	// 1
	if t.OrderID != nil && t.EntranceID != nil {
		return invalid("entrance", RuleSingleSource, "only one of entrance or order may be set")
	}
	if t.IsCorrection && (t.OrderID != nil || t.EntranceID != nil) {
		return invalid("is_correction", RuleSingleSource, "entrance and order must not be set on a correction")
	}
	// 2
	if t.IsCorrection && strings.TrimSpace(t.Note) == "" {
		return invalid("note", RuleCorrectionNote, "note is required for a correction")
	}
	// 3
	if !t.IsCorrection {
		if t.Direction == Incoming && t.EntranceID == nil {
			return invalid("entrance", RuleDocumentRequired, "incoming entry requires an entrance")
		}
		if t.Direction == Expense && t.OrderID == nil {
			return invalid("order", RuleDocumentRequired, "expense entry requires an order")
		}
	}
	return nil
}

func (g *Gate) checkAmounts(t *Turnover) error {
	// 4
	if !t.Quantity.IsPositive() {
		return invalid("quantity", RulePositive, "quantity must be greater than 0")
	}
	if !t.Price.IsPositive() {
		return invalid("price", RulePositive, "price must be greater than 0")
	}
	if !t.Sum.IsPositive() {
		return invalid("sum", RulePositive, "sum must be greater than 0")
	}
	// 5
	want := t.Quantity.Mul(t.Price).Round(decimalPlaces)
	if !want.Equal(t.Sum) {
		return invalid("sum", RuleSumMatches, "sum %s does not match quantity × price = %s",
			t.Sum.StringFixed(decimalPlaces), want.StringFixed(decimalPlaces))
	}
	return nil
}

// checkStock is rule 6.
func (g *Gate) checkStock(ctx context.Context, store Store, t *Turnover) error {
	if err := store.LockStock(ctx, t.MaterialID, t.WarehouseID); err != nil {
		return err
	}
	warehouse := t.WarehouseID
	available, err := NewStock(store).Remaining(ctx, t.MaterialID, &warehouse, t.Date)
	if err != nil {
		return err
	}
	if t.Quantity.GreaterThan(available) {
		return &ValidationError{
			Field:   "quantity",
			Rule:    RuleStockSufficient,
			Message: "quantity exceeds the stock available at the warehouse",
			Err: &InsufficientStockError{
				MaterialID:  t.MaterialID,
				WarehouseID: t.WarehouseID,
				Date:        t.Date,
				Available:   available,
				Requested:   t.Quantity,
			},
		}
	}
	return nil
}

// checkPrecision rejects values with more than 2 decimal places or more
// integer digits than the stored column allows.
func checkPrecision(field string, v decimal.Decimal, intDigits int) error {
	if !v.Equal(v.Round(decimalPlaces)) {
		return invalid(field, RuleWellFormed, "at most %d decimal places are allowed", decimalPlaces)
	}
	limit := decimal.New(1, int32(intDigits))
	if v.Abs().GreaterThanOrEqual(limit) {
		return invalid(field, RuleWellFormed, "at most %d digits before the decimal point are allowed", intDigits)
	}
	return nil
}
