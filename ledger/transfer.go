package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest moves Quantity of a material between two warehouses.
// Sum must already equal round(Quantity * Price, 2).
type TransferRequest struct {
	MaterialID MaterialID
	Date       time.Time
	From       WarehouseID
	To         WarehouseID
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Sum        decimal.Decimal
}

// TransferResult holds the two committed legs.
type TransferResult struct {
	Expense  Turnover
	Incoming Turnover
}

// TransferNote is the note written on both legs of a transfer.
func TransferNote(from, to string) string {
	return fmt.Sprintf("moved from %q to %q", from, to)
}

// transferFailure wraps causes the caller can fix (validation, unknown
// references, stock) in a *TransferError. Storage failures are returned
// as plain wrapped errors so they are not reported as client errors.
func transferFailure(leg string, err error) error {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrNotFound) {
		return &TransferError{Leg: leg, Err: err}
	}
	if leg == "" {
		return fmt.Errorf("transfer: %w", err)
	}
	return fmt.Errorf("transfer %s leg: %w", leg, err)
}

// Transfer writes an expense correction at the source and an incoming
// correction at the destination in one transaction. Both legs pass the
// gate; when either fails nothing is stored. Rejections are returned as a
// *TransferError carrying the cause.
func (l *Ledger) Transfer(ctx context.Context, actor Actor, req TransferRequest) (*TransferResult, error) {
	var res TransferResult
	err := l.store.WithTx(ctx, func(tx Store) error {
		if req.From == req.To {
			return transferFailure("", invalid("warehouse_incoming", RuleDistinctWarehouse,
				"source and destination warehouses must differ"))
		}
		if _, err := tx.GetMaterial(ctx, req.MaterialID); err != nil {
			return transferFailure("", refError("material", err))
		}
		from, err := tx.GetWarehouse(ctx, req.From)
		if err != nil {
			return transferFailure("", refError("warehouse_outgoing", err))
		}
		to, err := tx.GetWarehouse(ctx, req.To)
		if err != nil {
			return transferFailure("", refError("warehouse_incoming", err))
		}

		leg := Turnover{
			Date:         req.Date,
			IsCorrection: true,
			Note:         TransferNote(from.Name, to.Name),
			MaterialID:   req.MaterialID,
			Price:        req.Price,
			Quantity:     req.Quantity,
			Sum:          req.Sum,
		}

		res.Expense = leg
		res.Expense.Direction = Expense
		res.Expense.WarehouseID = from.ID
		if err := l.write(ctx, tx, actor, &res.Expense); err != nil {
			return transferFailure("expense", err)
		}

		res.Incoming = leg
		res.Incoming.Direction = Incoming
		res.Incoming.WarehouseID = to.ID
		if err := l.write(ctx, tx, actor, &res.Incoming); err != nil {
			return transferFailure("incoming", err)
		}
		return nil
	})
	var terr *TransferError
	if err != nil && !errors.As(err, &terr) {
		err = transferFailure("", err)
	}
	l.obs.TransferFinished(err)
	if err != nil {
		l.log.Info("transfer rejected", "material", req.MaterialID, "from", req.From, "to", req.To, "err", err)
		return nil, err
	}
	l.committed(res.Expense, res.Incoming)
	l.log.Info("transfer committed",
		"material", req.MaterialID, "from", req.From, "to", req.To,
		"quantity", res.Expense.Quantity.StringFixed(2))
	return &res, nil
}
