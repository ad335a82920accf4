package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// ReturnItem records a return against one sold order item and, when
// restock is set, credits the returned quantity back into stock.
func (l *Ledger) ReturnItem(ctx context.Context, cmd domain.ReturnCommand) (*domain.SalesReturn, error) {
	if cmd.OrderItemID <= 0 {
		return nil, store.Invalid("order_item_id", "must be positive")
	}
	if cmd.Quantity <= 0 {
		return nil, store.Invalid("quantity", "must be greater than zero")
	}
	if cmd.ShiftID <= 0 {
		return nil, store.Invalid("shift_id", "must be positive")
	}

	var recorded domain.SalesReturn
	err := l.run(ctx, "return_item", func(ctx context.Context, tx store.Tx, u *unit) error {
		if _, err := tx.GetShift(ctx, cmd.ShiftID, store.LockNone); err != nil {
			return err
		}

		// The row lock on the item serializes concurrent returns against it.
		item, err := tx.LockOrderItem(ctx, cmd.OrderItemID)
		if err != nil {
			return err
		}
		already, err := tx.ReturnedQuantity(ctx, item.ID)
		if err != nil {
			return err
		}
		if already+cmd.Quantity > item.Quantity {
			return &store.ReturnExceedsSoldError{
				OrderItemID:     item.ID,
				Sold:            item.Quantity,
				AlreadyReturned: already,
				Requested:       cmd.Quantity,
			}
		}

		ret := domain.SalesReturn{
			ReturnDate:          l.now(),
			OriginalOrderItemID: item.ID,
			QuantityReturned:    cmd.Quantity,
			Reason:              cmd.Reason,
			Restock:             cmd.Restock,
			RefundAmount:        item.UnitPriceAtSale.Mul(decimal.NewFromInt(int64(cmd.Quantity))),
			ProcessedByUserID:   cmd.OperatorID,
			ShiftID:             cmd.ShiftID,
		}
		if err := tx.InsertSalesReturn(ctx, &ret); err != nil {
			return err
		}
		if cmd.Restock {
			if _, err := u.adjust(ctx, tx, item.ProductID, cmd.Quantity); err != nil {
				return err
			}
		}

		recorded = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &recorded, nil
}
