package ledger

import (
	"context"
	"strings"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// AdjustStock records a manual correction and applies it to stock. The
// stock change and its audit record commit together.
func (l *Ledger) AdjustStock(ctx context.Context, cmd domain.AdjustmentCommand) (*domain.StockAdjustment, int, error) {
	if cmd.Delta == 0 {
		return nil, 0, store.ErrZeroAdjustment
	}
	if cmd.ProductID <= 0 {
		return nil, 0, store.Invalid("product_id", "must be positive")
	}
	if cmd.ShiftID <= 0 {
		return nil, 0, store.Invalid("shift_id", "must be positive")
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, 0, store.Invalid("reason", "is required")
	}

	var (
		recorded domain.StockAdjustment
		qty      int
	)
	err := l.run(ctx, "adjust_stock", func(ctx context.Context, tx store.Tx, u *unit) error {
		if _, err := tx.GetShift(ctx, cmd.ShiftID, store.LockNone); err != nil {
			return err
		}
		var err error
		qty, err = u.adjust(ctx, tx, cmd.ProductID, cmd.Delta)
		if err != nil {
			return err
		}

		adj := domain.StockAdjustment{
			AdjustmentDate: l.now(),
			ProductID:      cmd.ProductID,
			UserID:         cmd.OperatorID,
			ShiftID:        cmd.ShiftID,
			QuantityChange: cmd.Delta,
			Reason:         reason,
			Notes:          cmd.Notes,
		}
		if err := tx.InsertStockAdjustment(ctx, &adj); err != nil {
			return err
		}
		recorded = adj
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &recorded, qty, nil
}
