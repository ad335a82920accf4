package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (l *Ledger) CreatePurchaseOrder(ctx context.Context, cmd domain.CreatePurchaseOrderCommand) (*domain.PurchaseOrder, error) {
	if cmd.SupplierID <= 0 {
		return nil, store.Invalid("supplier_id", "must be positive")
	}
	if len(cmd.Lines) == 0 {
		return nil, store.Invalid("lines", "at least one line is required")
	}
	status := cmd.Status
	if status == "" {
		status = domain.POStatusPending
	}
	if status != domain.POStatusPending && status != domain.POStatusOrdered {
		return nil, store.Invalid("status", "must be Pending or Ordered")
	}

	items := make([]domain.PurchaseOrderItem, 0, len(cmd.Lines))
	totalCost := decimal.Zero
	for i, line := range cmd.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case line.ProductID <= 0:
			return nil, store.Invalid(field+".product_id", "must be positive")
		case line.QuantityOrdered <= 0:
			return nil, store.Invalid(field+".quantity_ordered", "must be greater than zero")
		}
		if err := CheckMoney(field+".cost_price_per_unit", line.CostPricePerUnit); err != nil {
			return nil, err
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID:        line.ProductID,
			QuantityOrdered:  line.QuantityOrdered,
			CostPricePerUnit: line.CostPricePerUnit,
		})
		totalCost = totalCost.Add(line.CostPricePerUnit.Mul(decimal.NewFromInt(int64(line.QuantityOrdered))))
	}

	var created domain.PurchaseOrder
	err := l.run(ctx, "create_purchase_order", func(ctx context.Context, tx store.Tx, _ *unit) error {
		if _, err := tx.GetSupplier(ctx, cmd.SupplierID); err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.GetProduct(ctx, item.ProductID); err != nil {
				return err
			}
		}

		po := domain.PurchaseOrder{
			PODate:               l.now(),
			Status:               status,
			ExpectedDeliveryDate: cmd.ExpectedDeliveryDate,
			SupplierID:           cmd.SupplierID,
			PlacedByUserID:       cmd.OperatorID,
			TotalCost:            totalCost,
			Items:                append([]domain.PurchaseOrderItem(nil), items...),
		}
		if err := tx.InsertPurchaseOrder(ctx, &po); err != nil {
			return err
		}
		created = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ReceiveLines books goods received against individual purchase-order lines,
// keyed by line id. Non-positive quantities are ignored.
func (l *Ledger) ReceiveLines(ctx context.Context, purchaseOrderID int64, quantities map[int64]int) (*domain.PurchaseOrder, error) {
	if purchaseOrderID <= 0 {
		return nil, store.Invalid("purchase_order_id", "must be positive")
	}
	wanted := make(map[int64]int, len(quantities))
	for lineID, qty := range quantities {
		if qty > 0 {
			wanted[lineID] = qty
		}
	}
	if len(wanted) == 0 {
		return nil, store.Invalid("lines", "at least one line with a positive quantity is required")
	}

	var received domain.PurchaseOrder
	err := l.run(ctx, "receive_lines", func(ctx context.Context, tx store.Tx, u *unit) error {
		po, err := tx.LockPurchaseOrder(ctx, purchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status == domain.POStatusReceived || po.Status == domain.POStatusCancelled {
			return store.ErrPurchaseOrderClosed
		}
		known := make(map[int64]bool, len(po.Items))
		for _, item := range po.Items {
			known[item.ID] = true
		}
		for lineID := range wanted {
			if !known[lineID] {
				return fmt.Errorf("purchase order %d line %d: %w", po.ID, lineID, store.ErrNotFound)
			}
		}

		if err := l.receive(ctx, tx, u, po, wanted); err != nil {
			return err
		}
		received = *po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &received, nil
}

// ReceiveRemainder receives whatever is still outstanding on every line.
// A purchase order that is already Received is returned unchanged.
func (l *Ledger) ReceiveRemainder(ctx context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error) {
	if purchaseOrderID <= 0 {
		return nil, store.Invalid("purchase_order_id", "must be positive")
	}

	var received domain.PurchaseOrder
	err := l.run(ctx, "receive_remainder", func(ctx context.Context, tx store.Tx, u *unit) error {
		po, err := tx.LockPurchaseOrder(ctx, purchaseOrderID)
		if err != nil {
			return err
		}
		switch po.Status {
		case domain.POStatusReceived:
			received = *po
			return nil
		case domain.POStatusCancelled:
			return store.ErrPurchaseOrderClosed
		}

		outstanding := make(map[int64]int, len(po.Items))
		for _, item := range po.Items {
			if remaining := item.Remaining(); remaining > 0 {
				outstanding[item.ID] = remaining
			}
		}
		if err := l.receive(ctx, tx, u, po, outstanding); err != nil {
			return err
		}
		received = *po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &received, nil
}

// receive applies quantities to po's lines in line order, credits stock per
// product and derives the new status. po is updated in place.
func (l *Ledger) receive(ctx context.Context, tx store.Tx, u *unit, po *domain.PurchaseOrder, quantities map[int64]int) error {
	credits := make(map[int64]int, len(quantities))
	for i := range po.Items {
		item := &po.Items[i]
		qty, ok := quantities[item.ID]
		if !ok {
			continue
		}
		if item.QuantityReceived+qty > item.QuantityOrdered {
			return &store.OverReceiptError{
				LineID:    item.ID,
				Ordered:   item.QuantityOrdered,
				Received:  item.QuantityReceived,
				Requested: qty,
			}
		}
		total, err := tx.AddReceivedQuantity(ctx, item.ID, qty)
		if err != nil {
			return err
		}
		item.QuantityReceived = total
		credits[item.ProductID] += qty
	}
	if err := u.adjustAll(ctx, tx, credits); err != nil {
		return err
	}

	delivered := po.ActualDeliveryDate
	status := domain.POStatusPartiallyReceived
	if po.ReceivedInFull() {
		status = domain.POStatusReceived
		at := l.now()
		delivered = &at
	}
	if err := tx.SetPurchaseOrderStatus(ctx, po.ID, status, delivered); err != nil {
		return err
	}
	po.Status = status
	po.ActualDeliveryDate = delivered
	return nil
}
