package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

// AdjustStock is a single guarded UPDATE: the row lock taken by the UPDATE
// covers the check, so two concurrent debits cannot both pass it.
func (t *pgTx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	var qty int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE product
		SET quantity_in_stock = quantity_in_stock + $2
		WHERE product_id = $1 AND quantity_in_stock + $2 >= 0
		RETURNING quantity_in_stock
	`, productID, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapErr("adjust stock", err)
	}

	// The guard rejected the write or the product is missing.
	var current int
	err = t.tx.QueryRowContext(ctx, `
		SELECT quantity_in_stock FROM product WHERE product_id = $1
	`, productID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrProductNotFound
	}
	if err != nil {
		return 0, mapErr("read stock", err)
	}
	return current, &store.InsufficientStockError{ProductID: productID, Available: current, Requested: delta}
}

func (t *pgTx) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `SELECT `+productColumns+` WHERE p.product_id = $1`, productID)
}

func (t *pgTx) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, customerID)
}

func (t *pgTx) GetSupplier(ctx context.Context, supplierID int64) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := t.tx.QueryRowContext(ctx, `
		SELECT supplier_id, name, COALESCE(contact_info, '') FROM supplier WHERE supplier_id = $1
	`, supplierID).Scan(&supplier.ID, &supplier.Name, &supplier.ContactInfo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSupplierNotFound
		}
		return nil, mapErr("get supplier", err)
	}
	return &supplier, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	var customerID any
	if order.CustomerID != nil {
		customerID = *order.CustomerID
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO "order" (receipt_no, order_date, total_amount, customer_id, user_id, shift_id, order_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING order_id
	`, order.ReceiptNo, order.OrderDate, order.TotalAmount, customerID, order.UserID, order.ShiftID, string(order.Status)).Scan(&order.ID)
	return mapErr("insert order", err)
}

func (t *pgTx) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO order_item (order_id, product_id, quantity, unit_price_at_sale, cost_price_at_sale)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING order_item_id
	`, item.OrderID, item.ProductID, item.Quantity, item.UnitPriceAtSale, item.CostPriceAtSale).Scan(&item.ID)
	return mapErr("insert order item", err)
}

// InsertPayment writes the payment row and its variant row.
func (t *pgTx) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payment (payment_date, amount, order_id)
		VALUES ($1,$2,$3)
		RETURNING payment_id
	`, payment.PaymentDate, payment.Amount, payment.OrderID).Scan(&payment.ID)
	if err != nil {
		return mapErr("insert payment", err)
	}

	switch payment.Kind {
	case domain.PaymentCash:
		if payment.Cash == nil {
			return store.Invalid("cash", "cash payment requires tender details")
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO cash_payment (payment_id, amount_tendered, change_given) VALUES ($1,$2,$3)
		`, payment.ID, payment.Cash.AmountTendered, payment.Cash.ChangeGiven)
		return mapErr("insert cash payment", err)
	case domain.PaymentCard:
		_, err = t.tx.ExecContext(ctx, `INSERT INTO card_payment (payment_id) VALUES ($1)`, payment.ID)
		return mapErr("insert card payment", err)
	}
	return nil
}

func (t *pgTx) LockOrderItem(ctx context.Context, orderItemID int64) (*domain.OrderItem, error) {
	var item domain.OrderItem
	err := t.tx.QueryRowContext(ctx, `
		SELECT order_item_id, order_id, product_id, quantity, unit_price_at_sale, cost_price_at_sale
		FROM order_item
		WHERE order_item_id = $1
		FOR UPDATE
	`, orderItemID).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceAtSale, &item.CostPriceAtSale)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOrderItemNotFound
		}
		return nil, mapErr("lock order item", err)
	}
	return &item, nil
}

func (t *pgTx) ReturnedQuantity(ctx context.Context, orderItemID int64) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_returned), 0) FROM sales_return WHERE original_order_item_id = $1
	`, orderItemID).Scan(&total)
	if err != nil {
		return 0, mapErr("sum returns", err)
	}
	return total, nil
}

func (t *pgTx) InsertSalesReturn(ctx context.Context, ret *domain.SalesReturn) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sales_return (
			return_date, original_order_item_id, quantity_returned, reason,
			restock_flag, refund_amount, processed_by_user_id, shift_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING return_id
	`, ret.ReturnDate, ret.OriginalOrderItemID, ret.QuantityReturned, nullString(ret.Reason),
		ret.Restock, ret.RefundAmount, ret.ProcessedByUserID, ret.ShiftID).Scan(&ret.ID)
	return mapErr("insert sales return", err)
}

func (t *pgTx) InsertPurchaseOrder(ctx context.Context, po *domain.PurchaseOrder) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO purchase_order (po_date, status, expected_delivery_date, supplier_id, placed_by_user_id, total_cost)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING purchase_order_id
	`, po.PODate, string(po.Status), nullTime(po.ExpectedDeliveryDate), po.SupplierID, po.PlacedByUserID, po.TotalCost).Scan(&po.ID)
	if err != nil {
		return mapErr("insert purchase order", err)
	}

	for i := range po.Items {
		item := &po.Items[i]
		item.PurchaseOrderID = po.ID
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO purchase_order_item (purchase_order_id, product_id, quantity_ordered, cost_price_per_unit, quantity_received)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING purchase_order_item_id
		`, po.ID, item.ProductID, item.QuantityOrdered, item.CostPricePerUnit, item.QuantityReceived).Scan(&item.ID)
		if err != nil {
			return mapErr("insert purchase order item", err)
		}
	}
	return nil
}

func (t *pgTx) LockPurchaseOrder(ctx context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(t.tx.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_order WHERE purchase_order_id = $1 FOR UPDATE
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPurchaseOrderNotFound
		}
		return nil, mapErr("lock purchase order", err)
	}
	if err := loadPurchaseOrderItems(ctx, t.tx, &po, true); err != nil {
		return nil, err
	}
	return &po, nil
}

func (t *pgTx) AddReceivedQuantity(ctx context.Context, lineID int64, qty int) (int, error) {
	var received int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE purchase_order_item
		SET quantity_received = quantity_received + $2
		WHERE purchase_order_item_id = $1 AND quantity_received + $2 <= quantity_ordered
		RETURNING quantity_received
	`, lineID, qty).Scan(&received)
	if err == nil {
		return received, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapErr("receive line", err)
	}

	var ordered int
	err = t.tx.QueryRowContext(ctx, `
		SELECT quantity_ordered, quantity_received FROM purchase_order_item WHERE purchase_order_item_id = $1
	`, lineID).Scan(&ordered, &received)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("purchase order line %d: %w", lineID, store.ErrNotFound)
	}
	if err != nil {
		return 0, mapErr("read line", err)
	}
	return received, &store.OverReceiptError{LineID: lineID, Ordered: ordered, Received: received, Requested: qty}
}

func (t *pgTx) SetPurchaseOrderStatus(ctx context.Context, purchaseOrderID int64, status domain.PurchaseOrderStatus, actualDelivery *time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE purchase_order
		SET status = $2, actual_delivery_date = COALESCE($3, actual_delivery_date)
		WHERE purchase_order_id = $1
	`, purchaseOrderID, string(status), nullTime(actualDelivery))
	if err != nil {
		return mapErr("update purchase order status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapErr("update purchase order status", err)
	}
	if affected == 0 {
		return store.ErrPurchaseOrderNotFound
	}
	return nil
}

func (t *pgTx) InsertStockAdjustment(ctx context.Context, adj *domain.StockAdjustment) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO stock_adjustment (adjustment_date, product_id, user_id, shift_id, quantity_change, reason, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING adjustment_id
	`, adj.AdjustmentDate, adj.ProductID, adj.UserID, adj.ShiftID, adj.QuantityChange, adj.Reason, nullString(adj.Notes)).Scan(&adj.ID)
	return mapErr("insert stock adjustment", err)
}

func (t *pgTx) GetShift(ctx context.Context, shiftID int64, lock store.LockMode) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shift WHERE shift_id = $1`
	switch lock {
	case store.LockShare:
		query += ` FOR SHARE`
	case store.LockUpdate:
		query += ` FOR UPDATE`
	}
	return scanShift(t.tx.QueryRowContext(ctx, query, shiftID))
}

func (t *pgTx) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	return scanShift(t.tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shift
		WHERE status = 'Open'
		ORDER BY start_time DESC
		LIMIT 1
		FOR UPDATE
	`))
}

// InsertShift relies on shift_single_open_idx to reject a second open shift
// created by a concurrent transaction.
func (t *pgTx) InsertShift(ctx context.Context, shift *domain.Shift) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO shift (start_time, status, start_user_id, starting_float)
		VALUES ($1,$2,$3,$4)
		RETURNING shift_id
	`, shift.StartTime, string(shift.Status), shift.StartUserID, shift.StartingFloat).Scan(&shift.ID)
	return mapErr("insert shift", err)
}

func (t *pgTx) SumShiftPayments(ctx context.Context, shiftID int64) (domain.PaymentTotals, error) {
	var totals domain.PaymentTotals
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(p.amount) FILTER (WHERE cp.payment_id IS NOT NULL), 0),
			COALESCE(SUM(p.amount) FILTER (WHERE cd.payment_id IS NOT NULL), 0),
			COALESCE(SUM(p.amount) FILTER (WHERE cp.payment_id IS NULL AND cd.payment_id IS NULL), 0)
		FROM payment p
		JOIN "order" o ON o.order_id = p.order_id
		LEFT JOIN cash_payment cp ON cp.payment_id = p.payment_id
		LEFT JOIN card_payment cd ON cd.payment_id = p.payment_id
		WHERE o.shift_id = $1 AND o.order_status = $2
	`, shiftID, string(domain.OrderStatusCompleted)).Scan(&totals.Cash, &totals.Card, &totals.Other)
	if err != nil {
		return domain.PaymentTotals{Cash: decimal.Zero, Card: decimal.Zero, Other: decimal.Zero}, mapErr("sum shift payments", err)
	}
	return totals, nil
}

func (t *pgTx) ReconcileShift(ctx context.Context, shift *domain.Shift) error {
	var endUserID any
	if shift.EndUserID != nil {
		endUserID = *shift.EndUserID
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE shift
		SET end_time = $2, status = $3, end_user_id = $4,
		    cash_sales_amount = $5, card_sales_amount = $6, other_sales_amount = $7,
		    cash_removed = $8, ending_float = $9, cash_discrepancy = $10
		WHERE shift_id = $1 AND status = 'Open'
	`, shift.ID, nullTime(shift.EndTime), string(shift.Status), endUserID,
		shift.CashSalesAmount, shift.CardSalesAmount, shift.OtherSalesAmount,
		shift.CashRemoved, shift.EndingFloat, shift.CashDiscrepancy)
	if err != nil {
		return mapErr("reconcile shift", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapErr("reconcile shift", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shift WHERE shift_id = $1)`, shift.ID).Scan(&exists); err != nil {
		return mapErr("reconcile shift", err)
	}
	if !exists {
		return store.ErrShiftNotFound
	}
	return store.ErrShiftNotOpen
}
