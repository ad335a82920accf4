package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// memTx writes into a private copy of the tables; the store swaps it in on
// commit. Locks are implicit: the store mutex is held for the whole unit.
type memTx struct {
	t *tables
}

func (tx *memTx) AdjustStock(_ context.Context, productID int64, delta int) (int, error) {
	product, ok := tx.t.products[productID]
	if !ok {
		return 0, store.ErrProductNotFound
	}
	if product.QuantityInStock+delta < 0 {
		return product.QuantityInStock, &store.InsufficientStockError{
			ProductID: productID,
			Available: product.QuantityInStock,
			Requested: delta,
		}
	}
	product.QuantityInStock += delta
	tx.t.products[productID] = product
	return product.QuantityInStock, nil
}

func (tx *memTx) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	product, ok := tx.t.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (tx *memTx) GetCustomer(_ context.Context, customerID int64) (*domain.Customer, error) {
	customer, ok := tx.t.customers[customerID]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return &customer, nil
}

func (tx *memTx) GetSupplier(_ context.Context, supplierID int64) (*domain.Supplier, error) {
	supplier, ok := tx.t.suppliers[supplierID]
	if !ok {
		return nil, store.ErrSupplierNotFound
	}
	return &supplier, nil
}

func (tx *memTx) InsertOrder(_ context.Context, order *domain.Order) error {
	order.ID = tx.t.next("order")
	header := *order
	header.Items = nil
	header.Payment = nil
	tx.t.orders[order.ID] = header
	return nil
}

func (tx *memTx) InsertOrderItem(_ context.Context, item *domain.OrderItem) error {
	if _, ok := tx.t.orders[item.OrderID]; !ok {
		return store.ErrOrderNotFound
	}
	if _, ok := tx.t.products[item.ProductID]; !ok {
		return store.ErrProductNotFound
	}
	item.ID = tx.t.next("order_item")
	tx.t.orderItems[item.ID] = *item
	return nil
}

func (tx *memTx) InsertPayment(_ context.Context, payment *domain.Payment) error {
	if _, ok := tx.t.orders[payment.OrderID]; !ok {
		return store.ErrOrderNotFound
	}
	payment.ID = tx.t.next("payment")
	saved := *payment
	if payment.Cash != nil {
		cash := *payment.Cash
		saved.Cash = &cash
	}
	tx.t.payments[payment.ID] = saved
	return nil
}

func (tx *memTx) LockOrderItem(_ context.Context, orderItemID int64) (*domain.OrderItem, error) {
	item, ok := tx.t.orderItems[orderItemID]
	if !ok {
		return nil, store.ErrOrderItemNotFound
	}
	return &item, nil
}

func (tx *memTx) ReturnedQuantity(_ context.Context, orderItemID int64) (int, error) {
	total := 0
	for _, ret := range tx.t.returns {
		if ret.OriginalOrderItemID == orderItemID {
			total += ret.QuantityReturned
		}
	}
	return total, nil
}

func (tx *memTx) InsertSalesReturn(_ context.Context, ret *domain.SalesReturn) error {
	if _, ok := tx.t.orderItems[ret.OriginalOrderItemID]; !ok {
		return store.ErrOrderItemNotFound
	}
	ret.ID = tx.t.next("sales_return")
	tx.t.returns[ret.ID] = *ret
	return nil
}

func (tx *memTx) InsertPurchaseOrder(_ context.Context, po *domain.PurchaseOrder) error {
	if _, ok := tx.t.suppliers[po.SupplierID]; !ok {
		return store.ErrSupplierNotFound
	}
	po.ID = tx.t.next("purchase_order")
	for i := range po.Items {
		item := &po.Items[i]
		if _, ok := tx.t.products[item.ProductID]; !ok {
			return store.ErrProductNotFound
		}
		item.ID = tx.t.next("purchase_order_item")
		item.PurchaseOrderID = po.ID
		tx.t.poItems[item.ID] = *item
	}
	header := *po
	header.Items = nil
	tx.t.purchaseOrders[po.ID] = header
	return nil
}

func (tx *memTx) LockPurchaseOrder(_ context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error) {
	po, ok := tx.t.purchaseOrders[purchaseOrderID]
	if !ok {
		return nil, store.ErrPurchaseOrderNotFound
	}
	full := tx.t.assemblePurchaseOrder(po)
	return &full, nil
}

func (tx *memTx) AddReceivedQuantity(_ context.Context, lineID int64, qty int) (int, error) {
	item, ok := tx.t.poItems[lineID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if item.QuantityReceived+qty > item.QuantityOrdered {
		return item.QuantityReceived, &store.OverReceiptError{
			LineID:    lineID,
			Ordered:   item.QuantityOrdered,
			Received:  item.QuantityReceived,
			Requested: qty,
		}
	}
	item.QuantityReceived += qty
	tx.t.poItems[lineID] = item
	return item.QuantityReceived, nil
}

func (tx *memTx) SetPurchaseOrderStatus(_ context.Context, purchaseOrderID int64, status domain.PurchaseOrderStatus, actualDelivery *time.Time) error {
	po, ok := tx.t.purchaseOrders[purchaseOrderID]
	if !ok {
		return store.ErrPurchaseOrderNotFound
	}
	po.Status = status
	if actualDelivery != nil {
		at := *actualDelivery
		po.ActualDeliveryDate = &at
	}
	tx.t.purchaseOrders[purchaseOrderID] = po
	return nil
}

func (tx *memTx) InsertStockAdjustment(_ context.Context, adj *domain.StockAdjustment) error {
	if _, ok := tx.t.products[adj.ProductID]; !ok {
		return store.ErrProductNotFound
	}
	adj.ID = tx.t.next("stock_adjustment")
	tx.t.adjustments = append(tx.t.adjustments, *adj)
	return nil
}

func (tx *memTx) GetShift(_ context.Context, shiftID int64, _ store.LockMode) (*domain.Shift, error) {
	shift, ok := tx.t.shifts[shiftID]
	if !ok {
		return nil, store.ErrShiftNotFound
	}
	return &shift, nil
}

func (tx *memTx) GetOpenShift(_ context.Context) (*domain.Shift, error) {
	return tx.t.openShift()
}

func (tx *memTx) InsertShift(_ context.Context, shift *domain.Shift) error {
	if shift.Status == domain.ShiftStatusOpen {
		if _, err := tx.t.openShift(); err == nil {
			return store.ErrShiftAlreadyOpen
		}
	}
	shift.ID = tx.t.next("shift")
	tx.t.shifts[shift.ID] = *shift
	return nil
}

func (tx *memTx) SumShiftPayments(_ context.Context, shiftID int64) (domain.PaymentTotals, error) {
	totals := domain.PaymentTotals{Cash: decimal.Zero, Card: decimal.Zero, Other: decimal.Zero}
	for _, payment := range tx.t.payments {
		order, ok := tx.t.orders[payment.OrderID]
		if !ok || order.ShiftID != shiftID || order.Status != domain.OrderStatusCompleted {
			continue
		}
		switch payment.Kind {
		case domain.PaymentCash:
			totals.Cash = totals.Cash.Add(payment.Amount)
		case domain.PaymentCard:
			totals.Card = totals.Card.Add(payment.Amount)
		default:
			totals.Other = totals.Other.Add(payment.Amount)
		}
	}
	return totals, nil
}

func (tx *memTx) ReconcileShift(_ context.Context, shift *domain.Shift) error {
	current, ok := tx.t.shifts[shift.ID]
	if !ok {
		return store.ErrShiftNotFound
	}
	if current.Status != domain.ShiftStatusOpen {
		return store.ErrShiftNotOpen
	}
	tx.t.shifts[shift.ID] = *shift
	return nil
}
