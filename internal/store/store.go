package store

import (
	"context"
	"time"

	"posledger/backend/internal/domain"
)

type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Tx is the set of writes and locked reads available inside one atomic
// unit. Every method observes the writes made earlier in the same Tx.
type Tx interface {
	// AdjustStock applies quantity += delta as one conditional write and
	// returns the resulting quantity. A debit larger than the on-hand
	// quantity fails with *InsufficientStockError and changes nothing.
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)
	GetSupplier(ctx context.Context, supplierID int64) (*domain.Supplier, error)

	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOrderItem(ctx context.Context, item *domain.OrderItem) error
	InsertPayment(ctx context.Context, payment *domain.Payment) error

	LockOrderItem(ctx context.Context, orderItemID int64) (*domain.OrderItem, error)
	ReturnedQuantity(ctx context.Context, orderItemID int64) (int, error)
	InsertSalesReturn(ctx context.Context, ret *domain.SalesReturn) error

	InsertPurchaseOrder(ctx context.Context, po *domain.PurchaseOrder) error
	LockPurchaseOrder(ctx context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error)
	// AddReceivedQuantity increments a line's received quantity, refusing to
	// exceed the ordered quantity.
	AddReceivedQuantity(ctx context.Context, lineID int64, qty int) (int, error)
	SetPurchaseOrderStatus(ctx context.Context, purchaseOrderID int64, status domain.PurchaseOrderStatus, actualDelivery *time.Time) error

	InsertStockAdjustment(ctx context.Context, adj *domain.StockAdjustment) error

	GetShift(ctx context.Context, shiftID int64, lock LockMode) (*domain.Shift, error)
	GetOpenShift(ctx context.Context) (*domain.Shift, error)
	InsertShift(ctx context.Context, shift *domain.Shift) error
	SumShiftPayments(ctx context.Context, shiftID int64) (domain.PaymentTotals, error)
	// ReconcileShift persists the closing totals, only while the shift is
	// still open.
	ReconcileShift(ctx context.Context, shift *domain.Shift) error
}

type Repository interface {
	// WithinTx runs fn in one atomic unit. It commits when fn returns nil
	// and rolls back otherwise, joining any rollback failure onto fn's error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error)

	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	ListReturns(ctx context.Context, orderItemID int64) ([]domain.SalesReturn, error)

	GetPurchaseOrder(ctx context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error)

	ListStockAdjustments(ctx context.Context, productID int64, limit int) ([]domain.StockAdjustment, error)

	GetShift(ctx context.Context, shiftID int64) (*domain.Shift, error)
	GetOpenShift(ctx context.Context) (*domain.Shift, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
