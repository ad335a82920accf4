package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductKind string

const (
	ProductPerishable    ProductKind = "perishable"
	ProductNonPerishable ProductKind = "non_perishable"
)

func (k ProductKind) Valid() bool {
	return k == ProductPerishable || k == ProductNonPerishable
}

// PerishableDetails is the payload carried only by perishable products.
type PerishableDetails struct {
	StorageTempRequirement string `json:"storage_temp_requirement"`
}

type Product struct {
	ID              int64              `json:"id"`
	SKU             string             `json:"sku"`
	Name            string             `json:"name"`
	UnitPrice       decimal.Decimal    `json:"unit_price"`
	CostPrice       decimal.Decimal    `json:"cost_price"`
	QuantityInStock int                `json:"quantity_in_stock"`
	ReorderLevel    int                `json:"reorder_level"`
	Kind            ProductKind        `json:"kind"`
	Perishable      *PerishableDetails `json:"perishable,omitempty"`
}

// IsLowStock reports whether the product is at or below its reorder level.
// A zero reorder level disables the check.
func (p Product) IsLowStock() bool {
	return p.ReorderLevel > 0 && p.QuantityInStock <= p.ReorderLevel
}

type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "Completed"
)

type PaymentKind string

const (
	PaymentCash  PaymentKind = "Cash"
	PaymentCard  PaymentKind = "Card"
	PaymentOther PaymentKind = "Other"
)

type Order struct {
	ID          int64           `json:"id"`
	ReceiptNo   string          `json:"receipt_no"`
	OrderDate   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	UserID      int64           `json:"user_id"`
	ShiftID     int64           `json:"shift_id"`
	Status      OrderStatus     `json:"status"`
	Items       []OrderItem     `json:"items,omitempty"`
	Payment     *Payment        `json:"payment,omitempty"`
}

type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unit_price_at_sale"`
	CostPriceAtSale decimal.Decimal `json:"cost_price_at_sale"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPriceAtSale.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        PaymentKind     `json:"kind"`
	Cash        *CashDetails    `json:"cash,omitempty"`
}

type CashDetails struct {
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	ChangeGiven    decimal.Decimal `json:"change_given"`
}

type SalesReturn struct {
	ID                  int64           `json:"id"`
	ReturnDate          time.Time       `json:"return_date"`
	OriginalOrderItemID int64           `json:"original_order_item_id"`
	QuantityReturned    int             `json:"quantity_returned"`
	Reason              *string         `json:"reason,omitempty"`
	Restock             bool            `json:"restock"`
	RefundAmount        decimal.Decimal `json:"refund_amount"`
	ProcessedByUserID   int64           `json:"processed_by_user_id"`
	ShiftID             int64           `json:"shift_id"`
}

type PurchaseOrderStatus string

const (
	POStatusPending           PurchaseOrderStatus = "Pending"
	POStatusOrdered           PurchaseOrderStatus = "Ordered"
	POStatusPartiallyReceived PurchaseOrderStatus = "PartiallyReceived"
	POStatusReceived          PurchaseOrderStatus = "Received"
	POStatusCancelled         PurchaseOrderStatus = "Cancelled"
)

func (s PurchaseOrderStatus) Valid() bool {
	switch s {
	case POStatusPending, POStatusOrdered, POStatusPartiallyReceived, POStatusReceived, POStatusCancelled:
		return true
	}
	return false
}

type PurchaseOrder struct {
	ID                   int64               `json:"id"`
	PODate               time.Time           `json:"po_date"`
	Status               PurchaseOrderStatus `json:"status"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time          `json:"actual_delivery_date,omitempty"`
	SupplierID           int64               `json:"supplier_id"`
	PlacedByUserID       int64               `json:"placed_by_user_id"`
	TotalCost            decimal.Decimal     `json:"total_cost"`
	Items                []PurchaseOrderItem `json:"items"`
}

// ReceivedInFull compares the summed ordered and received quantities.
// A purchase order without lines counts as received.
func (po PurchaseOrder) ReceivedInFull() bool {
	ordered, received := 0, 0
	for _, item := range po.Items {
		ordered += item.QuantityOrdered
		received += item.QuantityReceived
	}
	return received == ordered
}

type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  int             `json:"quantity_ordered"`
	CostPricePerUnit decimal.Decimal `json:"cost_price_per_unit"`
	QuantityReceived int             `json:"quantity_received"`
}

func (i PurchaseOrderItem) Remaining() int {
	return i.QuantityOrdered - i.QuantityReceived
}

type ShiftStatus string

const (
	ShiftStatusOpen       ShiftStatus = "Open"
	ShiftStatusReconciled ShiftStatus = "Reconciled"
)

type Shift struct {
	ID               int64           `json:"id"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
	Status           ShiftStatus     `json:"status"`
	StartUserID      int64           `json:"start_user_id"`
	EndUserID        *int64          `json:"end_user_id,omitempty"`
	StartingFloat    decimal.Decimal `json:"starting_float"`
	CashSalesAmount  decimal.Decimal `json:"cash_sales_amount"`
	CardSalesAmount  decimal.Decimal `json:"card_sales_amount"`
	OtherSalesAmount decimal.Decimal `json:"other_sales_amount"`
	CashRemoved      decimal.Decimal `json:"cash_removed"`
	EndingFloat      decimal.Decimal `json:"ending_float"`
	CashDiscrepancy  decimal.Decimal `json:"cash_discrepancy"`
}

// ExpectedCash is the drawer amount implied by the float, cash sales and removals.
func (s Shift) ExpectedCash() decimal.Decimal {
	return s.StartingFloat.Add(s.CashSalesAmount).Sub(s.CashRemoved)
}

// PaymentTotals partitions a shift's payments by payment variant.
type PaymentTotals struct {
	Cash  decimal.Decimal `json:"cash"`
	Card  decimal.Decimal `json:"card"`
	Other decimal.Decimal `json:"other"`
}

type StockAdjustment struct {
	ID             int64     `json:"id"`
	AdjustmentDate time.Time `json:"adjustment_date"`
	ProductID      int64     `json:"product_id"`
	UserID         int64     `json:"user_id"`
	ShiftID        int64     `json:"shift_id"`
	QuantityChange int       `json:"quantity_change"`
	Reason         string    `json:"reason"`
	Notes          *string   `json:"notes,omitempty"`
}

type Customer struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ContactInfo   string `json:"contact_info,omitempty"`
	LoyaltyPoints int    `json:"loyalty_points"`
}

type Supplier struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContactInfo string `json:"contact_info,omitempty"`
}

type UserAccount struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type AuditLog struct {
	ID            int64     `json:"id"`
	ActorUserID   int64     `json:"actor_user_id"`
	ActorUsername string    `json:"actor_username"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type OrderFilter struct {
	From        *time.Time
	To          *time.Time
	CustomerID  *int64
	ShiftID     *int64
	PaymentKind PaymentKind
	Limit       int
}
