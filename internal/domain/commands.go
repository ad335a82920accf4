package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is one requested sale line. Price and cost are pointers so a
// missing value can be told apart from zero.
type OrderLine struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

type PlaceOrderCommand struct {
	Lines          []OrderLine
	CustomerID     *int64
	OperatorID     int64
	ShiftID        int64
	PaymentKind    PaymentKind
	AmountTendered *decimal.Decimal
}

type ReturnCommand struct {
	OrderItemID int64
	Quantity    int
	Restock     bool
	Reason      *string
	OperatorID  int64
	ShiftID     int64
}

type AdjustmentCommand struct {
	ProductID  int64
	OperatorID int64
	ShiftID    int64
	Delta      int
	Reason     string
	Notes      *string
}

type EndShiftCommand struct {
	ShiftID     int64
	OperatorID  int64
	EndingFloat *decimal.Decimal
	CashRemoved *decimal.Decimal
}

type PurchaseOrderLine struct {
	ProductID        int64           `json:"product_id" validate:"required,gt=0"`
	QuantityOrdered  int             `json:"quantity_ordered" validate:"gt=0"`
	CostPricePerUnit decimal.Decimal `json:"cost_price_per_unit"`
}

type CreatePurchaseOrderCommand struct {
	SupplierID           int64
	OperatorID           int64
	Status               PurchaseOrderStatus
	ExpectedDeliveryDate *time.Time
	Lines                []PurchaseOrderLine
}

// HTTP request and response payloads.

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type PlaceOrderRequest struct {
	Items          []OrderLine      `json:"items" validate:"required,min=1,dive"`
	CustomerID     *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	ShiftID        int64            `json:"shift_id" validate:"required,gt=0"`
	PaymentKind    PaymentKind      `json:"payment_kind" validate:"required,oneof=Cash Card"`
	AmountTendered *decimal.Decimal `json:"amount_tendered,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"max=128"`
}

type PlaceOrderResponse struct {
	Order     Order `json:"order"`
	Duplicate bool  `json:"duplicate"`
}

type ReturnRequest struct {
	OrderItemID int64   `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int     `json:"quantity" validate:"gt=0"`
	Restock     bool    `json:"restock"`
	Reason      *string `json:"reason,omitempty" validate:"omitempty,max=255"`
	ShiftID     int64   `json:"shift_id" validate:"required,gt=0"`
}

type ReceiveLine struct {
	LineID   int64 `json:"line_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity"`
}

type ReceiveRequest struct {
	Lines []ReceiveLine `json:"lines" validate:"required,min=1,dive"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID           int64               `json:"supplier_id" validate:"required,gt=0"`
	Status               PurchaseOrderStatus `json:"status,omitempty" validate:"omitempty,oneof=Pending Ordered"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	Lines                []PurchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
}

type StockAdjustmentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	ShiftID   int64   `json:"shift_id" validate:"required,gt=0"`
	Delta     int     `json:"delta"`
	Reason    string  `json:"reason" validate:"required,max=100"`
	Notes     *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type StockAdjustmentResponse struct {
	Adjustment      StockAdjustment `json:"adjustment"`
	QuantityInStock int             `json:"quantity_in_stock"`
}

type ShiftStartRequest struct {
	StartingFloat *decimal.Decimal `json:"starting_float,omitempty"`
}

type ShiftEndRequest struct {
	EndingFloat *decimal.Decimal `json:"ending_float"`
	CashRemoved *decimal.Decimal `json:"cash_removed,omitempty"`
}

type ShiftReconciliation struct {
	Shift        Shift           `json:"shift"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
}

type ProductCreateRequest struct {
	SKU                    string          `json:"sku" validate:"required,max=64"`
	Name                   string          `json:"name" validate:"required,max=200"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	CostPrice              decimal.Decimal `json:"cost_price"`
	InitialStock           int             `json:"initial_stock" validate:"gte=0"`
	ReorderLevel           int             `json:"reorder_level" validate:"gte=0"`
	Kind                   ProductKind     `json:"kind" validate:"required,oneof=perishable non_perishable"`
	StorageTempRequirement string          `json:"storage_temp_requirement,omitempty" validate:"max=100"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContactInfo string `json:"contact_info,omitempty" validate:"max=200"`
}

type CustomerCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContactInfo string `json:"contact_info,omitempty" validate:"max=200"`
}

type OrderQuery struct {
	From        string `validate:"omitempty,datetime=2006-01-02"`
	To          string `validate:"omitempty,datetime=2006-01-02"`
	CustomerID  int64  `validate:"gte=0"`
	ShiftID     int64  `validate:"gte=0"`
	PaymentKind string `validate:"omitempty,oneof=Cash Card Other"`
	Limit       int
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"required,oneof=cashier manager"`
}
