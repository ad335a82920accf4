package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

// CheckMoney rejects negative amounts and amounts finer than MoneyScale
// places. Money columns are NUMERIC(12,2).
func CheckMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return store.Invalid(field, "must not be negative")
	}
	if !d.Round(MoneyScale).Equal(d) {
		return store.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

func validateOrder(cmd domain.PlaceOrderCommand) error {
	if len(cmd.Lines) == 0 {
		return store.Invalid("items", "at least one item is required")
	}
	for i, line := range cmd.Lines {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case line.ProductID <= 0:
			return store.Invalid(field+".product_id", "must be positive")
		case line.Quantity <= 0:
			return store.Invalid(field+".quantity", "must be greater than zero")
		case line.UnitPrice == nil:
			return store.Invalid(field+".unit_price", "is required")
		case line.UnitCost == nil:
			return store.Invalid(field+".unit_cost", "is required")
		}
		if err := CheckMoney(field+".unit_price", *line.UnitPrice); err != nil {
			return err
		}
		if err := CheckMoney(field+".unit_cost", *line.UnitCost); err != nil {
			return err
		}
	}
	if cmd.ShiftID <= 0 {
		return store.Invalid("shift_id", "must be positive")
	}
	switch cmd.PaymentKind {
	case domain.PaymentCash:
		if cmd.AmountTendered == nil {
			return store.Invalid("amount_tendered", "is required for cash payments")
		}
		if err := CheckMoney("amount_tendered", *cmd.AmountTendered); err != nil {
			return err
		}
	case domain.PaymentCard:
	default:
		return store.Invalid("payment_kind", "must be Cash or Card")
	}
	return nil
}

// OrderTotal is the sum of unit price times quantity over all lines.
func OrderTotal(lines []domain.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.UnitPrice == nil {
			continue
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// PlaceOrder records a completed sale: the order header, its items, the
// payment with its variant, and one stock debit per product.
func (l *Ledger) PlaceOrder(ctx context.Context, cmd domain.PlaceOrderCommand) (*domain.Order, error) {
	if err := validateOrder(cmd); err != nil {
		return nil, err
	}

	total := OrderTotal(cmd.Lines)
	var (
		placed      domain.Order
		shortTender bool
	)

	err := l.run(ctx, "place_order", func(ctx context.Context, tx store.Tx, u *unit) error {
		shortTender = false
		if _, err := openShift(ctx, tx, cmd.ShiftID); err != nil {
			return err
		}
		if cmd.CustomerID != nil {
			if _, err := tx.GetCustomer(ctx, *cmd.CustomerID); err != nil {
				return err
			}
		}

		now := l.now()
		order := domain.Order{
			ReceiptNo:   l.receiptNo(now),
			OrderDate:   now,
			TotalAmount: total,
			CustomerID:  cmd.CustomerID,
			UserID:      cmd.OperatorID,
			ShiftID:     cmd.ShiftID,
			Status:      domain.OrderStatusCompleted,
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		order.Items = make([]domain.OrderItem, 0, len(cmd.Lines))
		for _, line := range cmd.Lines {
			item := domain.OrderItem{
				OrderID:         order.ID,
				ProductID:       line.ProductID,
				Quantity:        line.Quantity,
				UnitPriceAtSale: *line.UnitPrice,
				CostPriceAtSale: *line.UnitCost,
			}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}

		payment := domain.Payment{
			OrderID:     order.ID,
			PaymentDate: now,
			Amount:      total,
			Kind:        cmd.PaymentKind,
		}
		if cmd.PaymentKind == domain.PaymentCash {
			change := cmd.AmountTendered.Sub(total)
			if change.IsNegative() {
				shortTender = true
				change = decimal.Zero
			}
			payment.Cash = &domain.CashDetails{AmountTendered: *cmd.AmountTendered, ChangeGiven: change}
		}
		if err := tx.InsertPayment(ctx, &payment); err != nil {
			return err
		}
		order.Payment = &payment

		debits := make(map[int64]int, len(order.Items))
		for _, item := range order.Items {
			debits[item.ProductID] -= item.Quantity
		}
		if err := u.adjustAll(ctx, tx, debits); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shortTender {
		l.log.Warn("cash tendered below order total; change clamped to zero",
			zap.Int64("order_id", placed.ID),
			zap.String("total", total.StringFixed(2)),
			zap.String("tendered", cmd.AmountTendered.StringFixed(2)),
		)
	}
	return &placed, nil
}
