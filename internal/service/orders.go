package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"posledger/backend/internal/cache"
	"posledger/backend/internal/domain"
	"posledger/backend/internal/logger"
	"posledger/backend/internal/store"
)

// PlaceOrder sells the requested lines. Lines without a unit price or cost
// take the catalog's current values. Idempotency keys are scoped to the
// actor: a repeat of a completed request returns the original order flagged
// as a duplicate, while a repeat still in flight or one whose payload
// differs from the first fails with store.ErrConflict.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.PlaceOrderResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PlaceOrderResponse{}, err
	}

	var key, fingerprint string
	if req.IdempotencyKey != "" {
		key = strconv.FormatInt(actor.UserID, 10) + ":" + req.IdempotencyKey
		if fingerprint, err = orderFingerprint(req); err != nil {
			return domain.PlaceOrderResponse{}, err
		}
		if receipt, ok, err := s.orders.Get(ctx, key); err == nil && ok {
			if receipt.Fingerprint != fingerprint {
				s.metrics.Idempotency("mismatch")
				return domain.PlaceOrderResponse{}, fmt.Errorf("idempotency key %q was used for a different order: %w", req.IdempotencyKey, store.ErrConflict)
			}
			s.metrics.Idempotency("hit")
			return domain.PlaceOrderResponse{Order: receipt.Order, Duplicate: true}, nil
		}
	}

	lines, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return domain.PlaceOrderResponse{}, err
	}

	if key != "" {
		claimed, err := s.orders.Claim(ctx, key, s.idempotencyTTL)
		if err != nil {
			return domain.PlaceOrderResponse{}, store.Unavailable("claim idempotency key", err)
		}
		if !claimed {
			s.metrics.Idempotency("busy")
			return domain.PlaceOrderResponse{}, fmt.Errorf("order %q already in progress: %w", req.IdempotencyKey, store.ErrConflict)
		}
		s.metrics.Idempotency("miss")
	}

	order, err := s.ledger.PlaceOrder(ctx, domain.PlaceOrderCommand{
		Lines:          lines,
		CustomerID:     req.CustomerID,
		OperatorID:     actor.UserID,
		ShiftID:        req.ShiftID,
		PaymentKind:    req.PaymentKind,
		AmountTendered: req.AmountTendered,
	})
	if err != nil {
		if key != "" {
			if releaseErr := s.orders.Release(ctx, key); releaseErr != nil {
				logger.FromContext(ctx, s.log).Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}
		return domain.PlaceOrderResponse{}, err
	}
	if key != "" {
		if err := s.orders.Set(ctx, key, cache.Receipt{Order: *order, Fingerprint: fingerprint}, s.idempotencyTTL); err != nil {
			logger.FromContext(ctx, s.log).Warn("failed to cache order receipt", zap.String("key", key), zap.Error(err))
		}
	}

	s.logAudit(ctx, "order_place", "order", order.ID,
		fmt.Sprintf("receipt=%s,total=%s,payment=%s,items=%d", order.ReceiptNo, order.TotalAmount.StringFixed(2), req.PaymentKind, len(order.Items)))
	return domain.PlaceOrderResponse{Order: *order}, nil
}

// orderFingerprint hashes everything in req except the idempotency key.
func orderFingerprint(req domain.PlaceOrderRequest) (string, error) {
	req.IdempotencyKey = ""
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("fingerprint order request: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) priceLines(ctx context.Context, items []domain.OrderLine) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, len(items))
	for i, item := range items {
		if item.UnitPrice == nil || item.UnitCost == nil {
			product, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil {
				return nil, err
			}
			if item.UnitPrice == nil {
				price := product.UnitPrice
				item.UnitPrice = &price
			}
			if item.UnitCost == nil {
				cost := product.CostPrice
				item.UnitCost = &cost
			}
		}
		lines[i] = item
	}
	return lines, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	if orderID <= 0 {
		return domain.Order{}, store.Invalid("order_id", "must be positive")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// ListOrders returns orders newest first. From and To are calendar dates in
// UTC; To includes the whole day.
func (s *Service) ListOrders(ctx context.Context, query domain.OrderQuery) ([]domain.Order, error) {
	if err := s.check(query); err != nil {
		return nil, err
	}
	filter := domain.OrderFilter{
		PaymentKind: domain.PaymentKind(query.PaymentKind),
		Limit:       clampLimit(query.Limit, 100, 500),
	}
	if query.From != "" {
		from, _ := time.Parse(time.DateOnly, query.From)
		filter.From = &from
	}
	if query.To != "" {
		to, _ := time.Parse(time.DateOnly, query.To)
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, store.Invalid("to", "must not be before from")
	}
	if query.CustomerID > 0 {
		id := query.CustomerID
		filter.CustomerID = &id
	}
	if query.ShiftID > 0 {
		id := query.ShiftID
		filter.ShiftID = &id
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) ReturnItem(ctx context.Context, req domain.ReturnRequest) (domain.SalesReturn, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.SalesReturn{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SalesReturn{}, err
	}

	ret, err := s.ledger.ReturnItem(ctx, domain.ReturnCommand{
		OrderItemID: req.OrderItemID,
		Quantity:    req.Quantity,
		Restock:     req.Restock,
		Reason:      trimmedPtr(req.Reason),
		OperatorID:  actor.UserID,
		ShiftID:     req.ShiftID,
	})
	if err != nil {
		return domain.SalesReturn{}, err
	}

	s.logAudit(ctx, "return_item", "sales_return", ret.ID,
		fmt.Sprintf("order_item=%d,qty=%d,restock=%t,refund=%s", ret.OriginalOrderItemID, ret.QuantityReturned, ret.Restock, ret.RefundAmount.StringFixed(2)))
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, orderItemID int64) ([]domain.SalesReturn, error) {
	if orderItemID <= 0 {
		return nil, store.Invalid("order_item_id", "must be positive")
	}
	return s.repo.ListReturns(ctx, orderItemID)
}
