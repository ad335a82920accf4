package service

import (
	"context"
	"fmt"
	"strings"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrder{}, err
	}

	po, err := s.ledger.CreatePurchaseOrder(ctx, domain.CreatePurchaseOrderCommand{
		SupplierID:           req.SupplierID,
		OperatorID:           actor.UserID,
		Status:               req.Status,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		Lines:                req.Lines,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_create", "purchase_order", po.ID,
		fmt.Sprintf("supplier=%d,lines=%d,total=%s", po.SupplierID, len(po.Items), po.TotalCost.StringFixed(2)))
	return *po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID int64) (domain.PurchaseOrder, error) {
	if purchaseOrderID <= 0 {
		return domain.PurchaseOrder{}, store.Invalid("purchase_order_id", "must be positive")
	}
	po, err := s.repo.GetPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

// ListPurchaseOrders filters by status when one is given.
func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	filter := domain.PurchaseOrderStatus(strings.TrimSpace(status))
	if filter != "" && !filter.Valid() {
		return nil, store.Invalid("status", "unknown purchase order status")
	}
	return s.repo.ListPurchaseOrders(ctx, filter, clampLimit(limit, 200, 500))
}

func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID int64, req domain.ReceiveRequest) (domain.PurchaseOrder, error) {
	if _, err := s.actor(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrder{}, err
	}
	quantities := make(map[int64]int, len(req.Lines))
	for _, line := range req.Lines {
		quantities[line.LineID] += line.Quantity
	}

	po, err := s.ledger.ReceiveLines(ctx, purchaseOrderID, quantities)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", po.ID, fmt.Sprintf("lines=%d,status=%s", len(req.Lines), po.Status))
	return *po, nil
}

func (s *Service) ReceiveRemainder(ctx context.Context, purchaseOrderID int64) (domain.PurchaseOrder, error) {
	if _, err := s.actor(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.ledger.ReceiveRemainder(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_receive_remainder", "purchase_order", po.ID, fmt.Sprintf("status=%s", po.Status))
	return *po, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	adj, qty, err := s.ledger.AdjustStock(ctx, domain.AdjustmentCommand{
		ProductID:  req.ProductID,
		OperatorID: actor.UserID,
		ShiftID:    req.ShiftID,
		Delta:      req.Delta,
		Reason:     req.Reason,
		Notes:      trimmedPtr(req.Notes),
	})
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	s.logAudit(ctx, "stock_adjust", "product", adj.ProductID,
		fmt.Sprintf("delta=%d,reason=%s,stock=%d", adj.QuantityChange, adj.Reason, qty))
	return domain.StockAdjustmentResponse{Adjustment: *adj, QuantityInStock: qty}, nil
}

func (s *Service) ListAdjustments(ctx context.Context, productID int64, limit int) ([]domain.StockAdjustment, error) {
	if productID <= 0 {
		return nil, store.Invalid("product_id", "must be positive")
	}
	return s.repo.ListStockAdjustments(ctx, productID, clampLimit(limit, 100, 500))
}
