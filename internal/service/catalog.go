package service

import (
	"context"
	"fmt"
	"strings"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/ledger"
	"posledger/backend/internal/store"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.actor(ctx); err != nil {
		return domain.Product{}, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.StorageTempRequirement = strings.TrimSpace(req.StorageTempRequirement)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if err := ledger.CheckMoney("unit_price", req.UnitPrice); err != nil {
		return domain.Product{}, err
	}
	if err := ledger.CheckMoney("cost_price", req.CostPrice); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		SKU:             req.SKU,
		Name:            req.Name,
		UnitPrice:       req.UnitPrice,
		CostPrice:       req.CostPrice,
		QuantityInStock: req.InitialStock,
		ReorderLevel:    req.ReorderLevel,
		Kind:            req.Kind,
	}
	if req.Kind == domain.ProductPerishable {
		product.Perishable = &domain.PerishableDetails{StorageTempRequirement: req.StorageTempRequirement}
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,price=%s,stock=%d", created.SKU, created.UnitPrice.StringFixed(2), created.QuantityInStock))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	if productID <= 0 {
		return domain.Product{}, store.Invalid("product_id", "must be positive")
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// GetProductBySKU matches the SKU exactly after normalising case.
func (s *Service) GetProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.Invalid("sku", "is required")
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, s.lowStockLimit)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := s.actor(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ContactInfo = strings.TrimSpace(req.ContactInfo)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{Name: req.Name, ContactInfo: req.ContactInfo})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.actor(ctx); err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ContactInfo = strings.TrimSpace(req.ContactInfo)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.CreateCustomer(ctx, domain.Customer{Name: req.Name, ContactInfo: req.ContactInfo})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID int64) (domain.Customer, error) {
	if customerID <= 0 {
		return domain.Customer{}, store.Invalid("customer_id", "must be positive")
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}
