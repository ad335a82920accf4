package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// Store keeps every table in maps guarded by one mutex. WithinTx holds the
// write lock for the whole unit and works on a copy of the tables, so a
// failed unit leaves nothing behind. Repository methods must not be called
// from inside a WithinTx callback.
type Store struct {
	mu   sync.RWMutex
	data *tables
}

type tables struct {
	seq            map[string]int64
	products       map[int64]domain.Product
	productBySKU   map[string]int64
	orders         map[int64]domain.Order
	orderItems     map[int64]domain.OrderItem
	payments       map[int64]domain.Payment
	returns        map[int64]domain.SalesReturn
	purchaseOrders map[int64]domain.PurchaseOrder
	poItems        map[int64]domain.PurchaseOrderItem
	adjustments    []domain.StockAdjustment
	shifts         map[int64]domain.Shift
	customers      map[int64]domain.Customer
	suppliers      map[int64]domain.Supplier
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func New() *Store {
	return &Store{data: newTables()}
}

func newTables() *tables {
	return &tables{
		seq:            make(map[string]int64),
		products:       make(map[int64]domain.Product),
		productBySKU:   make(map[string]int64),
		orders:         make(map[int64]domain.Order),
		orderItems:     make(map[int64]domain.OrderItem),
		payments:       make(map[int64]domain.Payment),
		returns:        make(map[int64]domain.SalesReturn),
		purchaseOrders: make(map[int64]domain.PurchaseOrder),
		poItems:        make(map[int64]domain.PurchaseOrderItem),
		shifts:         make(map[int64]domain.Shift),
		customers:      make(map[int64]domain.Customer),
		suppliers:      make(map[int64]domain.Supplier),
		users:          make(map[string]domain.UserAccount),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		seq:            cloneMap(t.seq),
		products:       cloneMap(t.products),
		productBySKU:   cloneMap(t.productBySKU),
		orders:         cloneMap(t.orders),
		orderItems:     cloneMap(t.orderItems),
		payments:       cloneMap(t.payments),
		returns:        cloneMap(t.returns),
		purchaseOrders: cloneMap(t.purchaseOrders),
		poItems:        cloneMap(t.poItems),
		adjustments:    append([]domain.StockAdjustment(nil), t.adjustments...),
		shifts:         cloneMap(t.shifts),
		customers:      cloneMap(t.customers),
		suppliers:      cloneMap(t.suppliers),
		auditLogs:      append([]domain.AuditLog(nil), t.auditLogs...),
		users:          cloneMap(t.users),
	}
	return c
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (t *tables) next(table string) int64 {
	t.seq[table]++
	return t.seq[table]
}

// seedUsers builds the initial accounts for dev/demo mode. Passwords come
// from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev
// defaults with a warning.
func seedUsers(t *tables) {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, "manager"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		t.users[u.username] = domain.UserAccount{
			ID:        t.next("user"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	t := newTables()
	seedUsers(t)

	products := []domain.Product{
		{SKU: "MILK-1L", Name: "Whole Milk 1L", UnitPrice: decimal.RequireFromString("1.89"), CostPrice: decimal.RequireFromString("1.20"), QuantityInStock: 40, ReorderLevel: 10, Kind: domain.ProductPerishable, Perishable: &domain.PerishableDetails{StorageTempRequirement: "2-4C"}},
		{SKU: "EGGS-12", Name: "Eggs (12)", UnitPrice: decimal.RequireFromString("3.49"), CostPrice: decimal.RequireFromString("2.10"), QuantityInStock: 25, ReorderLevel: 8, Kind: domain.ProductPerishable, Perishable: &domain.PerishableDetails{StorageTempRequirement: "below 7C"}},
		{SKU: "BREAD-WH", Name: "White Bread", UnitPrice: decimal.RequireFromString("2.29"), CostPrice: decimal.RequireFromString("1.05"), QuantityInStock: 18, ReorderLevel: 6, Kind: domain.ProductPerishable, Perishable: &domain.PerishableDetails{StorageTempRequirement: "ambient"}},
		{SKU: "RICE-2KG", Name: "Long Grain Rice 2kg", UnitPrice: decimal.RequireFromString("4.99"), CostPrice: decimal.RequireFromString("3.10"), QuantityInStock: 30, ReorderLevel: 5, Kind: domain.ProductNonPerishable},
		{SKU: "SOAP-BAR", Name: "Bar Soap", UnitPrice: decimal.RequireFromString("0.99"), CostPrice: decimal.RequireFromString("0.45"), QuantityInStock: 60, ReorderLevel: 12, Kind: domain.ProductNonPerishable},
		{SKU: "COFFEE-250", Name: "Ground Coffee 250g", UnitPrice: decimal.RequireFromString("6.49"), CostPrice: decimal.RequireFromString("4.00"), QuantityInStock: 4, ReorderLevel: 5, Kind: domain.ProductNonPerishable},
	}
	for _, p := range products {
		p.ID = t.next("product")
		t.products[p.ID] = p
		t.productBySKU[p.SKU] = p.ID
	}

	supplierID := t.next("supplier")
	t.suppliers[supplierID] = domain.Supplier{ID: supplierID, Name: "Northside Wholesale", ContactInfo: "orders@northside.example"}
	customerID := t.next("customer")
	t.customers[customerID] = domain.Customer{ID: customerID, Name: "Walk-in Regular", ContactInfo: "555-0100"}

	return &Store{data: t}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("begin", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &memTx{t: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return store.Unavailable("commit", err)
	}
	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || !product.Kind.Valid() || product.QuantityInStock < 0 {
		return nil, store.Invalid("product", "sku, name, kind and non-negative stock are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.productBySKU[product.SKU]; exists {
		return nil, store.ErrConflict
	}
	if product.Kind == domain.ProductNonPerishable {
		product.Perishable = nil
	}
	product.ID = s.data.next("product")
	s.data.products[product.ID] = product
	s.data.productBySKU[product.SKU] = product.ID
	saved := product
	return &saved, nil
}

func (s *Store) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.data.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.data.productBySKU[strings.TrimSpace(sku)]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	product := s.data.products[id]
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name == products[j].Name {
			return products[i].ID < products[j].ID
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, 8)
	for _, p := range all {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].QuantityInStock < low[j].QuantityInStock
	})
	if limit > 0 && len(low) > limit {
		low = low[:limit]
	}
	return low, nil
}

func (s *Store) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.data.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	full := s.data.assembleOrder(order)
	return &full, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 32)
	for _, order := range s.data.orders {
		if filter.From != nil && order.OrderDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && order.OrderDate.After(*filter.To) {
			continue
		}
		if filter.CustomerID != nil && (order.CustomerID == nil || *order.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.ShiftID != nil && order.ShiftID != *filter.ShiftID {
			continue
		}
		full := s.data.assembleOrder(order)
		if filter.PaymentKind != "" && (full.Payment == nil || full.Payment.Kind != filter.PaymentKind) {
			continue
		}
		orders = append(orders, full)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].OrderDate.After(orders[j].OrderDate)
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (t *tables) assembleOrder(order domain.Order) domain.Order {
	order.Items = nil
	for _, item := range t.orderItems {
		if item.OrderID == order.ID {
			order.Items = append(order.Items, item)
		}
	}
	sort.Slice(order.Items, func(i, j int) bool { return order.Items[i].ID < order.Items[j].ID })
	order.Payment = nil
	for _, payment := range t.payments {
		if payment.OrderID == order.ID {
			p := payment
			order.Payment = &p
			break
		}
	}
	return order
}

func (s *Store) ListReturns(_ context.Context, orderItemID int64) ([]domain.SalesReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.SalesReturn, 0, 4)
	for _, ret := range s.data.returns {
		if ret.OriginalOrderItemID == orderItemID {
			returns = append(returns, ret)
		}
	}
	sort.Slice(returns, func(i, j int) bool { return returns[i].ID < returns[j].ID })
	return returns, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.data.purchaseOrders[purchaseOrderID]
	if !ok {
		return nil, store.ErrPurchaseOrderNotFound
	}
	full := s.data.assemblePurchaseOrder(po)
	return &full, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := make([]domain.PurchaseOrder, 0, len(s.data.purchaseOrders))
	for _, po := range s.data.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		pos = append(pos, s.data.assemblePurchaseOrder(po))
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].ID > pos[j].ID })
	if limit > 0 && len(pos) > limit {
		pos = pos[:limit]
	}
	return pos, nil
}

func (t *tables) assemblePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	po.Items = make([]domain.PurchaseOrderItem, 0, 4)
	for _, item := range t.poItems {
		if item.PurchaseOrderID == po.ID {
			po.Items = append(po.Items, item)
		}
	}
	sort.Slice(po.Items, func(i, j int) bool { return po.Items[i].ID < po.Items[j].ID })
	return po
}

func (s *Store) ListStockAdjustments(_ context.Context, productID int64, limit int) ([]domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockAdjustment, 0, 8)
	for i := len(s.data.adjustments) - 1; i >= 0; i-- {
		adj := s.data.adjustments[i]
		if adj.ProductID != productID {
			continue
		}
		result = append(result, adj)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetShift(_ context.Context, shiftID int64) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.data.shifts[shiftID]
	if !ok {
		return nil, store.ErrShiftNotFound
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data.openShift()
}

func (t *tables) openShift() (*domain.Shift, error) {
	var open *domain.Shift
	for _, shift := range t.shifts {
		if shift.Status != domain.ShiftStatusOpen {
			continue
		}
		if open == nil || shift.StartTime.After(open.StartTime) {
			sh := shift
			open = &sh
		}
	}
	if open == nil {
		return nil, store.ErrShiftNotFound
	}
	return open, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.Invalid("name", "supplier name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.ID = s.data.next("supplier")
	s.data.suppliers[supplier.ID] = supplier
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.data.suppliers))
	for _, supplier := range s.data.suppliers {
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.Invalid("name", "customer name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer.ID = s.data.next("customer")
	s.data.customers[customer.ID] = customer
	saved := customer
	return &saved, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.data.customers[customerID]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return &customer, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.data.next("audit")
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.auditLogs = append(s.data.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 16)
	for i := len(s.data.auditLogs) - 1; i >= 0; i-- {
		result = append(result, s.data.auditLogs[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return nil, store.Invalid("username", "username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.users[username]; exists {
		return nil, store.ErrConflict
	}
	user.Username = username
	user.ID = s.data.next("user")
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.data.users[username] = user
	saved := user
	return &saved, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.data.users))
	for _, user := range s.data.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.users[username] = user
	return nil
}
