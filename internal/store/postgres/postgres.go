package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

func New(ctx context.Context, databaseURL string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 8
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 30
	}
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

// WithinTx runs fn inside a READ COMMITTED transaction. Writers that race on
// the same rows are ordered by row locks and conditional updates in pgTx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.Unavailable("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return store.WithRollback(err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return store.Unavailable("commit", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const productColumns = `
	p.product_id, p.sku, p.name, p.unit_price, p.current_cost_price,
	p.quantity_in_stock, p.reorder_level,
	pp.product_id IS NOT NULL, COALESCE(pp.storage_temp_requirement, '')
	FROM product p
	LEFT JOIN perishable_product pp ON pp.product_id = p.product_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p          domain.Product
		perishable bool
		storage    string
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitPrice, &p.CostPrice,
		&p.QuantityInStock, &p.ReorderLevel, &perishable, &storage); err != nil {
		return domain.Product{}, err
	}
	if perishable {
		p.Kind = domain.ProductPerishable
		p.Perishable = &domain.PerishableDetails{StorageTempRequirement: storage}
	} else {
		p.Kind = domain.ProductNonPerishable
	}
	return p, nil
}

func getProduct(ctx context.Context, q queryer, query string, arg any) (*domain.Product, error) {
	product, err := scanProduct(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, mapErr("get product", err)
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || !product.Kind.Valid() || product.QuantityInStock < 0 {
		return nil, store.Invalid("product", "sku, name, kind and non-negative stock are required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, store.Unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO product (sku, name, unit_price, quantity_in_stock, current_cost_price, reorder_level)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING product_id
	`, product.SKU, product.Name, product.UnitPrice, product.QuantityInStock, product.CostPrice, product.ReorderLevel).Scan(&product.ID)
	if err != nil {
		return nil, mapErr("insert product", err)
	}

	switch product.Kind {
	case domain.ProductPerishable:
		storage := ""
		if product.Perishable != nil {
			storage = product.Perishable.StorageTempRequirement
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO perishable_product (product_id, storage_temp_requirement) VALUES ($1,$2)
		`, product.ID, nullIfEmpty(storage))
		product.Perishable = &domain.PerishableDetails{StorageTempRequirement: storage}
	default:
		_, err = tx.ExecContext(ctx, `INSERT INTO non_perishable_product (product_id) VALUES ($1)`, product.ID)
		product.Perishable = nil
	}
	if err != nil {
		return nil, mapErr("insert product variant", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Unavailable("commit", err)
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, `SELECT `+productColumns+` WHERE p.product_id = $1`, productID)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `SELECT `+productColumns+` WHERE p.sku = $1`, strings.TrimSpace(sku))
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, `SELECT `+productColumns+` ORDER BY p.name, p.product_id`)
}

func (s *Store) ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + `
		WHERE p.reorder_level > 0 AND p.quantity_in_stock <= p.reorder_level
		ORDER BY p.quantity_in_stock, p.name`
	if limit > 0 {
		return s.listProducts(ctx, query+` LIMIT $1`, limit)
	}
	return s.listProducts(ctx, query)
}

func (s *Store) listProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapErr("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list products", err)
	}
	return products, nil
}

const orderColumns = `order_id, receipt_no, order_date, total_amount, customer_id, user_id, shift_id, order_status`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order      domain.Order
		customerID sql.NullInt64
	)
	if err := row.Scan(&order.ID, &order.ReceiptNo, &order.OrderDate, &order.TotalAmount,
		&customerID, &order.UserID, &order.ShiftID, &order.Status); err != nil {
		return domain.Order{}, err
	}
	if customerID.Valid {
		id := customerID.Int64
		order.CustomerID = &id
	}
	order.OrderDate = order.OrderDate.UTC()
	return order, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM "order" WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, mapErr("get order", err)
	}
	if err := s.loadOrderDetails(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil {
		where = append(where, "o.order_date >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "o.order_date <= "+arg(*filter.To))
	}
	if filter.CustomerID != nil {
		where = append(where, "o.customer_id = "+arg(*filter.CustomerID))
	}
	if filter.ShiftID != nil {
		where = append(where, "o.shift_id = "+arg(*filter.ShiftID))
	}
	switch filter.PaymentKind {
	case domain.PaymentCash:
		where = append(where, `EXISTS (SELECT 1 FROM payment p JOIN cash_payment c ON c.payment_id = p.payment_id WHERE p.order_id = o.order_id)`)
	case domain.PaymentCard:
		where = append(where, `EXISTS (SELECT 1 FROM payment p JOIN card_payment c ON c.payment_id = p.payment_id WHERE p.order_id = o.order_id)`)
	case domain.PaymentOther:
		where = append(where, `EXISTS (
			SELECT 1 FROM payment p
			WHERE p.order_id = o.order_id
			  AND NOT EXISTS (SELECT 1 FROM cash_payment c WHERE c.payment_id = p.payment_id)
			  AND NOT EXISTS (SELECT 1 FROM card_payment c WHERE c.payment_id = p.payment_id))`)
	}

	query := `SELECT o.order_id, o.receipt_no, o.order_date, o.total_amount, o.customer_id, o.user_id, o.shift_id, o.order_status
		FROM "order" o`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.order_date DESC, o.order_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list orders", err)
	}
	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, mapErr("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, mapErr("list orders", err)
	}
	_ = rows.Close()

	for i := range orders {
		if err := s.loadOrderDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) loadOrderDetails(ctx context.Context, order *domain.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_item_id, order_id, product_id, quantity, unit_price_at_sale, cost_price_at_sale
		FROM order_item
		WHERE order_id = $1
		ORDER BY order_item_id
	`, order.ID)
	if err != nil {
		return mapErr("load order items", err)
	}
	defer rows.Close()

	order.Items = make([]domain.OrderItem, 0, 4)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceAtSale, &item.CostPriceAtSale); err != nil {
			return mapErr("scan order item", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return mapErr("load order items", err)
	}

	var (
		payment        domain.Payment
		isCash, isCard bool
		tendered       decimal.NullDecimal
		change         decimal.NullDecimal
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT p.payment_id, p.order_id, p.payment_date, p.amount,
		       cp.payment_id IS NOT NULL, cd.payment_id IS NOT NULL,
		       cp.amount_tendered, cp.change_given
		FROM payment p
		LEFT JOIN cash_payment cp ON cp.payment_id = p.payment_id
		LEFT JOIN card_payment cd ON cd.payment_id = p.payment_id
		WHERE p.order_id = $1
	`, order.ID).Scan(&payment.ID, &payment.OrderID, &payment.PaymentDate, &payment.Amount, &isCash, &isCard, &tendered, &change)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return mapErr("load payment", err)
	}

	payment.PaymentDate = payment.PaymentDate.UTC()
	switch {
	case isCash:
		payment.Kind = domain.PaymentCash
		payment.Cash = &domain.CashDetails{AmountTendered: tendered.Decimal, ChangeGiven: change.Decimal}
	case isCard:
		payment.Kind = domain.PaymentCard
	default:
		payment.Kind = domain.PaymentOther
	}
	order.Payment = &payment
	return nil
}

func (s *Store) ListReturns(ctx context.Context, orderItemID int64) ([]domain.SalesReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT return_id, return_date, original_order_item_id, quantity_returned, reason,
		       restock_flag, refund_amount, processed_by_user_id, shift_id
		FROM sales_return
		WHERE original_order_item_id = $1
		ORDER BY return_id
	`, orderItemID)
	if err != nil {
		return nil, mapErr("list returns", err)
	}
	defer rows.Close()

	returns := make([]domain.SalesReturn, 0, 4)
	for rows.Next() {
		var (
			ret    domain.SalesReturn
			reason sql.NullString
		)
		if err := rows.Scan(&ret.ID, &ret.ReturnDate, &ret.OriginalOrderItemID, &ret.QuantityReturned, &reason,
			&ret.Restock, &ret.RefundAmount, &ret.ProcessedByUserID, &ret.ShiftID); err != nil {
			return nil, mapErr("scan return", err)
		}
		ret.ReturnDate = ret.ReturnDate.UTC()
		ret.Reason = stringPtr(reason)
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list returns", err)
	}
	return returns, nil
}

const purchaseOrderColumns = `purchase_order_id, po_date, status, expected_delivery_date, actual_delivery_date,
	supplier_id, placed_by_user_id, total_cost`

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var (
		po               domain.PurchaseOrder
		expected, actual sql.NullTime
	)
	if err := row.Scan(&po.ID, &po.PODate, &po.Status, &expected, &actual,
		&po.SupplierID, &po.PlacedByUserID, &po.TotalCost); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.PODate = po.PODate.UTC()
	po.ExpectedDeliveryDate = timePtr(expected)
	po.ActualDeliveryDate = timePtr(actual)
	return po, nil
}

func loadPurchaseOrderItems(ctx context.Context, q queryer, po *domain.PurchaseOrder, lock bool) error {
	query := `
		SELECT purchase_order_item_id, purchase_order_id, product_id, quantity_ordered, cost_price_per_unit, quantity_received
		FROM purchase_order_item
		WHERE purchase_order_id = $1
		ORDER BY purchase_order_item_id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, po.ID)
	if err != nil {
		return mapErr("load purchase order items", err)
	}
	defer rows.Close()

	po.Items = make([]domain.PurchaseOrderItem, 0, 4)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.QuantityOrdered,
			&item.CostPricePerUnit, &item.QuantityReceived); err != nil {
			return mapErr("scan purchase order item", err)
		}
		po.Items = append(po.Items, item)
	}
	if err := rows.Err(); err != nil {
		return mapErr("load purchase order items", err)
	}
	return nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, purchaseOrderID int64) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_order WHERE purchase_order_id = $1`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPurchaseOrderNotFound
		}
		return nil, mapErr("get purchase order", err)
	}
	if err := loadPurchaseOrderItems(ctx, s.db, &po, false); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_order
		WHERE ($1::text = '' OR status = $1)
		ORDER BY purchase_order_id DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, mapErr("list purchase orders", err)
	}
	pos := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, mapErr("scan purchase order", err)
		}
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, mapErr("list purchase orders", err)
	}
	_ = rows.Close()

	for i := range pos {
		if err := loadPurchaseOrderItems(ctx, s.db, &pos[i], false); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

func (s *Store) ListStockAdjustments(ctx context.Context, productID int64, limit int) ([]domain.StockAdjustment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT adjustment_id, adjustment_date, product_id, user_id, shift_id, quantity_change, reason, notes
		FROM stock_adjustment
		WHERE product_id = $1
		ORDER BY adjustment_date DESC, adjustment_id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, mapErr("list stock adjustments", err)
	}
	defer rows.Close()

	result := make([]domain.StockAdjustment, 0, 16)
	for rows.Next() {
		var (
			adj   domain.StockAdjustment
			notes sql.NullString
		)
		if err := rows.Scan(&adj.ID, &adj.AdjustmentDate, &adj.ProductID, &adj.UserID, &adj.ShiftID,
			&adj.QuantityChange, &adj.Reason, &notes); err != nil {
			return nil, mapErr("scan stock adjustment", err)
		}
		adj.AdjustmentDate = adj.AdjustmentDate.UTC()
		adj.Notes = stringPtr(notes)
		result = append(result, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list stock adjustments", err)
	}
	return result, nil
}

const shiftColumns = `shift_id, start_time, end_time, status, start_user_id, end_user_id,
	starting_float, cash_sales_amount, card_sales_amount, other_sales_amount,
	cash_removed, ending_float, cash_discrepancy`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var (
		shift     domain.Shift
		endTime   sql.NullTime
		endUserID sql.NullInt64
	)
	if err := row.Scan(&shift.ID, &shift.StartTime, &endTime, &shift.Status, &shift.StartUserID, &endUserID,
		&shift.StartingFloat, &shift.CashSalesAmount, &shift.CardSalesAmount, &shift.OtherSalesAmount,
		&shift.CashRemoved, &shift.EndingFloat, &shift.CashDiscrepancy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, mapErr("get shift", err)
	}
	shift.StartTime = shift.StartTime.UTC()
	shift.EndTime = timePtr(endTime)
	if endUserID.Valid {
		id := endUserID.Int64
		shift.EndUserID = &id
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID int64) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shift WHERE shift_id = $1`, shiftID))
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shift
		WHERE status = 'Open'
		ORDER BY start_time DESC
		LIMIT 1
	`))
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.Invalid("name", "supplier name is required")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO supplier (name, contact_info) VALUES ($1,$2) RETURNING supplier_id
	`, supplier.Name, nullIfEmpty(supplier.ContactInfo)).Scan(&supplier.ID)
	if err != nil {
		return nil, mapErr("insert supplier", err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT supplier_id, name, COALESCE(contact_info, '') FROM supplier ORDER BY name
	`)
	if err != nil {
		return nil, mapErr("list suppliers", err)
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.ContactInfo); err != nil {
			return nil, mapErr("scan supplier", err)
		}
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list suppliers", err)
	}
	return suppliers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.Invalid("name", "customer name is required")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customer (name, contact_info, loyalty_points) VALUES ($1,$2,$3) RETURNING customer_id
	`, customer.Name, nullIfEmpty(customer.ContactInfo), customer.LoyaltyPoints).Scan(&customer.ID)
	if err != nil {
		return nil, mapErr("insert customer", err)
	}
	return &customer, nil
}

func getCustomer(ctx context.Context, q queryer, customerID int64) (*domain.Customer, error) {
	var customer domain.Customer
	err := q.QueryRowContext(ctx, `
		SELECT customer_id, name, COALESCE(contact_info, ''), loyalty_points FROM customer WHERE customer_id = $1
	`, customerID).Scan(&customer.ID, &customer.Name, &customer.ContactInfo, &customer.LoyaltyPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, mapErr("get customer", err)
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, customerID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_user_id, actor_username, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ActorUserID, entry.ActorUsername, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return mapErr("insert audit log", err)
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT audit_id, actor_user_id, actor_username, action, entity_type, entity_id, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC, audit_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr("list audit logs", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUserID, &entry.ActorUsername, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, mapErr("scan audit log", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list audit logs", err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" {
		return nil, store.Invalid("username", "username and password are required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO app_user (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING user_id
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		return nil, mapErr("insert user", err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, password, role, active, created_at
		FROM app_user
		ORDER BY username
	`)
	if err != nil {
		return nil, mapErr("list users", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, mapErr("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list users", err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_user SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return mapErr("update user password", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapErr("update user password", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// foreignKeys maps FK constraint names to the not-found error of the
// referenced entity.
var foreignKeys = map[string]error{
	"order_customer_id_fkey":                   store.ErrCustomerNotFound,
	"order_shift_id_fkey":                      store.ErrShiftNotFound,
	"order_item_product_id_fkey":               store.ErrProductNotFound,
	"sales_return_shift_id_fkey":               store.ErrShiftNotFound,
	"sales_return_original_order_item_id_fkey": store.ErrOrderItemNotFound,
	"purchase_order_supplier_id_fkey":          store.ErrSupplierNotFound,
	"purchase_order_item_product_id_fkey":      store.ErrProductNotFound,
	"stock_adjustment_product_id_fkey":         store.ErrProductNotFound,
	"stock_adjustment_shift_id_fkey":           store.ErrShiftNotFound,
}

// mapErr translates driver failures into the store taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return store.Unavailable(op, err)
	}

	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "shift_single_open_idx" {
			return store.ErrShiftAlreadyOpen
		}
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	case "23503":
		if target, ok := foreignKeys[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%s: %w", op, target)
		}
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case "23514", "22003":
		return store.Invalid(op, pgErr.Message)
	}

	if len(pgErr.Code) < 2 {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.Code[:2] {
	case "08", "40", "53", "55", "57":
		// connection, serialization/deadlock, resources, lock timeout, shutdown
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func stringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}
