package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/ledger"
	"posledger/backend/internal/migration"
	"posledger/backend/internal/store"
	"posledger/backend/internal/store/postgres"
)

const testDatabaseEnv = "POSLEDGER_TEST_DATABASE_URL"

// newIntegrationStore migrates a scratch database from zero and returns a
// store over it. It skips unless a database URL is provided.
func newIntegrationStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	path, err := migration.ResolvePath("../../../migrations")
	require.NoError(t, err)

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	m, err := migration.New(db, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Down())
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	s, err := postgres.New(context.Background(), url, postgres.PoolConfig{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type integrationFixture struct {
	store    *postgres.Store
	ledger   *ledger.Ledger
	operator int64
	shift    int64
}

func newIntegrationFixture(t *testing.T) integrationFixture {
	t.Helper()
	ctx := context.Background()
	s := newIntegrationStore(t)

	user, err := s.CreateUser(ctx, domain.UserAccount{
		Username: "till", Password: "$2a$10$abcdefghijklmnopqrstuv", Role: "cashier", Active: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	l := ledger.New(s)
	float := decimal.RequireFromString("50")
	shift, err := l.StartShift(ctx, user.ID, &float)
	require.NoError(t, err)

	return integrationFixture{store: s, ledger: l, operator: user.ID, shift: shift.ID}
}

func (f integrationFixture) product(t *testing.T, sku string, stock int) int64 {
	t.Helper()
	p, err := f.store.CreateProduct(context.Background(), domain.Product{
		SKU:             sku,
		Name:            sku,
		UnitPrice:       decimal.RequireFromString("2.50"),
		CostPrice:       decimal.RequireFromString("1.00"),
		QuantityInStock: stock,
		ReorderLevel:    1,
		Kind:            domain.ProductNonPerishable,
	})
	require.NoError(t, err)
	return p.ID
}

func (f integrationFixture) sell(productID int64, qty int) (*domain.Order, error) {
	price := decimal.RequireFromString("2.50")
	cost := decimal.RequireFromString("1.00")
	return f.ledger.PlaceOrder(context.Background(), domain.PlaceOrderCommand{
		Lines:       []domain.OrderLine{{ProductID: productID, Quantity: qty, UnitPrice: &price, UnitCost: &cost}},
		OperatorID:  f.operator,
		ShiftID:     f.shift,
		PaymentKind: domain.PaymentCard,
	})
}

func TestIntegrationPlaceOrderPersists(t *testing.T) {
	f := newIntegrationFixture(t)
	id := f.product(t, "INT-1", 10)

	order, err := f.sell(id, 4)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("10")))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 4, stored.Items[0].Quantity)

	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 6, p.QuantityInStock)
}

func TestIntegrationOverdrawRollsBackWholeOrder(t *testing.T) {
	f := newIntegrationFixture(t)
	plenty := f.product(t, "INT-A", 10)
	scarce := f.product(t, "INT-B", 1)

	price := decimal.RequireFromString("2.50")
	_, err := f.ledger.PlaceOrder(context.Background(), domain.PlaceOrderCommand{
		Lines: []domain.OrderLine{
			{ProductID: plenty, Quantity: 3, UnitPrice: &price, UnitCost: &price},
			{ProductID: scarce, Quantity: 2, UnitPrice: &price, UnitCost: &price},
		},
		OperatorID:  f.operator,
		ShiftID:     f.shift,
		PaymentKind: domain.PaymentCard,
	})
	var insufficient *store.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, scarce, insufficient.ProductID)

	p, err := f.store.GetProduct(context.Background(), plenty)
	require.NoError(t, err)
	assert.Equal(t, 10, p.QuantityInStock)

	orders, err := f.store.ListOrders(context.Background(), domain.OrderFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestIntegrationConcurrentSalesNeverOversell(t *testing.T) {
	f := newIntegrationFixture(t)
	id := f.product(t, "INT-HOT", 5)

	const buyers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
		other    []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sell(id, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other, fmt.Sprintf("unexpected errors: %v", other))
	assert.Equal(t, 5, sold)
	assert.Equal(t, buyers-5, rejected)

	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.QuantityInStock)
}
