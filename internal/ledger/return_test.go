package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/store/memory"
)

func (f *fixture) sell(t *testing.T, p *domain.Product, qty int) domain.OrderItem {
	t.Helper()
	order, err := f.ledger.PlaceOrder(context.Background(), f.cardOrder(line(p, qty)))
	require.NoError(t, err)
	return order.Items[0]
}

func (f *fixture) returnCmd(item domain.OrderItem, qty int, restock bool) domain.ReturnCommand {
	return domain.ReturnCommand{
		OrderItemID: item.ID,
		Quantity:    qty,
		Restock:     restock,
		OperatorID:  1,
		ShiftID:     f.shift.ID,
	}
}

func TestReturnItemRestocksAndRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "SKU-R", "2.50", 10)
	item := f.sell(t, p, 3)
	require.Equal(t, 7, f.stock(t, p.ID))

	ret, err := f.ledger.ReturnItem(ctx, f.returnCmd(item, 2, true))
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(dec("5.00")))
	assert.Equal(t, 9, f.stock(t, p.ID))

	_, err = f.ledger.ReturnItem(ctx, f.returnCmd(item, 1, false))
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, p.ID), "non-restock return leaves stock alone")
}

func TestReturnItemCannotExceedSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "SKU-R", "2.50", 10)
	item := f.sell(t, p, 3)

	_, err := f.ledger.ReturnItem(ctx, f.returnCmd(item, 2, true))
	require.NoError(t, err)

	_, err = f.ledger.ReturnItem(ctx, f.returnCmd(item, 2, true))
	var exceeds *store.ReturnExceedsSoldError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, 3, exceeds.Sold)
	assert.Equal(t, 2, exceeds.AlreadyReturned)
	assert.Equal(t, 2, exceeds.Requested)

	returns, err := f.repo.ListReturns(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func TestReturnItemValidationAndLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "SKU-R", "1.00", 5)
	item := f.sell(t, p, 1)

	_, err := f.ledger.ReturnItem(ctx, f.returnCmd(item, 0, true))
	assert.Equal(t, store.KindValidation, store.KindOf(err))

	missing := item
	missing.ID = 500
	_, err = f.ledger.ReturnItem(ctx, f.returnCmd(missing, 1, true))
	assert.ErrorIs(t, err, store.ErrOrderItemNotFound)

	cmd := f.returnCmd(item, 1, true)
	cmd.ShiftID = 321
	_, err = f.ledger.ReturnItem(ctx, cmd)
	assert.ErrorIs(t, err, store.ErrShiftNotFound)
}

func TestReturnItemIsAtomic(t *testing.T) {
	repo := memory.New()
	seller := newFixtureWithRepo(t, repo, nil)
	p := seller.product(t, "SKU-R", "1.00", 5)
	item := seller.sell(t, p, 2)

	broken := New(faultyRepo{Repository: repo, failOn: "AdjustStock"})
	_, err := broken.ReturnItem(context.Background(), seller.returnCmd(item, 1, true))
	require.ErrorIs(t, err, errInjected)

	returns, err := repo.ListReturns(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, returns)
	assert.Equal(t, 3, seller.stock(t, p.ID))
}
