package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestAdjustStockAppliesGuardedUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE product`).
		WithArgs(int64(7), -3).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}).AddRow(2))
	mock.ExpectCommit()

	var got int
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.AdjustStock(ctx, 7, -3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockRejectsOverdraw(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE product`).
		WithArgs(int64(7), -6).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}))
	mock.ExpectQuery(`SELECT quantity_in_stock FROM product`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}).AddRow(5))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, 7, -6)
		return err
	})
	require.Error(t, err)

	var insufficient *store.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, -6, insufficient.Requested)
	assert.Equal(t, store.KindConsistency, store.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE product`).WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}))
	mock.ExpectQuery(`SELECT quantity_in_stock FROM product`).WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, 99, 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxJoinsRollbackFailure(t *testing.T) {
	s, mock := newMockStore(t)
	cause := errors.New("insert failed")

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	err := s.WithinTx(context.Background(), func(context.Context, store.Tx) error {
		return cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	var rbErr *store.RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.Contains(t, rbErr.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxBeginFailureIsInfrastructure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("dial tcp: connection refused"))

	called := false
	err := s.WithinTx(context.Background(), func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Equal(t, store.KindInfrastructure, store.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddReceivedQuantityRejectsOverReceipt(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE purchase_order_item`).
		WithArgs(int64(3), 8).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_received"}))
	mock.ExpectQuery(`SELECT quantity_ordered, quantity_received FROM purchase_order_item`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_ordered", "quantity_received"}).AddRow(10, 3))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AddReceivedQuantity(ctx, 3, 8)
		return err
	})

	var over *store.OverReceiptError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, 10, over.Ordered)
	assert.Equal(t, 3, over.Received)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileShiftNotOpen(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shift`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.ReconcileShift(ctx, &domain.Shift{ID: 4, Status: domain.ShiftStatusReconciled})
	})
	assert.ErrorIs(t, err, store.ErrShiftNotOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumShiftPayments(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payment p`).
		WithArgs(int64(1), "Completed").
		WillReturnRows(sqlmock.NewRows([]string{"cash", "card", "other"}).AddRow("250.00", "80.50", "0"))
	mock.ExpectCommit()

	var totals domain.PaymentTotals
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		totals, err = tx.SumShiftPayments(ctx, 1)
		return err
	})
	require.NoError(t, err)
	assert.True(t, totals.Cash.Equal(decimal.RequireFromString("250")))
	assert.True(t, totals.Card.Equal(decimal.RequireFromString("80.5")))
	assert.True(t, totals.Other.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapErr(t *testing.T) {
	assert.Nil(t, mapErr("op", nil))

	err := mapErr("insert shift", &pgconn.PgError{Code: "23505", ConstraintName: "shift_single_open_idx"})
	assert.ErrorIs(t, err, store.ErrShiftAlreadyOpen)

	err = mapErr("insert product", &pgconn.PgError{Code: "23505", ConstraintName: "product_sku_key"})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = mapErr("insert order", &pgconn.PgError{Code: "23503", ConstraintName: "order_customer_id_fkey"})
	assert.ErrorIs(t, err, store.ErrCustomerNotFound)

	err = mapErr("commit", &pgconn.PgError{Code: "40001"})
	assert.Equal(t, store.KindInfrastructure, store.KindOf(err))

	err = mapErr("adjust stock", &pgconn.PgError{Code: "23514", Message: "violates check constraint"})
	assert.Equal(t, store.KindValidation, store.KindOf(err))

	err = mapErr("query", errors.New("broken pipe"))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestGetProductScansVariant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM product p`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"product_id", "sku", "name", "unit_price", "current_cost_price",
			"quantity_in_stock", "reorder_level", "perishable", "storage",
		}).AddRow(int64(1), "MILK-1L", "Whole Milk 1L", "1.89", "1.20", 40, 10, true, "2-4C"))

	product, err := s.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductPerishable, product.Kind)
	require.NotNil(t, product.Perishable)
	assert.Equal(t, "2-4C", product.Perishable.StorageTempRequirement)
	assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("1.89")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
