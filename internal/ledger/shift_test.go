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

func TestReconcileArithmetic(t *testing.T) {
	shift := domain.Shift{StartingFloat: dec("100.00")}
	expected := Reconcile(&shift, domain.PaymentTotals{Cash: dec("250.00"), Card: dec("40.00"), Other: dec("0")}, dec("295.00"), dec("50.00"))

	assert.True(t, expected.Equal(dec("300.00")))
	assert.True(t, shift.CashDiscrepancy.Equal(dec("-5.00")))
	assert.True(t, shift.CardSalesAmount.Equal(dec("40.00")))
}

func TestEndShiftReconcilesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "SKU-TV", "125.00", 10)
	q := f.product(t, "SKU-CB", "40.00", 10)

	cash := f.cardOrder(line(p, 2))
	cash.PaymentKind = domain.PaymentCash
	cash.AmountTendered = decPtr("250.00")
	_, err := f.ledger.PlaceOrder(ctx, cash)
	require.NoError(t, err)
	_, err = f.ledger.PlaceOrder(ctx, f.cardOrder(line(q, 1)))
	require.NoError(t, err)

	result, err := f.ledger.EndShift(ctx, domain.EndShiftCommand{
		ShiftID:     f.shift.ID,
		OperatorID:  3,
		EndingFloat: decPtr("295.00"),
		CashRemoved: decPtr("50.00"),
	})
	require.NoError(t, err)
	assert.True(t, result.ExpectedCash.Equal(dec("300.00")))
	assert.True(t, result.Shift.CashDiscrepancy.Equal(dec("-5.00")))
	assert.True(t, result.Shift.CashSalesAmount.Equal(dec("250.00")))
	assert.True(t, result.Shift.CardSalesAmount.Equal(dec("40.00")))
	assert.Equal(t, domain.ShiftStatusReconciled, result.Shift.Status)
	require.NotNil(t, result.Shift.EndUserID)
	assert.Equal(t, int64(3), *result.Shift.EndUserID)

	stored, err := f.repo.GetShift(ctx, f.shift.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusReconciled, stored.Status)

	_, err = f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID, EndingFloat: decPtr("1")})
	assert.ErrorIs(t, err, store.ErrShiftNotOpen)
}

func TestOnlyOneShiftOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.StartShift(ctx, 1, nil)
	assert.ErrorIs(t, err, store.ErrShiftAlreadyOpen)

	_, err = f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID, EndingFloat: decPtr("100")})
	require.NoError(t, err)

	next, err := f.ledger.StartShift(ctx, 1, nil)
	require.NoError(t, err)
	assert.True(t, next.StartingFloat.IsZero())
	assert.Equal(t, domain.ShiftStatusOpen, next.Status)
}

func TestEndShiftInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID})
	assert.Equal(t, store.KindValidation, store.KindOf(err))

	_, err = f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: 88, EndingFloat: decPtr("1")})
	assert.ErrorIs(t, err, store.ErrShiftNotFound)

	var ve *store.ValidationError
	_, err = f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID, EndingFloat: decPtr("100.005")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ending_float", ve.Field)
	_, err = f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID, EndingFloat: decPtr("100.00"), CashRemoved: decPtr("0.001")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cash_removed", ve.Field)

	// cash removed defaults to zero
	result, err := f.ledger.EndShift(ctx, domain.EndShiftCommand{ShiftID: f.shift.ID, EndingFloat: decPtr("100.00")})
	require.NoError(t, err)
	assert.True(t, result.Shift.CashRemoved.IsZero())
	assert.True(t, result.Shift.CashDiscrepancy.IsZero())
}

func TestStartShiftOnEmptyStore(t *testing.T) {
	l := New(memory.New())
	shift, err := l.StartShift(context.Background(), 9, decPtr("20.00"))
	require.NoError(t, err)
	assert.True(t, shift.StartingFloat.Equal(dec("20.00")))

	_, err = l.StartShift(context.Background(), 9, decPtr("-1"))
	assert.Equal(t, store.KindValidation, store.KindOf(err))
}

func TestStartShiftRejectsSubCentFloat(t *testing.T) {
	l := New(memory.New())
	_, err := l.StartShift(context.Background(), 9, decPtr("20.125"))
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "starting_float", ve.Field)
}
