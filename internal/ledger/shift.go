package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// StartShift opens a new shift. Only one shift may be open at a time.
func (l *Ledger) StartShift(ctx context.Context, operatorID int64, startingFloat *decimal.Decimal) (*domain.Shift, error) {
	float := decimal.Zero
	if startingFloat != nil {
		float = *startingFloat
	}
	if err := CheckMoney("starting_float", float); err != nil {
		return nil, err
	}

	var started domain.Shift
	err := l.run(ctx, "start_shift", func(ctx context.Context, tx store.Tx, _ *unit) error {
		open, err := tx.GetOpenShift(ctx)
		switch {
		case err == nil && open != nil:
			return store.ErrShiftAlreadyOpen
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}

		shift := domain.Shift{
			StartTime:        l.now(),
			Status:           domain.ShiftStatusOpen,
			StartUserID:      operatorID,
			StartingFloat:    float,
			CashSalesAmount:  decimal.Zero,
			CardSalesAmount:  decimal.Zero,
			OtherSalesAmount: decimal.Zero,
			CashRemoved:      decimal.Zero,
			EndingFloat:      decimal.Zero,
			CashDiscrepancy:  decimal.Zero,
		}
		if err := tx.InsertShift(ctx, &shift); err != nil {
			return err
		}
		started = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &started, nil
}

// Reconcile fills the closing totals of shift from its payment totals and
// the counted drawer. It returns the expected cash.
func Reconcile(shift *domain.Shift, totals domain.PaymentTotals, endingFloat, cashRemoved decimal.Decimal) decimal.Decimal {
	shift.CashSalesAmount = totals.Cash
	shift.CardSalesAmount = totals.Card
	shift.OtherSalesAmount = totals.Other
	shift.CashRemoved = cashRemoved
	shift.EndingFloat = endingFloat
	expected := shift.ExpectedCash()
	shift.CashDiscrepancy = endingFloat.Sub(expected)
	return expected
}

// EndShift reconciles an open shift and moves it to Reconciled. Ending a
// shift twice fails with store.ErrShiftNotOpen.
func (l *Ledger) EndShift(ctx context.Context, cmd domain.EndShiftCommand) (*domain.ShiftReconciliation, error) {
	if cmd.ShiftID <= 0 {
		return nil, store.Invalid("shift_id", "must be positive")
	}
	if cmd.EndingFloat == nil {
		return nil, store.Invalid("ending_float", "is required")
	}
	if err := CheckMoney("ending_float", *cmd.EndingFloat); err != nil {
		return nil, err
	}
	removed := decimal.Zero
	if cmd.CashRemoved != nil {
		removed = *cmd.CashRemoved
	}
	if err := CheckMoney("cash_removed", removed); err != nil {
		return nil, err
	}

	var result domain.ShiftReconciliation
	err := l.run(ctx, "end_shift", func(ctx context.Context, tx store.Tx, _ *unit) error {
		// FOR UPDATE here waits for in-flight sales holding a share lock.
		shift, err := tx.GetShift(ctx, cmd.ShiftID, store.LockUpdate)
		if err != nil {
			return err
		}
		if shift.Status != domain.ShiftStatusOpen {
			return store.ErrShiftNotOpen
		}

		totals, err := tx.SumShiftPayments(ctx, shift.ID)
		if err != nil {
			return err
		}
		expected := Reconcile(shift, totals, *cmd.EndingFloat, removed)

		end := l.now()
		operator := cmd.OperatorID
		shift.EndTime = &end
		shift.EndUserID = &operator
		shift.Status = domain.ShiftStatusReconciled
		if err := tx.ReconcileShift(ctx, shift); err != nil {
			return err
		}

		result = domain.ShiftReconciliation{Shift: *shift, ExpectedCash: expected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
