package service

import (
	"context"
	"fmt"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.Shift, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	shift, err := s.ledger.StartShift(ctx, actor.UserID, req.StartingFloat)
	if err != nil {
		return domain.Shift{}, err
	}
	s.logAudit(ctx, "shift_start", "shift", shift.ID, fmt.Sprintf("starting_float=%s", shift.StartingFloat.StringFixed(2)))
	return *shift, nil
}

func (s *Service) EndShift(ctx context.Context, shiftID int64, req domain.ShiftEndRequest) (domain.ShiftReconciliation, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	result, err := s.ledger.EndShift(ctx, domain.EndShiftCommand{
		ShiftID:     shiftID,
		OperatorID:  actor.UserID,
		EndingFloat: req.EndingFloat,
		CashRemoved: req.CashRemoved,
	})
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	s.logAudit(ctx, "shift_end", "shift", result.Shift.ID,
		fmt.Sprintf("expected=%s,ending=%s,discrepancy=%s",
			result.ExpectedCash.StringFixed(2), result.Shift.EndingFloat.StringFixed(2), result.Shift.CashDiscrepancy.StringFixed(2)))
	return *result, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID int64) (domain.Shift, error) {
	if shiftID <= 0 {
		return domain.Shift{}, store.Invalid("shift_id", "must be positive")
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) GetOpenShift(ctx context.Context) (domain.Shift, error) {
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}
