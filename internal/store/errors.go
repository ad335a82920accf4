package store

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers deciding how to react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConsistency
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var (
	ErrValidation = errors.New("invalid input")

	ErrNotFound              = errors.New("not found")
	ErrProductNotFound       = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderItemNotFound     = fmt.Errorf("order item %w", ErrNotFound)
	ErrOrderNotFound         = fmt.Errorf("order %w", ErrNotFound)
	ErrPurchaseOrderNotFound = fmt.Errorf("purchase order %w", ErrNotFound)
	ErrShiftNotFound         = fmt.Errorf("shift %w", ErrNotFound)
	ErrCustomerNotFound      = fmt.Errorf("customer %w", ErrNotFound)
	ErrSupplierNotFound      = fmt.Errorf("supplier %w", ErrNotFound)

	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReturnExceedsSold   = errors.New("return exceeds quantity sold")
	ErrOverReceipt         = errors.New("receipt exceeds quantity ordered")
	ErrShiftAlreadyOpen    = errors.New("a shift is already open")
	ErrShiftNotOpen        = errors.New("shift is not open")
	ErrZeroAdjustment      = errors.New("adjustment quantity must not be zero")
	ErrPurchaseOrderClosed = errors.New("purchase order is closed for receiving")
	ErrConflict            = errors.New("conflict")

	ErrUnavailable = errors.New("store unavailable")
)

var consistencyErrors = []error{
	ErrNotFound,
	ErrInsufficientStock,
	ErrReturnExceedsSold,
	ErrOverReceipt,
	ErrShiftAlreadyOpen,
	ErrShiftNotOpen,
	ErrPurchaseOrderClosed,
	ErrConflict,
}

// KindOf reports the failure class of err. The triggering cause decides the
// kind; a RollbackError joined onto it does not change it.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrZeroAdjustment) {
		return KindValidation
	}
	for _, target := range consistencyErrors {
		if errors.Is(err, target) {
			return KindConsistency
		}
	}
	if errors.Is(err, ErrUnavailable) {
		return KindInfrastructure
	}
	return KindUnknown
}

type ValidationError struct {
	Field   string
	Message string
}

func Invalid(field string, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: have %d, change %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type ReturnExceedsSoldError struct {
	OrderItemID     int64
	Sold            int
	AlreadyReturned int
	Requested       int
}

func (e *ReturnExceedsSoldError) Error() string {
	return fmt.Sprintf("return of %d exceeds order item %d: sold %d, already returned %d",
		e.Requested, e.OrderItemID, e.Sold, e.AlreadyReturned)
}

func (e *ReturnExceedsSoldError) Is(target error) bool {
	return target == ErrReturnExceedsSold
}

type OverReceiptError struct {
	LineID    int64
	Ordered   int
	Received  int
	Requested int
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("receiving %d on line %d exceeds ordered %d (already received %d)",
		e.Requested, e.LineID, e.Ordered, e.Received)
}

func (e *OverReceiptError) Is(target error) bool {
	return target == ErrOverReceipt
}

type unavailableError struct {
	op  string
	err error
}

// Unavailable marks err as an infrastructure failure raised during op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *unavailableError) Unwrap() error {
	return e.err
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// RollbackError reports a failed rollback. It is always joined with the
// error that triggered the rollback, never returned on its own.
type RollbackError struct {
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed: %v", e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// WithRollback joins a rollback failure onto cause. A nil rollbackErr
// returns cause unchanged.
func WithRollback(cause error, rollbackErr error) error {
	if rollbackErr == nil {
		return cause
	}
	return errors.Join(cause, &RollbackError{Err: rollbackErr})
}
