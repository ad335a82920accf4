// Package ledger implements the transactional inventory and order ledger.
// Every exported operation runs as one atomic unit through
// store.Repository.WithinTx: either all of its writes land or none do.
package ledger

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/metrics"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

type Ledger struct {
	repo      store.Repository
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	receiptNo func(time.Time) string
}

type Option func(*Ledger)

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithReceiptNumbers(next func(time.Time) string) Option {
	return func(l *Ledger) {
		if next != nil {
			l.receiptNo = next
		}
	}
}

func New(repo store.Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:      repo,
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		receiptNo: xid.Receipt,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// unit collects stock movements made inside one transaction so they are
// only counted once the transaction has committed.
type unit struct {
	moves []int
}

func (u *unit) adjust(ctx context.Context, tx store.Tx, productID int64, delta int) (int, error) {
	qty, err := tx.AdjustStock(ctx, productID, delta)
	if err != nil {
		return qty, err
	}
	u.moves = append(u.moves, delta)
	return qty, nil
}

// adjustAll applies one merged delta per product in ascending product id,
// so every transaction takes product row locks in the same order.
func (u *unit) adjustAll(ctx context.Context, tx store.Tx, deltas map[int64]int) error {
	ids := make([]int64, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, err := u.adjust(ctx, tx, id, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) run(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx, u *unit) error) error {
	start := time.Now()
	u := &unit{}
	err := l.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u.moves = u.moves[:0]
		return fn(ctx, tx, u)
	})

	if err != nil {
		var rbErr *store.RollbackError
		if errors.As(err, &rbErr) {
			l.log.Error("rollback failed",
				zap.String("op", op),
				zap.NamedError("rollback_error", rbErr.Err),
				zap.Error(err),
			)
		}
		l.metrics.ObserveLedger(op, store.KindOf(err).String(), start)
		return err
	}

	for _, delta := range u.moves {
		l.metrics.StockMoved(delta)
	}
	l.metrics.ObserveLedger(op, "ok", start)
	return nil
}

// Adjust applies delta to a product's on-hand quantity on its own and
// returns the resulting quantity. A debit beyond the on-hand quantity fails
// with *store.InsufficientStockError and changes nothing.
func (l *Ledger) Adjust(ctx context.Context, productID int64, delta int) (int, error) {
	if productID <= 0 {
		return 0, store.Invalid("product_id", "must be positive")
	}
	var qty int
	err := l.run(ctx, "adjust", func(ctx context.Context, tx store.Tx, u *unit) error {
		var err error
		qty, err = u.adjust(ctx, tx, productID, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// openShift loads the shift a sale is recorded against and refuses closed ones.
func openShift(ctx context.Context, tx store.Tx, shiftID int64) (*domain.Shift, error) {
	shift, err := tx.GetShift(ctx, shiftID, store.LockShare)
	if err != nil {
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotOpen
	}
	return shift, nil
}
