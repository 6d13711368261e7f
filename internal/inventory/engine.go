package inventory

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine applies stock movements on a repository bound to the caller's
// transaction. Each movement locks the row, checks, mutates, saves, and
// appends a log entry.
type Engine struct {
	repo Repository
	now  func() time.Time
}

func NewEngine(repo Repository, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, now: now}
}

// Reserve moves qty from available to reserved.
func (e *Engine) Reserve(ctx context.Context, key Key, qty int, meta Meta) (Record, error) {
	return e.apply(ctx, ActionReserve, key, qty, meta, func(r *Record) error {
		if r.Available < qty {
			return apperror.InsufficientStock(ErrInsufficientStock.Code,
				"variant %s: requested %d, available %d", key, qty, r.Available)
		}
		r.Available -= qty
		r.Reserved += qty
		return nil
	})
}

// Commit consumes qty of reserved stock; the goods have left.
func (e *Engine) Commit(ctx context.Context, key Key, qty int, meta Meta) (Record, error) {
	return e.apply(ctx, ActionCommit, key, qty, meta, func(r *Record) error {
		if r.Reserved < qty {
			return apperror.Inventory(ErrReservedUnderflow.Code,
				"variant %s: commit %d, reserved %d", key, qty, r.Reserved)
		}
		r.Reserved -= qty
		return nil
	})
}

// Release returns qty of reserved stock to available.
func (e *Engine) Release(ctx context.Context, key Key, qty int, meta Meta) (Record, error) {
	return e.apply(ctx, ActionRelease, key, qty, meta, func(r *Record) error {
		if r.Reserved < qty {
			return apperror.Inventory(ErrReservedUnderflow.Code,
				"variant %s: release %d, reserved %d", key, qty, r.Reserved)
		}
		r.Reserved -= qty
		r.Available += qty
		return nil
	})
}

// Restock puts previously committed stock back on the shelf.
func (e *Engine) Restock(ctx context.Context, key Key, qty int, meta Meta) (Record, error) {
	if meta.Reason == "" {
		return Record{}, apperror.Validation(ErrReasonRequired.Code, "restock needs a reason")
	}
	return e.apply(ctx, ActionRestock, key, qty, meta, func(r *Record) error {
		r.Available += qty
		return nil
	})
}

// Adjust changes available by delta, which may be negative.
func (e *Engine) Adjust(ctx context.Context, key Key, delta int, meta Meta) (Record, error) {
	if meta.Reason == "" {
		return Record{}, apperror.Validation(ErrReasonRequired.Code, "adjustment needs a reason")
	}
	if delta == 0 {
		return Record{}, apperror.Validation(ErrInvalidQuantity.Code, "adjustment delta must not be zero")
	}
	return e.mutate(ctx, ActionAdjust, key, delta, meta, func(r *Record) error {
		if r.Available+delta < 0 {
			return apperror.Inventory(ErrNegativeStock.Code,
				"variant %s: adjust %d, available %d", key, delta, r.Available)
		}
		r.Available += delta
		return nil
	})
}

// Correct sets reserved to expected, moving the difference to or from
// available. The log entry quantity is the change in reserved.
func (e *Engine) Correct(ctx context.Context, key Key, expectedReserved int, meta Meta) (Record, error) {
	if expectedReserved < 0 {
		return Record{}, apperror.Validation(ErrInvalidQuantity.Code, "expected reserved must not be negative")
	}
	if meta.Reason == "" {
		return Record{}, apperror.Validation(ErrReasonRequired.Code, "correction needs a reason")
	}

	return e.mutateDelta(ctx, ActionReconcile, key, meta, func(r *Record) (int, error) {
		delta := expectedReserved - r.Reserved
		if r.Available-delta < 0 {
			return 0, apperror.Inventory(ErrNegativeStock.Code,
				"variant %s: reserved %d -> %d needs %d available, have %d",
				key, r.Reserved, expectedReserved, delta, r.Available)
		}
		r.Reserved = expectedReserved
		r.Available -= delta
		return delta, nil
	})
}

func (e *Engine) apply(ctx context.Context, action Action, key Key, qty int, meta Meta, fn func(*Record) error) (Record, error) {
	if qty <= 0 {
		return Record{}, apperror.Validation(ErrInvalidQuantity.Code, "%s quantity must be positive, got %d", action, qty)
	}
	return e.mutate(ctx, action, key, qty, meta, fn)
}

func (e *Engine) mutate(ctx context.Context, action Action, key Key, qty int, meta Meta, fn func(*Record) error) (Record, error) {
	return e.mutateDelta(ctx, action, key, meta, func(r *Record) (int, error) {
		return qty, fn(r)
	})
}

func (e *Engine) mutateDelta(ctx context.Context, action Action, key Key, meta Meta, fn func(*Record) (int, error)) (Record, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("action", string(action)),
		zap.String("key", key.String()),
	)

	rec, err := e.repo.LockRecord(ctx, key)
	if err != nil {
		log.Error("lock record failed", zap.Error(err))
		return Record{}, fmt.Errorf("lock %s: %w", key, err)
	}

	qty, err := fn(&rec)
	if err != nil {
		log.Warn("stock movement rejected", zap.Error(err))
		return Record{}, err
	}

	now := e.now().UTC()
	rec.UpdatedAt = now
	if err := e.repo.SaveRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("save %s: %w", key, err)
	}

	entry := LogEntry{
		ID:             uuid.New(),
		Key:            key,
		Action:         action,
		Quantity:       qty,
		AvailableAfter: rec.Available,
		ReservedAfter:  rec.Reserved,
		Reason:         meta.Reason,
		Actor:          meta.Actor,
		Reference:      meta.Reference,
		CreatedAt:      now,
	}
	if err := e.repo.AppendLog(ctx, entry); err != nil {
		return Record{}, fmt.Errorf("append log for %s: %w", key, err)
	}

	log.Debug("stock moved",
		zap.Int("quantity", qty),
		zap.Int("available", rec.Available),
		zap.Int("reserved", rec.Reserved),
	)
	return rec, nil
}
