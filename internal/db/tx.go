package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storecore/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// TxOptions used for every unit of work. Every read-modify-write locks its
// rows with SELECT ... FOR UPDATE, so read committed sees the winner's
// committed row after the lock is granted.
var TxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithTx runs fn in a transaction. fn's error rolls back; a nil return commits.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "db"))

	tx, err := conn.BeginTx(ctx, TxOptions)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// IsRetryable reports serialization failures and deadlocks. The whole unit
// of work may be retried when this is true.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// IsUniqueViolation reports a 23505 unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
