// Package postgres runs units of work against PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"storecore/internal/db"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/order"
	"storecore/internal/payment"

	"go.uber.org/zap"
)

const defaultAttempts = 3

// Store implements the order, inventory and ledger transactors and the
// payment webhook store over one connection pool.
type Store struct {
	conn     *sql.DB
	attempts int
	backoff  time.Duration
	payment.WebhookStore
}

type Option func(*Store)

// WithRetry sets how many times a unit of work is attempted when postgres
// reports a serialization failure or deadlock.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Store) {
		if attempts < 1 {
			attempts = 1
		}
		s.attempts = attempts
		s.backoff = backoff
	}
}

func New(conn *sql.DB, opts ...Option) *Store {
	s := &Store{
		conn:         conn,
		attempts:     defaultAttempts,
		backoff:      20 * time.Millisecond,
		WebhookStore: payment.NewWebhookStore(conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn in a transaction, retrying the whole unit when it hit a
// deadlock or serialization failure.
func (s *Store) run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = db.WithTx(ctx, s.conn, fn)
		if err == nil || !db.IsRetryable(err) {
			return err
		}
		logger.FromCtx(ctx).Warn("transaction conflict, retrying",
			zap.String("layer", "store"),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	return s.run(ctx, func(tx *sql.Tx) error {
		return fn(ctx, unitOfWork{tx: tx})
	})
}

func (s *Store) WithinInventoryTx(ctx context.Context, fn func(ctx context.Context, repo inventory.Repository) error) error {
	return s.run(ctx, func(tx *sql.Tx) error {
		return fn(ctx, inventory.NewRepository(tx))
	})
}

func (s *Store) WithinLedgerTx(ctx context.Context, fn func(ctx context.Context, repo ledger.Repository) error) error {
	return s.run(ctx, func(tx *sql.Tx) error {
		return fn(ctx, ledger.NewRepository(tx))
	})
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u unitOfWork) Orders() order.Repository        { return order.NewRepository(u.tx) }
func (u unitOfWork) Inventory() inventory.Repository { return inventory.NewRepository(u.tx) }
func (u unitOfWork) Ledger() ledger.Repository       { return ledger.NewRepository(u.tx) }
func (u unitOfWork) Payments() payment.Repository    { return payment.NewRepository(u.tx) }
