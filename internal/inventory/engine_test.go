package inventory_test

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"storecore/internal/apperror"
	"storecore/internal/inventory"
	"storecore/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var key = inventory.Key{VariantID: 7, WarehouseID: "main"}

var meta = inventory.Meta{Reason: "test", Actor: "admin:1", Reference: "order:x"}

// within runs fn on an engine bound to one memory transaction.
func within(t *testing.T, store *memory.Store, fn func(e *inventory.Engine) error) error {
	t.Helper()
	return store.WithinInventoryTx(context.Background(), func(ctx context.Context, repo inventory.Repository) error {
		return fn(inventory.NewEngine(repo, nil))
	})
}

func TestEngine_ReserveCommitRelease(t *testing.T) {
	store := memory.New()
	store.SetStock(key, 10)
	ctx := context.Background()

	err := within(t, store, func(e *inventory.Engine) error {
		rec, err := e.Reserve(ctx, key, 4, meta)
		require.NoError(t, err)
		assert.Equal(t, 6, rec.Available)
		assert.Equal(t, 4, rec.Reserved)

		rec, err = e.Commit(ctx, key, 3, meta)
		require.NoError(t, err)
		assert.Equal(t, 6, rec.Available)
		assert.Equal(t, 1, rec.Reserved)

		rec, err = e.Release(ctx, key, 1, meta)
		require.NoError(t, err)
		assert.Equal(t, 7, rec.Available)
		assert.Equal(t, 0, rec.Reserved)
		return nil
	})
	require.NoError(t, err)

	logs := store.InventoryLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, inventory.ActionReserve, logs[0].Action)
	assert.Equal(t, 6, logs[0].AvailableAfter)
	assert.Equal(t, "order:x", logs[2].Reference)
}

func TestEngine_Rejections(t *testing.T) {
	store := memory.New()
	store.SetStock(key, 2)
	ctx := context.Background()

	cases := map[string]struct {
		run  func(e *inventory.Engine) error
		want error
	}{
		"oversell": {
			func(e *inventory.Engine) error { _, err := e.Reserve(ctx, key, 3, meta); return err },
			inventory.ErrInsufficientStock,
		},
		"zero quantity": {
			func(e *inventory.Engine) error { _, err := e.Reserve(ctx, key, 0, meta); return err },
			inventory.ErrInvalidQuantity,
		},
		"commit more than reserved": {
			func(e *inventory.Engine) error { _, err := e.Commit(ctx, key, 1, meta); return err },
			inventory.ErrReservedUnderflow,
		},
		"release more than reserved": {
			func(e *inventory.Engine) error { _, err := e.Release(ctx, key, 1, meta); return err },
			inventory.ErrReservedUnderflow,
		},
		"restock without reason": {
			func(e *inventory.Engine) error { _, err := e.Restock(ctx, key, 1, inventory.Meta{}); return err },
			inventory.ErrReasonRequired,
		},
		"adjust below zero": {
			func(e *inventory.Engine) error { _, err := e.Adjust(ctx, key, -3, meta); return err },
			inventory.ErrNegativeStock,
		},
		"adjust by zero": {
			func(e *inventory.Engine) error { _, err := e.Adjust(ctx, key, 0, meta); return err },
			inventory.ErrInvalidQuantity,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := within(t, store, tc.run)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err.Error())
		})
	}

	rec := store.Stock(key)
	assert.Equal(t, 2, rec.Available)
	assert.Equal(t, 0, rec.Reserved)
	assert.Empty(t, store.InventoryLogs())
	assert.True(t, errors.Is(inventory.ErrInsufficientStock, apperror.ErrInventory))
}

func TestEngine_ConcurrentReservesNeverOversell(t *testing.T) {
	const stock, buyers = 5, 20

	store := memory.New()
	store.SetStock(key, stock)

	var ok, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			err := store.WithinInventoryTx(context.Background(), func(ctx context.Context, repo inventory.Repository) error {
				_, err := inventory.NewEngine(repo, nil).Reserve(ctx, key, 1, meta)
				return err
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperror.ErrInsufficientStock):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, stock, ok.Load())
	assert.EqualValues(t, buyers-stock, rejected.Load())
	rec := store.Stock(key)
	assert.Equal(t, 0, rec.Available)
	assert.Equal(t, stock, rec.Reserved)
}

func TestService(t *testing.T) {
	store := memory.New()
	svc := inventory.NewService(store)
	ctx := context.Background()

	_, err := svc.Get(ctx, key)
	assert.True(t, errors.Is(err, inventory.ErrRecordNotFound))

	rec, err := svc.Adjust(ctx, key, 12, inventory.Meta{Reason: "initial count", Actor: "admin:1"})
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Available)

	rec, err = svc.Adjust(ctx, key, -2, inventory.Meta{Reason: "damaged", Actor: "admin:1"})
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Available)

	t.Run("CorrectMovesDifference", func(t *testing.T) {
		store.CorruptReserved(key, 3)

		rec, err := svc.Correct(ctx, key, 1, inventory.Meta{Reason: "reconcile", Actor: "system"})
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Reserved)
		assert.Equal(t, 12, rec.Available)

		history, err := svc.History(ctx, key, 1)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, inventory.ActionReconcile, history[0].Action)
		assert.Equal(t, -2, history[0].Quantity)
	})

	t.Run("CorrectNeverGoesNegative", func(t *testing.T) {
		_, err := svc.Correct(ctx, key, 100, inventory.Meta{Reason: "reconcile"})
		assert.True(t, errors.Is(err, inventory.ErrNegativeStock))
	})

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, key, list[0].Key)
}

// TestEngine_RandomSequenceKeepsCountsNonNegative replays seeded operation
// sequences against a reference model. Rejected operations must leave the
// record untouched and accepted ones must match the model.
func TestEngine_RandomSequenceKeepsCountsNonNegative(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		store := memory.New()
		store.SetStock(key, 5)
		available, reserved := 5, 0

		for step := 0; step < 200; step++ {
			qty := rng.Intn(6) + 1
			var (
				op   string
				ok   bool
				next = [2]int{available, reserved}
				run  func(e *inventory.Engine) error
			)
			switch rng.Intn(6) {
			case 0:
				op, ok = "reserve", qty <= available
				next = [2]int{available - qty, reserved + qty}
				run = func(e *inventory.Engine) error { _, err := e.Reserve(ctx, key, qty, meta); return err }
			case 1:
				op, ok = "commit", qty <= reserved
				next = [2]int{available, reserved - qty}
				run = func(e *inventory.Engine) error { _, err := e.Commit(ctx, key, qty, meta); return err }
			case 2:
				op, ok = "release", qty <= reserved
				next = [2]int{available + qty, reserved - qty}
				run = func(e *inventory.Engine) error { _, err := e.Release(ctx, key, qty, meta); return err }
			case 3:
				op, ok = "restock", true
				next = [2]int{available + qty, reserved}
				run = func(e *inventory.Engine) error { _, err := e.Restock(ctx, key, qty, meta); return err }
			case 4:
				delta := rng.Intn(13) - 6
				if delta == 0 {
					delta = -1
				}
				op, ok = "adjust", available+delta >= 0
				next = [2]int{available + delta, reserved}
				run = func(e *inventory.Engine) error { _, err := e.Adjust(ctx, key, delta, meta); return err }
			default:
				target := rng.Intn(8)
				op, ok = "correct", available-(target-reserved) >= 0
				next = [2]int{available - (target - reserved), target}
				run = func(e *inventory.Engine) error { _, err := e.Correct(ctx, key, target, meta); return err }
			}

			err := within(t, store, run)
			if ok {
				require.NoError(t, err, "seed %d step %d %s", seed, step, op)
				available, reserved = next[0], next[1]
			} else {
				require.Error(t, err, "seed %d step %d %s", seed, step, op)
				assert.True(t, errors.Is(err, apperror.ErrInventory), "seed %d step %d %s", seed, step, op)
			}

			rec := store.Stock(key)
			require.GreaterOrEqual(t, rec.Available, 0, "seed %d step %d %s", seed, step, op)
			require.GreaterOrEqual(t, rec.Reserved, 0, "seed %d step %d %s", seed, step, op)
			require.Equal(t, available, rec.Available, "seed %d step %d %s", seed, step, op)
			require.Equal(t, reserved, rec.Reserved, "seed %d step %d %s", seed, step, op)
		}
	}
}
