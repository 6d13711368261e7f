package reconcile

import (
	"context"
	"errors"
	"fmt"

	"storecore/internal/apperror"
	"storecore/internal/config"
	"storecore/internal/inventory"
	"storecore/internal/order"
)

// checkInventory compares each record's reserved count with the quantities
// held by open orders and corrects the record when they differ.
func (j *Job) checkInventory(ctx context.Context, _ config.Settings, res *Result) {
	var records []inventory.Record
	err := j.tx.WithinTx(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		var err error
		records, err = uow.Inventory().ListRecords(ctx)
		return err
	})
	if err != nil {
		res.fail(err, "list inventory records")
		return
	}

	for _, rec := range records {
		res.ItemsProcessed++
		if err := j.reconcileKey(ctx, rec.Key, res); err != nil {
			res.fail(err, "stock %s", rec.Key)
		}
	}
}

func (j *Job) reconcileKey(ctx context.Context, key inventory.Key, res *Result) error {
	var (
		before, expected int
		corrected        bool
	)
	err := j.tx.WithinTx(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		rec, err := uow.Inventory().LockRecord(ctx, key)
		if err != nil {
			return err
		}
		expected, err = uow.Orders().ReservedQuantity(ctx, key, order.ReservingStatuses)
		if err != nil {
			return err
		}
		if rec.Reserved == expected {
			return nil
		}
		before = rec.Reserved
		_, err = inventory.NewEngine(uow.Inventory(), j.now).Correct(ctx, key, expected, inventory.Meta{
			Reason: fmt.Sprintf("reconcile: reserved %d, open orders hold %d", rec.Reserved, expected),
			Actor:  order.SystemActor.String(),
		})
		if err != nil {
			return err
		}
		corrected = true
		return nil
	})

	if errors.Is(err, apperror.ErrInventory) {
		j.alerter.Raise(ctx, CheckInventory, key.String(),
			fmt.Sprintf("cannot correct reserved stock to %d: %v", expected, err))
		return err
	}
	if err != nil {
		return err
	}
	if corrected {
		res.issue("stock %s reserved corrected from %d to %d", key, before, expected)
	}
	return nil
}
