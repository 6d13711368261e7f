package order

import (
	"context"
	"fmt"

	"storecore/internal/config"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
)

// applyEffects performs the stock and ledger side effects of moving o to
// target, inventory first. Everything runs on the caller's unit of work.
func (m *Machine) applyEffects(ctx context.Context, uow UnitOfWork, o *Order, target Status, actor Actor, reason string, s config.Settings) error {
	inv := inventory.NewEngine(uow.Inventory(), m.now)
	led := ledger.NewEngine(uow.Ledger(), m.now)
	if reason == "" {
		reason = fmt.Sprintf("order %s -> %s", o.Status, target)
	}
	meta := inventory.Meta{
		Actor:     actor.String(),
		Reference: o.Reference(),
		Reason:    reason,
	}

	switch {
	case target == StatusPaid:
		if err := moveStock(ctx, o, meta, inv.Commit); err != nil {
			return err
		}
		return m.postRevenue(ctx, led, o, s.Accounts.Cash, s.Accounts)

	case o.Status == StatusPending && target == StatusShipped:
		if err := moveStock(ctx, o, meta, inv.Commit); err != nil {
			return err
		}
		return m.postRevenue(ctx, led, o, s.Accounts.AccountsReceivable, s.Accounts)

	case target == StatusCashReceived:
		return m.postSettlement(ctx, led, o, s.Accounts)

	case target == StatusCancelled && o.Status.HoldsReservation():
		return moveStock(ctx, o, meta, inv.Release)

	case target == StatusCancelled:
		if err := moveStock(ctx, o, meta, inv.Restock); err != nil {
			return err
		}
		return m.reverseOrderEntries(ctx, uow.Ledger(), led, o, reason)
	}
	return nil
}

type stockMove func(ctx context.Context, key inventory.Key, qty int, meta inventory.Meta) (inventory.Record, error)

func moveStock(ctx context.Context, o *Order, meta inventory.Meta, move stockMove) error {
	keys, qty := o.Quantities()
	for _, k := range keys {
		if _, err := move(ctx, k, qty[k], meta); err != nil {
			return err
		}
	}
	return nil
}

// postRevenue books the sale against debitAccount (cash for prepaid orders,
// receivables for cash on delivery) and the cost of goods sold.
func (m *Machine) postRevenue(ctx context.Context, led *ledger.Engine, o *Order, debitAccount string, acc config.AccountCodes) error {
	var lines []ledger.LineInput
	if o.TotalPrice.IsPositive() {
		lines = append(lines,
			ledger.Dr(debitAccount, o.TotalPrice, "order total"),
			ledger.Cr(acc.SalesRevenue, o.TotalPrice, "sales"),
		)
	}
	if cost := o.CostTotal(); cost.IsPositive() {
		lines = append(lines,
			ledger.Dr(acc.COGS, cost, "cost of goods sold"),
			ledger.Cr(acc.Inventory, cost, "inventory out"),
		)
	}
	if len(lines) == 0 {
		return nil
	}

	_, err := led.Post(ctx, ledger.PostRequest{
		Date:        m.now().UTC(),
		Description: fmt.Sprintf("Revenue for order %s", o.ID),
		Reference:   o.Reference() + ":revenue",
		Lines:       lines,
	})
	return err
}

func (m *Machine) postSettlement(ctx context.Context, led *ledger.Engine, o *Order, acc config.AccountCodes) error {
	if !o.TotalPrice.IsPositive() {
		return nil
	}
	_, err := led.Post(ctx, ledger.PostRequest{
		Date:        m.now().UTC(),
		Description: fmt.Sprintf("Cash collected for order %s", o.ID),
		Reference:   o.Reference() + ":cod-settlement",
		Lines: []ledger.LineInput{
			ledger.Dr(acc.Cash, o.TotalPrice, "cash on delivery"),
			ledger.Cr(acc.AccountsReceivable, o.TotalPrice, "receivable settled"),
		},
	})
	return err
}

// reverseOrderEntries reverses every posted entry of the order that has not
// been reversed yet.
func (m *Machine) reverseOrderEntries(ctx context.Context, repo ledger.Repository, led *ledger.Engine, o *Order, reason string) error {
	entries, err := led.EntriesByReferencePrefix(ctx, o.Reference()+":")
	if err != nil {
		return fmt.Errorf("find order entries: %w", err)
	}
	for _, e := range entries {
		if e.Status != ledger.StatusPosted || e.ReversesEntryID != nil {
			continue
		}
		existing, err := repo.FindReversal(ctx, e.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := led.Reverse(ctx, e.ID, reason); err != nil {
			return err
		}
	}
	return nil
}
