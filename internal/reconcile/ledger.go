package reconcile

import (
	"context"
	"fmt"

	"storecore/internal/config"
	"storecore/internal/ledger"
	"storecore/internal/order"
)

// checkLedger recomputes balances from posted lines. Drift is reported,
// never repaired automatically.
func (j *Job) checkLedger(ctx context.Context, _ config.Settings, res *Result) {
	err := j.tx.WithinTx(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		drifts, debit, credit, err := ledger.NewReporter(uow.Ledger()).VerifyBalances(ctx)
		if err != nil {
			return err
		}
		accounts, err := uow.Ledger().ListAccounts(ctx)
		if err != nil {
			return err
		}
		res.ItemsProcessed = len(accounts)

		if !debit.Equal(credit) {
			msg := fmt.Sprintf("posted debits %s do not equal credits %s", debit, credit)
			j.alerter.Raise(ctx, CheckLedger, "ledger", msg)
			res.issue("%s", msg)
		}
		for _, d := range drifts {
			msg := fmt.Sprintf("account %s cached balance %s, posted lines give %s", d.Code, d.Cached, d.Computed)
			j.alerter.Raise(ctx, CheckLedger, "account:"+d.Code, msg)
			res.issue("%s", msg)
		}
		return nil
	})
	if err != nil {
		res.fail(err, "verify ledger")
	}
}
