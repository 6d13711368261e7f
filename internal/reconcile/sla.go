package reconcile

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/config"
	"storecore/internal/order"
)

// checkOrderSLA handles orders sitting in a non-terminal status longer than
// its SLA. Unpaid orders are cancelled; paid ones only raise an alert.
func (j *Job) checkOrderSLA(ctx context.Context, s config.Settings, res *Result) {
	rules := []struct {
		status     order.Status
		sla        time.Duration
		autoCancel bool
	}{
		{order.StatusPending, s.SLA.Pending.Std(), true},
		{order.StatusPaymentFailed, s.SLA.PaymentFailed.Std(), true},
		{order.StatusPaid, s.SLA.Paid.Std(), false},
		{order.StatusShipped, s.SLA.Shipped.Std(), false},
	}

	now := j.now().UTC()
	for _, r := range rules {
		stale, err := j.stale(ctx, []order.Status{r.status}, now.Add(-r.sla))
		if err != nil {
			res.fail(err, "list stale %s orders", r.status)
			continue
		}

		for _, o := range stale {
			res.ItemsProcessed++
			age := now.Sub(o.UpdatedAt).Round(time.Minute)

			if !r.autoCancel || !s.Features.AutoCancelEnabled {
				j.alerter.Raise(ctx, CheckOrderSLA, o.ID.String(),
					fmt.Sprintf("order %s in %s for %s, SLA %s", o.ID, o.Status, age, r.sla))
				res.issue("order %s breached %s SLA", o.ID, o.Status)
				continue
			}

			if err := j.transition(ctx, o, order.StatusCancelled, fmt.Sprintf("%s SLA exceeded", o.Status)); err != nil {
				res.fail(err, "cancel order %s", o.ID)
				continue
			}
			res.issue("order %s cancelled after %s in %s", o.ID, age, o.Status)
		}
	}
}
