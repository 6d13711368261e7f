package reconcile

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/config"
	"storecore/internal/logger"
	"storecore/internal/order"
	"storecore/internal/payment"

	"go.uber.org/zap"
)

// checkPaymentIntents settles orders stuck in PAYMENT_PENDING past the
// payment timeout.
func (j *Job) checkPaymentIntents(ctx context.Context, s config.Settings, res *Result) {
	cutoff := j.now().UTC().Add(-s.Payment.PendingTimeout.Std())
	stale, err := j.stale(ctx, []order.Status{order.StatusPaymentPending}, cutoff)
	if err != nil {
		res.fail(err, "list stale payment intents")
		return
	}

	for _, o := range stale {
		res.ItemsProcessed++
		if err := j.settleIntent(ctx, s, o, res); err != nil {
			res.fail(err, "order %s", o.ID)
		}
	}
}

func (j *Job) settleIntent(ctx context.Context, s config.Settings, o order.Order, res *Result) error {
	log := logger.FromCtx(ctx).With(
		zap.String("check", CheckPaymentIntents),
		zap.String("order_id", o.ID.String()),
	)

	var confirmed *payment.Payment
	err := j.tx.WithinTx(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		var err error
		confirmed, err = uow.Payments().FindConfirmed(ctx, o.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("find confirmed payment: %w", err)
	}
	if confirmed != nil {
		log.Info("confirmed payment found for pending order, marking paid")
		res.issue("order %s had a confirmed payment and was marked paid", o.ID)
		return j.transition(ctx, o, order.StatusPaid, "confirmed payment on record")
	}

	status := payment.ProviderUnknown
	var result *payment.StatusResult
	if j.gateway != nil {
		result, err = j.gateway.GetPaymentStatus(ctx, o.ID)
		if err != nil {
			// the provider may be down; leave the order for the next run
			return fmt.Errorf("query provider: %w", err)
		}
		status = result.Status
	}

	switch status {
	case payment.ProviderPaid:
		_, err := j.orders.ConfirmPayment(ctx, order.PaymentConfirmation{
			OrderID:     o.ID,
			Provider:    s.Payment.Provider,
			ProviderRef: result.ProviderRef,
			Amount:      result.Amount,
			Currency:    result.Currency,
		})
		if err != nil {
			j.alerter.Raise(ctx, CheckPaymentIntents, o.ID.String(),
				fmt.Sprintf("provider reports payment but confirmation failed: %v", err))
			return err
		}
		log.Info("provider reported payment, order confirmed")
		res.issue("order %s confirmed from provider status", o.ID)
		return nil

	case payment.ProviderFailed:
		if !s.Features.AutoCancelEnabled {
			res.issue("order %s payment failed, auto-cancel disabled", o.ID)
			return nil
		}
		if _, err := j.orders.FailPayment(ctx, order.PaymentFailure{
			OrderID:     o.ID,
			Provider:    s.Payment.Provider,
			ProviderRef: result.ProviderRef,
			Reason:      result.Reason,
		}); err != nil {
			return err
		}
		log.Info("provider reported failure, cancelling order")
		res.issue("order %s payment failed and was cancelled", o.ID)
		return j.transition(ctx, o, order.StatusCancelled, "payment failed at provider")

	default:
		if !s.Features.AutoCancelEnabled {
			res.issue("order %s pending past timeout, auto-cancel disabled", o.ID)
			return nil
		}
		if j.gateway != nil {
			if err := j.gateway.CancelPayment(ctx, o.ID); err != nil {
				return fmt.Errorf("cancel provider payment: %w", err)
			}
		}
		log.Info("payment intent expired, cancelling order")
		res.issue("order %s payment expired and was cancelled", o.ID)
		return j.transition(ctx, o, order.StatusCancelled, "payment timeout")
	}
}

func (j *Job) transition(ctx context.Context, o order.Order, to order.Status, reason string) error {
	_, err := j.orders.Transition(ctx, order.TransitionRequest{
		OrderID: o.ID,
		Target:  to,
		Actor:   order.SystemActor,
		Reason:  reason,
	})
	return err
}

func (j *Job) stale(ctx context.Context, statuses []order.Status, cutoff time.Time) ([]order.Order, error) {
	var out []order.Order
	err := j.tx.WithinTx(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		var err error
		out, err = uow.Orders().ListStale(ctx, statuses, cutoff, j.batch)
		return err
	})
	return out, err
}
