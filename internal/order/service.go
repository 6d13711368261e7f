package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/config"
	"storecore/internal/events"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Machine is the only writer of order status. Every operation runs in one
// unit of work: the status change never commits without its stock and
// ledger effects. Events go out after commit.
type Machine struct {
	tx       Transactor
	pub      events.Publisher
	settings func() config.Settings
	now      func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(tx Transactor, pub events.Publisher, settings func() config.Settings, opts ...Option) *Machine {
	if pub == nil {
		pub = events.Discard
	}
	m := &Machine{tx: tx, pub: pub, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// change is a committed status move waiting to be published.
type change struct {
	from, to Status
	actor    Actor
}

// Transition moves an order to req.Target. Asking for the current status is
// a successful no-op so that replayed webhooks and retries are harmless.
func (m *Machine) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Transition"),
		zap.String("order_id", req.OrderID.String()),
		zap.String("target", string(req.Target)),
		zap.String("actor", req.Actor.String()),
	)

	s := m.settings()
	var (
		result  *Order
		changes []change
	)
	err := m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().GetForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		c, err := m.transition(ctx, uow, o, req.Target, req.Actor, req.Reason, s)
		if err != nil {
			return err
		}
		changes = append(changes, c...)
		result = o
		return nil
	})
	if err != nil {
		logFailure(log, "transition rejected", err)
		return nil, err
	}

	if len(changes) == 0 {
		log.Info("order already in target status")
	} else {
		log.Info("order transitioned", zap.String("from", string(changes[0].from)))
	}
	m.publish(ctx, result, changes)
	return result, nil
}

// transition applies one move inside uow. It returns no change for a
// same-status request. reason ends up in the stock log and on reversals.
func (m *Machine) transition(ctx context.Context, uow UnitOfWork, o *Order, target Status, actor Actor, reason string, s config.Settings) ([]change, error) {
	if o.Status == target {
		return nil, nil
	}
	if err := checkTransition(o, target, actor); err != nil {
		return nil, err
	}
	if err := m.applyEffects(ctx, uow, o, target, actor, reason, s); err != nil {
		return nil, err
	}

	from := o.Status
	now := m.now().UTC()
	o.Status = target
	o.UpdatedAt = now
	switch target {
	case StatusPaid:
		o.PaidAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered, StatusCashReceived:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}
	if err := uow.Orders().UpdateStatus(ctx, o); err != nil {
		return nil, err
	}
	return []change{{from: from, to: target, actor: actor}}, nil
}

// PlaceOrder creates a PENDING order and reserves its stock in the same
// transaction. Retrying with the same ID returns the existing order.
func (m *Machine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.String("actor", req.Actor.String()),
	)

	s := m.settings()
	if !s.Features.CheckoutEnabled {
		return nil, apperror.Order(ErrCheckoutDisabled.Code, "checkout is disabled")
	}

	o, err := m.buildOrder(req, s)
	if err != nil {
		log.Warn("invalid order", zap.Error(err))
		return nil, err
	}

	created := false
	err = m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if req.ID != uuid.Nil {
			existing, err := uow.Orders().Get(ctx, req.ID)
			if err == nil {
				if !samePlacement(existing, o) {
					return apperror.Validation(ErrOrderIDReused.Code, "order %s already exists with different contents", req.ID)
				}
				o = existing
				return nil
			}
			if !errors.Is(err, apperror.ErrNotFound) {
				return err
			}
		}

		if err := uow.Orders().Create(ctx, o); err != nil {
			return err
		}

		inv := inventory.NewEngine(uow.Inventory(), m.now)
		meta := inventory.Meta{Actor: req.Actor.String(), Reference: o.Reference(), Reason: "order placed"}
		if err := moveStock(ctx, o, meta, inv.Reserve); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		logFailure(log, "place order failed", err)
		return nil, err
	}

	if created {
		log.Info("order placed", zap.String("order_id", o.ID.String()))
		m.emit(ctx, events.TypeOrderPlaced, o.ID.String(), Placed{
			OrderID:       o.ID.String(),
			PaymentMethod: o.PaymentMethod,
			Total:         o.TotalPrice.String(),
			Currency:      o.Currency,
			Items:         len(o.Items),
		})
	}
	return o, nil
}

func (m *Machine) buildOrder(req PlaceOrderRequest, s config.Settings) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Validation(ErrInvalidOrder.Code, "order has no items")
	}
	if req.Customer.UserID == nil && req.Customer.Email == "" {
		return nil, apperror.Validation(ErrInvalidOrder.Code, "order needs a user or a guest email")
	}

	method := req.PaymentMethod
	if method == "" {
		method = PaymentOnline
	}
	if method != PaymentOnline && method != PaymentCOD {
		return nil, apperror.Validation(ErrInvalidOrder.Code, "unknown payment method %q", method)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.Payment.Currency
	}

	items := make([]Item, len(req.Items))
	total := decimal.Zero
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, apperror.Validation(ErrInvalidOrder.Code, "item %d: quantity must be positive", i+1)
		}
		if it.UnitPrice.IsNegative() || it.UnitCost.IsNegative() {
			return nil, apperror.Validation(ErrInvalidOrder.Code, "item %d: price and cost must not be negative", i+1)
		}
		if !ledger.ValidAmount(it.UnitPrice) || !ledger.ValidAmount(it.UnitCost) {
			return nil, apperror.Validation(ErrInvalidOrder.Code, "item %d: price and cost allow at most %d decimal places", i+1, ledger.MoneyPlaces)
		}
		if it.VariantID == 0 {
			return nil, apperror.Validation(ErrInvalidOrder.Code, "item %d: variant is required", i+1)
		}
		if it.WarehouseID == "" {
			it.WarehouseID = s.DefaultWarehouse
		}
		items[i] = it
		total = total.Add(it.Subtotal())
	}
	if !total.Equal(req.TotalPrice) {
		return nil, apperror.Validation(ErrAmountMismatch.Code, "stated total %s does not match items total %s", req.TotalPrice, total)
	}

	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := m.now().UTC()
	return &Order{
		ID:            id,
		Items:         items,
		Status:        StatusPending,
		PaymentMethod: method,
		Customer:      req.Customer,
		Currency:      currency,
		TotalPrice:    total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ConfirmPayment records a confirmed provider payment and moves the order to
// PAID. Confirming an order that is already paid is a no-op.
func (m *Machine) ConfirmPayment(ctx context.Context, pc PaymentConfirmation) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmPayment"),
		zap.String("order_id", pc.OrderID.String()),
		zap.String("provider_ref", pc.ProviderRef),
	)

	s := m.settings()
	var (
		result  *Order
		changes []change
	)
	err := m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().GetForUpdate(ctx, pc.OrderID)
		if err != nil {
			return err
		}
		result = o

		switch o.Status {
		case StatusPaid, StatusShipped, StatusDelivered:
			return nil
		case StatusCancelled, StatusCashReceived:
			return apperror.Order(ErrOrderClosed.Code, "payment received for %s order %s", o.Status, o.ID)
		}

		if !ledger.ValidAmount(pc.Amount) {
			return apperror.Validation(ErrAmountMismatch.Code, "paid amount %s has more than %d decimal places", pc.Amount, ledger.MoneyPlaces)
		}
		if !pc.Amount.Equal(o.TotalPrice) || !strings.EqualFold(pc.Currency, o.Currency) {
			return apperror.Validation(ErrAmountMismatch.Code, "paid %s %s, order total %s %s",
				pc.Amount, pc.Currency, o.TotalPrice, o.Currency)
		}

		if _, err := uow.Payments().RecordPayment(ctx, &payment.Payment{
			OrderID:     o.ID,
			Provider:    pc.Provider,
			ProviderRef: pc.ProviderRef,
			Amount:      pc.Amount,
			Currency:    o.Currency,
			Status:      payment.StatusConfirmed,
		}); err != nil {
			return err
		}

		// a late success after a failure goes back through PAYMENT_PENDING
		if o.Status == StatusPaymentFailed {
			c, err := m.transition(ctx, uow, o, StatusPaymentPending, SystemActor, "late payment confirmation", s)
			if err != nil {
				return err
			}
			changes = append(changes, c...)
		}
		c, err := m.transition(ctx, uow, o, StatusPaid, SystemActor, "payment confirmed", s)
		if err != nil {
			return err
		}
		changes = append(changes, c...)
		return nil
	})
	if err != nil {
		logFailure(log, "confirm payment failed", err)
		return nil, err
	}

	log.Info("payment confirmed", zap.Int("transitions", len(changes)))
	m.publish(ctx, result, changes)
	return result, nil
}

// FailPayment records a failed provider payment and moves a PAYMENT_PENDING
// order to PAYMENT_FAILED. Orders in any other status only get the record.
func (m *Machine) FailPayment(ctx context.Context, pf PaymentFailure) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "FailPayment"),
		zap.String("order_id", pf.OrderID.String()),
	)

	s := m.settings()
	var (
		result  *Order
		changes []change
	)
	err := m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().GetForUpdate(ctx, pf.OrderID)
		if err != nil {
			return err
		}
		result = o

		// failures without a provider reference are keyed per order
		ref := pf.ProviderRef
		if ref == "" {
			ref = o.Reference()
		}
		if _, err := uow.Payments().RecordPayment(ctx, &payment.Payment{
			OrderID:     o.ID,
			Provider:    pf.Provider,
			ProviderRef: ref,
			Amount:      o.TotalPrice,
			Currency:    o.Currency,
			Status:      payment.StatusFailed,
			Reason:      pf.Reason,
		}); err != nil {
			return err
		}

		if o.Status != StatusPaymentPending {
			return nil
		}
		changes, err = m.transition(ctx, uow, o, StatusPaymentFailed, SystemActor, pf.Reason, s)
		return err
	})
	if err != nil {
		logFailure(log, "fail payment failed", err)
		return nil, err
	}

	log.Info("payment failure recorded", zap.String("reason", pf.Reason))
	m.publish(ctx, result, changes)
	return result, nil
}

// samePlacement reports whether a retried placement matches the stored order.
func samePlacement(existing, retry *Order) bool {
	if !existing.TotalPrice.Equal(retry.TotalPrice) ||
		existing.PaymentMethod != retry.PaymentMethod ||
		existing.Currency != retry.Currency ||
		len(existing.Items) != len(retry.Items) {
		return false
	}
	for i, a := range existing.Items {
		b := retry.Items[i]
		if a.ProductID != b.ProductID || a.VariantID != b.VariantID || a.WarehouseID != b.WarehouseID ||
			a.Quantity != b.Quantity || !a.UnitPrice.Equal(b.UnitPrice) || !a.UnitCost.Equal(b.UnitCost) {
			return false
		}
	}
	return true
}

func (m *Machine) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	var out *Order
	err := m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		out, err = uow.Orders().Get(ctx, id)
		return err
	})
	return out, err
}

func (m *Machine) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var out []Order
	err := m.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		out, err = uow.Orders().List(ctx, f)
		return err
	})
	return out, err
}

func (m *Machine) publish(ctx context.Context, o *Order, changes []change) {
	for _, c := range changes {
		payload := Transitioned{
			OrderID:    o.ID.String(),
			From:       c.from,
			To:         c.to,
			Actor:      c.actor.String(),
			Total:      o.TotalPrice.String(),
			Currency:   o.Currency,
			OccurredAt: o.UpdatedAt,
		}
		m.emit(ctx, events.TypeOrderTransitioned, o.ID.String(), payload)
		m.emit(ctx, "order."+strings.ToLower(string(c.to)), o.ID.String(), payload)
	}
}

// emit publishes best effort; failures are logged and dropped.
func (m *Machine) emit(ctx context.Context, typ, key string, payload any) {
	if logger.CorrelationIDFrom(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, key)
	}
	evt, err := events.New(ctx, typ, key, payload)
	if err == nil {
		err = m.pub.Publish(ctx, evt)
	}
	if err != nil {
		logger.FromCtx(ctx).Warn("publish event failed",
			zap.String("event_type", typ),
			zap.String("key", key),
			zap.Error(err))
	}
}

// logFailure logs expected domain rejections at warn and everything else at
// error.
func logFailure(log *zap.Logger, msg string, err error) {
	if apperror.IsDomain(err) {
		log.Warn(msg, zap.String("code", apperror.CodeOf(err)), zap.Error(err))
		return
	}
	log.Error(msg, zap.Error(err))
}
