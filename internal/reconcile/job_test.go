package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storecore/internal/config"
	"storecore/internal/events"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/order"
	"storecore/internal/payment"
	"storecore/internal/store/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var shirt = inventory.Key{VariantID: 11, WarehouseID: "main"}

type fakeGateway struct {
	mu        sync.Mutex
	status    map[uuid.UUID]*payment.StatusResult
	err       error
	cancelled []uuid.UUID
}

func (g *fakeGateway) GetPaymentStatus(_ context.Context, id uuid.UUID) (*payment.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if r, ok := g.status[id]; ok {
		return r, nil
	}
	return &payment.StatusResult{Status: payment.ProviderPending}, nil
}

func (g *fakeGateway) CancelPayment(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, true, nil
}

type fixture struct {
	now      time.Time
	store    *memory.Store
	machine  *order.Machine
	recorder *events.Recorder
	gateway  *fakeGateway
	metrics  *metrics.Registry
	settings config.Settings
}

func newFixture(t *testing.T, mutate ...func(*config.Settings)) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		recorder: &events.Recorder{},
		gateway:  &fakeGateway{status: map[uuid.UUID]*payment.StatusResult{}},
		metrics:  metrics.NewRegistry(),
		settings: config.DefaultSettings(),
	}
	for _, m := range mutate {
		m(&f.settings)
	}

	f.store = memory.New(memory.WithClock(f.clock))
	f.store.SeedAccounts(ledger.DefaultChart()...)
	f.store.SetStock(shirt, 10)
	f.machine = order.NewMachine(f.store, f.recorder, config.Static(f.settings), order.WithClock(f.clock))
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) job(opts ...Option) *Job {
	opts = append([]Option{WithGateway(f.gateway), WithClock(f.clock), WithMetrics(f.metrics)}, opts...)
	return NewJob(f.store, f.machine, f.recorder, config.Static(f.settings), opts...)
}

// awaitingPayment places a 2 x 100 online order and moves it to
// PAYMENT_PENDING.
func (f *fixture) awaitingPayment(t *testing.T) *order.Order {
	t.Helper()
	o := f.place(t, order.PaymentOnline)
	o, err := f.machine.Transition(context.Background(), order.TransitionRequest{
		OrderID: o.ID, Target: order.StatusPaymentPending, Actor: order.SystemActor,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) place(t *testing.T, method order.PaymentMethod) *order.Order {
	t.Helper()
	uid := uint(42)
	o, err := f.machine.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		Items: []order.Item{{
			ProductID: 1, VariantID: shirt.VariantID, Name: "Shirt",
			UnitPrice: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(60), Quantity: 2,
		}},
		PaymentMethod: method,
		Customer:      order.Customer{UserID: &uid},
		TotalPrice:    decimal.NewFromInt(200),
		Actor:         order.Actor{Role: order.RoleCustomer, ID: "42"},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) status(t *testing.T, id uuid.UUID) order.Status {
	t.Helper()
	o, err := f.machine.Get(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

func observe(t *testing.T) *observer.ObservedLogs {
	core, observed := observer.New(zapcore.InfoLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	return observed
}

func TestPaymentIntents(t *testing.T) {
	t.Run("ExpiredIntentIsCancelled", func(t *testing.T) {
		logs := observe(t)
		f := newFixture(t)
		o := f.awaitingPayment(t)

		f.now = f.now.Add(49 * time.Hour)
		report := f.job().Run(context.Background())

		assert.Equal(t, order.StatusCancelled, f.status(t, o.ID))
		assert.Equal(t, []uuid.UUID{o.ID}, f.gateway.cancelled)

		rec := f.store.Stock(shirt)
		assert.Equal(t, 10, rec.Available)
		assert.Equal(t, 0, rec.Reserved)

		res, ok := report.Result(CheckPaymentIntents)
		require.True(t, ok)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.ItemsProcessed)
		assert.Len(t, res.Issues, 1)

		expired := logs.FilterMessage("payment intent expired, cancelling order").All()
		require.Len(t, expired, 1)
		assert.Equal(t, o.ID.String(), expired[0].ContextMap()["order_id"])

		assert.Len(t, f.recorder.OfType(events.TypeReconcileRun), 1)
		assert.NoError(t, report.Err())
	})

	t.Run("WithinTimeoutIsLeftAlone", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)

		f.now = f.now.Add(47 * time.Hour)
		report := f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaymentPending, f.status(t, o.ID))
		res, _ := report.Result(CheckPaymentIntents)
		assert.Equal(t, 0, res.ItemsProcessed)
	})

	t.Run("ProviderReportsPaid", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		f.gateway.status[o.ID] = &payment.StatusResult{
			Status: payment.ProviderPaid, ProviderRef: "ref-1",
			Amount: decimal.NewFromInt(200), Currency: "IDR",
		}

		f.now = f.now.Add(49 * time.Hour)
		f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaid, f.status(t, o.ID))
		cash, _ := f.store.Account("1000")
		assert.Equal(t, "200", cash.Balance.String())
		assert.Empty(t, f.gateway.cancelled)
	})

	t.Run("ProviderReportsFailure", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		f.gateway.status[o.ID] = &payment.StatusResult{
			Status: payment.ProviderFailed, ProviderRef: "ref-2", Reason: "card declined",
		}

		f.now = f.now.Add(49 * time.Hour)
		f.job().Run(context.Background())

		assert.Equal(t, order.StatusCancelled, f.status(t, o.ID))
		payments := f.store.Payments()
		require.Len(t, payments, 1)
		assert.Equal(t, payment.StatusFailed, payments[0].Status)
		assert.Equal(t, 10, f.store.Stock(shirt).Available)
	})

	t.Run("ConfirmedPaymentOnRecord", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, uow order.UnitOfWork) error {
			_, err := uow.Payments().RecordPayment(ctx, &payment.Payment{
				ID: uuid.New(), OrderID: o.ID, Provider: "GENERIC", ProviderRef: "ref-3",
				Amount: decimal.NewFromInt(200), Currency: "IDR", Status: payment.StatusConfirmed,
			})
			return err
		}))

		f.now = f.now.Add(49 * time.Hour)
		f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaid, f.status(t, o.ID))
	})

	t.Run("ProviderDownLeavesOrder", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		f.gateway.err = payment.ErrProvider

		f.now = f.now.Add(49 * time.Hour)
		report := f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaymentPending, f.status(t, o.ID))
		res, _ := report.Result(CheckPaymentIntents)
		assert.False(t, res.Success)
		assert.Equal(t, 1, res.Failed)
		assert.ErrorIs(t, report.Err(), payment.ErrProvider)
		assert.Equal(t, uint64(1), f.metrics.Counter("reconcile.payment_intents.failed").Load())
	})

	t.Run("AutoCancelDisabled", func(t *testing.T) {
		f := newFixture(t, func(s *config.Settings) { s.Features.AutoCancelEnabled = false })
		o := f.awaitingPayment(t)

		f.now = f.now.Add(49 * time.Hour)
		report := f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaymentPending, f.status(t, o.ID))
		res, _ := report.Result(CheckPaymentIntents)
		assert.True(t, res.Success)
		assert.Len(t, res.Issues, 1)
	})
}

func TestInventoryCheck(t *testing.T) {
	t.Run("CorrectsDrift", func(t *testing.T) {
		f := newFixture(t)
		f.place(t, order.PaymentOnline)
		f.store.CorruptReserved(shirt, 5)

		report := f.job().Run(context.Background())

		rec := f.store.Stock(shirt)
		assert.Equal(t, 2, rec.Reserved)
		assert.Equal(t, 11, rec.Available)

		res, _ := report.Result(CheckInventory)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.ItemsProcessed)
		assert.Equal(t, []string{"stock 11@main reserved corrected from 5 to 2"}, res.Issues)

		logs := f.store.InventoryLogs()
		last := logs[len(logs)-1]
		assert.Equal(t, inventory.ActionReconcile, last.Action)
	})

	t.Run("InSyncChangesNothing", func(t *testing.T) {
		f := newFixture(t)
		f.place(t, order.PaymentOnline)
		before := len(f.store.InventoryLogs())

		report := f.job().Run(context.Background())

		res, _ := report.Result(CheckInventory)
		assert.Empty(t, res.Issues)
		assert.Len(t, f.store.InventoryLogs(), before)
	})

	t.Run("RefusedCorrectionAlerts", func(t *testing.T) {
		f := newFixture(t)
		f.place(t, order.PaymentOnline)
		f.store.SetStock(shirt, 0)
		f.store.CorruptReserved(shirt, 0)

		report := f.job().Run(context.Background())

		rec := f.store.Stock(shirt)
		assert.Equal(t, 0, rec.Reserved)
		res, _ := report.Result(CheckInventory)
		assert.False(t, res.Success)

		alerts := f.recorder.OfType(events.TypeReconcileAlert)
		require.Len(t, alerts, 1)
		a, err := events.Decode[Alert](alerts[0])
		require.NoError(t, err)
		assert.Equal(t, CheckInventory, a.Check)
		assert.Equal(t, shirt.String(), a.Subject)
	})
}

func TestOrderSLA(t *testing.T) {
	t.Run("StalePendingCancelled", func(t *testing.T) {
		f := newFixture(t)
		o := f.place(t, order.PaymentCOD)

		f.now = f.now.Add(73 * time.Hour)
		report := f.job().Run(context.Background())

		assert.Equal(t, order.StatusCancelled, f.status(t, o.ID))
		assert.Equal(t, 0, f.store.Stock(shirt).Reserved)
		res, _ := report.Result(CheckOrderSLA)
		assert.Equal(t, 1, res.ItemsProcessed)
	})

	t.Run("StalePaidOnlyAlerts", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		_, err := f.machine.ConfirmPayment(context.Background(), order.PaymentConfirmation{
			OrderID: o.ID, Provider: "GENERIC", ProviderRef: "ref-4",
			Amount: decimal.NewFromInt(200), Currency: "IDR",
		})
		require.NoError(t, err)

		f.now = f.now.Add(6 * 24 * time.Hour)
		f.job().Run(context.Background())

		assert.Equal(t, order.StatusPaid, f.status(t, o.ID))
		alerts := f.recorder.OfType(events.TypeReconcileAlert)
		require.Len(t, alerts, 1)
		assert.Equal(t, o.ID.String(), alerts[0].Key)
	})

	t.Run("AutoCancelDisabledAlerts", func(t *testing.T) {
		f := newFixture(t, func(s *config.Settings) { s.Features.AutoCancelEnabled = false })
		o := f.place(t, order.PaymentCOD)

		f.now = f.now.Add(73 * time.Hour)
		f.job().Run(context.Background())

		assert.Equal(t, order.StatusPending, f.status(t, o.ID))
		assert.Len(t, f.recorder.OfType(events.TypeReconcileAlert), 1)
	})
}

func TestLedgerCheck(t *testing.T) {
	t.Run("Clean", func(t *testing.T) {
		f := newFixture(t)
		report := f.job().Run(context.Background())

		res, _ := report.Result(CheckLedger)
		assert.True(t, res.Success)
		assert.Equal(t, len(ledger.DefaultChart()), res.ItemsProcessed)
		assert.Empty(t, f.recorder.OfType(events.TypeReconcileAlert))
	})

	t.Run("DriftAlerts", func(t *testing.T) {
		f := newFixture(t)
		f.store.CorruptBalance("1000", decimal.NewFromInt(999))

		report := f.job().Run(context.Background())

		res, _ := report.Result(CheckLedger)
		assert.True(t, res.Success)
		require.Len(t, res.Issues, 1)
		assert.Contains(t, res.Issues[0], "account 1000")

		alerts := f.recorder.OfType(events.TypeReconcileAlert)
		require.Len(t, alerts, 1)
		assert.Equal(t, "account:1000", alerts[0].Key)
		// drift is reported, not repaired
		cash, _ := f.store.Account("1000")
		assert.Equal(t, "999", cash.Balance.String())
		assert.Equal(t, uint64(1), f.metrics.Counter("reconcile.alerts").Load())
	})

	t.Run("PercentInAccountCodeKeptVerbatim", func(t *testing.T) {
		f := newFixture(t)
		f.store.SeedAccounts(ledger.Account{Code: "9%d", Name: "Suspense", Type: ledger.Asset})
		f.store.CorruptBalance("9%d", decimal.NewFromInt(5))

		report := f.job().Run(context.Background())

		res, _ := report.Result(CheckLedger)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, "account 9%d cached balance 5, posted lines give 0", res.Issues[0])
	})
}

func TestRun_Lock(t *testing.T) {
	t.Run("HeldElsewhereSkips", func(t *testing.T) {
		f := newFixture(t)
		o := f.awaitingPayment(t)
		f.now = f.now.Add(49 * time.Hour)

		report := f.job(WithLocker(&fakeLocker{held: true})).Run(context.Background())

		assert.True(t, report.Skipped)
		assert.Empty(t, report.Results)
		assert.Equal(t, order.StatusPaymentPending, f.status(t, o.ID))
		assert.Equal(t, uint64(1), f.metrics.Counter("reconcile.skipped").Load())
	})

	t.Run("ReleasedAfterRun", func(t *testing.T) {
		f := newFixture(t)
		l := &fakeLocker{}

		report := f.job(WithLocker(l)).Run(context.Background())

		assert.False(t, report.Skipped)
		assert.Len(t, report.Results, 4)
		assert.True(t, l.released)
	})
}

func TestRunCheck_RecoversPanic(t *testing.T) {
	logs := observe(t)
	f := newFixture(t)
	j := f.job()

	res := j.runCheck(context.Background(), check{
		name: "boom",
		run: func(context.Context, config.Settings, *Result) {
			panic("nil map")
		},
	}, f.settings)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorContains(t, res.Err, "check boom panicked: nil map")
	assert.Equal(t, 1, logs.FilterMessage("reconcile check panicked").Len())
}

func TestReport_Err(t *testing.T) {
	a, b := errors.New("a"), errors.New("b")
	r := Report{Results: []Result{{Err: a}, {}, {Err: b}}}

	assert.ErrorIs(t, r.Err(), a)
	assert.ErrorIs(t, r.Err(), b)
	assert.NoError(t, Report{}.Err())
}
