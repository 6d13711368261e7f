// Package reconcile repairs drift between orders, stock, payments and the
// ledger. Each check processes records one at a time, each in its own
// transaction, so an interrupted run leaves finished records committed.
package reconcile

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"storecore/internal/config"
	"storecore/internal/events"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/order"
	"storecore/internal/payment"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	CheckPaymentIntents = "payment_intents"
	CheckInventory      = "inventory"
	CheckOrderSLA       = "order_sla"
	CheckLedger         = "ledger"
)

const lockName = "reconcile"

// OrderMachine is the slice of order.Machine the job drives.
type OrderMachine interface {
	Transition(ctx context.Context, req order.TransitionRequest) (*order.Order, error)
	ConfirmPayment(ctx context.Context, pc order.PaymentConfirmation) (*order.Order, error)
	FailPayment(ctx context.Context, pf order.PaymentFailure) (*order.Order, error)
}

// Locker guards against two replicas running the job at once.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Result is the outcome of one check.
type Result struct {
	Check          string        `json:"check"`
	Success        bool          `json:"success"`
	ItemsProcessed int           `json:"items_processed"`
	Failed         int           `json:"failed"`
	Issues         []string      `json:"issues,omitempty"`
	Duration       time.Duration `json:"duration"`
	Err            error         `json:"-"`
}

func (r *Result) issue(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

// fail records a per-item failure without stopping the check.
func (r *Result) fail(err error, format string, args ...any) {
	r.Failed++
	r.Err = multierr.Append(r.Err, err)
	r.issue(format+": %v", append(args, err)...)
}

type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Skipped    bool      `json:"skipped"`
	Results    []Result  `json:"results"`
}

// Err combines the errors of every check.
func (r Report) Err() error {
	var err error
	for _, res := range r.Results {
		err = multierr.Append(err, res.Err)
	}
	return err
}

func (r Report) Result(check string) (Result, bool) {
	for _, res := range r.Results {
		if res.Check == check {
			return res, true
		}
	}
	return Result{}, false
}

type Job struct {
	tx       order.Transactor
	orders   OrderMachine
	gateway  payment.Gateway
	settings func() config.Settings
	alerter  *Alerter
	pub      events.Publisher
	locker   Locker
	metrics  *metrics.Registry
	now      func() time.Time
	batch    int
	lockTTL  time.Duration
}

type Option func(*Job)

// WithGateway lets the payment check ask the provider about stale intents.
func WithGateway(g payment.Gateway) Option { return func(j *Job) { j.gateway = g } }

func WithLocker(l Locker) Option { return func(j *Job) { j.locker = l } }

func WithClock(now func() time.Time) Option { return func(j *Job) { j.now = now } }

func WithMetrics(reg *metrics.Registry) Option { return func(j *Job) { j.metrics = reg } }

func WithBatchSize(n int) Option { return func(j *Job) { j.batch = n } }

func NewJob(tx order.Transactor, orders OrderMachine, pub events.Publisher, settings func() config.Settings, opts ...Option) *Job {
	if pub == nil {
		pub = events.Discard
	}
	j := &Job{
		tx:       tx,
		orders:   orders,
		settings: settings,
		pub:      pub,
		metrics:  metrics.Default,
		now:      time.Now,
		batch:    500,
		lockTTL:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.alerter = NewAlerter(pub, j.metrics)
	return j
}

type check struct {
	name string
	run  func(ctx context.Context, s config.Settings, res *Result)
}

func (j *Job) checks() []check {
	return []check{
		{CheckPaymentIntents, j.checkPaymentIntents},
		{CheckInventory, j.checkInventory},
		{CheckOrderSLA, j.checkOrderSLA},
		{CheckLedger, j.checkLedger},
	}
}

// Run executes every check concurrently. A failing or panicking check never
// stops the others.
func (j *Job) Run(ctx context.Context) Report {
	log := logger.FromCtx(ctx).With(zap.String("layer", "reconcile"))
	report := Report{StartedAt: j.now().UTC()}

	if j.locker != nil {
		release, ok, err := j.locker.TryLock(ctx, lockName, j.lockTTL)
		if err != nil {
			log.Error("obtain reconcile lock failed", zap.Error(err))
		}
		if !ok {
			log.Info("reconcile run skipped, lock held elsewhere")
			j.metrics.Counter("reconcile.skipped").Inc()
			report.Skipped = true
			report.FinishedAt = j.now().UTC()
			return report
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release reconcile lock failed", zap.Error(err))
			}
		}()
	}

	s := j.settings()
	checks := j.checks()
	report.Results = make([]Result, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			report.Results[i] = j.runCheck(ctx, c, s)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = j.now().UTC()
	j.metrics.Counter("reconcile.runs").Inc()
	for _, res := range report.Results {
		log.Info("reconcile check finished",
			zap.String("check", res.Check),
			zap.Bool("success", res.Success),
			zap.Int("processed", res.ItemsProcessed),
			zap.Int("failed", res.Failed),
			zap.Int("issues", len(res.Issues)),
			zap.Duration("duration", res.Duration),
		)
	}

	evt, err := events.New(ctx, events.TypeReconcileRun, lockName, report)
	if err == nil {
		err = j.pub.Publish(ctx, evt)
	}
	if err != nil {
		log.Warn("publish reconcile report failed", zap.Error(err))
	}
	return report
}

func (j *Job) runCheck(ctx context.Context, c check, s config.Settings) (res Result) {
	res = Result{Check: c.name}
	timer := metrics.StartTimer()
	defer func() {
		if p := recover(); p != nil {
			logger.FromCtx(ctx).Error("reconcile check panicked",
				zap.String("check", c.name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res.Err = multierr.Append(res.Err, fmt.Errorf("check %s panicked: %v", c.name, p))
			res.Failed++
		}
		res.Duration = timer.Duration()
		res.Success = res.Failed == 0
		j.metrics.Counter("reconcile." + c.name + ".processed").Add(uint64(res.ItemsProcessed))
		if !res.Success {
			j.metrics.Counter("reconcile." + c.name + ".failed").Inc()
		}
	}()

	c.run(ctx, s, &res)
	return res
}
