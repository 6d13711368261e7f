package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"storecore/internal/config"
	"storecore/internal/db"
	"storecore/internal/events"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/order"
	"storecore/internal/payment"
	"storecore/internal/reconcile"
	"storecore/internal/redisx"
	"storecore/internal/store/postgres"

	"go.uber.org/zap"
)

var initDBFunc = db.NewDatabase

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}

	conn, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	job, cleanup := newJob(cfg, settings, conn)
	defer cleanup()

	pass := func(ctx context.Context) {
		report := job.Run(ctx)
		if err := report.Err(); err != nil {
			logger.FromCtx(ctx).Warn("reconcile pass finished with failures", zap.Error(err))
		}
	}

	if once {
		pass(ctx)
		return nil
	}
	logger.L().Info("reconciler started", zap.Duration("interval", cfg.ReconcileInterval))
	loop(ctx, cfg.ReconcileInterval, pass)
	return nil
}

// loop calls fn immediately and then on every tick until ctx is done.
func loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newJob(cfg *config.Config, settings config.Settings, conn *sql.DB) (*reconcile.Job, func()) {
	reg := metrics.Default
	store := postgres.New(conn)
	settingsFn := config.Static(settings)

	pub, cleanup := events.NewPipeline(cfg.KafkaBrokers, cfg.EventsTopic, reg)

	opts := []reconcile.Option{reconcile.WithMetrics(reg)}
	if cfg.PaymentProviderURL != "" {
		opts = append(opts, reconcile.WithGateway(payment.NewHTTPGateway(cfg.PaymentProviderURL, cfg.PaymentProviderKey)))
	}
	if cfg.RedisAddr != "" {
		opts = append(opts, reconcile.WithLocker(redisx.NewLocker(redisx.New(cfg.RedisAddr))))
	}

	machine := order.NewMachine(store, pub, settingsFn)
	return reconcile.NewJob(store, machine, pub, settingsFn, opts...), cleanup
}
