package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storecore/internal/config"
	"storecore/internal/db"
	"storecore/internal/events"
	"storecore/internal/graph"
	"storecore/internal/httpapi"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/middleware"
	"storecore/internal/order"
	"storecore/internal/payment/webhook"
	"storecore/internal/redisx"
	"storecore/internal/store/postgres"

	"go.uber.org/zap"
)

var (
	initDBFunc      = db.NewDatabase
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
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

	handler, limiter, cleanup := newServer(cfg, settings, conn)
	defer cleanup()
	go limiter.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer wires the services over conn. The returned cleanup flushes the
// event pipeline.
func newServer(cfg *config.Config, settings config.Settings, conn *sql.DB) (http.Handler, *middleware.RateLimiter, func()) {
	reg := metrics.Default
	store := postgres.New(conn)
	settingsFn := config.Static(settings)

	pub, closePub := events.NewPipeline(cfg.KafkaBrokers, cfg.EventsTopic, reg)
	machine := order.NewMachine(store, pub, settingsFn)

	var dedup webhook.Deduper
	if cfg.RedisAddr != "" {
		dedup = redisx.NewDedup(redisx.New(cfg.RedisAddr), "webhook")
	}
	hook := webhook.NewHandler(machine, store, dedup, cfg.WebhookSecret, settingsFn, reg)

	invSvc := inventory.NewService(store)
	ledgerSvc := ledger.NewService(store)
	resolver := &graph.Resolver{OrderSvc: machine, InventorySvc: invSvc, LedgerSvc: ledgerSvc}

	limiter := middleware.NewRateLimiter(cfg.InternalKey)
	router := httpapi.NewRouter(httpapi.Deps{
		Orders:    machine,
		Inventory: invSvc,
		Ledger:    ledgerSvc,
		Webhook:   hook,
		GraphQL:   graph.NewHandler(resolver),
		Limiter:   limiter,
		Metrics:   reg,
		JWTSecret: []byte(cfg.JWTSecret),
		Health:    store.Ping,
	})
	return router, limiter, closePub
}
