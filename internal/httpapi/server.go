// Package httpapi exposes the order, inventory and ledger services over
// HTTP with chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/middleware"
	"storecore/internal/order"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Transition(ctx context.Context, req order.TransitionRequest) (*order.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, error)
}

type InventoryService interface {
	Get(ctx context.Context, key inventory.Key) (inventory.Record, error)
	List(ctx context.Context) ([]inventory.Record, error)
	History(ctx context.Context, key inventory.Key, limit int) ([]inventory.LogEntry, error)
	Adjust(ctx context.Context, key inventory.Key, delta int, meta inventory.Meta) (inventory.Record, error)
	Correct(ctx context.Context, key inventory.Key, expectedReserved int, meta inventory.Meta) (inventory.Record, error)
}

type LedgerService interface {
	Post(ctx context.Context, req ledger.PostRequest) (*ledger.JournalEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*ledger.JournalEntry, error)
	SaveDraft(ctx context.Context, req ledger.PostRequest) (*ledger.JournalEntry, error)
	PostDraft(ctx context.Context, id uuid.UUID) (*ledger.JournalEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	EntriesByReferencePrefix(ctx context.Context, prefix string) ([]ledger.JournalEntry, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	AccountBalance(ctx context.Context, code string) (decimal.Decimal, error)
	TrialBalance(ctx context.Context, asOf time.Time) (ledger.TrialBalance, error)
	ProfitAndLoss(ctx context.Context, from, to time.Time) (ledger.ProfitAndLoss, error)
	BalanceSheet(ctx context.Context, asOf time.Time) (ledger.BalanceSheet, error)
}

// Deps is everything the router serves.
type Deps struct {
	Orders    OrderService
	Inventory InventoryService
	Ledger    LedgerService
	Webhook   http.Handler
	// GraphQL serves /query for the same services; nil leaves it unmounted.
	GraphQL   http.Handler
	Limiter   *middleware.RateLimiter
	Metrics   *metrics.Registry
	JWTSecret []byte
	// Health reports whether dependencies are reachable. Nil means healthy.
	Health func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	if d.Limiter == nil {
		d.Limiter = middleware.NewRateLimiter("")
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Default
	}

	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware, chimw.RealIP, logger.LoggingMiddleware, middleware.Recover)
	r.Use(chimw.Timeout(15 * time.Second))

	r.Get("/healthz", health(d.Health))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Metrics.Snapshot())
	})

	if d.Webhook != nil {
		r.With(d.Limiter.Limit(middleware.TierStrict)).Post("/webhooks/payment", d.Webhook.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret), d.Limiter.Limit(middleware.TierGeneral))

		if d.GraphQL != nil {
			r.Post("/query", d.GraphQL.ServeHTTP)
		}

		oh := &ordersHandler{svc: d.Orders}
		r.Post("/orders", oh.checkout)
		r.Get("/orders/{id}", oh.get)
		r.With(middleware.RequireRole(order.RoleAdmin, order.RoleCustomer, order.RoleSystem)).
			Post("/orders/{id}/transitions", oh.transition)
		r.With(middleware.RequireRole(order.RoleAdmin)).Get("/orders", oh.list)

		r.Route("/inventory", func(r chi.Router) {
			r.Use(middleware.RequireRole(order.RoleAdmin))
			ih := &inventoryHandler{svc: d.Inventory}
			r.Get("/", ih.list)
			r.Get("/{variant}/{warehouse}", ih.get)
			r.Get("/{variant}/{warehouse}/history", ih.history)
			r.Post("/{variant}/{warehouse}/adjust", ih.adjust)
			r.Post("/{variant}/{warehouse}/correct", ih.correct)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Use(middleware.RequireRole(order.RoleAdmin))
			lh := &ledgerHandler{svc: d.Ledger}
			r.Get("/accounts", lh.accounts)
			r.Get("/accounts/{code}/balance", lh.balance)
			r.Get("/entries", lh.entries)
			r.Post("/entries", lh.post)
			r.Get("/entries/{id}", lh.entry)
			r.Post("/entries/{id}/reverse", lh.reverse)
			r.Post("/drafts", lh.draft)
			r.Post("/drafts/{id}/post", lh.postDraft)
			r.Get("/reports/trial-balance", lh.trialBalance)
			r.Get("/reports/profit-and-loss", lh.profitAndLoss)
			r.Get("/reports/balance-sheet", lh.balanceSheet)
		})
	})

	return r
}

func health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
