package graph

import (
	"context"

	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/order"

	"github.com/99designs/gqlgen/graphql"
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
	History(ctx context.Context, key inventory.Key, limit int) ([]inventory.LogEntry, error)
	Adjust(ctx context.Context, key inventory.Key, delta int, meta inventory.Meta) (inventory.Record, error)
}

type LedgerService interface {
	Post(ctx context.Context, req ledger.PostRequest) (*ledger.JournalEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*ledger.JournalEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	AccountBalance(ctx context.Context, code string) (decimal.Decimal, error)
}

type Resolver struct {
	OrderSvc     OrderService
	InventorySvc InventoryService
	LedgerSvc    LedgerService
}

func NewSchema(r *Resolver) graphql.ExecutableSchema {
	return NewExecutableSchema(Config{
		Resolvers: r,
		Directives: DirectiveRoot{
			Auth: AuthDirective,
		},
	})
}

func (r *Resolver) Query() *queryResolver       { return &queryResolver{r} }
func (r *Resolver) Mutation() *mutationResolver { return &mutationResolver{r} }

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }

var (
	_ OrderService     = (*order.Machine)(nil)
	_ InventoryService = (*inventory.Service)(nil)
	_ LedgerService    = (*ledger.Service)(nil)
)
