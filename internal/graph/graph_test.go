package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storecore/internal/config"
	"storecore/internal/events"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/middleware"
	"storecore/internal/order"
	"storecore/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	shirt    = inventory.Key{VariantID: 11, WarehouseID: "main"}
	admin    = &order.Actor{Role: order.RoleAdmin, ID: "1"}
	customer = &order.Actor{Role: order.RoleCustomer, ID: "42"}
	stranger = &order.Actor{Role: order.RoleCustomer, ID: "43"}
)

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Code   int
	Raw    string
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

type fixture struct {
	t       *testing.T
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.SeedAccounts(ledger.DefaultChart()...)
	store.SetStock(shirt, 10)

	r := &Resolver{
		OrderSvc:     order.NewMachine(store, &events.Recorder{}, config.Static(config.DefaultSettings())),
		InventorySvc: inventory.NewService(store),
		LedgerSvc:    ledger.NewService(store),
	}
	return &fixture{t: t, store: store, handler: NewHandler(r)}
}

func (f *fixture) exec(as *order.Actor, query string, vars map[string]any) gqlResponse {
	f.t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(f.t, err)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *as))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	resp := gqlResponse{Code: w.Code, Raw: w.Body.String()}
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

const checkoutMutation = `mutation Place($input: CheckoutInput!) {
	placed: checkout(input: $input) { __typename id status totalPrice items { variantId quantity subtotal } }
}`

func checkoutInput(qty int) map[string]any {
	return map[string]any{
		"input": map[string]any{
			"items": []map[string]any{{
				"variantId": 11, "name": "Shirt", "unitPrice": "100", "unitCost": "60", "quantity": qty,
			}},
			"paymentMethod": "ONLINE",
			"totalPrice":    "200",
		},
	}
}

func (f *fixture) checkout(as *order.Actor) string {
	f.t.Helper()
	resp := f.exec(as, checkoutMutation, checkoutInput(2))
	require.Empty(f.t, resp.Errors, resp.Raw)
	var placed struct {
		ID string `json:"id"`
	}
	require.NoError(f.t, json.Unmarshal(resp.Data["placed"], &placed))
	return placed.ID
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	resp := f.exec(customer, checkoutMutation, checkoutInput(2))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, resp.Errors, resp.Raw)

	var placed map[string]any
	require.NoError(t, json.Unmarshal(resp.Data["placed"], &placed))
	assert.Equal(t, "Order", placed["__typename"])
	assert.Equal(t, "PENDING", placed["status"])
	assert.Equal(t, "200", placed["totalPrice"])
	assert.Equal(t, []any{map[string]any{"variantId": float64(11), "quantity": float64(2), "subtotal": "200"}}, placed["items"])
	assert.NotContains(t, placed, "createdAt")

	// keys follow the selection order
	raw := string(resp.Data["placed"])
	assert.Less(t, strings.Index(raw, `"__typename"`), strings.Index(raw, `"id"`))
	assert.Less(t, strings.Index(raw, `"status"`), strings.Index(raw, `"totalPrice"`))

	assert.Equal(t, 2, f.store.Stock(shirt).Reserved)
}

func TestCheckout_GuestNeedsDetails(t *testing.T) {
	f := newFixture(t)
	resp := f.exec(nil, checkoutMutation, checkoutInput(1))

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "invalid_argument", resp.Errors[0].Extensions["code"])
	assert.Equal(t, []any{"placed"}, resp.Errors[0].Path)
	assert.JSONEq(t, `null`, string(resp.Data["placed"]))
}

func TestOrderQuery(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(customer)
	query := `query Get($id: ID!) {
		order(id: $id) { ...summary }
	}
	fragment summary on Order { id status nextStatuses }`

	t.Run("Owner", func(t *testing.T) {
		resp := f.exec(customer, query, map[string]any{"id": id})
		require.Empty(t, resp.Errors, resp.Raw)
		assert.JSONEq(t, `{"id":"`+id+`","status":"PENDING","nextStatuses":["PAYMENT_PENDING","PAID","SHIPPED","CANCELLED"]}`,
			string(resp.Data["order"]))
	})

	t.Run("OtherCustomerSeesNotFound", func(t *testing.T) {
		resp := f.exec(stranger, query, map[string]any{"id": id})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "order_not_found", resp.Errors[0].Extensions["code"])
		assert.Equal(t, "NOT_FOUND", resp.Errors[0].Extensions["kind"])
	})

	t.Run("Anonymous", func(t *testing.T) {
		resp := f.exec(nil, query, map[string]any{"id": id})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "unauthorized", resp.Errors[0].Message)
		assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
	})
}

func TestAdminFields(t *testing.T) {
	f := newFixture(t)
	f.checkout(customer)
	query := `{ orders { id } accounts { code } }`

	t.Run("CustomerForbidden", func(t *testing.T) {
		resp := f.exec(customer, query, nil)
		require.Len(t, resp.Errors, 2)
		for _, e := range resp.Errors {
			assert.Equal(t, "forbidden", e.Message)
		}
	})

	t.Run("Admin", func(t *testing.T) {
		resp := f.exec(admin, query, nil)
		require.Empty(t, resp.Errors, resp.Raw)
		var orders []map[string]any
		require.NoError(t, json.Unmarshal(resp.Data["orders"], &orders))
		assert.Len(t, orders, 1)
	})
}

func TestTransitionOrder_KeepsReason(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(customer)

	resp := f.exec(customer, `mutation($id: ID!) {
		transitionOrder(id: $id, status: CANCELLED, reason: "changed my mind") { status cancelledAt }
	}`, map[string]any{"id": id})
	require.Empty(t, resp.Errors, resp.Raw)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Data["transitionOrder"], &got))
	assert.Equal(t, "CANCELLED", got["status"])
	assert.NotNil(t, got["cancelledAt"])

	logs := f.store.InventoryLogs()
	assert.Equal(t, "changed my mind", logs[len(logs)-1].Reason)
	assert.Equal(t, 0, f.store.Stock(shirt).Reserved)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	mutation := `mutation($delta: Int!) {
		adjustStock(variantId: 11, warehouseId: "main", delta: $delta, reason: "count") { available reserved }
	}`

	resp := f.exec(admin, mutation, map[string]any{"delta": 5})
	require.Empty(t, resp.Errors, resp.Raw)
	assert.JSONEq(t, `{"available":15,"reserved":0}`, string(resp.Data["adjustStock"]))

	resp = f.exec(admin, mutation, map[string]any{"delta": -100})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "INVENTORY_ERROR", resp.Errors[0].Extensions["kind"])
	assert.Equal(t, 15, f.store.Stock(shirt).Available)
}

func TestPostJournalEntry(t *testing.T) {
	f := newFixture(t)
	mutation := `mutation($input: JournalEntryInput!) {
		postJournalEntry(input: $input) { status lines { accountCode debit credit } }
	}`
	input := func(amount string) map[string]any {
		return map[string]any{"input": map[string]any{
			"description": "owner investment",
			"lines": []map[string]any{
				{"accountCode": "1000", "debit": amount},
				{"accountCode": "3000", "credit": amount},
			},
		}}
	}

	resp := f.exec(admin, mutation, input("250.50"))
	require.Empty(t, resp.Errors, resp.Raw)
	assert.JSONEq(t, `{"status":"POSTED","lines":[
		{"accountCode":"1000","debit":"250.5","credit":"0"},
		{"accountCode":"3000","debit":"0","credit":"250.5"}]}`, string(resp.Data["postJournalEntry"]))

	resp = f.exec(admin, mutation, input("0.005"))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, ledger.ErrAmountPrecision.Code, resp.Errors[0].Extensions["code"])
}

func TestInvalidDocument(t *testing.T) {
	f := newFixture(t)
	resp := f.exec(admin, `{ orders { nope } }`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "nope")
}

type MockLedgerService struct {
	LedgerService
	mock.Mock
}

func (m *MockLedgerService) AccountBalance(ctx context.Context, code string) (decimal.Decimal, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestInfrastructureErrorIsHidden(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	svc := new(MockLedgerService)
	svc.On("AccountBalance", mock.Anything, "1000").Return(decimal.Zero, errors.New("connection reset")).Once()
	svc.On("AccountBalance", mock.Anything, "4000").Return(decimal.RequireFromString("12.5"), nil).Once()
	f := &fixture{t: t, handler: NewHandler(&Resolver{LedgerSvc: svc})}

	resp := f.exec(admin, `{ cash: accountBalance(code: "1000") sales: accountBalance(code: "4000") }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "internal error", resp.Errors[0].Message)
	assert.Equal(t, []any{"cash"}, resp.Errors[0].Path)
	assert.JSONEq(t, `null`, string(resp.Data["cash"]))
	assert.JSONEq(t, `"12.5"`, string(resp.Data["sales"]))

	entries := logs.FilterMessage("graphql field failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "accountBalance", entries[0].ContextMap()["field"])
	svc.AssertExpectations(t)
}
