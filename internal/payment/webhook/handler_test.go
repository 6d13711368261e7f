package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/config"
	"storecore/internal/events"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/metrics"
	"storecore/internal/order"
	"storecore/internal/payment"
	"storecore/internal/store/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, pc order.PaymentConfirmation) (*order.Order, error) {
	args := m.Called(ctx, pc)
	o, _ := args.Get(0).(*order.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) FailPayment(ctx context.Context, pf order.PaymentFailure) (*order.Order, error) {
	args := m.Called(ctx, pf)
	o, _ := args.Get(0).(*order.Order)
	return o, args.Error(1)
}

type fakeDedup struct {
	marked map[string]bool
}

func (f *fakeDedup) Seen(_ context.Context, id string) (bool, error) { return f.marked[id], nil }

func (f *fakeDedup) Mark(_ context.Context, id string) error {
	f.marked[id] = true
	return nil
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, "sha256="+payment.Sign([]byte(secret), body))
	return req
}

func payload(t *testing.T, eventID, event string, orderID uuid.UUID) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id": eventID,
		"event":    event,
		"data": map[string]any{
			"order_id":  orderID.String(),
			"reference": "pay-1",
			"amount":    "200",
			"currency":  "IDR",
			"reason":    "card declined",
		},
	})
	require.NoError(t, err)
	return body
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newHandler(orders OrderService, store payment.WebhookStore, dedup Deduper, mutate ...func(*config.Settings)) *Handler {
	s := config.DefaultSettings()
	for _, m := range mutate {
		m(&s)
	}
	return NewHandler(orders, store, dedup, secret, config.Static(s), metrics.NewRegistry())
}

func TestHandler_Rejections(t *testing.T) {
	orderID := uuid.New()

	t.Run("Disabled", func(t *testing.T) {
		h := newHandler(new(MockOrderService), memory.New(), nil, func(s *config.Settings) {
			s.Features.WebhooksEnabled = false
		})
		w := serve(h, signedRequest(t, payload(t, "e1", EventPaymentSucceeded, orderID)))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("MissingSignature", func(t *testing.T) {
		h := newHandler(new(MockOrderService), memory.New(), nil)
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload(t, "e1", EventPaymentSucceeded, orderID)))
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("TamperedBody", func(t *testing.T) {
		h := newHandler(new(MockOrderService), memory.New(), nil)
		req := signedRequest(t, payload(t, "e1", EventPaymentSucceeded, orderID))
		req.Body = http.NoBody
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		h := newHandler(new(MockOrderService), memory.New(), nil)
		assert.Equal(t, http.StatusBadRequest, serve(h, signedRequest(t, []byte("{not json"))).Code)
	})

	t.Run("SubCentAmount", func(t *testing.T) {
		orders := new(MockOrderService)
		h := newHandler(orders, memory.New(), nil)
		body := []byte(`{"event_id":"e9","event":"payment.succeeded","data":{"order_id":"` + orderID.String() + `","amount":"200.005"}}`)
		assert.Equal(t, http.StatusBadRequest, serve(h, signedRequest(t, body)).Code)
		orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	})

	t.Run("MissingFields", func(t *testing.T) {
		h := newHandler(new(MockOrderService), memory.New(), nil)
		assert.Equal(t, http.StatusBadRequest, serve(h, signedRequest(t, []byte(`{"event":"payment.succeeded"}`))).Code)
	})
}

func TestHandler_Succeeded(t *testing.T) {
	orderID := uuid.New()
	orders := new(MockOrderService)
	store := memory.New()
	dedup := &fakeDedup{marked: map[string]bool{}}
	h := newHandler(orders, store, dedup)

	orders.On("ConfirmPayment", mock.Anything, order.PaymentConfirmation{
		OrderID:     orderID,
		Provider:    "GENERIC",
		ProviderRef: "pay-1",
		Amount:      decimal.RequireFromString("200"),
		Currency:    "IDR",
	}).Return(&order.Order{ID: orderID, Status: order.StatusPaid}, nil).Once()

	body := payload(t, "evt-1", EventPaymentSucceeded, orderID)
	w := serve(h, signedRequest(t, body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	saved, ok := store.Webhook("GENERIC", "evt-1")
	require.True(t, ok)
	assert.NotNil(t, saved.ProcessedAt)
	assert.Equal(t, orderID.String(), saved.OrderRef)
	assert.True(t, dedup.marked["evt-1"])

	t.Run("RedeliveryIsDuplicate", func(t *testing.T) {
		w := serve(h, signedRequest(t, body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
	})

	t.Run("RedeliveryWithoutRedis", func(t *testing.T) {
		h := newHandler(orders, store, nil)
		w := serve(h, signedRequest(t, body))
		assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
	})

	orders.AssertExpectations(t)
}

func TestHandler_Failed(t *testing.T) {
	orderID := uuid.New()
	orders := new(MockOrderService)
	h := newHandler(orders, memory.New(), nil)

	orders.On("FailPayment", mock.Anything, order.PaymentFailure{
		OrderID: orderID, Provider: "GENERIC", ProviderRef: "pay-1", Reason: "card declined",
	}).Return(&order.Order{ID: orderID, Status: order.StatusPaymentFailed}, nil)

	w := serve(h, signedRequest(t, payload(t, "evt-2", EventPaymentFailed, orderID)))
	assert.Equal(t, http.StatusOK, w.Code)
	orders.AssertExpectations(t)
}

func TestHandler_FailedWithoutReferenceUsesEventID(t *testing.T) {
	orderID := uuid.New()
	orders := new(MockOrderService)
	h := newHandler(orders, memory.New(), nil)

	orders.On("FailPayment", mock.Anything, order.PaymentFailure{
		OrderID: orderID, Provider: "GENERIC", ProviderRef: "event:evt-4", Reason: "expired",
	}).Return(&order.Order{ID: orderID, Status: order.StatusPaymentFailed}, nil)

	body := []byte(`{"event_id":"evt-4","event":"payment.failed","data":{"order_id":"` + orderID.String() + `","reason":"expired"}}`)
	w := serve(h, signedRequest(t, body))
	assert.Equal(t, http.StatusOK, w.Code)
	orders.AssertExpectations(t)
}

func TestHandler_UnknownEventIsAcknowledged(t *testing.T) {
	orders := new(MockOrderService)
	store := memory.New()
	h := newHandler(orders, store, nil)

	w := serve(h, signedRequest(t, payload(t, "evt-3", "payment.pending", uuid.New())))
	assert.Equal(t, http.StatusOK, w.Code)

	saved, ok := store.Webhook("GENERIC", "evt-3")
	require.True(t, ok)
	assert.NotNil(t, saved.ProcessedAt)
	orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestHandler_ProcessingErrors(t *testing.T) {
	t.Run("DomainErrorIsClientErrorAndRetryable", func(t *testing.T) {
		orderID := uuid.New()
		orders := new(MockOrderService)
		store := memory.New()
		h := newHandler(orders, store, nil)

		orders.On("ConfirmPayment", mock.Anything, mock.Anything).
			Return(nil, apperror.Order(order.ErrOrderClosed.Code, "order cancelled")).Twice()

		body := payload(t, "evt-4", EventPaymentSucceeded, orderID)
		w := serve(h, signedRequest(t, body))
		assert.Equal(t, http.StatusConflict, w.Code)

		saved, ok := store.Webhook("GENERIC", "evt-4")
		require.True(t, ok)
		assert.Nil(t, saved.ProcessedAt)
		assert.Contains(t, saved.ProcessError, "order_closed")

		// an unprocessed event is handed back on redelivery
		w = serve(h, signedRequest(t, body))
		assert.Equal(t, http.StatusConflict, w.Code)
		orders.AssertExpectations(t)
	})

	t.Run("InfrastructureErrorIs500", func(t *testing.T) {
		orders := new(MockOrderService)
		h := newHandler(orders, memory.New(), nil)
		orders.On("ConfirmPayment", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		w := serve(h, signedRequest(t, payload(t, "evt-5", EventPaymentSucceeded, uuid.New())))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandler_EndToEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.New(memory.WithClock(clock))
	store.SeedAccounts(ledger.DefaultChart()...)
	store.SetStock(inventory.Key{VariantID: 5, WarehouseID: "main"}, 3)

	machine := order.NewMachine(store, &events.Recorder{}, config.Static(config.DefaultSettings()), order.WithClock(clock))
	o, err := machine.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		Items: []order.Item{{
			VariantID: 5, Name: "Mug", Quantity: 2,
			UnitPrice: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(40),
		}},
		Customer:   order.Customer{Email: "guest@example.com"},
		TotalPrice: decimal.NewFromInt(200),
		Actor:      order.Actor{Role: order.RoleCustomer},
	})
	require.NoError(t, err)

	h := newHandler(machine, store, nil)
	w := serve(h, signedRequest(t, payload(t, "evt-e2e", EventPaymentSucceeded, o.ID)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := machine.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)

	cash, ok := store.Account("1000")
	require.True(t, ok)
	assert.Equal(t, "200", cash.Balance.String())
}
