package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"storecore/internal/apperror"
	"storecore/internal/config"
	"storecore/internal/ledger"
	"storecore/internal/logger"
	"storecore/internal/metrics"
	"storecore/internal/order"
	"storecore/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Payload is the provider-neutral webhook body.
type Payload struct {
	EventID string      `json:"event_id"`
	Event   string      `json:"event"`
	Data    PaymentData `json:"data"`
}

type PaymentData struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason,omitempty"`
}

// OrderService is the part of the order machine the webhook drives.
type OrderService interface {
	ConfirmPayment(ctx context.Context, pc order.PaymentConfirmation) (*order.Order, error)
	FailPayment(ctx context.Context, pf order.PaymentFailure) (*order.Order, error)
}

// Deduper filters redeliveries before they reach the database.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Handler struct {
	orders   OrderService
	store    payment.WebhookStore
	dedup    Deduper
	secret   []byte
	settings func() config.Settings
	metrics  *metrics.Registry
}

// NewHandler wires the webhook. dedup may be nil when Redis is not
// configured.
func NewHandler(orders OrderService, store payment.WebhookStore, dedup Deduper, secret string, settings func() config.Settings, reg *metrics.Registry) *Handler {
	if reg == nil {
		reg = metrics.Default
	}
	return &Handler{
		orders:   orders,
		store:    store,
		dedup:    dedup,
		secret:   []byte(secret),
		settings: settings,
		metrics:  reg,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "webhook"))
	s := h.settings()

	if !s.Features.WebhooksEnabled {
		http.Error(w, "webhooks disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := payment.VerifySignature(h.secret, body, r.Header.Get(payment.SignatureHeader)); err != nil {
		h.metrics.Counter("webhook.rejected").Inc()
		log.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if p.EventID == "" || p.Event == "" || p.Data.OrderID == uuid.Nil {
		http.Error(w, "event_id, event and data.order_id are required", http.StatusBadRequest)
		return
	}
	if !ledger.ValidAmount(p.Data.Amount) {
		http.Error(w, "data.amount has more than 2 decimal places", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("event", p.Event),
		zap.String("order_id", p.Data.OrderID.String()),
	)
	ctx = logger.WithCorrelationID(ctx, p.Data.OrderID.String())

	if h.seen(ctx, log, p.EventID) {
		h.metrics.Counter("webhook.duplicate").Inc()
		writeOK(w, "duplicate")
		return
	}

	evt := &payment.WebhookEvent{
		Provider:       s.Payment.Provider,
		EventID:        p.EventID,
		EventType:      p.Event,
		OrderRef:       p.Data.OrderID.String(),
		Payload:        json.RawMessage(body),
		SignatureValid: true,
	}
	id, duplicate, err := h.store.SaveWebhookEvent(ctx, evt)
	if err != nil {
		log.Error("save webhook event failed", zap.Error(err))
		http.Error(w, "failed to store event", http.StatusInternalServerError)
		return
	}
	if duplicate {
		h.metrics.Counter("webhook.duplicate").Inc()
		h.mark(ctx, log, p.EventID)
		writeOK(w, "duplicate")
		return
	}

	if err := h.dispatch(ctx, s.Payment.Provider, p); err != nil {
		if markErr := h.store.MarkWebhookFailed(ctx, id, err.Error()); markErr != nil {
			log.Error("mark webhook failed", zap.Error(markErr))
		}
		status := apperror.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("webhook processing failed", zap.Error(err))
		} else {
			log.Warn("webhook rejected by order machine", zap.String("code", apperror.CodeOf(err)), zap.Error(err))
		}
		h.metrics.Counter("webhook.failed").Inc()
		http.Error(w, err.Error(), status)
		return
	}

	if err := h.store.MarkWebhookProcessed(ctx, id); err != nil {
		// the order change is committed; a redelivery will be a no-op
		log.Error("mark webhook processed failed", zap.Error(err))
	}
	h.mark(ctx, log, p.EventID)
	h.metrics.Counter("webhook.processed").Inc()
	log.Info("webhook processed")
	writeOK(w, "ok")
}

func (h *Handler) dispatch(ctx context.Context, provider string, p Payload) error {
	ref := p.Data.Reference
	if ref == "" {
		ref = "event:" + p.EventID
	}
	switch p.Event {
	case EventPaymentSucceeded:
		_, err := h.orders.ConfirmPayment(ctx, order.PaymentConfirmation{
			OrderID:     p.Data.OrderID,
			Provider:    provider,
			ProviderRef: ref,
			Amount:      p.Data.Amount,
			Currency:    p.Data.Currency,
		})
		return err
	case EventPaymentFailed:
		_, err := h.orders.FailPayment(ctx, order.PaymentFailure{
			OrderID:     p.Data.OrderID,
			Provider:    provider,
			ProviderRef: ref,
			Reason:      p.Data.Reason,
		})
		return err
	default:
		logger.FromCtx(ctx).Info("ignoring webhook event")
		return nil
	}
}

func (h *Handler) seen(ctx context.Context, log *zap.Logger, eventID string) bool {
	if h.dedup == nil {
		return false
	}
	ok, err := h.dedup.Seen(ctx, eventID)
	if err != nil {
		log.Warn("dedup lookup failed", zap.Error(err))
		return false
	}
	return ok
}

func (h *Handler) mark(ctx context.Context, log *zap.Logger, eventID string) {
	if h.dedup == nil {
		return
	}
	if err := h.dedup.Mark(ctx, eventID); err != nil {
		log.Warn("dedup mark failed", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
