package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storecore/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HTTPGateway talks to a provider REST API keyed by our order id.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	if apiKey == "" {
		logger.L().Warn("payment provider API key is empty")
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type providerPayment struct {
	PaymentID   string          `json:"payment_id"`
	ReferenceID string          `json:"reference_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      *time.Time      `json:"paid_at"`
	FailureCode string          `json:"failure_code"`
}

func (g *HTTPGateway) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*StatusResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("order_id", orderID.String()),
	)

	endpoint := fmt.Sprintf("%s/v1/payments?reference_id=%s", g.baseURL, url.QueryEscape(orderID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("provider request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		log.Info("provider has no payment for order")
		return &StatusResult{Status: ProviderUnknown}, nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Error("provider returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return nil, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	var p providerPayment
	if err := json.Unmarshal(body, &p); err != nil {
		log.Error("failed decoding provider response", zap.Error(err))
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return &StatusResult{
		Status:      mapProviderStatus(p.Status),
		ProviderRef: p.PaymentID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		PaidAt:      p.PaidAt,
		Reason:      p.FailureCode,
	}, nil
}

func (g *HTTPGateway) CancelPayment(ctx context.Context, orderID uuid.UUID) error {
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID.String()))

	endpoint := fmt.Sprintf("%s/v1/payments/%s/cancel", g.baseURL, url.PathEscape(orderID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.apiKey, "")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("provider request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	// already gone counts as cancelled
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error("failed to cancel payment",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return fmt.Errorf("%w: cancel status %d", ErrProvider, resp.StatusCode)
	}

	log.Info("payment cancelled at provider")
	return nil
}

func mapProviderStatus(s string) ProviderStatus {
	switch strings.ToUpper(s) {
	case "SUCCEEDED", "PAID", "SETTLED", "CAPTURED":
		return ProviderPaid
	case "FAILED", "EXPIRED", "CANCELED", "CANCELLED", "VOIDED":
		return ProviderFailed
	case "PENDING", "REQUIRES_ACTION", "AUTHORIZED":
		return ProviderPending
	default:
		return ProviderUnknown
	}
}
