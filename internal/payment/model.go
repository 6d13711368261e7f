package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Payment is the record of a provider's final answer about an order.
type Payment struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Provider    string
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
	Status      Status
	Reason      string
	CreatedAt   time.Time
}

type WebhookEvent struct {
	ID             int64
	Provider       string
	EventID        string
	EventType      string
	OrderRef       string
	Payload        json.RawMessage
	SignatureValid bool
	ProcessedAt    *time.Time
	ProcessError   string
	CreatedAt      time.Time
}

// ProviderStatus is what the payment provider reports for an order.
type ProviderStatus string

const (
	ProviderPaid    ProviderStatus = "PAID"
	ProviderFailed  ProviderStatus = "FAILED"
	ProviderPending ProviderStatus = "PENDING"
	ProviderUnknown ProviderStatus = "UNKNOWN"
)

type StatusResult struct {
	Status      ProviderStatus
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
	PaidAt      *time.Time
	Reason      string
}
