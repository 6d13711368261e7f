package payment

import (
	"context"

	"github.com/google/uuid"
)

// Gateway is the payment provider as seen by reconciliation.
type Gateway interface {
	GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*StatusResult, error)
	CancelPayment(ctx context.Context, orderID uuid.UUID) error
}
