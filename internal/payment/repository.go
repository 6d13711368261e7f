package payment

import (
	"context"
	"database/sql"
	"errors"

	"storecore/internal/db"

	"github.com/google/uuid"
)

type Repository interface {
	// RecordPayment stores a provider answer. Recording the same
	// (provider, reference, status) twice reports duplicate.
	RecordPayment(ctx context.Context, p *Payment) (duplicate bool, err error)
	FindConfirmed(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
}

// WebhookStore persists inbound webhook deliveries outside the order
// transaction so that failed processing is still on record.
type WebhookStore interface {
	// SaveWebhookEvent reports duplicate when the event was already
	// processed. An event whose earlier processing failed is handed back for
	// another attempt.
	SaveWebhookEvent(ctx context.Context, e *WebhookEvent) (id int64, duplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, id int64) error
	MarkWebhookFailed(ctx context.Context, id int64, reason string) error
}

type repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

func NewWebhookStore(q db.Querier) WebhookStore {
	return &repository{q: q}
}

func (r *repository) RecordPayment(ctx context.Context, p *Payment) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO payments
			(id, order_id, provider, provider_ref, amount, currency, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (provider, provider_ref, status) DO NOTHING
		RETURNING created_at
	`, p.ID, p.OrderID, p.Provider, p.ProviderRef, p.Amount, p.Currency, p.Status, p.Reason).Scan(&p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

const paymentColumns = `id, order_id, provider, provider_ref, amount, currency, status, reason, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderRef, &p.Amount, &p.Currency, &p.Status, &p.Reason, &p.CreatedAt)
	return p, err
}

func (r *repository) FindConfirmed(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1 AND status = 'CONFIRMED'
		ORDER BY created_at
		LIMIT 1
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SaveWebhookEvent(ctx context.Context, e *WebhookEvent) (int64, bool, error) {
	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		order_ref,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET attempts = payment_webhooks.attempts + 1, process_error = NULL
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.q.QueryRowContext(ctx, q,
		e.Provider,
		e.EventID,
		e.EventType,
		e.OrderRef,
		e.SignatureValid,
		[]byte(e.Payload),
	).Scan(&id)
	if err != nil {
		// conflict on an already processed row returns nothing
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	e.ID = id
	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`, id)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`, id, reason)
	return err
}
