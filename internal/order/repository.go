package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/db"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/payment"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// UpdateStatus writes the status and lifecycle timestamps of o.
	UpdateStatus(ctx context.Context, o *Order) error
	List(ctx context.Context, f ListFilter) ([]Order, error)
	// ListStale returns orders (without items) in one of statuses whose
	// last update is before cutoff, oldest first.
	ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Order, error)
	// ReservedQuantity sums item quantities for key over orders in statuses.
	ReservedQuantity(ctx context.Context, key inventory.Key, statuses []Status) (int, error)
}

type ListFilter struct {
	Status *Status
	UserID *uint
	Limit  int
	Page   int
}

// UnitOfWork is every repository an order operation touches, bound to one
// transaction.
type UnitOfWork interface {
	Orders() Repository
	Inventory() inventory.Repository
	Ledger() ledger.Repository
	Payments() payment.Repository
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, status, payment_method, user_id, guest_email, guest_name, guest_address,
			currency, total_price, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		o.ID,
		o.Status,
		o.PaymentMethod,
		o.Customer.UserID,
		o.Customer.Email,
		o.Customer.Name,
		o.Customer.Address,
		o.Currency,
		o.TotalPrice,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, variant_id, warehouse_id, name,
				unit_price, unit_cost, quantity
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			o.ID,
			it.ProductID,
			it.VariantID,
			it.WarehouseID,
			it.Name,
			it.UnitPrice,
			it.UnitCost,
			it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderColumns = `
	id, status, payment_method, user_id, guest_email, guest_name, guest_address,
	currency, total_price, created_at, updated_at,
	paid_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var (
		o                                  Order
		userID                             sql.NullInt64
		paid, shipped, delivered, canceled sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.Status, &o.PaymentMethod, &userID,
		&o.Customer.Email, &o.Customer.Name, &o.Customer.Address,
		&o.Currency, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt,
		&paid, &shipped, &delivered, &canceled,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint(userID.Int64)
		o.Customer.UserID = &uid
	}
	o.PaidAt = timePtr(paid)
	o.ShippedAt = timePtr(shipped)
	o.DeliveredAt = timePtr(delivered)
	o.CancelledAt = timePtr(canceled)
	return &o, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *repository) get(ctx context.Context, id uuid.UUID, lock string) (*Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(ErrOrderNotFound.Code, "order %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.loadItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) loadItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, variant_id, warehouse_id, name, unit_price, unit_cost, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.WarehouseID, &it.Name,
			&it.UnitPrice, &it.UnitCost, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, o *Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3,
			paid_at = $4, shipped_at = $5, delivered_at = $6, cancelled_at = $7
		WHERE id = $1
	`, o.ID, o.Status, o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound(ErrOrderNotFound.Code, "order %s not found", o.ID)
	}
	return nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Order, error) {
	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	argIndex := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *f.Status)
		argIndex++
	}
	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, *f.UserID)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, (page-1)*limit)

	return r.queryOrders(ctx, query, args...)
}

func (r *repository) ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 500
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, pq.Array(names), cutoff, limit)
}

func (r *repository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *repository) ReservedQuantity(ctx context.Context, key inventory.Key, statuses []Status) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var qty int
	err := r.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(i.quantity), 0)
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.variant_id = $1 AND i.warehouse_id = $2 AND o.status = ANY($3)
	`, key.VariantID, key.WarehouseID, pq.Array(names)).Scan(&qty)
	return qty, err
}
