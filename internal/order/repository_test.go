package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/inventory"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "status", "payment_method", "user_id", "guest_email", "guest_name", "guest_address",
	"currency", "total_price", "created_at", "updated_at",
	"paid_at", "shipped_at", "delivered_at", "cancelled_at",
}

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now()
	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentMethod: PaymentOnline,
		Customer:      Customer{Email: "guest@example.com", Name: "Guest"},
		Currency:      "IDR",
		TotalPrice:    decimal.NewFromInt(200),
		CreatedAt:     now,
		UpdatedAt:     now,
		Items: []Item{{
			ProductID: 1, VariantID: 11, WarehouseID: "main", Name: "Shirt",
			UnitPrice: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(60), Quantity: 2,
		}},
	}

	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.Status, o.PaymentMethod, nil, "guest@example.com", "Guest", "",
			"IDR", o.TotalPrice, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(o.ID, uint(1), uint(11), "main", "Shirt", o.Items[0].UnitPrice, o.Items[0].UnitCost, 2).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		id := uuid.New()
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1 FOR UPDATE").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
				id.String(), "PAID", "ONLINE", int64(42), "", "", "",
				"IDR", "200", now, now, now, nil, nil, nil))
		mock.ExpectQuery("SELECT (.+) FROM order_items").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{
				"product_id", "variant_id", "warehouse_id", "name", "unit_price", "unit_cost", "quantity",
			}).AddRow(int64(1), int64(11), "main", "Shirt", "100", "60", int64(2)))

		o, err := NewRepository(db).GetForUpdate(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, o.Status)
		require.NotNil(t, o.Customer.UserID)
		assert.Equal(t, uint(42), *o.Customer.UserID)
		require.NotNil(t, o.PaidAt)
		assert.Nil(t, o.ShippedAt)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "200", o.Items[0].Subtotal().String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM orders").WillReturnError(sql.ErrNoRows)

		_, err = NewRepository(db).Get(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, ErrOrderNotFound))
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	o := &Order{ID: uuid.New(), Status: StatusShipped, UpdatedAt: time.Now()}

	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), o))

	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), o)
	assert.True(t, errors.Is(err, ErrOrderNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	status := StatusPending
	uid := uint(42)
	now := time.Now()
	mock.ExpectQuery("FROM orders WHERE 1=1 AND status = \\$1 AND user_id = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(status, uid, 100, 100).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			uuid.New().String(), "PENDING", "COD", int64(42), "", "", "",
			"IDR", "50", now, now, nil, nil, nil, nil))

	out, err := NewRepository(db).List(context.Background(), ListFilter{Status: &status, UserID: &uid, Limit: 500, Page: 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, PaymentCOD, out[0].PaymentMethod)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-48 * time.Hour)
	mock.ExpectQuery("WHERE status = ANY\\(\\$1\\) AND updated_at < \\$2").
		WithArgs(sqlmock.AnyArg(), cutoff, 500).
		WillReturnRows(sqlmock.NewRows(orderCols))

	out, err := NewRepository(db).ListStale(context.Background(), []Status{StatusPaymentPending}, cutoff, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ReservedQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(i.quantity\\), 0\\)").
		WithArgs(uint(11), "main", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(5)))

	qty, err := NewRepository(db).ReservedQuantity(context.Background(),
		inventory.Key{VariantID: 11, WarehouseID: "main"}, ReservingStatuses)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
