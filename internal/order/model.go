package order

import (
	"fmt"
	"time"

	"storecore/internal/inventory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusCashReceived   Status = "CASH_RECEIVED"
)

var AllStatuses = []Status{
	StatusPending, StatusPaymentPending, StatusPaid, StatusShipped,
	StatusDelivered, StatusCancelled, StatusPaymentFailed, StatusCashReceived,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusCashReceived
}

// HoldsReservation reports whether an order in this status still has stock
// reserved (not yet committed or released).
func (s Status) HoldsReservation() bool {
	return s == StatusPending || s == StatusPaymentPending || s == StatusPaymentFailed
}

// ReservingStatuses are the statuses whose items make up reserved stock.
var ReservingStatuses = []Status{StatusPending, StatusPaymentPending, StatusPaymentFailed}

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "ONLINE"
	PaymentCOD    PaymentMethod = "COD"
)

type Role string

const (
	RoleSystem   Role = "system"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleAdmin || r == RoleCustomer
}

type Actor struct {
	Role Role
	ID   string
}

var SystemActor = Actor{Role: RoleSystem, ID: "system"}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Role)
	}
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}

// Customer is either a registered user or a guest snapshot.
type Customer struct {
	UserID  *uint
	Email   string
	Name    string
	Address string
}

type Order struct {
	ID            uuid.UUID
	Items         []Item
	Status        Status
	PaymentMethod PaymentMethod
	Customer      Customer
	Currency      string
	TotalPrice    decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
}

func (o *Order) Prepaid() bool { return o.PaymentMethod == PaymentOnline }

// CostTotal is the cost of goods of all items.
func (o *Order) CostTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitCost.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Reference is the prefix of every ledger reference posted for the order.
func (o *Order) Reference() string { return "order:" + o.ID.String() }

// Quantities sums item quantities per stock key and returns the keys in lock
// order.
func (o *Order) Quantities() ([]inventory.Key, map[inventory.Key]int) {
	qty := make(map[inventory.Key]int, len(o.Items))
	for _, it := range o.Items {
		qty[it.Key()] += it.Quantity
	}
	keys := make([]inventory.Key, 0, len(qty))
	for k := range qty {
		keys = append(keys, k)
	}
	inventory.SortKeys(keys)
	return keys, qty
}

type Item struct {
	ProductID   uint
	VariantID   uint
	WarehouseID string
	Name        string
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	Quantity    int
}

func (i Item) Key() inventory.Key {
	return inventory.Key{VariantID: i.VariantID, WarehouseID: i.WarehouseID}
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type TransitionRequest struct {
	OrderID uuid.UUID
	Target  Status
	Actor   Actor
	Reason  string
}

type PlaceOrderRequest struct {
	// ID makes retries idempotent when set by the caller.
	ID            uuid.UUID
	Items         []Item
	PaymentMethod PaymentMethod
	Customer      Customer
	Currency      string
	TotalPrice    decimal.Decimal
	Actor         Actor
}

type PaymentConfirmation struct {
	OrderID     uuid.UUID
	Provider    string
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
}

type PaymentFailure struct {
	OrderID     uuid.UUID
	Provider    string
	ProviderRef string
	Reason      string
}

// Transitioned is the payload of order transition events.
type Transitioned struct {
	OrderID    string    `json:"order_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Actor      string    `json:"actor"`
	Total      string    `json:"total"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Placed is the payload of the order placed event.
type Placed struct {
	OrderID       string        `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Total         string        `json:"total"`
	Currency      string        `json:"currency"`
	Items         int           `json:"items"`
}
