package httpapi

import (
	"time"

	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type checkoutItem struct {
	ProductID   uint            `json:"product_id"`
	VariantID   uint            `json:"variant_id" validate:"required"`
	WarehouseID string          `json:"warehouse_id"`
	Name        string          `json:"name" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
}

type guestInfo struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

type checkoutRequest struct {
	ID            uuid.UUID       `json:"id"`
	Items         []checkoutItem  `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=ONLINE COD"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Guest         *guestInfo      `json:"guest"`
	Address       string          `json:"address"`
}

func (c checkoutRequest) toDomain(actor order.Actor, userID *uint) order.PlaceOrderRequest {
	items := make([]order.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = order.Item{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			WarehouseID: it.WarehouseID,
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			UnitCost:    it.UnitCost,
			Quantity:    it.Quantity,
		}
	}
	customer := order.Customer{UserID: userID, Address: c.Address}
	if userID == nil && c.Guest != nil {
		customer.Email = c.Guest.Email
		customer.Name = c.Guest.Name
		if c.Guest.Address != "" {
			customer.Address = c.Guest.Address
		}
	}
	return order.PlaceOrderRequest{
		ID:            c.ID,
		Items:         items,
		PaymentMethod: order.PaymentMethod(c.PaymentMethod),
		Customer:      customer,
		Currency:      c.Currency,
		TotalPrice:    c.TotalPrice,
		Actor:         actor,
	}
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type stockChangeRequest struct {
	Delta     int    `json:"delta"`
	Reserved  *int   `json:"reserved"`
	Reason    string `json:"reason" validate:"required,max=500"`
	Reference string `json:"reference" validate:"max=200"`
}

type lineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo"`
}

type entryRequest struct {
	Date        time.Time     `json:"date"`
	Description string        `json:"description" validate:"required,max=500"`
	Reference   string        `json:"reference" validate:"max=200"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (e entryRequest) toDomain() ledger.PostRequest {
	lines := make([]ledger.LineInput, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = ledger.LineInput{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	return ledger.PostRequest{Date: e.Date, Description: e.Description, Reference: e.Reference, Lines: lines}
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type itemView struct {
	ProductID   uint            `json:"product_id"`
	VariantID   uint            `json:"variant_id"`
	WarehouseID string          `json:"warehouse_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type orderView struct {
	ID            uuid.UUID           `json:"id"`
	Status        order.Status        `json:"status"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	UserID        *uint               `json:"user_id,omitempty"`
	GuestEmail    string              `json:"guest_email,omitempty"`
	Currency      string              `json:"currency"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Items         []itemView          `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	ShippedAt     *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
}

func newOrderView(o *order.Order) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			WarehouseID: it.WarehouseID,
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal(),
		}
	}
	return orderView{
		ID:            o.ID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		UserID:        o.Customer.UserID,
		GuestEmail:    o.Customer.Email,
		Currency:      o.Currency,
		TotalPrice:    o.TotalPrice,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
		ShippedAt:     o.ShippedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
	}
}

type stockView struct {
	VariantID   uint      `json:"variant_id"`
	WarehouseID string    `json:"warehouse_id"`
	Available   int       `json:"available"`
	Reserved    int       `json:"reserved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newStockView(r inventory.Record) stockView {
	return stockView{
		VariantID:   r.VariantID,
		WarehouseID: r.WarehouseID,
		Available:   r.Available,
		Reserved:    r.Reserved,
		UpdatedAt:   r.UpdatedAt,
	}
}

type stockLogView struct {
	ID             uuid.UUID        `json:"id"`
	Action         inventory.Action `json:"action"`
	Quantity       int              `json:"quantity"`
	AvailableAfter int              `json:"available_after"`
	ReservedAfter  int              `json:"reserved_after"`
	Reason         string           `json:"reason,omitempty"`
	Actor          string           `json:"actor,omitempty"`
	Reference      string           `json:"reference,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type lineView struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

type entryView struct {
	ID              uuid.UUID          `json:"id"`
	Date            time.Time          `json:"date"`
	Description     string             `json:"description"`
	Reference       string             `json:"reference,omitempty"`
	Status          ledger.EntryStatus `json:"status"`
	ReversesEntryID *uuid.UUID         `json:"reverses_entry_id,omitempty"`
	Lines           []lineView         `json:"lines"`
	PostedAt        *time.Time         `json:"posted_at,omitempty"`
}

func newEntryView(e ledger.JournalEntry) entryView {
	lines := make([]lineView, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = lineView{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	return entryView{
		ID:              e.ID,
		Date:            e.Date,
		Description:     e.Description,
		Reference:       e.Reference,
		Status:          e.Status,
		ReversesEntryID: e.ReversesEntryID,
		Lines:           lines,
		PostedAt:        e.PostedAt,
	}
}

type accountView struct {
	Code    string             `json:"code"`
	Name    string             `json:"name"`
	Type    ledger.AccountType `json:"type"`
	Balance decimal.Decimal    `json:"balance"`
}
