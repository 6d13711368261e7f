package model

import "github.com/shopspring/decimal"

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleSystem   Role = "SYSTEM"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleSystem:
		return true
	}
	return false
}

type OrderItem struct {
	ProductID   int             `json:"productId"`
	VariantID   int             `json:"variantId"`
	WarehouseID string          `json:"warehouseId"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	UserID        *int            `json:"userId"`
	GuestEmail    *string         `json:"guestEmail"`
	Currency      string          `json:"currency"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Items         []*OrderItem    `json:"items"`
	NextStatuses  []string        `json:"nextStatuses"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
	PaidAt        *string         `json:"paidAt"`
	ShippedAt     *string         `json:"shippedAt"`
	DeliveredAt   *string         `json:"deliveredAt"`
	CancelledAt   *string         `json:"cancelledAt"`
}

type Stock struct {
	VariantID   int    `json:"variantId"`
	WarehouseID string `json:"warehouseId"`
	Available   int    `json:"available"`
	Reserved    int    `json:"reserved"`
	UpdatedAt   string `json:"updatedAt"`
}

type StockMovement struct {
	ID             string  `json:"id"`
	Action         string  `json:"action"`
	Quantity       int     `json:"quantity"`
	AvailableAfter int     `json:"availableAfter"`
	ReservedAfter  int     `json:"reservedAfter"`
	Reason         *string `json:"reason"`
	Actor          *string `json:"actor"`
	Reference      *string `json:"reference"`
	CreatedAt      string  `json:"createdAt"`
}

type Account struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

type JournalLine struct {
	AccountCode string          `json:"accountCode"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        *string         `json:"memo"`
}

type JournalEntry struct {
	ID              string         `json:"id"`
	Date            string         `json:"date"`
	Description     string         `json:"description"`
	Reference       *string        `json:"reference"`
	Status          string         `json:"status"`
	ReversesEntryID *string        `json:"reversesEntryId"`
	Lines           []*JournalLine `json:"lines"`
	PostedAt        *string        `json:"postedAt"`
}

type CheckoutItemInput struct {
	ProductID   *int             `json:"productId"`
	VariantID   int              `json:"variantId" validate:"gt=0"`
	WarehouseID *string          `json:"warehouseId"`
	Name        string           `json:"name" validate:"required"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	UnitCost    *decimal.Decimal `json:"unitCost"`
	Quantity    int              `json:"quantity" validate:"gt=0"`
}

type GuestInput struct {
	Email   string  `json:"email" validate:"required,email"`
	Name    string  `json:"name" validate:"required"`
	Address *string `json:"address"`
}

type CheckoutInput struct {
	ID            *string              `json:"id"`
	Items         []*CheckoutItemInput `json:"items" validate:"required,min=1,dive"`
	PaymentMethod *string              `json:"paymentMethod"`
	Currency      *string              `json:"currency" validate:"omitempty,len=3"`
	TotalPrice    decimal.Decimal      `json:"totalPrice"`
	Guest         *GuestInput          `json:"guest"`
	Address       *string              `json:"address"`
}

type JournalLineInput struct {
	AccountCode string           `json:"accountCode" validate:"required"`
	Debit       *decimal.Decimal `json:"debit"`
	Credit      *decimal.Decimal `json:"credit"`
	Memo        *string          `json:"memo"`
}

type JournalEntryInput struct {
	Date        *string             `json:"date"`
	Description string              `json:"description" validate:"required,max=500"`
	Reference   *string             `json:"reference" validate:"omitempty,max=200"`
	Lines       []*JournalLineInput `json:"lines" validate:"required,min=2,dive"`
}
