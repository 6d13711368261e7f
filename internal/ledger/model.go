package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Revenue, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether a debit increases accounts of this type.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

// Signed returns the balance effect of a debit/credit pair on an account of
// this type.
func (t AccountType) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

type Account struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	Balance   decimal.Decimal
	CreatedAt time.Time
}

type EntryStatus string

const (
	StatusDraft  EntryStatus = "DRAFT"
	StatusPosted EntryStatus = "POSTED"
)

type JournalEntry struct {
	ID              uuid.UUID
	Date            time.Time
	Description     string
	Reference       string
	Status          EntryStatus
	ReversesEntryID *uuid.UUID
	Lines           []Line
	CreatedAt       time.Time
	PostedAt        *time.Time
}

// Totals sums the debit and credit sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

type Line struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

// MoneyPlaces is the scale amounts are stored with (NUMERIC(18,2)).
const MoneyPlaces = 2

// ValidAmount reports whether d is stored without rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

// Dr and Cr build single-sided lines.
func Dr(code string, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountCode: code, Debit: amount, Credit: decimal.Zero, Memo: memo}
}

func Cr(code string, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountCode: code, Debit: decimal.Zero, Credit: amount, Memo: memo}
}

type PostRequest struct {
	Date        time.Time
	Description string
	Reference   string
	Lines       []LineInput
}

// AccountTotals is the per-account sum of posted lines in a period.
type AccountTotals struct {
	AccountID uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

func (a AccountTotals) Net() decimal.Decimal {
	return a.Type.Signed(a.Debit, a.Credit)
}

// LineFilter bounds a report by entry date, both ends inclusive. Nil means
// unbounded.
type LineFilter struct {
	From *time.Time
	To   *time.Time
}
