package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultChart is the minimal chart of accounts order postings rely on. The
// codes match config.DefaultSettings().Accounts and migrations/0002_chart_of_accounts.sql.
func DefaultChart() []Account {
	return []Account{
		newAccount("1000", "Cash", Asset),
		newAccount("1100", "Accounts Receivable", Asset),
		newAccount("1200", "Inventory", Asset),
		newAccount("2000", "Accounts Payable", Liability),
		newAccount("3000", "Owner Equity", Equity),
		newAccount("4000", "Sales Revenue", Revenue),
		newAccount("5000", "Cost of Goods Sold", Expense),
	}
}

func newAccount(code, name string, t AccountType) Account {
	return Account{ID: uuid.New(), Code: code, Name: name, Type: t, Balance: decimal.Zero}
}
