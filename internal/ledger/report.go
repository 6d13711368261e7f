package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TrialBalanceRow struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Type   AccountType     `json:"type"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

func (t TrialBalance) Balanced() bool { return t.TotalDebit.Equal(t.TotalCredit) }

type ReportLine struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type ProfitAndLoss struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Revenue       []ReportLine    `json:"revenue"`
	Expenses      []ReportLine    `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetIncome     decimal.Decimal `json:"net_income"`
}

type BalanceSheet struct {
	AsOf             time.Time       `json:"as_of"`
	Assets           []ReportLine    `json:"assets"`
	Liabilities      []ReportLine    `json:"liabilities"`
	Equity           []ReportLine    `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	// CurrentEarnings is revenue minus expenses not yet closed to equity.
	CurrentEarnings decimal.Decimal `json:"current_earnings"`
}

func (b BalanceSheet) Balanced() bool {
	return b.TotalAssets.Equal(b.TotalLiabilities.Add(b.TotalEquity).Add(b.CurrentEarnings))
}

// Reporter builds read-only reports from posted lines. Drafts never count.
type Reporter struct {
	repo Repository
}

func NewReporter(repo Repository) *Reporter {
	return &Reporter{repo: repo}
}

func (r *Reporter) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	totals, err := r.repo.SumPostedLines(ctx, LineFilter{To: &asOf})
	if err != nil {
		return TrialBalance{}, fmt.Errorf("sum posted lines: %w", err)
	}

	tb := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, t := range totals {
		net := t.Debit.Sub(t.Credit)
		if net.IsZero() {
			continue
		}
		row := TrialBalanceRow{Code: t.Code, Name: t.Name, Type: t.Type, Debit: decimal.Zero, Credit: decimal.Zero}
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	return tb, nil
}

func (r *Reporter) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	totals, err := r.repo.SumPostedLines(ctx, LineFilter{From: &from, To: &to})
	if err != nil {
		return ProfitAndLoss{}, fmt.Errorf("sum posted lines: %w", err)
	}

	pl := ProfitAndLoss{From: from, To: to, TotalRevenue: decimal.Zero, TotalExpenses: decimal.Zero}
	for _, t := range totals {
		net := t.Net()
		if net.IsZero() {
			continue
		}
		line := ReportLine{Code: t.Code, Name: t.Name, Amount: net}
		switch t.Type {
		case Revenue:
			pl.Revenue = append(pl.Revenue, line)
			pl.TotalRevenue = pl.TotalRevenue.Add(net)
		case Expense:
			pl.Expenses = append(pl.Expenses, line)
			pl.TotalExpenses = pl.TotalExpenses.Add(net)
		}
	}
	pl.NetIncome = pl.TotalRevenue.Sub(pl.TotalExpenses)
	return pl, nil
}

func (r *Reporter) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	totals, err := r.repo.SumPostedLines(ctx, LineFilter{To: &asOf})
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("sum posted lines: %w", err)
	}

	bs := BalanceSheet{
		AsOf:             asOf,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
		CurrentEarnings:  decimal.Zero,
	}
	for _, t := range totals {
		net := t.Net()
		if net.IsZero() {
			continue
		}
		line := ReportLine{Code: t.Code, Name: t.Name, Amount: net}
		switch t.Type {
		case Asset:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(net)
		case Liability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(net)
		case Equity:
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(net)
		case Revenue:
			bs.CurrentEarnings = bs.CurrentEarnings.Add(net)
		case Expense:
			bs.CurrentEarnings = bs.CurrentEarnings.Sub(net)
		}
	}
	return bs, nil
}

func (r *Reporter) AccountBalance(ctx context.Context, code string) (decimal.Decimal, error) {
	a, err := r.repo.GetAccountByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// Drift is a mismatch between an account's cached balance and the balance
// recomputed from its posted lines.
type Drift struct {
	Code     string
	Cached   decimal.Decimal
	Computed decimal.Decimal
}

// VerifyBalances recomputes every account from posted lines and compares the
// result with the cached balance. It also returns the global debit and
// credit totals, which must be equal.
func (r *Reporter) VerifyBalances(ctx context.Context) (drifts []Drift, debit, credit decimal.Decimal, err error) {
	accounts, err := r.repo.ListAccounts(ctx)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, fmt.Errorf("list accounts: %w", err)
	}
	totals, err := r.repo.SumPostedLines(ctx, LineFilter{})
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, fmt.Errorf("sum posted lines: %w", err)
	}

	computed := make(map[string]decimal.Decimal, len(totals))
	debit, credit = decimal.Zero, decimal.Zero
	for _, t := range totals {
		computed[t.Code] = t.Net()
		debit = debit.Add(t.Debit)
		credit = credit.Add(t.Credit)
	}

	for _, a := range accounts {
		c, ok := computed[a.Code]
		if !ok {
			c = decimal.Zero
		}
		if !a.Balance.Equal(c) {
			drifts = append(drifts, Drift{Code: a.Code, Cached: a.Balance, Computed: c})
		}
	}
	return drifts, debit, credit, nil
}
