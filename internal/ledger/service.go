package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service runs ledger operations in their own transaction, for manual
// postings and reporting outside an order transition.
type Service struct {
	tx  Transactor
	now func() time.Time
}

func NewService(tx Transactor) *Service {
	return &Service{tx: tx, now: time.Now}
}

func (s *Service) Post(ctx context.Context, req PostRequest) (*JournalEntry, error) {
	var out *JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).Post(ctx, req)
		return err
	})
	return out, err
}

func (s *Service) Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*JournalEntry, error) {
	var out *JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).Reverse(ctx, entryID, reason)
		return err
	})
	return out, err
}

func (s *Service) SaveDraft(ctx context.Context, req PostRequest) (*JournalEntry, error) {
	var out *JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).SaveDraft(ctx, req)
		return err
	})
	return out, err
}

func (s *Service) PostDraft(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	var out *JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).PostDraft(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	var out JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.GetEntry(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) EntriesByReferencePrefix(ctx context.Context, prefix string) ([]JournalEntry, error) {
	var out []JournalEntry
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.ListEntriesByReferencePrefix(ctx, prefix)
		return err
	})
	return out, err
}

func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.ListAccounts(ctx)
		return err
	})
	return out, err
}

func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	var out TrialBalance
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewReporter(repo).TrialBalance(ctx, asOf)
		return err
	})
	return out, err
}

func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	var out ProfitAndLoss
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewReporter(repo).ProfitAndLoss(ctx, from, to)
		return err
	})
	return out, err
}

func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	var out BalanceSheet
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewReporter(repo).BalanceSheet(ctx, asOf)
		return err
	})
	return out, err
}

func (s *Service) AccountBalance(ctx context.Context, code string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.tx.WithinLedgerTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewReporter(repo).AccountBalance(ctx, code)
		return err
	})
	return out, err
}
