package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine posts and reverses journal entries on a repository that is already
// bound to the caller's transaction.
type Engine struct {
	repo Repository
	now  func() time.Time
}

func NewEngine(repo Repository, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, now: now}
}

// Post validates, persists and applies a balanced entry.
func (e *Engine) Post(ctx context.Context, req PostRequest) (*JournalEntry, error) {
	return e.post(ctx, req, nil)
}

func (e *Engine) post(ctx context.Context, req PostRequest, reverses *uuid.UUID) (*JournalEntry, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Post"),
		zap.String("reference", req.Reference),
	)

	if err := validateLines(req.Lines, true); err != nil {
		log.Warn("rejected journal entry", zap.Error(err))
		return nil, err
	}

	accounts, err := e.lockAccounts(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	entry := buildEntry(req, accounts, now)
	entry.Status = StatusPosted
	entry.PostedAt = &now
	entry.ReversesEntryID = reverses

	if err := e.repo.InsertEntry(ctx, entry); err != nil {
		log.Error("insert journal entry failed", zap.Error(err))
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}
	if err := e.applyBalances(ctx, entry, accounts); err != nil {
		log.Error("apply balances failed", zap.Error(err))
		return nil, err
	}

	debit, _ := entry.Totals()
	log.Info("journal entry posted",
		zap.String("entry_id", entry.ID.String()),
		zap.String("amount", debit.String()),
	)
	return entry, nil
}

// Reverse posts the mirror image of a posted entry. An entry is reversed at
// most once and reversals themselves are final.
func (e *Engine) Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*JournalEntry, error) {
	original, err := e.repo.LockEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if original.Status != StatusPosted {
		return nil, apperror.Validation(ErrNotPosted.Code, "entry %s is %s", entryID, original.Status)
	}
	if original.ReversesEntryID != nil {
		return nil, apperror.Validation(ErrReversalOfReversal.Code, "entry %s is itself a reversal", entryID)
	}
	existing, err := e.repo.FindReversal(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Validation(ErrAlreadyReversed.Code, "entry %s already reversed by %s", entryID, existing.ID)
	}

	lines := make([]LineInput, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, LineInput{
			AccountCode: l.AccountCode,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Memo:        l.Memo,
		})
	}

	desc := "Reversal of " + original.Reference
	if reason != "" {
		desc += ": " + reason
	}
	return e.post(ctx, PostRequest{
		Date:        e.now().UTC(),
		Description: desc,
		Reference:   "reversal:" + original.Reference,
		Lines:       lines,
	}, &original.ID)
}

// SaveDraft stores an entry without touching balances. Balance is only
// enforced when the draft is posted.
func (e *Engine) SaveDraft(ctx context.Context, req PostRequest) (*JournalEntry, error) {
	if err := validateLines(req.Lines, false); err != nil {
		return nil, err
	}
	accounts, err := e.lockAccounts(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	entry := buildEntry(req, accounts, e.now().UTC())
	entry.Status = StatusDraft
	if err := e.repo.InsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	return entry, nil
}

func (e *Engine) PostDraft(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	entry, err := e.repo.LockEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusDraft {
		return nil, apperror.Validation(ErrNotDraft.Code, "entry %s is %s", id, entry.Status)
	}

	inputs := make([]LineInput, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		inputs = append(inputs, LineInput{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo})
	}
	if err := validateLines(inputs, true); err != nil {
		return nil, err
	}
	accounts, err := e.lockAccounts(ctx, inputs)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := e.repo.MarkPosted(ctx, id, now); err != nil {
		return nil, fmt.Errorf("mark posted: %w", err)
	}
	entry.Status = StatusPosted
	entry.PostedAt = &now
	if err := e.applyBalances(ctx, &entry, accounts); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *Engine) EntriesByReferencePrefix(ctx context.Context, prefix string) ([]JournalEntry, error) {
	return e.repo.ListEntriesByReferencePrefix(ctx, prefix)
}

// lockAccounts resolves every referenced code, locking rows in code order.
func (e *Engine) lockAccounts(ctx context.Context, lines []LineInput) (map[string]Account, error) {
	codes := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if !seen[l.AccountCode] {
			seen[l.AccountCode] = true
			codes = append(codes, l.AccountCode)
		}
	}
	sort.Strings(codes)

	accounts, err := e.repo.LockAccounts(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	for _, c := range codes {
		if _, ok := accounts[c]; !ok {
			return nil, apperror.NotFound(ErrAccountNotFound.Code, "account %s not found", c)
		}
	}
	return accounts, nil
}

func (e *Engine) applyBalances(ctx context.Context, entry *JournalEntry, accounts map[string]Account) error {
	deltas := make(map[string]decimal.Decimal)
	for _, l := range entry.Lines {
		acct := accounts[l.AccountCode]
		d, ok := deltas[acct.Code]
		if !ok {
			d = decimal.Zero
		}
		deltas[acct.Code] = d.Add(acct.Type.Signed(l.Debit, l.Credit))
	}

	codes := make([]string, 0, len(deltas))
	for c := range deltas {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	for _, c := range codes {
		if deltas[c].IsZero() {
			continue
		}
		if err := e.repo.AddToBalance(ctx, accounts[c].ID, deltas[c]); err != nil {
			return fmt.Errorf("update balance of %s: %w", c, err)
		}
	}
	return nil
}

func buildEntry(req PostRequest, accounts map[string]Account, now time.Time) *JournalEntry {
	date := req.Date
	if date.IsZero() {
		date = now
	}
	entry := &JournalEntry{
		ID:          uuid.New(),
		Date:        date,
		Description: req.Description,
		Reference:   req.Reference,
		CreatedAt:   now,
		Lines:       make([]Line, 0, len(req.Lines)),
	}
	for _, in := range req.Lines {
		entry.Lines = append(entry.Lines, Line{
			ID:          uuid.New(),
			AccountID:   accounts[in.AccountCode].ID,
			AccountCode: in.AccountCode,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Memo:        in.Memo,
		})
	}
	return entry
}

// validateLines checks line shape, and balance when requireBalanced is set.
func validateLines(lines []LineInput, requireBalanced bool) error {
	if len(lines) < 2 {
		return apperror.Validation(ErrTooFewLines.Code, "journal entry needs at least 2 lines, got %d", len(lines))
	}

	debit, credit := decimal.Zero, decimal.Zero
	for i, l := range lines {
		if l.AccountCode == "" {
			return apperror.Validation(ErrInvalidLine.Code, "line %d has no account", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return apperror.Validation(ErrInvalidLine.Code, "line %d has a negative amount", i+1)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return apperror.Validation(ErrInvalidLine.Code, "line %d must have exactly one of debit or credit", i+1)
		}
		if !ValidAmount(l.Debit) || !ValidAmount(l.Credit) {
			return apperror.Validation(ErrAmountPrecision.Code, "line %d has more than %d decimal places", i+1, MoneyPlaces)
		}
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}

	if requireBalanced && !debit.Equal(credit) {
		return apperror.Validation(ErrUnbalanced.Code, "debits %s do not equal credits %s", debit, credit)
	}
	return nil
}
