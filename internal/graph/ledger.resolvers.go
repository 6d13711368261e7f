package graph

import (
	"context"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/graph/model"
	"storecore/internal/ledger"

	"github.com/shopspring/decimal"
)

func toGraphQLEntry(e ledger.JournalEntry) *model.JournalEntry {
	lines := make([]*model.JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = &model.JournalLine{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        optional(l.Memo),
		}
	}
	out := &model.JournalEntry{
		ID:          e.ID.String(),
		Date:        e.Date.Format(time.RFC3339),
		Description: e.Description,
		Reference:   optional(e.Reference),
		Status:      string(e.Status),
		Lines:       lines,
		PostedAt:    timePtr(e.PostedAt),
	}
	if e.ReversesEntryID != nil {
		id := e.ReversesEntryID.String()
		out.ReversesEntryID = &id
	}
	return out
}

func toPostRequest(in model.JournalEntryInput) (ledger.PostRequest, error) {
	req := ledger.PostRequest{
		Description: in.Description,
		Reference:   deref(in.Reference),
		Lines:       make([]ledger.LineInput, len(in.Lines)),
	}
	if in.Date != nil {
		d, err := time.Parse(time.RFC3339, *in.Date)
		if err != nil {
			if d, err = time.Parse(time.DateOnly, *in.Date); err != nil {
				return req, apperror.Validation("invalid_argument", "date must be YYYY-MM-DD or RFC 3339")
			}
		}
		req.Date = d
	}
	for i, l := range in.Lines {
		line := ledger.LineInput{AccountCode: l.AccountCode, Memo: deref(l.Memo)}
		if l.Debit != nil {
			line.Debit = *l.Debit
		}
		if l.Credit != nil {
			line.Credit = *l.Credit
		}
		req.Lines[i] = line
	}
	return req, nil
}

func (r *queryResolver) Accounts(ctx context.Context) ([]*model.Account, error) {
	accounts, err := r.LedgerSvc.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Account, len(accounts))
	for i, a := range accounts {
		out[i] = &model.Account{Code: a.Code, Name: a.Name, Type: string(a.Type), Balance: a.Balance}
	}
	return out, nil
}

func (r *queryResolver) AccountBalance(ctx context.Context, code string) (*decimal.Decimal, error) {
	bal, err := r.LedgerSvc.AccountBalance(ctx, code)
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *queryResolver) JournalEntry(ctx context.Context, id string) (*model.JournalEntry, error) {
	eid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	e, err := r.LedgerSvc.GetEntry(ctx, eid)
	if err != nil {
		return nil, err
	}
	return toGraphQLEntry(e), nil
}

func (r *mutationResolver) PostJournalEntry(ctx context.Context, input model.JournalEntryInput) (*model.JournalEntry, error) {
	if err := validate.Struct(input); err != nil {
		return nil, apperror.Validation("invalid_argument", "%s", validationMessage(err))
	}
	req, err := toPostRequest(input)
	if err != nil {
		return nil, err
	}
	e, err := r.LedgerSvc.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return toGraphQLEntry(*e), nil
}

func (r *mutationResolver) ReverseJournalEntry(ctx context.Context, id string, reason string) (*model.JournalEntry, error) {
	eid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	e, err := r.LedgerSvc.Reverse(ctx, eid, reason)
	if err != nil {
		return nil, err
	}
	return toGraphQLEntry(*e), nil
}
