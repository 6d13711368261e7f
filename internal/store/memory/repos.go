package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/order"
	"storecore/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderRepo struct{ st *state }

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	if _, ok := r.st.orders[o.ID]; ok {
		return apperror.Validation("duplicate_order", "order %s already exists", o.ID)
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	r.st.orders[o.ID] = cp
	r.st.orderSeq = append(r.st.orderSeq, o.ID)
	return nil
}

func (r *orderRepo) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, apperror.NotFound(order.ErrOrderNotFound.Code, "order %s not found", id)
	}
	return &o, nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepo) UpdateStatus(_ context.Context, o *order.Order) error {
	cur, ok := r.st.orders[o.ID]
	if !ok {
		return apperror.NotFound(order.ErrOrderNotFound.Code, "order %s not found", o.ID)
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	cur.PaidAt = o.PaidAt
	cur.ShippedAt = o.ShippedAt
	cur.DeliveredAt = o.DeliveredAt
	cur.CancelledAt = o.CancelledAt
	r.st.orders[o.ID] = cur
	return nil
}

func (r *orderRepo) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}

	var out []order.Order
	for _, id := range r.st.orderSeq {
		o := r.st.orders[id]
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.UserID != nil && (o.Customer.UserID == nil || *o.Customer.UserID != *f.UserID) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	start := (page - 1) * limit
	if start >= len(out) {
		return nil, nil
	}
	end := min(start+limit, len(out))
	return out[start:end], nil
}

func (r *orderRepo) ListStale(_ context.Context, statuses []order.Status, cutoff time.Time, limit int) ([]order.Order, error) {
	var out []order.Order
	for _, id := range r.st.orderSeq {
		o := r.st.orders[id]
		if hasStatus(statuses, o.Status) && o.UpdatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *orderRepo) ReservedQuantity(_ context.Context, key inventory.Key, statuses []order.Status) (int, error) {
	total := 0
	for _, o := range r.st.orders {
		if !hasStatus(statuses, o.Status) {
			continue
		}
		for _, it := range o.Items {
			if it.Key() == key {
				total += it.Quantity
			}
		}
	}
	return total, nil
}

func hasStatus(set []order.Status, s order.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type inventoryRepo struct{ st *state }

func (r *inventoryRepo) LockRecord(_ context.Context, key inventory.Key) (inventory.Record, error) {
	rec, ok := r.st.records[key]
	if !ok {
		rec = inventory.Record{Key: key}
		r.st.records[key] = rec
	}
	return rec, nil
}

func (r *inventoryRepo) SaveRecord(_ context.Context, rec inventory.Record) error {
	r.st.records[rec.Key] = rec
	return nil
}

func (r *inventoryRepo) AppendLog(_ context.Context, e inventory.LogEntry) error {
	r.st.logs = append(r.st.logs, e)
	return nil
}

func (r *inventoryRepo) GetRecord(_ context.Context, key inventory.Key) (inventory.Record, error) {
	rec, ok := r.st.records[key]
	if !ok {
		return inventory.Record{}, apperror.NotFound(inventory.ErrRecordNotFound.Code, "no stock record for %s", key)
	}
	return rec, nil
}

func (r *inventoryRepo) ListRecords(_ context.Context) ([]inventory.Record, error) {
	keys := make([]inventory.Key, 0, len(r.st.records))
	for k := range r.st.records {
		keys = append(keys, k)
	}
	inventory.SortKeys(keys)
	out := make([]inventory.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.st.records[k])
	}
	return out, nil
}

func (r *inventoryRepo) ListLogs(_ context.Context, key inventory.Key, limit int) ([]inventory.LogEntry, error) {
	var out []inventory.LogEntry
	for i := len(r.st.logs) - 1; i >= 0; i-- {
		if r.st.logs[i].Key != key {
			continue
		}
		out = append(out, r.st.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type ledgerRepo struct{ st *state }

func (r *ledgerRepo) LockAccounts(_ context.Context, codes []string) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(codes))
	for _, c := range codes {
		if a, ok := r.st.accounts[c]; ok {
			out[c] = a
		}
	}
	return out, nil
}

func (r *ledgerRepo) GetAccountByCode(_ context.Context, code string) (ledger.Account, error) {
	a, ok := r.st.accounts[code]
	if !ok {
		return ledger.Account{}, apperror.NotFound(ledger.ErrAccountNotFound.Code, "account %s not found", code)
	}
	return a, nil
}

func (r *ledgerRepo) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(r.st.accounts))
	for _, a := range r.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *ledgerRepo) AddToBalance(_ context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	code, ok := r.st.accountIDs[accountID]
	if !ok {
		return apperror.NotFound(ledger.ErrAccountNotFound.Code, "account %s not found", accountID)
	}
	a := r.st.accounts[code]
	a.Balance = a.Balance.Add(delta)
	r.st.accounts[code] = a
	return nil
}

func (r *ledgerRepo) InsertEntry(_ context.Context, e *ledger.JournalEntry) error {
	if e.ReversesEntryID != nil {
		for _, other := range r.st.entries {
			if other.ReversesEntryID != nil && *other.ReversesEntryID == *e.ReversesEntryID {
				return apperror.Validation(ledger.ErrAlreadyReversed.Code, "entry %s already reversed", *e.ReversesEntryID)
			}
		}
	}
	cp := *e
	cp.Lines = append([]ledger.Line(nil), e.Lines...)
	r.st.entries[e.ID] = cp
	r.st.entrySeq = append(r.st.entrySeq, e.ID)
	return nil
}

func (r *ledgerRepo) MarkPosted(_ context.Context, id uuid.UUID, postedAt time.Time) error {
	e, ok := r.st.entries[id]
	if !ok || e.Status != ledger.StatusDraft {
		return apperror.Validation(ledger.ErrNotDraft.Code, "entry %s is not a draft", id)
	}
	e.Status = ledger.StatusPosted
	e.PostedAt = &postedAt
	r.st.entries[id] = e
	return nil
}

func (r *ledgerRepo) GetEntry(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	e, ok := r.st.entries[id]
	if !ok {
		return ledger.JournalEntry{}, apperror.NotFound(ledger.ErrEntryNotFound.Code, "journal entry %s not found", id)
	}
	return e, nil
}

func (r *ledgerRepo) LockEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return r.GetEntry(ctx, id)
}

func (r *ledgerRepo) FindReversal(_ context.Context, entryID uuid.UUID) (*ledger.JournalEntry, error) {
	for _, id := range r.st.entrySeq {
		e := r.st.entries[id]
		if e.ReversesEntryID != nil && *e.ReversesEntryID == entryID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *ledgerRepo) ListEntriesByReferencePrefix(_ context.Context, prefix string) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, id := range r.st.entrySeq {
		if e := r.st.entries[id]; strings.HasPrefix(e.Reference, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *ledgerRepo) SumPostedLines(_ context.Context, f ledger.LineFilter) ([]ledger.AccountTotals, error) {
	totals := make(map[uuid.UUID]*ledger.AccountTotals, len(r.st.accounts))
	for _, a := range r.st.accounts {
		totals[a.ID] = &ledger.AccountTotals{
			AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type,
			Debit: decimal.Zero, Credit: decimal.Zero,
		}
	}
	for _, e := range r.st.entries {
		if e.Status != ledger.StatusPosted {
			continue
		}
		if f.From != nil && e.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		for _, l := range e.Lines {
			if t, ok := totals[l.AccountID]; ok {
				t.Debit = t.Debit.Add(l.Debit)
				t.Credit = t.Credit.Add(l.Credit)
			}
		}
	}

	out := make([]ledger.AccountTotals, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type paymentRepo struct {
	st  *state
	now func() time.Time
}

func (r *paymentRepo) RecordPayment(_ context.Context, p *payment.Payment) (bool, error) {
	for _, existing := range r.st.payments {
		if existing.Provider == p.Provider && existing.ProviderRef == p.ProviderRef && existing.Status == p.Status {
			return true, nil
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = r.now()
	r.st.payments = append(r.st.payments, *p)
	return false, nil
}

func (r *paymentRepo) FindConfirmed(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	for _, p := range r.st.payments {
		if p.OrderID == orderID && p.Status == payment.StatusConfirmed {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *paymentRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	var out []payment.Payment
	for _, p := range r.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func webhookKey(provider, eventID string) string { return provider + "\x00" + eventID }

// SaveWebhookEvent stores an inbound event. An event seen before is a
// duplicate once processed; an unprocessed one is handed back for retry.
func (s *Store) SaveWebhookEvent(_ context.Context, e *payment.WebhookEvent) (int64, bool, error) {
	var (
		id  int64
		dup bool
	)
	err := s.run(func(st *state) error {
		k := webhookKey(e.Provider, e.EventID)
		if existing, ok := st.webhooks[k]; ok {
			if existing.ProcessedAt != nil {
				dup = true
				return nil
			}
			existing.ProcessError = ""
			st.webhooks[k] = existing
			id = existing.ID
			return nil
		}
		st.webhookSeq++
		cp := *e
		cp.ID = st.webhookSeq
		cp.CreatedAt = s.now()
		st.webhooks[k] = cp
		id = cp.ID
		return nil
	})
	if err == nil && !dup {
		e.ID = id
	}
	return id, dup, err
}

func (s *Store) MarkWebhookProcessed(_ context.Context, id int64) error {
	return s.updateWebhook(id, func(e *payment.WebhookEvent) {
		now := s.now()
		e.ProcessedAt = &now
		e.ProcessError = ""
	})
}

func (s *Store) MarkWebhookFailed(_ context.Context, id int64, reason string) error {
	return s.updateWebhook(id, func(e *payment.WebhookEvent) {
		e.ProcessError = reason
	})
}

func (s *Store) updateWebhook(id int64, fn func(*payment.WebhookEvent)) error {
	return s.run(func(st *state) error {
		for k, e := range st.webhooks {
			if e.ID == id {
				fn(&e)
				st.webhooks[k] = e
				return nil
			}
		}
		return apperror.NotFound("webhook_not_found", "webhook event %d not found", id)
	})
}

// Webhook returns the stored event for provider and eventID.
func (s *Store) Webhook(provider, eventID string) (payment.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.webhooks[webhookKey(provider, eventID)]
	return e, ok
}
