// Package memory is an in-process implementation of every repository. A
// single mutex serializes transactions and each transaction works on a copy
// of the state that replaces the original only on success, so it behaves
// like a SERIALIZABLE database. Used by tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"storecore/internal/inventory"
	"storecore/internal/ledger"
	"storecore/internal/order"
	"storecore/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	orders     map[uuid.UUID]order.Order
	orderSeq   []uuid.UUID
	records    map[inventory.Key]inventory.Record
	logs       []inventory.LogEntry
	accounts   map[string]ledger.Account
	accountIDs map[uuid.UUID]string
	entries    map[uuid.UUID]ledger.JournalEntry
	entrySeq   []uuid.UUID
	payments   []payment.Payment
	webhooks   map[string]payment.WebhookEvent
	webhookSeq int64
}

func newState() *state {
	return &state{
		orders:     make(map[uuid.UUID]order.Order),
		records:    make(map[inventory.Key]inventory.Record),
		accounts:   make(map[string]ledger.Account),
		accountIDs: make(map[uuid.UUID]string),
		entries:    make(map[uuid.UUID]ledger.JournalEntry),
		webhooks:   make(map[string]payment.WebhookEvent),
	}
}

// clone copies the maps and slices. Values inside (order items, entry lines)
// are never mutated after insert and are shared.
func (s *state) clone() *state {
	c := &state{
		orders:     make(map[uuid.UUID]order.Order, len(s.orders)),
		orderSeq:   append([]uuid.UUID(nil), s.orderSeq...),
		records:    make(map[inventory.Key]inventory.Record, len(s.records)),
		logs:       append([]inventory.LogEntry(nil), s.logs...),
		accounts:   make(map[string]ledger.Account, len(s.accounts)),
		accountIDs: make(map[uuid.UUID]string, len(s.accountIDs)),
		entries:    make(map[uuid.UUID]ledger.JournalEntry, len(s.entries)),
		entrySeq:   append([]uuid.UUID(nil), s.entrySeq...),
		payments:   append([]payment.Payment(nil), s.payments...),
		webhooks:   make(map[string]payment.WebhookEvent, len(s.webhooks)),
		webhookSeq: s.webhookSeq,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.accountIDs {
		c.accountIDs[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn on a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) run(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	return s.run(func(st *state) error {
		return fn(ctx, &unitOfWork{st: st, now: s.now})
	})
}

func (s *Store) WithinInventoryTx(ctx context.Context, fn func(ctx context.Context, repo inventory.Repository) error) error {
	return s.run(func(st *state) error {
		return fn(ctx, &inventoryRepo{st: st})
	})
}

func (s *Store) WithinLedgerTx(ctx context.Context, fn func(ctx context.Context, repo ledger.Repository) error) error {
	return s.run(func(st *state) error {
		return fn(ctx, &ledgerRepo{st: st})
	})
}

type unitOfWork struct {
	st  *state
	now func() time.Time
}

func (u *unitOfWork) Orders() order.Repository        { return &orderRepo{st: u.st} }
func (u *unitOfWork) Inventory() inventory.Repository { return &inventoryRepo{st: u.st} }
func (u *unitOfWork) Ledger() ledger.Repository       { return &ledgerRepo{st: u.st} }
func (u *unitOfWork) Payments() payment.Repository    { return &paymentRepo{st: u.st, now: u.now} }

// SeedAccounts adds accounts to the chart, replacing any with the same code.
func (s *Store) SeedAccounts(accounts ...ledger.Account) {
	_ = s.run(func(st *state) error {
		for _, a := range accounts {
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			st.accounts[a.Code] = a
			st.accountIDs[a.ID] = a.Code
		}
		return nil
	})
}

// SetStock sets the available quantity of key without logging. It is for
// seeding; real stock changes go through inventory.Engine.
func (s *Store) SetStock(key inventory.Key, available int) {
	_ = s.run(func(st *state) error {
		rec := st.records[key]
		rec.Key = key
		rec.Available = available
		rec.UpdatedAt = s.now()
		st.records[key] = rec
		return nil
	})
}

// Stock returns the current record for key (zero if never stocked).
func (s *Store) Stock(key inventory.Key) inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.st.records[key]
	rec.Key = key
	return rec
}

// Account returns the account with code and whether it exists.
func (s *Store) Account(code string) (ledger.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[code]
	return a, ok
}

// JournalEntries returns all entries in insertion order.
func (s *Store) JournalEntries() []ledger.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.JournalEntry, 0, len(s.st.entrySeq))
	for _, id := range s.st.entrySeq {
		out = append(out, s.st.entries[id])
	}
	return out
}

// InventoryLogs returns the full movement log in insertion order.
func (s *Store) InventoryLogs() []inventory.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.LogEntry(nil), s.st.logs...)
}

// Payments returns every recorded payment.
func (s *Store) Payments() []payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payment.Payment(nil), s.st.payments...)
}

// CorruptReserved overwrites the reserved count of key without a log entry.
// Tests use it to simulate drift for reconciliation.
func (s *Store) CorruptReserved(key inventory.Key, reserved int) {
	_ = s.run(func(st *state) error {
		rec := st.records[key]
		rec.Key = key
		rec.Reserved = reserved
		st.records[key] = rec
		return nil
	})
}

// CorruptBalance overwrites the cached balance of an account.
func (s *Store) CorruptBalance(code string, balance decimal.Decimal) {
	_ = s.run(func(st *state) error {
		a := st.accounts[code]
		a.Balance = balance
		st.accounts[code] = a
		return nil
	})
}
