package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// LockAccounts locks the accounts with the given codes, in code order.
	// Unknown codes are absent from the result.
	LockAccounts(ctx context.Context, codes []string) (map[string]Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	AddToBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error

	InsertEntry(ctx context.Context, e *JournalEntry) error
	MarkPosted(ctx context.Context, id uuid.UUID, postedAt time.Time) error
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	LockEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	FindReversal(ctx context.Context, entryID uuid.UUID) (*JournalEntry, error)
	ListEntriesByReferencePrefix(ctx context.Context, prefix string) ([]JournalEntry, error)

	// SumPostedLines returns debit/credit totals of POSTED lines per account,
	// one row for every account, in code order.
	SumPostedLines(ctx context.Context, f LineFilter) ([]AccountTotals, error)
}

// Transactor runs fn with a repository bound to a single transaction.
type Transactor interface {
	WithinLedgerTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

const accountColumns = `id, code, name, type, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.CreatedAt)
	return a, err
}

func (r *repository) LockAccounts(ctx context.Context, codes []string) (map[string]Account, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE code = ANY($1)
		ORDER BY code
		FOR UPDATE
	`, pq.Array(codes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Account, len(codes))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.Code] = a
	}
	return out, rows.Err()
}

func (r *repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE code = $1
	`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, apperror.NotFound(ErrAccountNotFound.Code, "account %s not found", code)
	}
	return a, err
}

func (r *repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) AddToBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1 WHERE id = $2
	`, delta, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound(ErrAccountNotFound.Code, "account %s not found", accountID)
	}
	return nil
}

func (r *repository) InsertEntry(ctx context.Context, e *JournalEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO journal_entries
			(id, entry_date, description, reference, status, reverses_entry_id, created_at, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Date, e.Description, e.Reference, e.Status, e.ReversesEntryID, e.CreatedAt, e.PostedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	for i, l := range e.Lines {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO journal_lines (id, entry_id, line_no, account_id, debit, credit, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, l.ID, e.ID, i+1, l.AccountID, l.Debit, l.Credit, l.Memo)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i+1, err)
		}
	}
	return nil
}

// MarkPosted flips a draft to posted. Posted rows are never matched.
func (r *repository) MarkPosted(ctx context.Context, id uuid.UUID, postedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE journal_entries SET status = 'POSTED', posted_at = $2
		WHERE id = $1 AND status = 'DRAFT'
	`, id, postedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Validation(ErrNotDraft.Code, "entry %s is not a draft", id)
	}
	return nil
}

const entryColumns = `id, entry_date, description, reference, status, reverses_entry_id, created_at, posted_at`

func scanEntry(row interface{ Scan(...any) error }) (JournalEntry, error) {
	var (
		e        JournalEntry
		reverses uuid.NullUUID
		postedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.Date, &e.Description, &e.Reference, &e.Status, &reverses, &e.CreatedAt, &postedAt)
	if err != nil {
		return e, err
	}
	if reverses.Valid {
		id := reverses.UUID
		e.ReversesEntryID = &id
	}
	if postedAt.Valid {
		t := postedAt.Time
		e.PostedAt = &t
	}
	return e, nil
}

func (r *repository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return r.getEntry(ctx, id, "")
}

func (r *repository) LockEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return r.getEntry(ctx, id, "FOR UPDATE")
}

func (r *repository) getEntry(ctx context.Context, id uuid.UUID, lock string) (JournalEntry, error) {
	e, err := scanEntry(r.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return JournalEntry{}, apperror.NotFound(ErrEntryNotFound.Code, "journal entry %s not found", id)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	e.Lines, err = r.loadLines(ctx, e.ID)
	return e, err
}

func (r *repository) loadLines(ctx context.Context, entryID uuid.UUID) ([]Line, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT l.id, l.account_id, a.code, l.debit, l.credit, l.memo
		FROM journal_lines l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.entry_id = $1
		ORDER BY l.line_no
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.AccountID, &l.AccountCode, &l.Debit, &l.Credit, &l.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) FindReversal(ctx context.Context, entryID uuid.UUID) (*JournalEntry, error) {
	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, `
		SELECT id FROM journal_entries WHERE reverses_entry_id = $1
	`, entryID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, err := r.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) ListEntriesByReferencePrefix(ctx context.Context, prefix string) ([]JournalEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM journal_entries
		WHERE reference LIKE $1 ESCAPE '\'
		ORDER BY created_at, id
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}

	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Lines, err = r.loadLines(ctx, entries[i].ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *repository) SumPostedLines(ctx context.Context, f LineFilter) ([]AccountTotals, error) {
	var from, to sql.NullTime
	if f.From != nil {
		from = sql.NullTime{Time: *f.From, Valid: true}
	}
	if f.To != nil {
		to = sql.NullTime{Time: *f.To, Valid: true}
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT a.id, a.code, a.name, a.type,
			COALESCE(SUM(l.debit) FILTER (WHERE `+postedInRange+`), 0),
			COALESCE(SUM(l.credit) FILTER (WHERE `+postedInRange+`), 0)
		FROM accounts a
		LEFT JOIN journal_lines l ON l.account_id = a.id
		LEFT JOIN journal_entries e ON e.id = l.entry_id
		GROUP BY a.id, a.code, a.name, a.type
		ORDER BY a.code
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const postedInRange = `e.status = 'POSTED'
				AND ($1::timestamptz IS NULL OR e.entry_date >= $1)
				AND ($2::timestamptz IS NULL OR e.entry_date <= $2)`
