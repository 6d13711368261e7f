package inventory

import (
	"context"
	"database/sql"
	"errors"

	"storecore/internal/apperror"
	"storecore/internal/db"
)

type Repository interface {
	// LockRecord returns the record for key locked for update, creating an
	// empty one first if the pair has never been stocked.
	LockRecord(ctx context.Context, key Key) (Record, error)
	SaveRecord(ctx context.Context, r Record) error
	AppendLog(ctx context.Context, e LogEntry) error

	GetRecord(ctx context.Context, key Key) (Record, error)
	ListRecords(ctx context.Context) ([]Record, error)
	ListLogs(ctx context.Context, key Key, limit int) ([]LogEntry, error)
}

type Transactor interface {
	WithinInventoryTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

func (r *repository) LockRecord(ctx context.Context, key Key) (Record, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory_records (variant_id, warehouse_id, available, reserved, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (variant_id, warehouse_id) DO NOTHING
	`, key.VariantID, key.WarehouseID)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Key: key}
	err = r.q.QueryRowContext(ctx, `
		SELECT available, reserved, updated_at
		FROM inventory_records
		WHERE variant_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`, key.VariantID, key.WarehouseID).Scan(&rec.Available, &rec.Reserved, &rec.UpdatedAt)
	return rec, err
}

func (r *repository) SaveRecord(ctx context.Context, rec Record) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE inventory_records
		SET available = $3, reserved = $4, updated_at = $5
		WHERE variant_id = $1 AND warehouse_id = $2
	`, rec.VariantID, rec.WarehouseID, rec.Available, rec.Reserved, rec.UpdatedAt)
	return err
}

func (r *repository) AppendLog(ctx context.Context, e LogEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory_logs
			(id, variant_id, warehouse_id, action, quantity, available_after, reserved_after,
			 reason, actor, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.Key.VariantID, e.Key.WarehouseID, e.Action, e.Quantity,
		e.AvailableAfter, e.ReservedAfter, e.Reason, e.Actor, e.Reference, e.CreatedAt)
	return err
}

func (r *repository) GetRecord(ctx context.Context, key Key) (Record, error) {
	rec := Record{Key: key}
	err := r.q.QueryRowContext(ctx, `
		SELECT available, reserved, updated_at
		FROM inventory_records
		WHERE variant_id = $1 AND warehouse_id = $2
	`, key.VariantID, key.WarehouseID).Scan(&rec.Available, &rec.Reserved, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperror.NotFound(ErrRecordNotFound.Code, "no stock record for %s", key)
	}
	return rec, err
}

func (r *repository) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT variant_id, warehouse_id, available, reserved, updated_at
		FROM inventory_records
		ORDER BY variant_id, warehouse_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.VariantID, &rec.WarehouseID, &rec.Available, &rec.Reserved, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) ListLogs(ctx context.Context, key Key, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, action, quantity, available_after, reserved_after, reason, actor, reference, created_at
		FROM inventory_logs
		WHERE variant_id = $1 AND warehouse_id = $2
		ORDER BY created_at DESC, id
		LIMIT $3
	`, key.VariantID, key.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e := LogEntry{Key: key}
		if err := rows.Scan(&e.ID, &e.Action, &e.Quantity, &e.AvailableAfter, &e.ReservedAfter,
			&e.Reason, &e.Actor, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
