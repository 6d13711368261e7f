package inventory

import (
	"context"
	"time"
)

// Service exposes stock operations that run in their own transaction:
// admin adjustments and read models. Order-driven movements go through
// Engine inside the order's unit of work instead.
type Service struct {
	tx  Transactor
	now func() time.Time
}

func NewService(tx Transactor) *Service {
	return &Service{tx: tx, now: time.Now}
}

func (s *Service) Adjust(ctx context.Context, key Key, delta int, meta Meta) (Record, error) {
	var out Record
	err := s.tx.WithinInventoryTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).Adjust(ctx, key, delta, meta)
		return err
	})
	return out, err
}

func (s *Service) Correct(ctx context.Context, key Key, expectedReserved int, meta Meta) (Record, error) {
	var out Record
	err := s.tx.WithinInventoryTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = NewEngine(repo, s.now).Correct(ctx, key, expectedReserved, meta)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, key Key) (Record, error) {
	var out Record
	err := s.tx.WithinInventoryTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.GetRecord(ctx, key)
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.tx.WithinInventoryTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.ListRecords(ctx)
		return err
	})
	return out, err
}

func (s *Service) History(ctx context.Context, key Key, limit int) ([]LogEntry, error) {
	var out []LogEntry
	err := s.tx.WithinInventoryTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.ListLogs(ctx, key, limit)
		return err
	})
	return out, err
}
