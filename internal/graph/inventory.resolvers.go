package graph

import (
	"context"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/graph/model"
	"storecore/internal/inventory"
	"storecore/internal/middleware"
)

func toGraphQLStock(r inventory.Record) *model.Stock {
	return &model.Stock{
		VariantID:   int(r.VariantID),
		WarehouseID: r.WarehouseID,
		Available:   r.Available,
		Reserved:    r.Reserved,
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}

func toGraphQLMovement(l inventory.LogEntry) *model.StockMovement {
	return &model.StockMovement{
		ID:             l.ID.String(),
		Action:         string(l.Action),
		Quantity:       l.Quantity,
		AvailableAfter: l.AvailableAfter,
		ReservedAfter:  l.ReservedAfter,
		Reason:         optional(l.Reason),
		Actor:          optional(l.Actor),
		Reference:      optional(l.Reference),
		CreatedAt:      l.CreatedAt.Format(time.RFC3339),
	}
}

func stockKey(variantID int, warehouseID string) (inventory.Key, error) {
	if variantID <= 0 {
		return inventory.Key{}, apperror.Validation("invalid_argument", "variantId must be positive")
	}
	return inventory.Key{VariantID: uint(variantID), WarehouseID: warehouseID}, nil
}

func (r *queryResolver) Stock(ctx context.Context, variantID int, warehouseID string) (*model.Stock, error) {
	key, err := stockKey(variantID, warehouseID)
	if err != nil {
		return nil, err
	}
	rec, err := r.InventorySvc.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return toGraphQLStock(rec), nil
}

func (r *queryResolver) StockHistory(ctx context.Context, variantID int, warehouseID string, limit *int) ([]*model.StockMovement, error) {
	key, err := stockKey(variantID, warehouseID)
	if err != nil {
		return nil, err
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	logs, err := r.InventorySvc.History(ctx, key, n)
	if err != nil {
		return nil, err
	}
	out := make([]*model.StockMovement, len(logs))
	for i, l := range logs {
		out[i] = toGraphQLMovement(l)
	}
	return out, nil
}

func (r *mutationResolver) AdjustStock(ctx context.Context, variantID int, warehouseID string, delta int, reason string, reference *string) (*model.Stock, error) {
	key, err := stockKey(variantID, warehouseID)
	if err != nil {
		return nil, err
	}
	actor, _ := middleware.ActorFrom(ctx)
	rec, err := r.InventorySvc.Adjust(ctx, key, delta, inventory.Meta{
		Reason:    reason,
		Actor:     actor.String(),
		Reference: deref(reference),
	})
	if err != nil {
		return nil, err
	}
	return toGraphQLStock(rec), nil
}
