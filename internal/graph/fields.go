package graph

import (
	"context"
	"encoding/json"

	"storecore/internal/apperror"
	"storecore/internal/graph/model"
)

type fieldFunc func(ctx context.Context, args map[string]any) (any, error)

// bindArgs decodes coerced field arguments into dst by their JSON names.
func bindArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperror.Validation("invalid_argument", "%v", err)
	}
	return nil
}

type stockArgs struct {
	VariantID   int    `json:"variantId"`
	WarehouseID string `json:"warehouseId"`
}

func queryFields(q *queryResolver) map[string]fieldFunc {
	return map[string]fieldFunc{
		"order": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				ID string `json:"id"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.Order(ctx, a.ID)
		},
		"orders": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				Status *string `json:"status"`
				UserID *int    `json:"userId"`
				Page   *int    `json:"page"`
				Limit  *int    `json:"limit"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.Orders(ctx, a.Status, a.UserID, a.Page, a.Limit)
		},
		"stock": func(ctx context.Context, args map[string]any) (any, error) {
			var a stockArgs
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.Stock(ctx, a.VariantID, a.WarehouseID)
		},
		"stockHistory": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				stockArgs
				Limit *int `json:"limit"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.StockHistory(ctx, a.VariantID, a.WarehouseID, a.Limit)
		},
		"accounts": func(ctx context.Context, _ map[string]any) (any, error) {
			return q.Accounts(ctx)
		},
		"accountBalance": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				Code string `json:"code"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.AccountBalance(ctx, a.Code)
		},
		"journalEntry": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				ID string `json:"id"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return q.JournalEntry(ctx, a.ID)
		},
	}
}

func mutationFields(m *mutationResolver) map[string]fieldFunc {
	return map[string]fieldFunc{
		"checkout": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				Input model.CheckoutInput `json:"input"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return m.Checkout(ctx, a.Input)
		},
		"transitionOrder": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				ID     string  `json:"id"`
				Status string  `json:"status"`
				Reason *string `json:"reason"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return m.TransitionOrder(ctx, a.ID, a.Status, a.Reason)
		},
		"adjustStock": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				stockArgs
				Delta     int     `json:"delta"`
				Reason    string  `json:"reason"`
				Reference *string `json:"reference"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return m.AdjustStock(ctx, a.VariantID, a.WarehouseID, a.Delta, a.Reason, a.Reference)
		},
		"postJournalEntry": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				Input model.JournalEntryInput `json:"input"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return m.PostJournalEntry(ctx, a.Input)
		},
		"reverseJournalEntry": func(ctx context.Context, args map[string]any) (any, error) {
			var a struct {
				ID     string `json:"id"`
				Reason string `json:"reason"`
			}
			if err := bindArgs(args, &a); err != nil {
				return nil, err
			}
			return m.ReverseJournalEntry(ctx, a.ID, a.Reason)
		},
	}
}
