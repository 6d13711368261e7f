package inventory

import "storecore/internal/apperror"

var (
	ErrInsufficientStock = &apperror.Error{Kind: apperror.KindInsufficientStock, Code: "insufficient_stock"}
	ErrReservedUnderflow = &apperror.Error{Kind: apperror.KindInventory, Code: "reserved_underflow"}
	ErrNegativeStock     = &apperror.Error{Kind: apperror.KindInventory, Code: "negative_available"}
	ErrInvalidQuantity   = &apperror.Error{Kind: apperror.KindValidation, Code: "invalid_quantity"}
	ErrReasonRequired    = &apperror.Error{Kind: apperror.KindValidation, Code: "reason_required"}
	ErrRecordNotFound    = &apperror.Error{Kind: apperror.KindNotFound, Code: "inventory_not_found"}
)
