package order

import "storecore/internal/apperror"

var (
	ErrOrderNotFound     = &apperror.Error{Kind: apperror.KindNotFound, Code: "order_not_found"}
	ErrInvalidTransition = &apperror.Error{Kind: apperror.KindOrder, Code: "invalid_transition"}
	ErrActorNotAllowed   = &apperror.Error{Kind: apperror.KindPermission, Code: "actor_not_allowed"}
	ErrPrecondition      = &apperror.Error{Kind: apperror.KindOrder, Code: "precondition_failed"}
	ErrCheckoutDisabled  = &apperror.Error{Kind: apperror.KindOrder, Code: "checkout_disabled"}
	ErrOrderClosed       = &apperror.Error{Kind: apperror.KindOrder, Code: "order_closed"}
	ErrInvalidOrder      = &apperror.Error{Kind: apperror.KindValidation, Code: "invalid_order"}
	ErrOrderIDReused     = &apperror.Error{Kind: apperror.KindValidation, Code: "order_id_reused"}
	ErrAmountMismatch    = &apperror.Error{Kind: apperror.KindValidation, Code: "amount_mismatch"}
)
