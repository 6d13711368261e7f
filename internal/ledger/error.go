package ledger

import "storecore/internal/apperror"

var (
	ErrTooFewLines        = &apperror.Error{Kind: apperror.KindValidation, Code: "too_few_lines"}
	ErrInvalidLine        = &apperror.Error{Kind: apperror.KindValidation, Code: "invalid_line"}
	ErrAmountPrecision    = &apperror.Error{Kind: apperror.KindValidation, Code: "amount_precision"}
	ErrUnbalanced         = &apperror.Error{Kind: apperror.KindValidation, Code: "unbalanced"}
	ErrAccountNotFound    = &apperror.Error{Kind: apperror.KindNotFound, Code: "account_not_found"}
	ErrEntryNotFound      = &apperror.Error{Kind: apperror.KindNotFound, Code: "entry_not_found"}
	ErrNotPosted          = &apperror.Error{Kind: apperror.KindValidation, Code: "entry_not_posted"}
	ErrNotDraft           = &apperror.Error{Kind: apperror.KindValidation, Code: "entry_not_draft"}
	ErrAlreadyReversed    = &apperror.Error{Kind: apperror.KindValidation, Code: "already_reversed"}
	ErrReversalOfReversal = &apperror.Error{Kind: apperror.KindValidation, Code: "reversal_not_reversible"}
)
