package domain

import "errors"

var (
	ErrDraftNotFound   = errors.New("order_draft_not_found")
	ErrDraftInactive   = errors.New("order_draft_inactive")
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrInvalidDraft    = errors.New("invalid_order_draft")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrAmountExceeded  = errors.New("amount_exceeds_order_total")
	ErrInvalidCurrency = errors.New("invalid_currency")
)
