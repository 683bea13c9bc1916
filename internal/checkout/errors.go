package checkout

import "errors"

var (
	ErrUnauthorizedCallback = errors.New("callback_unauthorized")
	ErrNotReserved          = errors.New("payment_not_reserved")
	ErrNothingToCapture     = errors.New("nothing_to_capture")
	ErrNothingToRefund      = errors.New("nothing_to_refund")
)
