package domain

import "errors"

var (
	ErrAttemptNotFound        = errors.New("attempt_not_found")
	ErrAttemptInProgress      = errors.New("attempt_in_progress")
	ErrAttemptSuperseded      = errors.New("attempt_superseded")
	ErrInvalidTransition      = errors.New("invalid_status_transition")
	ErrInvalidOrigin          = errors.New("invalid_cancel_origin")
	ErrInvalidAttempt         = errors.New("invalid_attempt")
	ErrConcurrentUpdate       = errors.New("attempt_concurrent_update")
	ErrCancellationInProgress = errors.New("cancellation_in_progress")
	ErrInvalidStatus          = errors.New("invalid_attempt_status")
)
