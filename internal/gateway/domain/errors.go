package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProtocolNotFound  = errors.New("protocol_not_found")
	ErrUnsupportedOp     = errors.New("unsupported_operation")
	ErrMissingReference  = errors.New("missing_reference")
	ErrAuthExpired       = errors.New("auth_token_rejected")
	ErrDecode            = errors.New("response_decode_failed")
	ErrValidation        = errors.New("response_validation_failed")
	ErrCallbackReference = errors.New("callback_reference_missing")
)

// ErrCannotCancelCaptured is shown to admins when cancel is attempted on captured funds.
var ErrCannotCancelCaptured = &LocalizedError{Message: "Can't cancel captured transaction"}

// Kind is the provider error category.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindPayment        Kind = "payment"
	KindProviderSide   Kind = "provider_side"
	KindCustomer       Kind = "customer"
	KindMerchant       Kind = "merchant"
	KindUnclassified   Kind = "unclassified"
)

type kindError Kind

func (k kindError) Error() string { return string(k) }

// Kind sentinels match any GatewayError of that kind with errors.Is.
var (
	ErrKindInvalidRequest error = kindError(KindInvalidRequest)
	ErrKindPayment        error = kindError(KindPayment)
	ErrKindProviderSide   error = kindError(KindProviderSide)
	ErrKindCustomer       error = kindError(KindCustomer)
	ErrKindMerchant       error = kindError(KindMerchant)
	ErrKindUnclassified   error = kindError(KindUnclassified)
)

// GatewayError is a classified provider-reported failure.
type GatewayError struct {
	Kind       Kind
	Code       int
	Message    string
	Operation  Operation
	HTTPStatus int
}

func (e *GatewayError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *GatewayError) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

// CommandError carries the aggregated messages of failed response validators.
type CommandError struct {
	Operation Operation
	Messages  []string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(e.Messages, "; "))
}

func (e *CommandError) Unwrap() error { return ErrValidation }

// TransportError wraps timeouts, connection failures, undecodable bodies and exhausted auth retries.
type TransportError struct {
	Operation  Operation
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (http %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LocalizedError is a pre-translated message that is safe to show as is.
type LocalizedError struct {
	Message string
}

func (e *LocalizedError) Error() string { return e.Message }
