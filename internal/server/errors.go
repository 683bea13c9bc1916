package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	"github.com/smallbiznis/walletpay/internal/authorization"
	"github.com/smallbiznis/walletpay/internal/checkout"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/walletpay/internal/order/domain"
	"github.com/smallbiznis/walletpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns service errors into responses. Provider failures only
// expose the customer-safe message.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, ok := validationField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   field,
				Code:    err.Error(),
				Message: "invalid value",
			}},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, checkout.ErrUnauthorizedCallback):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: conflictMessage(err)}
	case isPaymentError(err):
		return paymentErrorStatus(err), errorPayload{Type: "payment_error", Message: gwdomain.CustomerMessage(err)}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func validationField(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request", true
	case errors.Is(err, orderdomain.ErrInvalidDraft):
		return "draft", true
	case errors.Is(err, orderdomain.ErrInvalidAmount),
		errors.Is(err, orderdomain.ErrAmountExceeded):
		return "amount", true
	case errors.Is(err, orderdomain.ErrInvalidCurrency):
		return "currency", true
	case errors.Is(err, gwdomain.ErrMissingReference),
		errors.Is(err, gwdomain.ErrCallbackReference):
		return "reference", true
	case errors.Is(err, attemptdomain.ErrInvalidStatus):
		return "status", true
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "page_token", true
	case errors.Is(err, attemptdomain.ErrInvalidOrigin):
		return "origin", true
	case errors.Is(err, attemptdomain.ErrInvalidAttempt):
		return "attempt", true
	default:
		return "", false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrDraftNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, attemptdomain.ErrAttemptNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, attemptdomain.ErrAttemptInProgress),
		errors.Is(err, attemptdomain.ErrAttemptSuperseded),
		errors.Is(err, attemptdomain.ErrInvalidTransition),
		errors.Is(err, attemptdomain.ErrCancellationInProgress),
		errors.Is(err, attemptdomain.ErrConcurrentUpdate),
		errors.Is(err, orderdomain.ErrDraftInactive),
		errors.Is(err, checkout.ErrNotReserved),
		errors.Is(err, checkout.ErrNothingToCapture),
		errors.Is(err, checkout.ErrNothingToRefund):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, attemptdomain.ErrAttemptInProgress):
		return "a payment is already in progress for this order"
	case errors.Is(err, attemptdomain.ErrCancellationInProgress):
		return "a cancellation is already in progress"
	case errors.Is(err, checkout.ErrNotReserved):
		return "payment is not reserved"
	default:
		return "conflict"
	}
}

func isPaymentError(err error) bool {
	var (
		gwErr        *gwdomain.GatewayError
		cmdErr       *gwdomain.CommandError
		transportErr *gwdomain.TransportError
		localized    *gwdomain.LocalizedError
	)
	return errors.As(err, &gwErr) || errors.As(err, &cmdErr) || errors.As(err, &transportErr) || errors.As(err, &localized)
}

// paymentErrorStatus is 422 for failures the customer or store can act on and
// 502 when the provider or our integration with it is at fault.
func paymentErrorStatus(err error) int {
	var localized *gwdomain.LocalizedError
	if errors.As(err, &localized) {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, gwdomain.ErrKindPayment),
		errors.Is(err, gwdomain.ErrKindCustomer),
		errors.Is(err, gwdomain.ErrKindInvalidRequest):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// classifyErrorForLog reports the error type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if payload.Type == "payment_error" {
		var gwErr *gwdomain.GatewayError
		if errors.As(err, &gwErr) {
			return payload.Type, string(gwErr.Kind)
		}
	}
	return payload.Type, http.StatusText(status)
}
