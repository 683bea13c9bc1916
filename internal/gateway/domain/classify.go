package domain

import (
	"errors"
	"fmt"
)

// GenericCustomerMessage is shown to customers whenever the real cause is not safe to expose.
const GenericCustomerMessage = "An error occurred during payment. Please contact the store administrator."

// codeKinds is built once and never written afterwards.
var codeKinds = func() map[int]Kind {
	table := map[int]Kind{0: KindInvalidRequest}
	assign := func(kind Kind, codes ...int) {
		for _, code := range codes {
			table[code] = kind
		}
	}
	assign(KindInvalidRequest, 11, 12, 13, 14, 15, 21, 22)
	assign(KindMerchant, 31, 32, 33, 34, 35, 36, 37, 91, 92, 95, 96)
	assign(KindPayment, 41, 42, 43, 44, 45, 51, 52, 53, 61, 62, 63, 71, 72, 73, 74)
	assign(KindCustomer, 81, 82, 83)
	assign(KindProviderSide, 98, 99)
	return table
}()

// customerSafe lists the codes whose provider message may reach the customer.
var customerSafe = map[int]struct{}{
	41: {}, 42: {}, 43: {}, 44: {}, 45: {},
	51: {}, 52: {}, 53: {},
	81: {}, 82: {}, 83: {},
}

// KindOf maps a provider error code. Unknown codes are unclassified.
func KindOf(code int) Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindUnclassified
}

// Classify builds a GatewayError for a provider code. A nil code means the body carried none.
func Classify(code *int, message string) *GatewayError {
	value := 0
	if code != nil {
		value = *code
	}
	if message == "" {
		message = "provider returned an error without a message"
	}
	return &GatewayError{Kind: KindOf(value), Code: value, Message: message}
}

// IsCustomerSafe reports whether the provider message for code may be displayed to a customer.
func IsCustomerSafe(code int) bool {
	_, ok := customerSafe[code]
	return ok
}

// CustomerMessage returns the text a customer may see for err.
func CustomerMessage(err error) string {
	var localized *LocalizedError
	if errors.As(err, &localized) {
		return localized.Message
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && IsCustomerSafe(gwErr.Code) && gwErr.Message != "" {
		return gwErr.Message
	}
	return GenericCustomerMessage
}

// Describe returns the full diagnostic text used in logs and admin notifications.
func Describe(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return fmt.Sprintf("[%s] operation=%s http=%d code=%d: %s", gwErr.Kind, gwErr.Operation, gwErr.HTTPStatus, gwErr.Code, gwErr.Message)
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return fmt.Sprintf("[validation] operation=%s: %v", cmdErr.Operation, cmdErr.Messages)
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return fmt.Sprintf("[transport] %s", transportErr.Error())
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
