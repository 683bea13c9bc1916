package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestClassifyCodeTable(t *testing.T) {
	cases := map[int]Kind{
		0:   KindInvalidRequest,
		11:  KindInvalidRequest,
		22:  KindInvalidRequest,
		31:  KindMerchant,
		37:  KindMerchant,
		91:  KindMerchant,
		96:  KindMerchant,
		41:  KindPayment,
		53:  KindPayment,
		63:  KindPayment,
		74:  KindPayment,
		81:  KindCustomer,
		83:  KindCustomer,
		98:  KindProviderSide,
		99:  KindProviderSide,
		54:  KindUnclassified,
		100: KindUnclassified,
	}
	for code, want := range cases {
		got := Classify(intPtr(code), "msg")
		assert.Equal(t, want, got.Kind, "code %d", code)
		assert.Equal(t, code, got.Code)
	}
}

func TestClassifyAbsentCode(t *testing.T) {
	err := Classify(nil, "")

	assert.Equal(t, KindInvalidRequest, err.Kind)
	assert.NotEmpty(t, err.Message)
}

func TestKindSentinelsMatchWrappedErrors(t *testing.T) {
	err := fmt.Errorf("initiate: %w", Classify(intPtr(35), "merchant blocked"))

	assert.True(t, errors.Is(err, ErrKindMerchant))
	assert.False(t, errors.Is(err, ErrKindCustomer))
}

func TestCustomerMessage(t *testing.T) {
	assert.Equal(t, "Insufficient funds", CustomerMessage(Classify(intPtr(42), "Insufficient funds")))
	assert.Equal(t, GenericCustomerMessage, CustomerMessage(Classify(intPtr(35), "Merchant is blocked")))
	assert.Equal(t, GenericCustomerMessage, CustomerMessage(&TransportError{Operation: OperationInitiate, Err: errors.New("dial tcp: refused")}))
	assert.Equal(t, "Can't cancel captured transaction", CustomerMessage(fmt.Errorf("cancel: %w", ErrCannotCancelCaptured)))
}

func TestDescribeKeepsDetail(t *testing.T) {
	err := Classify(intPtr(35), "Merchant is blocked")
	err.Operation = OperationInitiate
	err.HTTPStatus = 400

	assert.Contains(t, Describe(err), "Merchant is blocked")
	assert.Contains(t, Describe(err), "merchant")
	assert.Contains(t, Describe(&CommandError{Operation: OperationStatus, Messages: []string{"reference mismatch"}}), "reference mismatch")
}

func TestCommandErrorUnwrapsToValidation(t *testing.T) {
	err := &CommandError{Operation: OperationCapture, Messages: []string{"a", "b"}}

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "capture: a; b", err.Error())
}
