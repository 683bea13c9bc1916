package epayment

import (
	"net/http"
	"testing"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSnapshot(t *testing.T) {
	raw := []byte(`{
		"reference": "wp-200",
		"state": "AUTHORIZED",
		"pspReference": "psp-1",
		"aggregate": {
			"authorizedAmount": {"currency": "EUR", "value": 5000},
			"cancelledAmount": {"currency": "EUR", "value": 0},
			"capturedAmount": {"currency": "EUR", "value": 2000},
			"refundedAmount": {"currency": "EUR", "value": 0}
		}
	}`)

	snap, err := New().DeriveSnapshot(raw)
	require.NoError(t, err)

	assert.Equal(t, "EUR", snap.Currency())
	assert.Equal(t, int64(3000), snap.Summary().Remaining)
	assert.Equal(t, transaction.StatusCaptured, transaction.Inspect(snap).Status())
}

func TestParseErrorProblemJSON(t *testing.T) {
	p := New()

	gwErr, ok := p.ParseError(http.StatusBadRequest, []byte(`{"type":"about:blank","title":"Bad Request","detail":"Invalid phone number","status":400}`))
	require.True(t, ok)
	assert.Equal(t, domain.KindInvalidRequest, gwErr.Kind)
	assert.Equal(t, "Invalid phone number", gwErr.Message)

	gwErr, ok = p.ParseError(http.StatusServiceUnavailable, []byte(`{"title":"Service Unavailable","status":503}`))
	require.True(t, ok)
	assert.Equal(t, domain.KindProviderSide, gwErr.Kind)

	_, ok = p.ParseError(http.StatusBadGateway, []byte(`upstream reset`))
	assert.False(t, ok)
}

func TestResponseCurrency(t *testing.T) {
	p := New()

	assert.Equal(t, "DKK", p.ResponseCurrency(map[string]any{"amount": map[string]any{"currency": "dkk", "value": 10}}))
	assert.Equal(t, "NOK", p.ResponseCurrency(map[string]any{"aggregate": map[string]any{"authorizedAmount": map[string]any{"currency": "NOK"}}}))
	assert.Equal(t, "", p.ResponseCurrency(map[string]any{}))
}

func TestSupportsCurrency(t *testing.T) {
	assert.True(t, domain.SupportsCurrency(New(), "eur"))
	assert.False(t, domain.SupportsCurrency(New(), "SEK"))
}
