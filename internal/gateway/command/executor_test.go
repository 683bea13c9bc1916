package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTokens struct {
	refreshes atomic.Int32
}

func (f *fakeTokens) Token(ctx context.Context, scope string) (string, error) {
	return "tok-0", nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context, scope string) (string, error) {
	n := f.refreshes.Add(1)
	return "tok-" + string(rune('0'+n)), nil
}

type fixedSettings map[string]domain.Settings

func (f fixedSettings) Settings(scope string) domain.Settings {
	if s, ok := f[scope]; ok {
		return s
	}
	return f["default"]
}

func newTestExecutor(t *testing.T, handler http.HandlerFunc) (*Executor, *fakeTokens, *atomic.Int32, fixedSettings) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	settings := fixedSettings{
		"default": {
			Scope: "default", Protocol: "ecom", BaseURL: srv.URL, BaseCurrency: "NOK",
			MerchantSerialNumber: "123456", SubscriptionKey: "sub-key",
			CancellationPolicy: domain.CancellationAutomatic,
		},
		"store-se": {
			Scope: "store-se", Protocol: "ecom", BaseURL: srv.URL, BaseCurrency: "SEK",
		},
		"store-dk": {
			Scope: "store-dk", Protocol: "epayment", BaseURL: srv.URL, BaseCurrency: "DKK",
			OfflinePartialVoid: true,
		},
	}
	tokens := &fakeTokens{}
	exec := NewExecutor(Params{
		Log:      zap.NewNop(),
		Selector: protocol.NewDefaultSelector(),
		Tokens:   tokens,
		Settings: settings,
		Client:   srv.Client(),
	})
	return exec, tokens, &calls, settings
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func capturedSnapshot(ref string) transaction.Snapshot {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return transaction.NewLegacySnapshot(ref, []transaction.LogEntry{
		{Operation: transaction.OperationReserve, Amount: 5000, Success: true, Timestamp: now},
		{Operation: transaction.OperationCapture, Amount: 5000, Success: true, Timestamp: now.Add(time.Minute)},
	})
}

func TestExecuteCaptureSendsFilteredAuthenticatedRequest(t *testing.T) {
	var got map[string]any
	var header http.Header
	exec, _, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		assert.Equal(t, "/ecomm/v2/payments/wp-1/capture", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"orderId":"wp-1","transactionInfo":{"status":"Captured","amount":5000}}`)
	})

	handled := false
	cmd := Command{
		Operation:  domain.OperationCapture,
		Guards:     []Guard{CurrencyGuard},
		Validators: []Validator{ReferenceMatches, StatusFieldPresent, CurrencySupported},
		Handler: HandlerFunc(func(ctx context.Context, subj domain.Subject, resp *Response) error {
			handled = true
			assert.Equal(t, "wp-1", resp.Reference)
			return nil
		}),
	}
	subj := domain.Subject{Reference: "wp-1", Amount: 5000, Extra: map[string]any{"debug": true}}

	result, err := exec.Execute(context.Background(), cmd, subj)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.True(t, handled)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "Bearer tok-0", header.Get("Authorization"))
	assert.Equal(t, "sub-key", header.Get("Ocp-Apim-Subscription-Key"))
	assert.Equal(t, "123456", header.Get("Merchant-Serial-Number"))
	assert.NotEmpty(t, header.Get("Idempotency-Key"))

	assert.ElementsMatch(t, []string{"merchantInfo", "transaction"}, keys(got))
	tx := got["transaction"].(map[string]any)
	assert.Equal(t, float64(5000), tx["amount"])
}

func TestExecuteRetriesOnceOnRejectedToken(t *testing.T) {
	var seen []string
	exec, tokens, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization")+"|"+r.Header.Get("Idempotency-Key"))
		if r.Header.Get("Authorization") == "Bearer tok-0" {
			writeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"orderId":"wp-2","transactionLogHistory":[]}`)
	})

	result, err := exec.Execute(context.Background(), Command{Operation: domain.OperationStatus}, domain.Subject{Reference: "wp-2"})
	require.NoError(t, err)
	require.NotNil(t, result.Response.Snapshot)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), tokens.refreshes.Load())
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0][len("Bearer tok-0"):], seen[1][len("Bearer tok-1"):])
}

func TestExecuteGivesUpAfterSecondRejection(t *testing.T) {
	exec, tokens, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	_, err := exec.Execute(context.Background(), Command{Operation: domain.OperationStatus}, domain.Subject{Reference: "wp-3"})
	require.Error(t, err)

	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestCancelGuardBlocksCapturedFundsWithoutCall(t *testing.T) {
	exec, _, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	cmd := Command{Operation: domain.OperationCancel, Guards: []Guard{CancelGuard}}
	_, err := exec.Execute(context.Background(), cmd, domain.Subject{Reference: "wp-4", Snapshot: capturedSnapshot("wp-4")})

	assert.ErrorIs(t, err, domain.ErrCannotCancelCaptured)
	assert.Equal(t, "Can't cancel captured transaction", domain.CustomerMessage(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestCancelGuardSkipsWithOfflinePartialVoid(t *testing.T) {
	exec, _, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	cmd := Command{Operation: domain.OperationCancel, Guards: []Guard{CancelGuard}}
	result, err := exec.Execute(context.Background(), cmd, domain.Subject{Scope: "store-dk", Reference: "wp-5", Snapshot: capturedSnapshot("wp-5")})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCurrencyGuardRefusesBeforeNetwork(t *testing.T) {
	exec, _, calls, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	cmd := Command{Operation: domain.OperationCapture, Guards: []Guard{CurrencyGuard}}
	_, err := exec.Execute(context.Background(), cmd, domain.Subject{Scope: "store-se", Reference: "wp-6", Amount: 100})

	assert.ErrorIs(t, err, domain.ErrKindMerchant)
	assert.Equal(t, int32(0), calls.Load())
}

func TestValidatorFailuresAggregateIntoCommandError(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"orderId":"someone-else"}`)
	})

	handled := false
	cmd := Command{
		Operation:  domain.OperationCapture,
		Validators: []Validator{ReferenceMatches, StatusFieldPresent},
		Handler: HandlerFunc(func(ctx context.Context, subj domain.Subject, resp *Response) error {
			handled = true
			return nil
		}),
	}
	_, err := exec.Execute(context.Background(), cmd, domain.Subject{Reference: "wp-7", Amount: 100})

	var commandErr *domain.CommandError
	require.True(t, errors.As(err, &commandErr))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.GreaterOrEqual(t, len(commandErr.Messages), 2)
	assert.False(t, handled)
}

func TestProviderErrorIsClassified(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `[{"errorGroup":"Payment","errorCode":"42","errorMessage":"Refused by issuer"}]`)
	})

	_, err := exec.Execute(context.Background(), Command{Operation: domain.OperationCapture}, domain.Subject{Reference: "wp-8", Amount: 100})

	var gwErr *domain.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, domain.KindPayment, gwErr.Kind)
	assert.Equal(t, domain.OperationCapture, gwErr.Operation)
	assert.Equal(t, http.StatusBadRequest, gwErr.HTTPStatus)
}

func TestUndecodableBodyIsTransportError(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})

	_, err := exec.Execute(context.Background(), Command{Operation: domain.OperationCapture}, domain.Subject{Reference: "wp-9", Amount: 100})
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestFilterFieldsKeepsOnlyAllowedPaths(t *testing.T) {
	body := map[string]any{
		"merchantInfo": map[string]any{"merchantSerialNumber": "1", "secret": "x"},
		"transaction":  map[string]any{"amount": 10, "nested": map[string]any{"a": 1}},
		"extra":        true,
	}
	out := filterFields(body, []string{"merchantInfo.merchantSerialNumber", "transaction"})

	assert.Equal(t, map[string]any{
		"merchantInfo": map[string]any{"merchantSerialNumber": "1"},
		"transaction":  map[string]any{"amount": 10, "nested": map[string]any{"a": 1}},
	}, out)
}

func TestMergeCombinesNestedFragments(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"x": 1}}
	merge(dst, map[string]any{"a": map[string]any{"y": 2}, "b": 3})
	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 3}, dst)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
