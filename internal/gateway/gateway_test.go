package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context, scope string) (string, error) {
	return "tok", nil
}

func (staticTokens) ForceRefresh(ctx context.Context, scope string) (string, error) {
	return "tok", nil
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	stores := config.NewStaticStoreConfig(map[string]map[string]string{
		config.DefaultScope: {
			config.KeyProtocol:     "ecom",
			config.KeyBaseURL:      srv.URL,
			config.KeyBaseCurrency: "NOK",
		},
		"store-dk": {
			config.KeyProtocol:     "epayment",
			config.KeyBaseCurrency: "DKK",
		},
	})
	selector := protocol.NewDefaultSelector()
	exec := command.NewExecutor(command.Params{
		Log:      zap.NewNop(),
		Selector: selector,
		Tokens:   staticTokens{},
		Settings: NewStoreSettings(stores),
		Client:   srv.Client(),
	})
	return New(exec, selector), &calls
}

func TestStoreSettingsInheritDefaults(t *testing.T) {
	stores := config.NewStaticStoreConfig(map[string]map[string]string{
		config.DefaultScope: {config.KeyMerchantSerialNumber: "111", config.KeyCancellationPolicy: "bogus"},
		"store-2":           {config.KeyCancellationPolicy: "manual", config.KeyOfflinePartialVoid: "true"},
	})
	settings := NewStoreSettings(stores)

	def := settings.Settings("unknown")
	assert.Equal(t, "111", def.MerchantSerialNumber)
	assert.Equal(t, domain.CancellationAutomatic, def.CancellationPolicy)
	assert.False(t, def.OfflinePartialVoid)

	s2 := settings.Settings("store-2")
	assert.Equal(t, "111", s2.MerchantSerialNumber)
	assert.Equal(t, domain.CancellationManual, s2.CancellationPolicy)
	assert.True(t, s2.OfflinePartialVoid)
}

func TestStatusReturnsLegacySnapshot(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ecomm/v2/payments/wp-10/details", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"orderId":"wp-10","transactionLogHistory":[
			{"amount":5000,"operation":"RESERVE","operationSuccess":true,"timeStamp":"2026-01-01T10:01:00Z"},
			{"amount":5000,"operation":"INITIATE","operationSuccess":true,"timeStamp":"2026-01-01T10:00:00Z"}
		]}`)
	})

	snapshot, err := gw.Status(context.Background(), "", "wp-10", nil)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReserved, transaction.Inspect(snapshot).Status())
	assert.Equal(t, int64(5000), snapshot.Summary().Reserved)
}

func TestStatusUsesModernProtocolForScope(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/epayment/v1/payments/wp-11", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"reference":"wp-11","state":"AUTHORIZED","pspReference":"psp-1",
			"amount":{"currency":"DKK","value":1000},
			"aggregate":{"authorizedAmount":{"currency":"DKK","value":1000},
				"capturedAmount":{"currency":"DKK","value":0},
				"refundedAmount":{"currency":"DKK","value":0},
				"cancelledAmount":{"currency":"DKK","value":0}}}`)
	})

	snapshot, err := gw.Status(context.Background(), "store-dk", "wp-11", nil)
	require.NoError(t, err)
	assert.Equal(t, transaction.ProtocolModern, snapshot.Protocol())
	assert.True(t, transaction.Inspect(snapshot).Reserved)
}

func TestStatusRequiresReference(t *testing.T) {
	gw, calls := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := gw.Status(context.Background(), "", "  ", nil)
	assert.ErrorIs(t, err, domain.ErrMissingReference)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInitiateRunsHandlerWithSession(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"orderId":"wp-12","url":"https://pay.example/session/1"}`)
	})

	var seen *domain.InitiateResult
	res, err := gw.Initiate(context.Background(), domain.Subject{Reference: "wp-12", Amount: 2500, AuthToken: "cb-token"},
		command.HandlerFunc(func(ctx context.Context, subj domain.Subject, resp *command.Response) error {
			seen = resp.Initiate
			return nil
		}))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "https://pay.example/session/1", res.RedirectURL)
	assert.Equal(t, "wp-12", res.Reference)
}
