package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	attemptrepo "github.com/smallbiznis/walletpay/internal/attempt/repository"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	"github.com/smallbiznis/walletpay/internal/lock"
	orderdomain "github.com/smallbiznis/walletpay/internal/order/domain"
	orderrepo "github.com/smallbiznis/walletpay/internal/order/repository"
	ordersvc "github.com/smallbiznis/walletpay/internal/order/service"
	"github.com/smallbiznis/walletpay/pkg/db/dbtest"
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

type harness struct {
	svc      *Service
	provider *fakeProvider
	attempts *attemptsvc.Service
	orders   *ordersvc.Service
	clock    *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	provider := newFakeProvider(t)
	conn := dbtest.New(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	stores := config.NewStaticStoreConfig(map[string]map[string]string{
		config.DefaultScope: {
			config.KeyProtocol:           "ecom",
			config.KeyBaseURL:            provider.srv.URL,
			config.KeyBaseCurrency:       "NOK",
			config.KeyCancellationPolicy: "automatic",
			config.KeyCallbackPrefix:     "https://shop.example/callback",
		},
	})
	selector := protocol.NewDefaultSelector()
	exec := command.NewExecutor(command.Params{
		Log:      zap.NewNop(),
		Selector: selector,
		Tokens:   staticTokens{},
		Settings: gateway.NewStoreSettings(stores),
		Client:   provider.srv.Client(),
	})
	gw := gateway.New(exec, selector)

	attempts := attemptsvc.NewService(attemptsvc.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    attemptrepo.Provide(),
		Clock:   clk,
		Locker:  lock.NewLocalLocker(),
		Gateway: gw,
	})
	orders := ordersvc.NewService(ordersvc.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  orderrepo.Provide(),
		Clock: clk,
	})

	cfg := config.Config{}
	cfg.Scheduler.PollMaxAttempts = 3
	cfg.Scheduler.SessionLapse = 15 * time.Minute
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Config:   cfg,
		Clock:    clk,
		Gateway:  gw,
		Attempts: attempts,
		Orders:   orders,
	})
	return &harness{svc: svc, provider: provider, attempts: attempts, orders: orders, clock: clk}
}

func (h *harness) draft(t *testing.T, currency string) *orderdomain.Draft {
	t.Helper()
	draft, err := h.orders.CreateDraft(context.Background(), ordersvc.CreateDraftRequest{
		Scope:      config.DefaultScope,
		Currency:   currency,
		GrandTotal: 5000,
	})
	require.NoError(t, err)
	return draft
}

// reserved initiates a payment and lets the provider report the reservation through a callback.
func (h *harness) reserved(t *testing.T) (*InitiateResponse, *attemptdomain.Attempt) {
	t.Helper()
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)
	h.provider.reserve(resp.Reference)

	attempt, err := h.attempts.GetByReference(ctx, resp.Reference)
	require.NoError(t, err)
	updated, err := h.svc.HandleCallback(ctx, callbackBody(resp.Reference, "RESERVED"), attempt.AuthToken)
	require.NoError(t, err)
	require.Equal(t, attemptdomain.StatusReserved, updated.Status)
	return resp, updated
}

func callbackBody(reference, status string) []byte {
	return []byte(`{"merchantSerialNumber":"123456","orderId":"` + reference + `","transactionInfo":{"amount":5000,"status":"` + status + `"}}`)
}

func TestInitiateOpensPendingAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	draft := h.draft(t, "nok")

	resp, err := h.svc.Initiate(ctx, draft.ID, InitiateOptions{Actor: "storefront"})
	require.NoError(t, err)
	assert.Contains(t, resp.Reference, ordersvc.ReferencePrefix)
	assert.Equal(t, "https://pay.example/"+resp.Reference, resp.RedirectURL)

	attempt, err := h.attempts.Get(ctx, resp.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusPending, attempt.Status)
	assert.NotEmpty(t, attempt.AuthToken)
	assert.Equal(t, 1, h.provider.count("initiate"))

	_, err = h.svc.Initiate(ctx, draft.ID, InitiateOptions{})
	assert.ErrorIs(t, err, attemptdomain.ErrAttemptInProgress)
	assert.Equal(t, 1, h.provider.count("initiate"))
}

func TestInitiateRejectsUnsupportedCurrencyLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	draft := h.draft(t, "SEK")

	_, err := h.svc.Initiate(ctx, draft.ID, InitiateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gwdomain.ErrKindMerchant)
	assert.Equal(t, 0, h.provider.count("initiate"))

	current, err := h.attempts.Current(ctx, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestCallbackRequiresAttemptToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)
	h.provider.reserve(resp.Reference)

	_, err = h.svc.HandleCallback(ctx, callbackBody(resp.Reference, "RESERVED"), "Bearer wrong")
	assert.ErrorIs(t, err, ErrUnauthorizedCallback)
	assert.Equal(t, 0, h.provider.count("details"))

	attempt, err := h.attempts.GetByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusPending, attempt.Status)

	// The body claims a cancellation; the provider snapshot decides.
	updated, err := h.svc.HandleCallback(ctx, callbackBody(resp.Reference, "CANCELLED"), "Bearer "+attempt.AuthToken)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusReserved, updated.Status)

	order, err := h.orders.GetOrderByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPlaced, order.Status)
	assert.Equal(t, int64(5000), order.GrandTotal)
}

func TestCallbackUnknownReference(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.HandleCallback(context.Background(), []byte(`{"transactionInfo":{}}`), "tok")
	assert.ErrorIs(t, err, gwdomain.ErrCallbackReference)
}

func TestCancelAfterCaptureFailsWithoutProviderCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.reserved(t)

	ok, err := h.svc.Capture(ctx, resp.Reference, 5000)
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := h.orders.GetOrderByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.CapturedAmount)
	assert.Equal(t, "tx-capture", order.TransactionID)

	ok, err = h.svc.Cancel(ctx, resp.Reference, CancelOptions{Reason: "customer changed mind"})
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, gwdomain.ErrCannotCancelCaptured)
	assert.Equal(t, "Can't cancel captured transaction", gwdomain.CustomerMessage(err))
	assert.Equal(t, 0, h.provider.count("cancel"))

	attempt, err := h.attempts.GetByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusRevertFailed, attempt.Status)
	assert.NotEmpty(t, attempt.LastErrorMessage)

	detail, err := h.svc.Detail(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, detail.Cancellations, 1)
	assert.Equal(t, attemptdomain.CancelTypeLocal, detail.Cancellations[0].CancelType)
}

func TestCancelReservedPaymentRevertsAtProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.reserved(t)

	ok, err := h.svc.Cancel(ctx, resp.Reference, CancelOptions{Reason: "out of stock", Actor: "shop"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, h.provider.count("cancel"))

	attempt, err := h.attempts.GetByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusReverted, attempt.Status)

	order, err := h.orders.GetOrderByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCanceled, order.Status)
	assert.True(t, order.PaymentClosed)
}

func TestProviderCancellationRevertsReservedAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, attempt := h.reserved(t)
	h.provider.append(resp.Reference, "CANCEL", 5000)

	updated, err := h.svc.HandleCallback(ctx, callbackBody(resp.Reference, "CANCELLED"), attempt.AuthToken)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusReverted, updated.Status)
	assert.Equal(t, 0, h.provider.count("cancel"))

	detail, err := h.svc.Detail(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, detail.Cancellations, 1)
	assert.Equal(t, attemptdomain.CancelTypeProvider, detail.Cancellations[0].CancelType)
	assert.Equal(t, attemptdomain.OriginProvider, detail.Cancellations[0].Origin)
}

func TestPollExpiresLapsedSessionAndRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)
	attempt, err := h.attempts.Get(ctx, resp.AttemptID)
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	updated, err := h.svc.Poll(ctx, attempt)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusExpired, updated.Status)

	restarted, err := h.svc.Restart(ctx, attempt.ID, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusPending, restarted.Status)
	assert.Equal(t, 0, restarted.AttemptCount)

	// The session window starts over at restart, not at creation.
	h.clock.Advance(10 * time.Second)
	polled, err := h.svc.Poll(ctx, restarted)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusPending, polled.Status)

	stored, err := h.attempts.Get(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestPollBudgetFailsAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)

	var status attemptdomain.Status
	for i := 0; i < 3; i++ {
		attempt, err := h.attempts.Get(ctx, resp.AttemptID)
		require.NoError(t, err)
		updated, err := h.svc.Poll(ctx, attempt)
		require.NoError(t, err)
		status = updated.Status
	}
	assert.Equal(t, attemptdomain.StatusReserveFailed, status)
	assert.Equal(t, 3, h.provider.count("details"))
}

func TestPollPlacesOrderOnceReserved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)
	h.provider.reserve(resp.Reference)

	attempt, err := h.attempts.Get(ctx, resp.AttemptID)
	require.NoError(t, err)
	updated, err := h.svc.Poll(ctx, attempt)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusReserved, updated.Status)

	_, err = h.orders.GetOrderByReference(ctx, resp.Reference)
	assert.NoError(t, err)
}

func TestRefundRemainderClosesOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.reserved(t)

	_, err := h.svc.Refund(ctx, resp.Reference, 0)
	assert.ErrorIs(t, err, ErrNothingToRefund)

	_, err = h.svc.Capture(ctx, resp.Reference, 0)
	require.NoError(t, err)
	_, err = h.svc.Refund(ctx, resp.Reference, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.provider.count("refund"))

	order, err := h.orders.GetOrderByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, order.Status)
	assert.Equal(t, int64(5000), order.RefundedAmount)
	assert.True(t, order.PaymentClosed)
}

func TestCaptureRequiresReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)

	_, err = h.svc.Capture(ctx, resp.Reference, 100)
	assert.ErrorIs(t, err, ErrNotReserved)
	assert.Equal(t, 0, h.provider.count("capture"))
}

func TestSweepAbandonedCancelsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)
	attempt, err := h.attempts.Get(ctx, resp.AttemptID)
	require.NoError(t, err)

	updated, err := h.svc.SweepAbandoned(ctx, attempt)
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusCanceled, updated.Status)
	assert.Equal(t, 0, h.provider.count("cancel"))
}

func TestSweepReachesAttemptsKeptFreshByPolling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.Initiate(ctx, h.draft(t, "NOK").ID, InitiateOptions{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		h.clock.Advance(5 * time.Minute)
		attempt, err := h.attempts.Get(ctx, resp.AttemptID)
		require.NoError(t, err)
		updated, err := h.svc.Poll(ctx, attempt)
		require.NoError(t, err)
		require.Equal(t, attemptdomain.StatusPending, updated.Status)
	}

	cutoff := h.clock.Now().Add(-8 * time.Minute)
	idle, err := h.attempts.ListPending(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, idle)

	abandoned, err := h.attempts.ListAbandoned(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)

	swept, err := h.svc.SweepAbandoned(ctx, &abandoned[0])
	require.NoError(t, err)
	assert.Equal(t, attemptdomain.StatusCanceled, swept.Status)
	assert.Equal(t, 0, h.provider.count("cancel"))
}
