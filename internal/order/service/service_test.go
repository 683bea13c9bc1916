package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/order/domain"
	"github.com/smallbiznis/walletpay/internal/order/repository"
	"github.com/smallbiznis/walletpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return NewService(Params{
		DB:    dbtest.New(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	})
}

func TestReserveReferenceIsFreshPerCall(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{Scope: "default", Currency: "nok", GrandTotal: 5000})
	require.NoError(t, err)
	assert.Equal(t, "NOK", draft.Currency)

	first, err := svc.ReserveReference(ctx, draft.ID)
	require.NoError(t, err)
	second, err := svc.ReserveReference(ctx, draft.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, ReferencePrefix))
	assert.NotEqual(t, first, second)

	stored, err := svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, second, stored.ReservedReference)
}

func TestPlaceFromDraftIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{Scope: "default", Currency: "NOK", GrandTotal: 5000})
	require.NoError(t, err)

	first, err := svc.PlaceFromDraft(ctx, draft.ID, "wp-1")
	require.NoError(t, err)
	second, err := svc.PlaceFromDraft(ctx, draft.ID, "wp-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = svc.ReserveReference(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftInactive)
}

func TestCaptureAndRefundTotals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{Scope: "default", Currency: "NOK", GrandTotal: 5000})
	require.NoError(t, err)
	_, err = svc.PlaceFromDraft(ctx, draft.ID, "wp-1")
	require.NoError(t, err)

	require.NoError(t, svc.RecordCapture(ctx, "wp-1", 5000, "tx-1"))
	assert.ErrorIs(t, svc.RecordCapture(ctx, "wp-1", 1, ""), domain.ErrAmountExceeded)

	require.NoError(t, svc.RecordRefund(ctx, "wp-1", 2000))
	order, err := svc.GetOrderByReference(ctx, "wp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCaptured, order.Status)
	assert.Equal(t, int64(2000), order.RefundedAmount)
	assert.Equal(t, "tx-1", order.TransactionID)

	require.NoError(t, svc.RecordRefund(ctx, "wp-1", 3000))
	order, err = svc.GetOrderByReference(ctx, "wp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)
	assert.True(t, order.PaymentClosed)
}

func TestUnknownOrder(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.MarkPaymentClosed(context.Background(), "missing"), domain.ErrOrderNotFound)
	_, err := svc.CreateDraft(context.Background(), CreateDraftRequest{Currency: "NOK"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
