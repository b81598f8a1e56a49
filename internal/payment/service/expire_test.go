package service

import (
	"context"
	"testing"
	"time"

	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireAbandonedSkipsRecentAndTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := clientCtx("u1")

	stale, err := h.svc.BeginOrderCheckout(ctx, h.order(t, ctx, 4900, 1).ID)
	require.NoError(t, err)
	_, err = h.svc.ReportReady(ctx, stale.ID)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	recent, err := h.svc.BeginOrderCheckout(ctx, h.order(t, ctx, 1500, 1).ID)
	require.NoError(t, err)

	expired, err := h.svc.ExpireAbandoned(context.Background(), h.clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := h.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateFailed, got.State)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "abandoned", *got.FailureReason)
	assert.Equal(t, []string{*stale.ProviderTransactionID}, h.gateway.cancelled)

	untouched, err := h.svc.Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateAwaitingClientSecret, untouched.State)

	again, err := h.svc.ExpireAbandoned(context.Background(), h.clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestAbandonedAttemptStillSettlesLatePayment(t *testing.T) {
	h := newHarness(t)
	ctx := clientCtx("u1")
	order := h.order(t, ctx, 4900, 1)

	attempt, err := h.svc.BeginOrderCheckout(ctx, order.ID)
	require.NoError(t, err)
	_, err = h.svc.ReportReady(ctx, attempt.ID)
	require.NoError(t, err)

	h.clock.Advance(3 * time.Hour)
	expired, err := h.svc.ExpireAbandoned(context.Background(), h.clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	err = h.svc.ApplyEvent(context.Background(), &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_late",
		TransactionID:   *attempt.ProviderTransactionID,
		Type:            paymentdomain.EventTypePaymentSucceeded,
		TargetType:      paymentdomain.TargetOrder,
		TargetID:        order.ID,
		AttemptID:       attempt.ID,
		Amount:          4900,
		Currency:        "USD",
		RawPayload:      []byte(`{"id":"evt_late"}`),
	})
	require.NoError(t, err)

	stored, err := h.orders.Lookup(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, stored.Status)

	settled, err := h.svc.Get(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateSucceeded, settled.State)
}

func TestExpireAbandonedSettlesPaidAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := clientCtx("u1")
	order := h.order(t, ctx, 4900, 1)

	attempt, err := h.svc.BeginOrderCheckout(ctx, order.ID)
	require.NoError(t, err)
	_, err = h.svc.ReportReady(ctx, attempt.ID)
	require.NoError(t, err)
	h.gateway.setIntent(*attempt.ProviderTransactionID, paymentdomain.TransactionSucceeded, "")

	h.clock.Advance(3 * time.Hour)
	expired, err := h.svc.ExpireAbandoned(context.Background(), h.clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Empty(t, h.gateway.cancelled)

	stored, err := h.orders.Lookup(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, stored.Status)
}
