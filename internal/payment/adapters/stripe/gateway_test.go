package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGatewayCreateTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "attempt:1:intent", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "4900", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))
		assert.Equal(t, "order", r.PostForm.Get("metadata[target_type]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret","status":"requires_payment_method","amount":4900,"currency":"usd"}`))
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())
	tx, err := gw.CreateTransaction(context.Background(), paymentdomain.TransactionRequest{
		Amount:         4900,
		Currency:       "USD",
		Metadata:       map[string]string{"target_type": "order"},
		IdempotencyKey: "attempt:1:intent",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", tx.ID)
	assert.Equal(t, "pi_1_secret", tx.ClientSecret)
	assert.Equal(t, paymentdomain.TransactionRequiresAction, tx.Status)
	assert.Equal(t, "USD", tx.Currency)
}

func TestGatewayRetrieveTransactionStatuses(t *testing.T) {
	bodies := map[string]string{
		"pi_ok":       `{"id":"pi_ok","status":"succeeded","amount":100,"currency":"usd"}`,
		"pi_wait":     `{"id":"pi_wait","status":"processing","amount":100,"currency":"usd"}`,
		"pi_declined": `{"id":"pi_declined","status":"requires_payment_method","amount":100,"currency":"usd","last_payment_error":{"code":"card_declined"}}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/payment_intents/"):]
		_, _ = w.Write([]byte(bodies[id]))
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())

	tx, err := gw.RetrieveTransaction(context.Background(), "pi_ok")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionSucceeded, tx.Status)

	tx, err = gw.RetrieveTransaction(context.Background(), "pi_wait")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionProcessing, tx.Status)

	tx, err = gw.RetrieveTransaction(context.Background(), "pi_declined")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionDeclined, tx.Status)
	assert.Equal(t, "card_declined", tx.FailureReason)
}

func TestGatewayCreateHostedSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "Constitución SAS", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "29900", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "7", r.PostForm.Get("payment_intent_data[metadata][target_id]"))
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1","payment_status":"unpaid","amount_total":29900,"currency":"usd"}`))
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())
	session, err := gw.CreateHostedSession(context.Background(), paymentdomain.HostedSessionRequest{
		Lines:      []paymentdomain.HostedLine{{Name: "Constitución SAS", UnitAmount: 29900, Quantity: 1}},
		Currency:   "USD",
		SuccessURL: "https://app.test/checkout/return?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://app.test/checkout/cancel",
		Metadata:   map[string]string{"target_id": "7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", session.URL)
	assert.False(t, session.Paid)
}

func TestGatewayExpireHostedSession(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_9/expire", r.URL.Path)
		assert.Equal(t, "expire:cs_9", r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"id":"cs_9","status":"expired","payment_status":"unpaid","amount_total":4900,"currency":"usd"}`))
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())
	require.NoError(t, gw.ExpireHostedSession(context.Background(), "cs_9"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGatewayErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment_intents/pi_card":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())

	_, err := gw.RetrieveTransaction(context.Background(), "pi_card")
	require.ErrorIs(t, err, paymentdomain.ErrPaymentDeclined)

	_, err = gw.RetrieveTransaction(context.Background(), "pi_down")
	require.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
}

func TestGatewayBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gw := newGateway("sk_test", server.URL, server.Client(), zap.NewNop())
	for i := 0; i < 7; i++ {
		_, err := gw.RetrieveTransaction(context.Background(), "pi_x")
		assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestGatewayWithoutKeyIsUnavailable(t *testing.T) {
	gw := newGateway("", "", http.DefaultClient, nil)
	_, err := gw.RetrieveTransaction(context.Background(), "pi_1")
	require.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
