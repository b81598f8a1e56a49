package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: ProviderName, Config: map[string]any{}})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	_, err = NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: ProviderName, Config: map[string]any{"webhook_secret": "  "}})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: ProviderName, Config: map[string]any{"webhook_secret": "whsec_test"}})
	require.NoError(t, err)
	require.NotNil(t, adapter)
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{}}}`)
	now := time.Now()

	adapter := &Adapter{webhookSecret: secret, now: func() time.Time { return now }}

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "valid", header: buildStripeSignatureHeader(secret, payload, now.Unix())},
		{name: "wrong secret", header: buildStripeSignatureHeader("wrong", payload, now.Unix()), wantErr: true},
		{name: "stale", header: buildStripeSignatureHeader(secret, payload, now.Add(-10*time.Minute).Unix()), wantErr: true},
		{name: "missing", header: "", wantErr: true},
		{name: "malformed", header: "v1=abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.header != "" {
				headers.Set("Stripe-Signature", tt.header)
			}
			err := adapter.Verify(context.Background(), payload, headers)
			if tt.wantErr {
				assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParsePaymentEvent(t *testing.T) {
	created := time.Now().UTC().Unix()
	metadata := map[string]any{
		"target_type": paymentdomain.TargetOrder,
		"target_id":   "1234",
		"attempt_id":  "99",
	}

	tests := []struct {
		name        string
		event       map[string]any
		wantType    string
		wantTx      string
		wantSession string
		amount      int64
		reason      string
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id": "evt_pi", "type": "payment_intent.succeeded", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id": "pi_1", "amount": 2500, "amount_received": 2500, "currency": "usd",
				"created": created, "metadata": metadata,
			}},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
		wantTx:   "pi_1",
		amount:   2500,
	}, {
		name: "payment_intent.payment_failed",
		event: map[string]any{
			"id": "evt_pf", "type": "payment_intent.payment_failed", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id": "pi_2", "amount": 2500, "currency": "usd", "created": created,
				"metadata":           metadata,
				"last_payment_error": map[string]any{"code": "card_declined", "message": "Your card was declined."},
			}},
		},
		wantType: paymentdomain.EventTypePaymentFailed,
		wantTx:   "pi_2",
		amount:   2500,
		reason:   "card_declined",
	}, {
		name: "checkout.session.completed",
		event: map[string]any{
			"id": "evt_cs", "type": "checkout.session.completed", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id": "cs_1", "payment_status": "paid", "payment_intent": "pi_3",
				"amount_total": 4900, "currency": "usd", "metadata": metadata,
			}},
		},
		wantType:    paymentdomain.EventTypePaymentSucceeded,
		wantTx:      "pi_3",
		wantSession: "cs_1",
		amount:      4900,
	}}

	adapter := &Adapter{webhookSecret: "whsec_test", now: time.Now}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			require.NoError(t, err)

			event, err := adapter.Parse(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, tt.wantTx, event.TransactionID)
			assert.Equal(t, tt.wantSession, event.HostedSessionID)
			assert.Equal(t, tt.amount, event.Amount)
			assert.Equal(t, "USD", event.Currency)
			assert.Equal(t, tt.reason, event.FailureReason)
			assert.Equal(t, paymentdomain.TargetOrder, event.TargetType)
			assert.Equal(t, int64(1234), event.TargetID)
			assert.Equal(t, int64(99), event.AttemptID)
		})
	}
}

func TestParseIgnoresUnpaidSessionAndUnknownTypes(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test", now: time.Now}

	unpaid := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"unpaid","metadata":{"target_type":"order","target_id":"1"}}}}`)
	_, err := adapter.Parse(context.Background(), unpaid)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	unknown := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	_, err = adapter.Parse(context.Background(), unknown)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRequiresTarget(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test", now: time.Now}

	cases := map[string]string{
		"missing":    `{}`,
		"unknown":    `{"target_type":"invoice","target_id":"1"}`,
		"non-number": `{"target_type":"launch_request","target_id":"abc"}`,
	}
	for name, metadata := range cases {
		t.Run(name, func(t *testing.T) {
			payload := []byte(fmt.Sprintf(`{"id":"evt","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":100,"currency":"usd","metadata":%s}}}`, metadata))
			_, err := adapter.Parse(context.Background(), payload)
			assert.ErrorIs(t, err, paymentdomain.ErrInvalidTarget)
		})
	}

	_, err := adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
