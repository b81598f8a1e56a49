package webhook

import (
	"context"
	"net/http"
	"testing"

	"github.com/smallbiznis/launchpad/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAdapter struct {
	verifyErr error
	parseErr  error
}

func (a *stubAdapter) Verify(context.Context, []byte, http.Header) error { return a.verifyErr }

func (a *stubAdapter) Parse(context.Context, []byte) (*paymentdomain.PaymentEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return &paymentdomain.PaymentEvent{
		ProviderEventID: "evt_1",
		Type:            paymentdomain.EventTypePaymentSucceeded,
		TargetType:      paymentdomain.TargetOrder,
		TargetID:        1,
	}, nil
}

type stubFactory struct{ adapter *stubAdapter }

func (f *stubFactory) Provider() string { return "stub" }
func (f *stubFactory) NewAdapter(paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	return f.adapter, nil
}

type recordingPayments struct {
	paymentdomain.Service
	events []*paymentdomain.PaymentEvent
	err    error
}

func (r *recordingPayments) ApplyEvent(_ context.Context, event *paymentdomain.PaymentEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func newService(adapter *stubAdapter, payments *recordingPayments) paymentdomain.WebhookService {
	registry := adapters.NewRegistry(&stubFactory{adapter: adapter}).
		Configure(paymentdomain.AdapterConfig{Provider: "stub"})
	return NewService(Params{Log: zap.NewNop(), PaymentSvc: payments, Adapters: registry})
}

func TestIngestWebhookAppliesVerifiedEvent(t *testing.T) {
	payments := &recordingPayments{}
	svc := newService(&stubAdapter{}, payments)

	err := svc.IngestWebhook(context.Background(), " STUB ", []byte(`{"id":"evt_1"}`), http.Header{})
	require.NoError(t, err)
	require.Len(t, payments.events, 1)
	assert.Equal(t, "stub", payments.events[0].Provider)
	assert.JSONEq(t, `{"id":"evt_1"}`, string(payments.events[0].RawPayload))
}

func TestIngestWebhookRejections(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  string
		adapter  *stubAdapter
		wantErr  error
	}{
		{name: "unknown provider", provider: "paypal", payload: `{}`, adapter: &stubAdapter{}, wantErr: paymentdomain.ErrProviderNotFound},
		{name: "invalid json", provider: "stub", payload: `{`, adapter: &stubAdapter{}, wantErr: paymentdomain.ErrInvalidPayload},
		{name: "bad signature", provider: "stub", payload: `{}`, adapter: &stubAdapter{verifyErr: paymentdomain.ErrInvalidSignature}, wantErr: paymentdomain.ErrInvalidSignature},
		{name: "missing target", provider: "stub", payload: `{}`, adapter: &stubAdapter{parseErr: paymentdomain.ErrInvalidTarget}, wantErr: paymentdomain.ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &recordingPayments{}
			err := newService(tt.adapter, payments).IngestWebhook(context.Background(), tt.provider, []byte(tt.payload), http.Header{})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, payments.events)
		})
	}
}

func TestIngestWebhookIgnoredAndDuplicate(t *testing.T) {
	payments := &recordingPayments{}
	err := newService(&stubAdapter{parseErr: paymentdomain.ErrEventIgnored}, payments).
		IngestWebhook(context.Background(), "stub", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Empty(t, payments.events)

	payments = &recordingPayments{err: paymentdomain.ErrEventAlreadyProcessed}
	err = newService(&stubAdapter{}, payments).
		IngestWebhook(context.Background(), "stub", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
}
