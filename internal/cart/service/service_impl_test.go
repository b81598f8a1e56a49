package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/launchpad/internal/cart/domain"
	"github.com/smallbiznis/launchpad/internal/cart/kv"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCatalog struct {
	catalogdomain.Service
	offerings map[int64]catalogdomain.Offering
}

func (s *stubCatalog) Get(_ context.Context, id int64) (*catalogdomain.Offering, error) {
	o, ok := s.offerings[id]
	if !ok {
		return nil, catalogdomain.ErrNotFound
	}
	return &o, nil
}

func newTestService() *Service {
	return New(Params{
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)),
		KV:    kv.NewMemoryKV(),
		Catalog: &stubCatalog{offerings: map[int64]catalogdomain.Offering{
			1: {ID: 1, UnitPrice: 5000, Currency: "USD", IsActive: true},
			2: {ID: 2, UnitPrice: 700, Currency: "USD", IsActive: false},
		}},
	})
}

func TestPutAndView(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	view, err := svc.Put(ctx, "s1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), view.Subtotal)
	assert.Equal(t, "USD", view.Currency)

	_, err = svc.Put(ctx, "s1", 2, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOffering)
	_, err = svc.Put(ctx, "s1", 3, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOffering)

	view, err = svc.View(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	view, err = svc.Remove(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Subtotal)
}

func TestClearOnPaidClearsOriginatingCart(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Put(ctx, "s2", 1, 1)
	require.NoError(t, err)

	sub := NewClearOnPaid(svc, zap.NewNop())
	assert.True(t, sub.Handles(eventdomain.EventOrderPaid))
	assert.False(t, sub.Handles(eventdomain.EventLaunchRequestPaid))

	payload, err := json.Marshal(eventdomain.OrderPaidPayload{OrderID: "9", CartSessionID: "s2"})
	require.NoError(t, err)
	require.NoError(t, sub.Handle(ctx, eventdomain.Event{EventType: eventdomain.EventOrderPaid, Payload: payload}))

	view, err := svc.View(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestClearOnPaidIgnoresOrdersWithoutSession(t *testing.T) {
	svc := newTestService()
	sub := NewClearOnPaid(svc, zap.NewNop())
	payload, _ := json.Marshal(eventdomain.OrderPaidPayload{OrderID: "9"})
	assert.NoError(t, sub.Handle(context.Background(), eventdomain.Event{Payload: payload}))
}
