package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/launchpad/internal/catalog/repository"
	catalogsvc "github.com/smallbiznis/launchpad/internal/catalog/service"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	eventrepo "github.com/smallbiznis/launchpad/internal/events/repository"
	eventsvc "github.com/smallbiznis/launchpad/internal/events/service"
	"github.com/smallbiznis/launchpad/internal/identity"
	"github.com/smallbiznis/launchpad/internal/order/domain"
	"github.com/smallbiznis/launchpad/internal/order/repository"
	pricingdomain "github.com/smallbiznis/launchpad/internal/pricing/domain"
	pricingsvc "github.com/smallbiznis/launchpad/internal/pricing/service"
	"github.com/smallbiznis/launchpad/internal/providers/pdf"
	"github.com/smallbiznis/launchpad/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type paidCounter struct {
	calls []eventdomain.OrderPaidPayload
}

func (p *paidCounter) Name() string                  { return "paid_counter" }
func (p *paidCounter) Handles(eventType string) bool { return eventType == eventdomain.EventOrderPaid }
func (p *paidCounter) Handle(_ context.Context, event eventdomain.Event) error {
	var payload eventdomain.OrderPaidPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	p.calls = append(p.calls, payload)
	return nil
}

type harness struct {
	db      *gorm.DB
	svc     domain.Service
	catalog catalogdomain.Service
	clock   *clock.FakeClock
	paid    *paidCounter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t,
		testutil.OfferingsTable,
		testutil.OrdersTable,
		testutil.OrderLinesTable,
		testutil.DomainEventsTable,
	)
	node := testutil.SnowflakeNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	catalog := catalogsvc.New(catalogsvc.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: catalogrepo.Provide()})
	pricing := pricingsvc.New(pricingsvc.Params{Log: log, Catalog: catalog})
	paid := &paidCounter{}
	events := eventsvc.New(eventsvc.Params{
		DB:          db,
		Log:         log,
		Clock:       clk,
		Repo:        eventrepo.Provide(),
		Subscribers: []eventdomain.Subscriber{paid},
	})

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       repository.Provide(),
		Pricing:    pricing,
		Recorder:   events,
		Dispatcher: events,
		PDF:        pdf.New(),
	})
	return &harness{db: db, svc: svc, catalog: catalog, clock: clk, paid: paid}
}

func (h *harness) offering(t *testing.T, name string, price int64) *catalogdomain.Offering {
	t.Helper()
	o, err := h.catalog.Create(context.Background(), catalogdomain.CreateRequest{
		Name:      name,
		Category:  catalogdomain.CategoryLegal,
		UnitPrice: price,
	})
	require.NoError(t, err)
	return o
}

func clientCtx(userID string) context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{UserID: userID, Role: identity.RoleClient})
}

var contact = domain.Contact{Name: "Ana Torres", Email: "ana@example.com", Phone: "+593991112233"}

func TestCreateOrderUsesAuthoritativeTotal(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)

	forged := int64(1)
	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:         []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 2}},
		Contact:       contact,
		ClientTotal:   &forged,
		CartSessionID: "cart-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), order.TotalAmount)
	assert.Equal(t, domain.StatusPending, order.Status)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, int64(5000), order.Lines[0].PriceAtPurchase)

	stored, err := h.svc.Get(clientCtx("u1"), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), stored.TotalAmount)
	assert.Len(t, stored.Lines, 1)
}

func TestCreateOrderIsAtomicOnPricingFailure(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)

	_, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:   []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}, {OfferingID: 424242, Quantity: 1}},
		Contact: contact,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidOffering)
	assert.Equal(t, int64(0), testutil.CountRows(t, h.db, "SELECT COUNT(*) FROM orders"))
	assert.Equal(t, int64(0), testutil.CountRows(t, h.db, "SELECT COUNT(*) FROM order_lines"))
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)
	items := []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}}

	_, err := h.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{Items: items, Contact: contact})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	_, err = h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{Items: items, Contact: domain.Contact{Name: "Ana", Email: "not-an-email"}})
	assert.ErrorIs(t, err, domain.ErrInvalidContact)

	_, err = h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{Contact: contact})
	assert.ErrorIs(t, err, pricingdomain.ErrEmptyQuote)
}

func TestPriceChangeDoesNotMutateExistingOrder(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)

	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:   []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}},
		Contact: contact,
	})
	require.NoError(t, err)

	require.NoError(t, h.db.Exec("UPDATE offerings SET unit_price = 9999 WHERE id = ?", a.ID).Error)

	stored, err := h.svc.Lookup(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.TotalAmount)
	assert.Equal(t, int64(5000), stored.Lines[0].PriceAtPurchase)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)
	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:         []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 2}},
		Contact:       contact,
		CartSessionID: "cart-9",
	})
	require.NoError(t, err)

	paid, applied, err := h.svc.MarkPaid(context.Background(), order.ID, "pi_123")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	again, applied, err := h.svc.MarkPaid(context.Background(), order.ID, "pi_123")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.StatusPaid, again.Status)
	assert.Equal(t, int64(10000), again.TotalAmount)

	require.Len(t, h.paid.calls, 1)
	assert.Equal(t, "cart-9", h.paid.calls[0].CartSessionID)
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, "SELECT COUNT(*) FROM domain_events WHERE event_type = ?", eventdomain.EventOrderPaid))
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.svc.MarkPaid(context.Background(), 777, "pi_1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, _, err = h.svc.MarkPaid(context.Background(), 777, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionID)
}

func TestMarkFailedTransitions(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)
	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:   []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}},
		Contact: contact,
	})
	require.NoError(t, err)

	failed, err := h.svc.MarkFailed(context.Background(), order.ID, "card_declined")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)

	again, err := h.svc.MarkFailed(context.Background(), order.ID, "card_declined")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, again.Status)

	// A later confirmed payment still wins.
	paid, applied, err := h.svc.MarkPaid(context.Background(), order.ID, "pi_retry")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Nil(t, paid.FailureReason)

	_, err = h.svc.MarkFailed(context.Background(), order.ID, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelAndOwnership(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)
	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:   []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}},
		Contact: contact,
	})
	require.NoError(t, err)

	_, err = h.svc.Get(clientCtx("intruder"), order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	staff := identity.WithIdentity(context.Background(), identity.Identity{UserID: "s1", Role: identity.RoleStaffTier1})
	_, err = h.svc.Get(staff, order.ID)
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(clientCtx("u1"), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

func TestReceiptRequiresPaidOrder(t *testing.T) {
	h := newHarness(t)
	a := h.offering(t, "Offering A", 5000)
	order, err := h.svc.CreateOrder(clientCtx("u1"), domain.CreateOrderRequest{
		Items:   []pricingdomain.LineRequest{{OfferingID: a.ID, Quantity: 1}},
		Contact: contact,
	})
	require.NoError(t, err)

	_, err = h.svc.Receipt(clientCtx("u1"), order.ID)
	assert.ErrorIs(t, err, domain.ErrNotPaid)

	_, _, err = h.svc.MarkPaid(context.Background(), order.ID, "pi_9")
	require.NoError(t, err)

	reader, err := h.svc.Receipt(clientCtx("u1"), order.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, domain.CanTransition(domain.StatusPending, domain.StatusPaid))
	assert.True(t, domain.CanTransition(domain.StatusFailed, domain.StatusPaid))
	assert.False(t, domain.CanTransition(domain.StatusPaid, domain.StatusPaid))
	assert.False(t, domain.CanTransition(domain.StatusPaid, domain.StatusFailed))
	assert.False(t, domain.CanTransition(domain.StatusCancelled, domain.StatusFailed))
}
