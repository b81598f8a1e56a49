package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	eventrepo "github.com/smallbiznis/launchpad/internal/events/repository"
	eventsvc "github.com/smallbiznis/launchpad/internal/events/service"
	fulfillmentdomain "github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	fulfillmentrepo "github.com/smallbiznis/launchpad/internal/fulfillment/repository"
	fulfillmentsvc "github.com/smallbiznis/launchpad/internal/fulfillment/service"
	"github.com/smallbiznis/launchpad/internal/identity"
	"github.com/smallbiznis/launchpad/internal/launch/domain"
	"github.com/smallbiznis/launchpad/internal/launch/repository"
	"github.com/smallbiznis/launchpad/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type eventLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *eventLog) Name() string        { return "event_log" }
func (l *eventLog) Handles(string) bool { return true }
func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[eventType]
}
func (l *eventLog) Handle(_ context.Context, event eventdomain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[event.EventType]++
	return nil
}

type harness struct {
	db          *gorm.DB
	svc         domain.Service
	fulfillment fulfillmentdomain.Service
	events      *eventLog
	clock       *clock.FakeClock
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	db := testutil.OpenDB(t,
		testutil.LaunchRequestsTable,
		testutil.LaunchRequestsOpenIndex,
		testutil.LaunchProgressTable,
		testutil.LaunchDeliverablesTable,
		testutil.DomainEventsTable,
	)
	node := testutil.SnowflakeNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	events := &eventLog{counts: map[string]int{}}
	bus := eventsvc.New(eventsvc.Params{
		DB:          db,
		Log:         log,
		Clock:       clk,
		Repo:        eventrepo.Provide(),
		Subscribers: []eventdomain.Subscriber{events},
	})
	fulfillment := fulfillmentsvc.New(fulfillmentsvc.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       fulfillmentrepo.Provide(),
		Recorder:   bus,
		Dispatcher: bus,
	})
	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         cfg,
		Repo:        repository.Provide(),
		Recorder:    bus,
		Dispatcher:  bus,
		Fulfillment: fulfillment,
	})
	return &harness{db: db, svc: svc, fulfillment: fulfillment, events: events, clock: clk}
}

func devConfig() config.Config {
	return config.Config{Environment: "development", PaymentSimulationEnabled: true}
}

func clientCtx(userID string) context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{UserID: userID, Role: identity.RoleClient})
}

func staffCtx(role identity.Role) context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{UserID: "staff-" + string(role), Role: role})
}

var completeSteps = map[int]string{
	domain.StepPersonal:     `{"full_name":"Ana Torres","national_id":"1712345678","email":"ana@example.com","phone":"+593991112233"}`,
	domain.StepShareholders: `{"shareholders":[{"name":"Ana Torres","percentage":70},{"name":"Luis Vega","percentage":30}]}`,
	domain.StepCompany:      `{"company_name":"Andes Foods","company_type":"sas","business_activity":"Food export","city":"Quito","capital_amount":100000}`,
	domain.StepBranding:     `{"brand_name":"Andes","brand_colors":["#004466"]}`,
	domain.StepWebsite:      `{"description":"Export catalogue","pages":["home","contact"]}`,
	domain.StepBilling:      `{"name":"Andes Foods SAS","tax_id":"1790012345001","email":"billing@andes.ec"}`,
}

func (h *harness) start(t *testing.T, ctx context.Context) *domain.LaunchRequest {
	t.Helper()
	req, created, err := h.svc.Start(ctx)
	require.NoError(t, err)
	require.True(t, created)
	return req
}

func (h *harness) fillForm(t *testing.T, ctx context.Context, id int64) {
	t.Helper()
	for step := 1; step <= domain.StepCount; step++ {
		_, err := h.svc.SaveStep(ctx, id, step, []byte(completeSteps[step]))
		require.NoError(t, err, "save step %d", step)
		_, err = h.svc.AdvanceStep(ctx, id, step)
		require.NoError(t, err, "advance step %d", step)
	}
}

func (h *harness) progressCount(t *testing.T, id int64) int64 {
	return testutil.CountRows(t, h.db, `SELECT COUNT(*) FROM launch_progress WHERE launch_request_id = ?`, id)
}

func TestStartReturnsOpenRequest(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")

	req := h.start(t, ctx)
	assert.Equal(t, 1, req.CurrentStep)
	assert.True(t, req.IsStarted)
	assert.Equal(t, domain.PaymentPending, req.PaymentStatus)
	assert.Equal(t, domain.AdminNew, req.AdminStatus)

	again, created, err := h.svc.Start(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, req.ID, again.ID)

	current, err := h.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, req.ID, current.ID)
}

func TestSaveStepLastWriteWinsWithoutMovingPointer(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	for step := 1; step <= 2; step++ {
		_, err := h.svc.SaveStep(ctx, req.ID, step, []byte(completeSteps[step]))
		require.NoError(t, err)
		_, err = h.svc.AdvanceStep(ctx, req.ID, step)
		require.NoError(t, err)
	}

	_, err := h.svc.SaveStep(ctx, req.ID, domain.StepCompany, []byte(`{"company_name":"First Name","city":"Quito"}`))
	require.NoError(t, err)
	got, err := h.svc.SaveStep(ctx, req.ID, domain.StepCompany, []byte(`{"company_name":"Second Name","city":"Cuenca"}`))
	require.NoError(t, err)

	assert.Equal(t, 3, got.CurrentStep)
	require.NotNil(t, got.CompanyName)
	assert.Equal(t, "Second Name", *got.CompanyName)
	assert.Equal(t, "Cuenca", *got.City)
}

func TestSaveStepValidationFailureKeepsState(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	_, err := h.svc.SaveStep(ctx, req.ID, domain.StepPersonal, []byte(`{"email":"broken"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = h.svc.SaveStep(ctx, req.ID, domain.StepCompany, []byte(`{"company_name":"Early"}`))
	assert.ErrorIs(t, err, domain.ErrStepOutOfOrder)

	got, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Nil(t, got.Email)
}

func TestAdvanceStepRequiresFields(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	_, err := h.svc.SaveStep(ctx, req.ID, domain.StepPersonal, []byte(`{"full_name":"Ana Torres"}`))
	require.NoError(t, err)

	_, err = h.svc.AdvanceStep(ctx, req.ID, domain.StepPersonal)
	require.ErrorIs(t, err, domain.ErrIncompleteStep)
	var incomplete *domain.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Missing, "national_id")

	got, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStep)

	_, err = h.svc.AdvanceStep(ctx, req.ID, domain.StepShareholders)
	assert.ErrorIs(t, err, domain.ErrStepOutOfOrder)
}

func TestOnlyOwnerEditsForm(t *testing.T) {
	h := newHarness(t, devConfig())
	req := h.start(t, clientCtx("owner"))

	_, err := h.svc.SaveStep(clientCtx("intruder"), req.ID, domain.StepPersonal, []byte(`{"full_name":"X"}`))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.SaveStep(staffCtx(identity.RoleSuperadmin), req.ID, domain.StepPersonal, []byte(`{"full_name":"X"}`))
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = h.svc.Get(staffCtx(identity.RoleStaffTier1), req.ID)
	assert.NoError(t, err)
}

func TestSubmitFormListsMissingSteps(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	_, err := h.svc.SubmitForm(ctx, req.ID)
	var incomplete *domain.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.ErrorIs(t, err, domain.ErrIncompleteForm)
	assert.Len(t, incomplete.Steps, domain.StepCount)
}

func TestPaymentWithoutCompleteFormDoesNotStartFulfillment(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	got, applied, err := h.svc.ConfirmPayment(context.Background(), req.ID, domain.PaymentConfirmation{
		TransactionID: "pi_1", Amount: 49900, Currency: "usd",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PaymentCompleted, got.PaymentStatus)
	assert.False(t, got.IsFormComplete)
	assert.Nil(t, got.FulfillmentStartedAt)
	assert.Equal(t, int64(0), h.progressCount(t, req.ID))
	assert.Equal(t, 1, h.events.count(eventdomain.EventLaunchRequestPaid))

	// Form completion afterwards opens fulfillment exactly once.
	h.fillForm(t, ctx, req.ID)
	got, err = h.svc.SubmitForm(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFormComplete)
	assert.NotNil(t, got.FulfillmentStartedAt)
	assert.Equal(t, int64(1), h.progressCount(t, req.ID))
	assert.Equal(t, 1, h.events.count(eventdomain.EventLaunchProgressStarted))
}

func TestDuplicateConfirmationIsNoop(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)
	h.fillForm(t, ctx, req.ID)
	_, err := h.svc.SubmitForm(ctx, req.ID)
	require.NoError(t, err)

	conf := domain.PaymentConfirmation{TransactionID: "pi_dup", Amount: 49900, Currency: "USD"}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.svc.ConfirmPayment(context.Background(), req.ID, conf)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, applied, err := h.svc.ConfirmPayment(context.Background(), req.ID, conf)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, int64(1), h.progressCount(t, req.ID))
	assert.Equal(t, 1, h.events.count(eventdomain.EventLaunchRequestPaid))
	assert.Equal(t, 1, h.events.count(eventdomain.EventLaunchProgressStarted))
}

func TestSubmittedFormIsLockedUntilReopened(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)
	h.fillForm(t, ctx, req.ID)
	_, err := h.svc.SubmitForm(ctx, req.ID)
	require.NoError(t, err)

	_, err = h.svc.SaveStep(ctx, req.ID, domain.StepBranding, []byte(`{"brand_name":"Late edit"}`))
	assert.ErrorIs(t, err, domain.ErrFormLocked)

	_, err = h.svc.ReopenForm(staffCtx(identity.RoleStaffTier1), req.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	reopened, err := h.svc.ReopenForm(staffCtx(identity.RoleStaffTier2), req.ID)
	require.NoError(t, err)
	assert.False(t, reopened.IsFormComplete)

	got, err := h.svc.SaveStep(ctx, req.ID, domain.StepBranding, []byte(`{"brand_name":"Late edit"}`))
	require.NoError(t, err)
	assert.Equal(t, "Late edit", *got.BrandName)
}

func TestMarkPaymentFailedAfterCompletionIsRejected(t *testing.T) {
	h := newHarness(t, devConfig())
	req := h.start(t, clientCtx("u1"))

	failed, err := h.svc.MarkPaymentFailed(context.Background(), req.ID, "card_declined")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, failed.PaymentStatus)

	// A later confirmed payment still wins.
	paid, applied, err := h.svc.ConfirmPayment(context.Background(), req.ID, domain.PaymentConfirmation{TransactionID: "pi_2", Amount: 100, Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PaymentCompleted, paid.PaymentStatus)
	assert.Nil(t, paid.PaymentFailureReason)

	_, err = h.svc.MarkPaymentFailed(context.Background(), req.ID, "late_failure")
	assert.ErrorIs(t, err, domain.ErrPaymentSettled)
}

func TestSimulatePaymentIsGated(t *testing.T) {
	prod := newHarness(t, config.Config{Environment: "production", PaymentSimulationEnabled: true})
	req := prod.start(t, clientCtx("u1"))
	_, err := prod.svc.SimulatePayment(clientCtx("u1"), req.ID)
	assert.ErrorIs(t, err, domain.ErrSimulationDisabled)

	dev := newHarness(t, devConfig())
	req = dev.start(t, clientCtx("u1"))
	got, err := dev.svc.SimulatePayment(clientCtx("u1"), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, got.PaymentStatus)
	require.NotNil(t, got.ProviderTransactionID)
	assert.Contains(t, *got.ProviderTransactionID, "sim_")
	assert.Equal(t, 1, dev.events.count(eventdomain.EventLaunchRequestPaid))
}

func TestWaivePaymentOpensFulfillment(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)
	h.fillForm(t, ctx, req.ID)
	_, err := h.svc.SubmitForm(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.progressCount(t, req.ID))

	_, err = h.svc.WaivePayment(staffCtx(identity.RoleStaffTier1), req.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	got, err := h.svc.WaivePayment(staffCtx(identity.RoleStaffTier2), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentNotRequired, got.PaymentStatus)
	assert.Equal(t, int64(1), h.progressCount(t, req.ID))
}

func TestAdminStatusIsUnconstrained(t *testing.T) {
	h := newHarness(t, devConfig())
	req := h.start(t, clientCtx("u1"))
	staff := staffCtx(identity.RoleStaffTier1)

	got, err := h.svc.SetAdminStatus(staff, req.ID, domain.AdminCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminCompleted, got.AdminStatus)

	got, err = h.svc.SetAdminStatus(staff, req.ID, domain.AdminReviewing)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminReviewing, got.AdminStatus)

	_, err = h.svc.SetAdminStatus(staff, req.ID, domain.AdminStatus("archived"))
	assert.ErrorIs(t, err, domain.ErrInvalidAdminStatus)

	_, err = h.svc.SetAdminStatus(clientCtx("u1"), req.ID, domain.AdminCompleted)
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestAdminStatusDoesNotClobberFormSave(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	req := h.start(t, ctx)

	_, err := h.svc.SaveStep(ctx, req.ID, domain.StepPersonal, []byte(`{"full_name":"Ana Torres"}`))
	require.NoError(t, err)
	_, err = h.svc.SetAdminStatus(staffCtx(identity.RoleStaffTier1), req.ID, domain.AdminReviewing)
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminReviewing, got.AdminStatus)
	require.NotNil(t, got.FullName)
	assert.Equal(t, "Ana Torres", *got.FullName)
}

func TestBoardGroupsByAdminStatus(t *testing.T) {
	h := newHarness(t, devConfig())
	a := h.start(t, clientCtx("a"))
	b := h.start(t, clientCtx("b"))
	h.start(t, clientCtx("c"))

	staff := staffCtx(identity.RoleStaffTier1)
	_, err := h.svc.SetAdminStatus(staff, a.ID, domain.AdminInProgress)
	require.NoError(t, err)
	_, err = h.svc.SetAdminStatus(staff, b.ID, domain.AdminCompleted)
	require.NoError(t, err)

	board, err := h.svc.Board(staff)
	require.NoError(t, err)
	require.Len(t, board, 4)
	assert.Equal(t, domain.AdminNew, board[0].Status)
	assert.Len(t, board[0].Requests, 1)
	assert.Len(t, board[1].Requests, 0)
	assert.Len(t, board[2].Requests, 1)
	assert.Equal(t, a.ID, board[2].Requests[0].ID)
	assert.Len(t, board[3].Requests, 1)

	_, err = h.svc.Board(clientCtx("a"))
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestCompletedRequestAllowsNewStart(t *testing.T) {
	h := newHarness(t, devConfig())
	ctx := clientCtx("u1")
	first := h.start(t, ctx)

	_, err := h.svc.SetAdminStatus(staffCtx(identity.RoleStaffTier1), first.ID, domain.AdminCompleted)
	require.NoError(t, err)

	second, created, err := h.svc.Start(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	// Reopening the first card would leave the user with two open requests.
	_, err = h.svc.SetAdminStatus(staffCtx(identity.RoleStaffTier1), first.ID, domain.AdminNew)
	assert.ErrorIs(t, err, domain.ErrOpenRequestExists)
}
