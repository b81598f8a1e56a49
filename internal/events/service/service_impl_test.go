package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/smallbiznis/launchpad/internal/events/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:events_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE domain_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT,
		occurred_at DATETIME NOT NULL,
		claimed_at DATETIME,
		dispatched_at DATETIME,
		UNIQUE (event_type, aggregate_type, aggregate_id)
	)`).Error)
	return db
}

type recordingSubscriber struct {
	eventType string
	seen      []domain.Event
	err       error
}

func (s *recordingSubscriber) Name() string { return "recording" }

func (s *recordingSubscriber) Handles(eventType string) bool { return eventType == s.eventType }

func (s *recordingSubscriber) Handle(_ context.Context, event domain.Event) error {
	s.seen = append(s.seen, event)
	return s.err
}

type recordingPublisher struct {
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.published = append(p.published, event.EventType)
	return nil
}

func newTestService(db *gorm.DB, subs []domain.Subscriber, pub domain.Publisher) *Service {
	return newTestServiceWithClock(db, clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)), subs, pub)
}

func newTestServiceWithClock(db *gorm.DB, clk clock.Clock, subs []domain.Subscriber, pub domain.Publisher) *Service {
	return New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        repository.Provide(),
		Subscribers: subs,
		Publisher:   pub,
	})
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int64) {
	t.Helper()
	var got int64
	require.NoError(t, db.Raw(query).Scan(&got).Error)
	assert.Equal(t, want, got)
}

func TestRecordIsExactlyOncePerAggregate(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db, nil, nil)
	ctx := context.Background()

	payload := domain.OrderPaidPayload{OrderID: "1", UserID: "u1", Total: 1500, Currency: "USD"}
	first, err := svc.Record(ctx, db, domain.EventOrderPaid, domain.AggregateOrder, "1", payload)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Record(ctx, db, domain.EventOrderPaid, domain.AggregateOrder, "1", payload)
	require.NoError(t, err)
	assert.Nil(t, second)

	assertCount(t, db, "SELECT COUNT(*) FROM domain_events", 1)
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db, nil, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Record(context.Background(), tx, domain.EventOrderPaid, domain.AggregateOrder, "7", map[string]any{}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assertCount(t, db, "SELECT COUNT(*) FROM domain_events", 0)
}

func TestRecordRejectsMissingAggregate(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db, nil, nil)
	_, err := svc.Record(context.Background(), db, domain.EventOrderPaid, domain.AggregateOrder, " ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestDispatchDeliversAndMarksDispatched(t *testing.T) {
	db := setupTestDB(t)
	sub := &recordingSubscriber{eventType: domain.EventOrderPaid, err: errors.New("mail down")}
	other := &recordingSubscriber{eventType: domain.EventLaunchRequestPaid}
	pub := &recordingPublisher{}
	svc := newTestService(db, []domain.Subscriber{sub, other}, pub)
	ctx := context.Background()

	event, err := svc.Record(ctx, db, domain.EventOrderPaid, domain.AggregateOrder, "1", domain.OrderPaidPayload{OrderID: "1"})
	require.NoError(t, err)

	svc.Dispatch(ctx, event, nil)

	assert.Len(t, sub.seen, 1)
	assert.Empty(t, other.seen)
	assert.Equal(t, []string{domain.EventOrderPaid}, pub.published)
	assertCount(t, db, "SELECT COUNT(*) FROM domain_events WHERE dispatched_at IS NULL", 0)
}

func TestDispatchPendingReplaysUndispatched(t *testing.T) {
	db := setupTestDB(t)
	sub := &recordingSubscriber{eventType: domain.EventLaunchProgressStarted}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestServiceWithClock(db, clk, []domain.Subscriber{sub}, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, db, domain.EventLaunchProgressStarted, domain.AggregateLaunchProgress, "3", domain.LaunchProgressStartedPayload{LaunchRequestID: "3"})
	require.NoError(t, err)

	// Too fresh: the recording request still owns delivery.
	require.NoError(t, svc.DispatchPending(ctx))
	assert.Empty(t, sub.seen)

	clk.Advance(time.Minute)
	require.NoError(t, svc.DispatchPending(ctx))
	require.NoError(t, svc.DispatchPending(ctx))
	assert.Len(t, sub.seen, 1)
}

func TestDispatchDeliversEachEventOnce(t *testing.T) {
	db := setupTestDB(t)
	sub := &recordingSubscriber{eventType: domain.EventOrderPaid}
	pub := &recordingPublisher{}
	svc := newTestService(db, []domain.Subscriber{sub}, pub)
	ctx := context.Background()

	event, err := svc.Record(ctx, db, domain.EventOrderPaid, domain.AggregateOrder, "9", domain.OrderPaidPayload{OrderID: "9"})
	require.NoError(t, err)

	svc.Dispatch(ctx, event)
	svc.Dispatch(ctx, event)

	assert.Len(t, sub.seen, 1)
	assert.Len(t, pub.published, 1)
}

func TestDispatchPendingSkipsClaimedEventUntilLeaseExpires(t *testing.T) {
	db := setupTestDB(t)
	sub := &recordingSubscriber{eventType: domain.EventOrderPaid}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestServiceWithClock(db, clk, []domain.Subscriber{sub}, nil)
	ctx := context.Background()

	event, err := svc.Record(ctx, db, domain.EventOrderPaid, domain.AggregateOrder, "4", domain.OrderPaidPayload{OrderID: "4"})
	require.NoError(t, err)
	// A slow in-request dispatch holds the claim.
	require.NoError(t, db.Exec(`UPDATE domain_events SET claimed_at = ? WHERE id = ?`, clk.Now(), event.ID).Error)

	clk.Advance(time.Minute)
	require.NoError(t, svc.DispatchPending(ctx))
	assert.Empty(t, sub.seen)

	clk.Advance(10 * time.Minute)
	require.NoError(t, svc.DispatchPending(ctx))
	require.NoError(t, svc.DispatchPending(ctx))
	assert.Len(t, sub.seen, 1)
	assertCount(t, db, "SELECT COUNT(*) FROM domain_events WHERE dispatched_at IS NULL", 0)
}
