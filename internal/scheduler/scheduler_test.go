package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	eventdomain.Dispatcher
	calls int
	err   error
}

func (d *fakeDispatcher) DispatchPending(context.Context) error {
	d.calls++
	return d.err
}

type fakePayments struct {
	paymentdomain.Service
	batches []int
	befores []time.Time
}

func (p *fakePayments) ExpireAbandoned(_ context.Context, before time.Time, limit int) (int, error) {
	p.befores = append(p.befores, before)
	if len(p.batches) == 0 {
		return 0, nil
	}
	n := p.batches[0]
	p.batches = p.batches[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

func newTestScheduler(t *testing.T, cfg Config, dispatcher *fakeDispatcher, payments *fakePayments) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Dispatcher: dispatcher,
		Payments:   payments,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s, clk
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, _ := newTestScheduler(t, Config{}, &fakeDispatcher{}, &fakePayments{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestRunJobWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	s, _ := newTestScheduler(t, Config{}, &fakeDispatcher{}, &fakePayments{})

	err := s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context, *jobRun) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestRunOnceDrainsAbandonedCheckouts(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	payments := &fakePayments{batches: []int{2, 2, 1}}
	s, clk := newTestScheduler(t, Config{BatchSize: 2, AbandonAfter: 6 * time.Hour}, dispatcher, payments)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, dispatcher.calls)
	require.Len(t, payments.befores, 3)
	assert.True(t, payments.befores[0].Equal(clk.Now().Add(-6*time.Hour)))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	payments := &fakePayments{}
	s, _ := newTestScheduler(t, Config{EnabledJobs: []string{"EXPIRE_CHECKOUTS"}}, dispatcher, payments)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, dispatcher.calls)
	assert.Len(t, payments.befores, 1)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("db down")}
	payments := &fakePayments{}
	s, _ := newTestScheduler(t, Config{}, dispatcher, payments)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobDispatchEvents)
	assert.Len(t, payments.befores, 1)
}
