package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/audit/repository"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/identity"
	obscontext "github.com/smallbiznis/launchpad/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`).Error)
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) auditdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
}

func TestRecordAttributesStaffActorAndMasksPII(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	ctx := identity.WithIdentity(context.Background(), identity.Identity{UserID: "staff-7", Role: identity.RoleStaffTier2})
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithClientInfo(ctx, "10.0.0.1", "curl/8")

	err := svc.Record(ctx, "launch_request.reopen", "launch_request", "42", map[string]any{
		"email":  "client@example.com",
		"reason": "typo in capital",
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorTypeStaff, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "staff-7", *entry.ActorID)
	assert.Equal(t, "****.com", entry.Metadata["email"])
	assert.Equal(t, "typo in capital", entry.Metadata["reason"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestRecordWithoutIdentityIsSystem(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now().UTC()))

	require.NoError(t, svc.Record(context.Background(), "fulfillment.started", "launch_progress", "9", nil))
	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorTypeSystem, resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now().UTC()))
	assert.ErrorIs(t, svc.Record(context.Background(), " ", "x", "1", nil), auditdomain.ErrInvalidAction)
}

func TestListRejectsInvertedRange(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now().UTC()))
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListPagesWithToken(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(context.Background(), "order.paid", "order", fmt.Sprint(i), nil))
	}

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	resp, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)

	req.PageToken = "not-a-token"
	_, err = svc.List(context.Background(), req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
