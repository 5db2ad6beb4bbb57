package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/audit/repository"
	"github.com/smallbiznis/moviestore/internal/auditcontext"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func strPtr(v string) *string { return &v }

func TestAuditLogUsesContextActorAndMasks(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := auditcontext.WithActor(context.Background(), auditcontext.Actor{Type: "user", ID: "7", Username: "alice"})
	ctx = auditcontext.WithRequestID(ctx, "req-1")
	ctx = auditcontext.WithIPAddress(ctx, "10.0.0.1")

	err := svc.AuditLog(ctx, "", nil, "rent.create", auditdomain.TargetRent, strPtr(" 99 "), map[string]any{
		"session_id": "cs_test_a1b2c3d4e5",
		"quantity":   1,
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetID: "99"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	assert.Equal(t, "cs_test_****d4e5", entry.Metadata["session_id"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "alice", entry.Metadata["username"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Nil(t, entry.UserAgent)
}

func TestAuditLogExplicitActorWins(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := auditcontext.WithActor(context.Background(), auditcontext.Actor{Type: "user", ID: "7"})
	require.NoError(t, svc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "rent.overdue", auditdomain.TargetRent, nil, nil))
	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "movie.create", auditdomain.TargetMovie, nil, nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{ActorType: string(auditdomain.ActorTypeSystem)})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), "", nil, "  ", auditdomain.TargetMovie, nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	for _, action := range []string{"movie.create", "movie.update", "movie.delete"} {
		require.NoError(t, svc.AuditLog(context.Background(), "", nil, action, auditdomain.TargetMovie, strPtr("1"), nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.Equal(t, "movie.delete", first.AuditLogs[0].Action)

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	require.True(t, page.PageInfo.HasMore)

	req.PageToken = page.PageInfo.NextPageToken
	rest, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.Equal(t, "movie.create", rest.AuditLogs[0].Action)
	assert.False(t, rest.PageInfo.HasMore)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)

	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "%%%"
	_, err := svc.List(context.Background(), req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
