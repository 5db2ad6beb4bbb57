package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	auditrepo "github.com/smallbiznis/moviestore/internal/audit/repository"
	auditservice "github.com/smallbiznis/moviestore/internal/audit/service"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/events"
	rentrepo "github.com/smallbiznis/moviestore/internal/rent/repository"
	"github.com/smallbiznis/moviestore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOverdueRentsAnnouncedOnce(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: clk})
	rec := events.NewRecorder()

	sched, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		RentRepo: rentrepo.Provide(),
		AuditSvc: audit,
		Clock:    clk,
		Events:   rec,
	})
	require.NoError(t, err)

	userID := testutil.SeedUser(t, db, node, testutil.UserSeed{Username: "alice"})
	movieID := testutil.SeedMovie(t, db, node, testutil.MovieSeed{Title: "Heat", Stock: 5})
	late := testutil.SeedRent(t, db, node, testutil.RentSeed{RentedBy: userID, MovieID: movieID, DueDate: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)})
	testutil.SeedRent(t, db, node, testutil.RentSeed{RentedBy: userID, MovieID: movieID, DueDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)})
	done := testutil.SeedRent(t, db, node, testutil.RentSeed{RentedBy: userID, MovieID: movieID, DueDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, db.Exec(`UPDATE rents SET returned = ?, status = 'returned' WHERE id = ?`, true, done).Error)

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, []string{events.RentOverdue}, rec.Types())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Events()[0].Payload, &payload))
	assert.Equal(t, late.String(), payload["rent_id"])
	assert.Equal(t, float64(2), payload["late_days"])
	assert.Equal(t, "08-05-2024", payload["due_date"])

	logs, err := audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: "rent.overdue"})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), logs.AuditLogs[0].ActorType)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Len(t, rec.Types(), 1)

	clk.Advance(24 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Len(t, rec.Types(), 2)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestJobFilter(t *testing.T) {
	s := &Scheduler{cfg: Config{EnabledJobs: []string{"Overdue_Rents"}}}
	assert.True(t, s.isJobEnabled(JobOverdueRents))

	s.cfg.EnabledJobs = []string{"something_else"}
	assert.False(t, s.isJobEnabled(JobOverdueRents))
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}
