// Package scheduler runs periodic maintenance jobs against the rent ledger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/auditcontext"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/events"
	obscontext "github.com/smallbiznis/moviestore/internal/observability/context"
	obslogger "github.com/smallbiznis/moviestore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JobOverdueRents = "overdue_rents"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	RentRepo     rentdomain.Repository
	AuditSvc     auditdomain.Service
	Config       Config                   `optional:"true"`
	Clock        clock.Clock              `optional:"true"`
	Events       events.Publisher         `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	rentRepo     rentdomain.Repository
	auditSvc     auditdomain.Service
	events       events.Publisher
	storeMetrics *obsmetrics.StoreMetrics

	mu       sync.Mutex
	notified map[snowflake.ID]struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.RentRepo == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	pub := p.Events
	if pub == nil {
		pub = events.NewNoop()
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        clk,
		rentRepo:     p.RentRepo,
		auditSvc:     p.AuditSvc,
		events:       pub,
		storeMetrics: p.StoreMetrics,
		notified:     map[snowflake.ID]struct{}{},
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	runID := s.genID.Generate().String()
	ctx = auditcontext.WithActor(ctx, auditcontext.Actor{Type: string(auditdomain.ActorTypeSystem), ID: "scheduler"})
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	processed, err := fn(ctx)
	fields := []zap.Field{
		zap.Int("processed", processed),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	}
	if err == nil {
		log.Info("job finished", fields...)
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", append(fields, zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))...)
		return nil
	}

	log.Error("job failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) (int, error)
	}{
		{JobOverdueRents, s.OverdueRentsJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
