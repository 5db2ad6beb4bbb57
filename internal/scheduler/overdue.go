package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/events"
	"github.com/smallbiznis/moviestore/internal/pricing"
	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
	"go.uber.org/zap"
)

// OverdueRentsJob flags unreturned rents whose due date has passed. Each rent
// is announced once while it stays overdue; the gauge tracks the current total.
func (s *Scheduler) OverdueRentsJob(ctx context.Context) (int, error) {
	returned := false
	rents, err := s.rentRepo.List(ctx, s.db, rentdomain.ListFilter{Returned: &returned})
	if err != nil {
		return 0, err
	}

	today := clock.Today(s.clock)
	overdue := make(map[snowflake.ID]struct{})
	var fresh []rentdomain.Rent
	for _, rent := range rents {
		if !clock.DateOf(rent.DueDate).Before(today) {
			continue
		}
		overdue[rent.ID] = struct{}{}
		if !s.wasNotified(rent.ID) {
			fresh = append(fresh, rent)
		}
	}
	s.forgetExcept(overdue)
	s.storeMetrics.SetOverdueRents(len(overdue))

	for _, rent := range fresh {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.announce(ctx, rent, int(today.Sub(clock.DateOf(rent.DueDate)).Hours()/24))
		s.remember(rent.ID)
	}
	return len(fresh), nil
}

func (s *Scheduler) announce(ctx context.Context, rent rentdomain.Rent, lateDays int) {
	rentID := rent.ID.String()
	payload := map[string]any{
		"rent_id":   rentID,
		"movie_id":  rent.MovieID.String(),
		"rented_by": rent.RentedBy.String(),
		"quantity":  rent.Quantity,
		"due_date":  rent.DueDate.Format(rentdomain.DueDateLayout),
		"late_days": lateDays,
		"amount":    pricing.Format(rent.Amount),
	}
	if err := s.events.Publish(ctx, events.RentOverdue, payload); err != nil {
		s.log.Warn("failed to publish overdue rent", zap.String("rent_id", rentID), zap.Error(err))
	}
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "rent.overdue", auditdomain.TargetRent, &rentID, map[string]any{
		"late_days": lateDays,
		"due_date":  rent.DueDate.Format(rentdomain.DueDateLayout),
	}); err != nil {
		s.log.Warn("failed to audit overdue rent", zap.String("rent_id", rentID), zap.Error(err))
	}
}

func (s *Scheduler) wasNotified(id snowflake.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[id]
	return ok
}

func (s *Scheduler) remember(id snowflake.ID) {
	s.mu.Lock()
	s.notified[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) forgetExcept(keep map[snowflake.ID]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.notified {
		if _, ok := keep[id]; !ok {
			delete(s.notified, id)
		}
	}
}
