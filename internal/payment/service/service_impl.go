package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/events"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
	"github.com/smallbiznis/moviestore/internal/notification"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/pricing"
	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         paymentdomain.Repository
	RentRepo     rentdomain.Repository
	MovieRepo    moviedomain.Repository
	UserRepo     authdomain.Repository
	Notifier     notification.Notifier
	AuditSvc     auditdomain.Service
	Pricing      *config.PricingConfigHolder `optional:"true"`
	Events       events.Publisher            `optional:"true"`
	Clock        clock.Clock                 `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics         `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics    `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         paymentdomain.Repository
	rentRepo     rentdomain.Repository
	movieRepo    moviedomain.Repository
	userRepo     authdomain.Repository
	notifier     notification.Notifier
	auditSvc     auditdomain.Service
	pricing      *config.PricingConfigHolder
	events       events.Publisher
	clock        clock.Clock
	obsMetrics   *obsmetrics.Metrics
	storeMetrics *obsmetrics.StoreMetrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	pub := p.Events
	if pub == nil {
		pub = events.NewNoop()
	}
	holder := p.Pricing
	if holder == nil {
		holder = config.NewStaticPricingHolder(config.DefaultPricingPolicy())
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		rentRepo:     p.RentRepo,
		movieRepo:    p.MovieRepo,
		userRepo:     p.UserRepo,
		notifier:     p.Notifier,
		auditSvc:     p.AuditSvc,
		pricing:      holder,
		events:       pub,
		clock:        clk,
		obsMetrics:   p.ObsMetrics,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	payload := event.RawPayload
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := s.clock.Now().UTC()
	reference := event.Reference
	received := paymentdomain.EventRecord{
		ID:               s.genID.Generate(),
		Provider:         event.Provider,
		ProviderEventID:  event.ProviderEventID,
		EventType:        event.Type,
		PaymentReference: &reference,
		Payload:          datatypes.JSON(payload),
		ReceivedAt:       now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Debug("payment event already processed",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
	}

	if err := s.apply(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		chargedAt := event.OccurredAt
		if chargedAt.IsZero() {
			chargedAt = s.clock.Now()
		}
		result, err := s.ConfirmPayment(ctx, event.Provider, event.Reference, chargedAt)
		if err != nil {
			return err
		}
		s.log.Info("payment event applied",
			zap.String("provider", event.Provider),
			zap.String("reference", event.Reference),
			zap.String("outcome", string(result.Outcome)),
		)
		return nil
	case paymentdomain.EventTypePaymentFailed, paymentdomain.EventTypePaymentExpired:
		s.writeAuditLog(ctx, "payment."+strings.TrimPrefix(event.Type, "payment_"), event.Provider, event.Reference, nil)
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) ConfirmPayment(ctx context.Context, provider, reference string, chargedAt time.Time) (*paymentdomain.ConfirmResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	chargedAt = chargedAt.UTC()

	flipped, err := s.rentRepo.MarkPaidByReference(ctx, s.db, reference, chargedAt)
	if err != nil {
		s.storeMetrics.IncTxError("confirm_payment", err)
		return nil, err
	}

	rent, err := s.rentRepo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}

	if rent == nil {
		s.log.Warn("payment reference matched no rent",
			zap.String("provider", provider),
			zap.String("reference", reference),
		)
		s.notifier.UnmatchedPayment(ctx, notification.UnmatchedPayment{
			Provider:   provider,
			Reference:  reference,
			ReceivedAt: s.clock.Now(),
		})
		s.writeAuditLog(ctx, "payment.unmatched", provider, reference, nil)
		return &paymentdomain.ConfirmResult{Outcome: paymentdomain.OutcomeUnmatched}, nil
	}

	if flipped == 0 {
		return &paymentdomain.ConfirmResult{
			Outcome: paymentdomain.OutcomeAlreadyConfirmed,
			RentID:  rent.ID.String(),
		}, nil
	}

	s.storeMetrics.IncRentTransition(string(rentdomain.StatusAwaitingPayment), string(rentdomain.StatusPaid))
	s.afterPaid(ctx, provider, reference, rent)

	return &paymentdomain.ConfirmResult{
		Outcome: paymentdomain.OutcomeConfirmed,
		RentID:  rent.ID.String(),
	}, nil
}

// afterPaid takes the reference that was paid, which may be an earlier
// session than the rent's current one.
func (s *Service) afterPaid(ctx context.Context, provider, reference string, rent *rentdomain.Rent) {
	rentID := rent.ID.String()
	s.writeAuditLog(ctx, "rent.paid", provider, reference, &rentID)

	if err := s.events.Publish(ctx, events.RentPaid, map[string]any{
		"rent_id":  rentID,
		"movie_id": rent.MovieID.String(),
		"amount":   pricing.Format(rent.Amount),
		"paid_at":  rent.PaidAt,
	}); err != nil {
		s.log.Warn("failed to publish rent event", zap.String("rent_id", rentID), zap.Error(err))
	}

	msg := notification.RentPaid{
		RentID:    rentID,
		Quantity:  rent.Quantity,
		DueDate:   rent.DueDate,
		Amount:    pricing.Format(rent.Amount),
		Currency:  s.pricing.Get().Currency,
		Reference: reference,
	}
	if user, err := s.userRepo.FindByID(ctx, s.db, rent.RentedBy); err != nil {
		s.log.Warn("failed to load renter", zap.String("rent_id", rentID), zap.Error(err))
	} else if user != nil {
		msg.Username = user.Username
		msg.Email = user.Email
	}
	if movie, err := s.movieRepo.FindByID(ctx, s.db, rent.MovieID); err != nil {
		s.log.Warn("failed to load rented movie", zap.String("rent_id", rentID), zap.Error(err))
	} else if movie != nil {
		msg.Title = movie.Title
	}
	s.notifier.RentPaid(ctx, msg)
}

func (s *Service) writeAuditLog(ctx context.Context, action, provider, reference string, rentID *string) {
	if s.auditSvc == nil {
		return
	}
	targetType := auditdomain.TargetPayment
	targetID := &reference
	if rentID != nil {
		targetType = auditdomain.TargetRent
		targetID = rentID
	}
	actorID := provider
	err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeProvider), &actorID, action, targetType, targetID, map[string]any{
		"provider":          provider,
		"payment_reference": reference,
	})
	if err != nil {
		s.log.Warn("failed to write payment audit log", zap.String("action", action), zap.Error(err))
	}
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return paymentdomain.ErrInvalidReference
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypePaymentFailed, paymentdomain.EventTypePaymentExpired:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
