package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/events"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/pricing"
	"github.com/smallbiznis/moviestore/internal/rent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultGatewayTimeout = 10 * time.Second

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Config       config.Config
	Repo         domain.Repository
	MovieRepo    moviedomain.Repository
	Audit        auditdomain.Service
	Pricing      *config.PricingConfigHolder
	Gateway      paymentdomain.Gateway    `optional:"true"`
	Events       events.Publisher         `optional:"true"`
	Clock        clock.Clock              `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics      `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	movieRepo      moviedomain.Repository
	audit          auditdomain.Service
	pricing        *config.PricingConfigHolder
	gateway        paymentdomain.Gateway
	gatewayTimeout time.Duration
	events         events.Publisher
	clock          clock.Clock
	obsMetrics     *obsmetrics.Metrics
	storeMetrics   *obsmetrics.StoreMetrics
}

func New(p Params) domain.Service {
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
	timeout := p.Config.Payment.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("rent.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		movieRepo:      p.MovieRepo,
		audit:          p.Audit,
		pricing:        holder,
		gateway:        p.Gateway,
		gatewayTimeout: timeout,
		events:         pub,
		clock:          clk,
		obsMetrics:     p.ObsMetrics,
		storeMetrics:   p.StoreMetrics,
	}
}

func (s *Service) Create(ctx context.Context, caller authdomain.Principal, req domain.CreateRequest) (*domain.CreateResponse, error) {
	if caller.UserID == 0 {
		return nil, domain.ErrForbidden
	}
	movieID, err := snowflake.ParseString(strings.TrimSpace(req.MovieID))
	if err != nil || movieID <= 0 {
		return nil, domain.ErrInvalidMovie
	}
	if req.DueDate.IsZero() {
		return nil, domain.ErrInvalidDueDate
	}

	movie, err := s.loadMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if !movie.Availability {
		return nil, domain.ErrMovieUnavailable
	}

	policy := s.policy()
	dueDate := clock.DateOf(req.DueDate)
	amount, rej := pricing.ValidateAndPriceRent(snapshot(movie), req.Quantity, dueDate, clock.Today(s.clock), policy)
	if rej != nil {
		return nil, pricing.Reject(rej)
	}
	if s.gateway == nil {
		return nil, paymentdomain.NewGatewayError("none", domain.ErrGatewayNotEnabled)
	}

	now := s.clock.Now().UTC()
	rent := &domain.Rent{
		ID:          s.genID.Generate(),
		RentedBy:    caller.UserID,
		MovieID:     movie.ID,
		Quantity:    req.Quantity,
		DueDate:     dueDate,
		Amount:      amount.Round(2),
		Status:      domain.StatusCreated,
		ExtraCharge: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved, err := s.movieRepo.ReserveStock(ctx, tx, movie.ID, req.Quantity)
		if err != nil {
			return err
		}
		if !reserved {
			s.storeMetrics.IncStockConflict(obsmetrics.StockResourceRent)
			return pricing.Reject(&pricing.Rejection{
				Field:   pricing.FieldQuantity,
				Code:    pricing.QuantityUnavailable,
				Message: pricing.MsgQuantityUnavailable,
			})
		}
		return s.repo.Insert(ctx, tx, rent)
	})
	if err != nil {
		var rejections pricing.Rejections
		if !errors.As(err, &rejections) {
			s.storeMetrics.IncTxError("create_rent", err)
		}
		return nil, err
	}
	s.storeMetrics.IncRentTransition("none", string(domain.StatusCreated))

	session, err := s.checkout(ctx, rent, movie, caller.Email)
	if err != nil {
		s.compensate(ctx, rent)
		return nil, paymentdomain.NewGatewayError(s.gateway.Provider(), err)
	}

	provider := s.gateway.Provider()
	var attached bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attached, err = s.repo.AttachCheckout(ctx, tx, rent.ID, provider, session.Reference, session.URL, s.clock.Now().UTC())
		return err
	})
	if err != nil {
		s.storeMetrics.IncTxError("attach_checkout", err)
		s.compensate(ctx, rent)
		return nil, err
	}
	if attached {
		s.storeMetrics.IncRentTransition(string(domain.StatusCreated), string(domain.StatusAwaitingPayment))
	}

	stored, err := s.repo.FindByID(ctx, s.db, rent.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrRentNotFound
	}

	s.writeAudit(ctx, "rent.create", stored, map[string]any{
		"title":             movie.Title,
		"quantity":          stored.Quantity,
		"amount":            pricing.Format(stored.Amount),
		"due_date":          stored.DueDate.Format(domain.DueDateLayout),
		"payment_reference": session.Reference,
	})
	s.publish(ctx, events.RentCreated, stored)
	s.obsMetrics.RecordRentCreated(ctx, provider)

	return &domain.CreateResponse{
		Message:    domain.MessageRentCreated,
		Data:       toResponse(stored),
		SessionID:  session.Reference,
		SessionURL: session.URL,
	}, nil
}

func (s *Service) List(ctx context.Context, caller authdomain.Principal, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{
		Status:   domain.Status(strings.TrimSpace(req.Status)),
		Returned: req.Returned,
	}
	if raw := strings.TrimSpace(req.MovieID); raw != "" {
		movieID, err := snowflake.ParseString(raw)
		if err != nil || movieID <= 0 {
			return nil, domain.ErrInvalidMovie
		}
		filter.MovieID = &movieID
	}
	if !caller.IsPrivileged() {
		owner := caller.UserID
		filter.RentedBy = &owner
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, caller authdomain.Principal, id string) (*domain.Response, error) {
	rent, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(rent)
	return &resp, nil
}

// Update moves the due date of an unreturned rent and reprices it from its
// creation date. Rents still awaiting payment get a fresh checkout session
// for the new amount.
func (s *Service) Update(ctx context.Context, caller authdomain.Principal, req domain.UpdateRequest) (*domain.Response, error) {
	rent, err := s.loadVisible(ctx, caller, req.ID)
	if err != nil {
		return nil, err
	}
	if req.DueDate == nil {
		resp := toResponse(rent)
		return &resp, nil
	}
	if rent.Returned {
		return nil, domain.ErrAlreadyReturned
	}
	if rent.Paid {
		return nil, paidRentRejection()
	}

	movie, err := s.loadMovie(ctx, rent.MovieID)
	if err != nil {
		return nil, err
	}

	dueDate := clock.DateOf(*req.DueDate)
	if pricing.DaysBetween(clock.Today(s.clock), dueDate) < 1 {
		return nil, pricing.Reject(&pricing.Rejection{
			Field:   pricing.FieldDueDate,
			Code:    pricing.DueDateInvalid,
			Message: pricing.MsgDueDateInvalid,
		})
	}
	// The copies are already reserved, so stock is checked as if they were back.
	snap := snapshot(movie)
	snap.Stock += rent.Quantity
	amount, rej := pricing.ValidateAndPriceRent(snap, rent.Quantity, dueDate, clock.DateOf(rent.CreatedAt), s.policy())
	if rej != nil {
		return nil, pricing.Reject(rej)
	}
	amount = amount.Round(2)

	var session *paymentdomain.CheckoutSession
	if !amount.Equal(rent.Amount) && s.gateway != nil {
		updated := *rent
		updated.Amount = amount
		updated.DueDate = dueDate
		session, err = s.checkout(ctx, &updated, movie, caller.Email)
		if err != nil {
			return nil, paymentdomain.NewGatewayError(s.gateway.Provider(), err)
		}
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateDueDate(ctx, tx, rent.ID, dueDate, amount, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.settledError(ctx, tx, rent.ID)
		}
		if session == nil {
			return nil
		}
		// Earlier sessions stay payable: confirmation matches any reference
		// the rent was issued.
		attached, err := s.repo.AttachCheckout(ctx, tx, rent.ID, s.gateway.Provider(), session.Reference, session.URL, now)
		if err != nil {
			return err
		}
		if !attached {
			return paidRentRejection()
		}
		return nil
	})
	if err != nil {
		var rejections pricing.Rejections
		if !errors.As(err, &rejections) && !errors.Is(err, domain.ErrAlreadyReturned) {
			s.storeMetrics.IncTxError("update_rent", err)
		}
		return nil, err
	}

	stored, err := s.repo.FindByID(ctx, s.db, rent.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrRentNotFound
	}
	s.writeAudit(ctx, "rent.update", stored, map[string]any{
		"due_date": dueDate.Format(domain.DueDateLayout),
		"amount":   pricing.Format(amount),
	})
	resp := toResponse(stored)
	return &resp, nil
}

func (s *Service) Return(ctx context.Context, caller authdomain.Principal, id string) (*domain.ReturnResponse, error) {
	rentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rent, err := s.repo.FindByID(ctx, s.db, rentID)
	if err != nil {
		return nil, err
	}
	if rent == nil {
		return nil, domain.ErrRentNotFound
	}
	if !caller.IsPrivileged() && rent.RentedBy != caller.UserID {
		return nil, domain.ErrForbidden
	}
	if rent.Returned {
		return nil, domain.ErrAlreadyReturned
	}

	movie, err := s.loadMovie(ctx, rent.MovieID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	extra, lateDays := pricing.ExtraCharge(snapshot(movie), rent.Quantity, rent.DueDate, clock.DateOf(now), s.policy())

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkReturned(ctx, tx, rent.ID, now, extra)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyReturned
		}
		return s.movieRepo.ReleaseStock(ctx, tx, rent.MovieID, rent.Quantity)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyReturned) {
			s.storeMetrics.IncTxError("return_rent", err)
		}
		return nil, err
	}
	s.storeMetrics.IncRentTransition(string(rent.Status), string(domain.StatusReturned))

	outcome := domain.OutcomePunctualReturn
	message := domain.MessagePunctualReturn
	if lateDays > 0 {
		outcome = domain.OutcomeExtraChargeGenerated
		message = domain.MessageExtraChargeGenerated
	}

	stored, err := s.repo.FindByID(ctx, s.db, rent.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrRentNotFound
	}

	s.writeAudit(ctx, "rent.return", stored, map[string]any{
		"title":        movie.Title,
		"outcome":      outcome,
		"late_days":    lateDays,
		"extra_charge": pricing.Format(extra),
	})
	s.publish(ctx, events.RentReturned, stored)
	s.obsMetrics.RecordRentReturned(ctx, outcome)

	return &domain.ReturnResponse{
		Outcome:  outcome,
		Message:  message,
		LateDays: lateDays,
		Data:     toResponse(stored),
	}, nil
}

func (s *Service) checkout(ctx context.Context, rent *domain.Rent, movie *moviedomain.Movie, email string) (*paymentdomain.CheckoutSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	session, err := s.gateway.CreateCheckoutSession(callCtx, paymentdomain.CheckoutRequest{
		ExternalID:     rent.ID.String(),
		Description:    fmt.Sprintf("Rent of %d x %s until %s", rent.Quantity, movie.Title, rent.DueDate.Format(domain.DueDateLayout)),
		Amount:         rent.Amount,
		Currency:       s.pricing.Get().Currency,
		CustomerEmail:  email,
		IdempotencyKey: fmt.Sprintf("rent-%s-%s", rent.ID, pricing.Format(rent.Amount)),
	})
	s.storeMetrics.ObserveGateway(s.gateway.Provider(), time.Since(start), err)
	if err != nil {
		s.log.Warn("checkout session failed",
			zap.String("rent_id", rent.ID.String()),
			zap.String("provider", s.gateway.Provider()),
			zap.Error(err),
		)
		return nil, err
	}
	if session == nil || strings.TrimSpace(session.Reference) == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	return session, nil
}

// compensate undoes an accepted reservation whose checkout never started.
// A rent returned or paid in the meantime already settled its stock and is
// left alone.
func (s *Service) compensate(ctx context.Context, rent *domain.Rent) {
	ctx = context.WithoutCancel(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteUnsettled(ctx, tx, rent.ID)
		if err != nil || !deleted {
			return err
		}
		return s.movieRepo.ReleaseStock(ctx, tx, rent.MovieID, rent.Quantity)
	})
	if err != nil {
		s.storeMetrics.IncTxError("compensate_rent", err)
		s.log.Error("failed to compensate rent reservation",
			zap.String("rent_id", rent.ID.String()),
			zap.Error(err),
		)
	}
}

// settledError explains why a conditional update on an unsettled rent
// matched nothing.
func (s *Service) settledError(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	current, err := s.repo.FindByID(ctx, tx, id)
	switch {
	case err != nil:
		return err
	case current == nil:
		return domain.ErrRentNotFound
	case current.Returned:
		return domain.ErrAlreadyReturned
	default:
		return paidRentRejection()
	}
}

func paidRentRejection() error {
	return pricing.Reject(&pricing.Rejection{
		Field:   pricing.FieldDueDate,
		Code:    pricing.DueDateInvalid,
		Message: "Due date of a paid rent cannot be changed.",
	})
}

func (s *Service) loadVisible(ctx context.Context, caller authdomain.Principal, id string) (*domain.Rent, error) {
	rentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rent, err := s.repo.FindByID(ctx, s.db, rentID)
	if err != nil {
		return nil, err
	}
	if rent == nil || (!caller.IsPrivileged() && rent.RentedBy != caller.UserID) {
		return nil, domain.ErrRentNotFound
	}
	return rent, nil
}

func (s *Service) loadMovie(ctx context.Context, id snowflake.ID) (*moviedomain.Movie, error) {
	movie, err := s.movieRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, moviedomain.ErrNotFound
	}
	return movie, nil
}

func (s *Service) policy() pricing.Policy {
	current := s.pricing.Get()
	return pricing.Policy{
		LateFeeMultiplier: current.LateFeeMultiplier,
		MaxRentalDays:     current.MaxRentalDays,
	}
}

func (s *Service) writeAudit(ctx context.Context, action string, rent *domain.Rent, metadata map[string]any) {
	targetID := rent.ID.String()
	if err := s.audit.AuditLog(ctx, "", nil, action, auditdomain.TargetRent, &targetID, metadata); err != nil {
		s.log.Warn("failed to record rent activity", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, rent *domain.Rent) {
	payload := map[string]any{
		"rent_id":      rent.ID.String(),
		"movie_id":     rent.MovieID.String(),
		"rented_by":    rent.RentedBy.String(),
		"quantity":     rent.Quantity,
		"amount":       pricing.Format(rent.Amount),
		"extra_charge": pricing.Format(rent.ExtraCharge),
		"status":       rent.Status,
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.Warn("failed to publish rent event", zap.String("type", eventType), zap.Error(err))
	}
}

func snapshot(movie *moviedomain.Movie) pricing.Snapshot {
	return pricing.Snapshot{
		Stock:       movie.Stock,
		RentalPrice: movie.RentalPrice,
		SalePrice:   movie.SalePrice,
	}
}

func toResponse(rent *domain.Rent) domain.Response {
	return domain.Response{
		ID:          rent.ID.String(),
		RentedBy:    rent.RentedBy.String(),
		MovieID:     rent.MovieID.String(),
		Quantity:    rent.Quantity,
		DueDate:     rent.DueDate.Format(domain.DueDateLayout),
		Amount:      pricing.Format(rent.Amount),
		Status:      rent.Status,
		Returned:    rent.Returned,
		ReturnedAt:  rent.ReturnedAt,
		ExtraCharge: pricing.Format(rent.ExtraCharge),
		Paid:        rent.Paid,
		PaidAt:      rent.PaidAt,
		PaymentURL:  rent.PaymentURL,
		CreatedAt:   rent.CreatedAt,
		UpdatedAt:   rent.UpdatedAt,
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
