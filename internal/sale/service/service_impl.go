package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/events"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	"github.com/smallbiznis/moviestore/internal/pricing"
	"github.com/smallbiznis/moviestore/internal/providers/pdf"
	"github.com/smallbiznis/moviestore/internal/sale/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Config       config.Config
	Repo         domain.Repository
	MovieRepo    moviedomain.Repository
	Audit        auditdomain.Service
	Receipts     pdf.Provider
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
	storeName    string
	repo         domain.Repository
	movieRepo    moviedomain.Repository
	audit        auditdomain.Service
	receipts     pdf.Provider
	pricing      *config.PricingConfigHolder
	events       events.Publisher
	clock        clock.Clock
	obsMetrics   *obsmetrics.Metrics
	storeMetrics *obsmetrics.StoreMetrics
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
	storeName := strings.TrimSpace(p.Config.AppName)
	if storeName == "" {
		storeName = "moviestore"
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("sale.service"),
		genID:        p.GenID,
		storeName:    storeName,
		repo:         p.Repo,
		movieRepo:    p.MovieRepo,
		audit:        p.Audit,
		receipts:     p.Receipts,
		pricing:      holder,
		events:       pub,
		clock:        clk,
		obsMetrics:   p.ObsMetrics,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) Create(ctx context.Context, caller authdomain.Principal, req domain.CreateRequest) (*domain.Response, error) {
	if caller.UserID == 0 {
		return nil, domain.ErrForbidden
	}
	movieID, err := snowflake.ParseString(strings.TrimSpace(req.MovieID))
	if err != nil || movieID <= 0 {
		return nil, domain.ErrInvalidMovie
	}

	movie, err := s.movieRepo.FindByID(ctx, s.db, movieID)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, moviedomain.ErrNotFound
	}
	if !movie.Availability {
		return nil, domain.ErrMovieUnavailable
	}

	amount, rej := pricing.ValidateAndPriceSale(pricing.Snapshot{
		Stock:       movie.Stock,
		RentalPrice: movie.RentalPrice,
		SalePrice:   movie.SalePrice,
	}, req.Quantity)
	if rej != nil {
		return nil, pricing.Reject(rej)
	}

	now := s.clock.Now().UTC()
	sale := &domain.Sale{
		ID:        s.genID.Generate(),
		MovieID:   movie.ID,
		UserID:    caller.UserID,
		Quantity:  req.Quantity,
		UnitPrice: movie.SalePrice,
		Amount:    amount.Round(2),
		Date:      now,
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved, err := s.movieRepo.ReserveStock(ctx, tx, movie.ID, req.Quantity)
		if err != nil {
			return err
		}
		if !reserved {
			s.storeMetrics.IncStockConflict(obsmetrics.StockResourceSale)
			return pricing.Reject(&pricing.Rejection{
				Field:   pricing.FieldQuantity,
				Code:    pricing.QuantityUnavailable,
				Message: pricing.MsgQuantityUnavailable,
			})
		}
		return s.repo.Insert(ctx, tx, sale)
	})
	if err != nil {
		var rejections pricing.Rejections
		if !errors.As(err, &rejections) {
			s.storeMetrics.IncTxError("create_sale", err)
		}
		return nil, err
	}

	targetID := sale.ID.String()
	if err := s.audit.AuditLog(ctx, "", nil, "sale.create", auditdomain.TargetSale, &targetID, map[string]any{
		"title":    movie.Title,
		"quantity": sale.Quantity,
		"amount":   pricing.Format(sale.Amount),
	}); err != nil {
		s.log.Warn("failed to record sale activity", zap.Error(err))
	}
	if err := s.events.Publish(ctx, events.SaleCreated, map[string]any{
		"sale_id":  targetID,
		"movie_id": movie.ID.String(),
		"user_id":  caller.UserID.String(),
		"quantity": sale.Quantity,
		"amount":   pricing.Format(sale.Amount),
	}); err != nil {
		s.log.Warn("failed to publish sale event", zap.Error(err))
	}
	s.obsMetrics.RecordSaleCreated(ctx)

	resp := toResponse(&domain.SaleView{Sale: *sale, Username: caller.Username, Email: caller.Email, MovieTitle: movie.Title})
	return &resp, nil
}

func (s *Service) List(ctx context.Context, caller authdomain.Principal, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{}
	if raw := strings.TrimSpace(req.MovieID); raw != "" {
		movieID, err := snowflake.ParseString(raw)
		if err != nil || movieID <= 0 {
			return nil, domain.ErrInvalidMovie
		}
		filter.MovieID = &movieID
	}
	if !caller.IsPrivileged() {
		owner := caller.UserID
		filter.UserID = &owner
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
	view, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(view)
	return &resp, nil
}

func (s *Service) Receipt(ctx context.Context, caller authdomain.Principal, id string) (*domain.Receipt, error) {
	view, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	body, err := s.receipts.GenerateReceipt(ctx, pdf.ReceiptData{
		StoreName:     s.storeName,
		ReceiptNumber: view.ID.String(),
		SaleDate:      view.Date.UTC().Format("02-01-2006 15:04"),
		CustomerName:  view.Username,
		CustomerEmail: view.Email,
		Currency:      strings.ToUpper(s.pricing.Get().Currency),
		Items: []pdf.ReceiptItem{{
			Description: view.MovieTitle,
			Qty:         view.Quantity,
			UnitPrice:   pricing.Format(view.UnitPrice),
			Amount:      pricing.Format(view.Amount),
		}},
		Total: pricing.Format(view.Amount),
	})
	if err != nil {
		return nil, err
	}
	return &domain.Receipt{
		Filename: fmt.Sprintf("receipt-%s.pdf", view.ID),
		Body:     body,
	}, nil
}

func (s *Service) loadVisible(ctx context.Context, caller authdomain.Principal, id string) (*domain.SaleView, error) {
	saleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || saleID <= 0 {
		return nil, domain.ErrInvalidID
	}
	view, err := s.repo.FindByID(ctx, s.db, saleID)
	if err != nil {
		return nil, err
	}
	if view == nil || (!caller.IsPrivileged() && view.UserID != caller.UserID) {
		return nil, domain.ErrSaleNotFound
	}
	return view, nil
}

func toResponse(view *domain.SaleView) domain.Response {
	return domain.Response{
		ID:        view.ID.String(),
		MovieID:   view.MovieID.String(),
		UserID:    view.UserID.String(),
		BuyedBy:   view.Username,
		Title:     view.MovieTitle,
		Quantity:  view.Quantity,
		UnitPrice: pricing.Format(view.UnitPrice),
		Amount:    pricing.Format(view.Amount),
		Date:      view.Date,
		CreatedAt: view.CreatedAt,
	}
}
