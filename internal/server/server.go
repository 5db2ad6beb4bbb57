package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/moviestore/internal/audit"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/auth"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/authorization"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/events"
	"github.com/smallbiznis/moviestore/internal/movie"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
	"github.com/smallbiznis/moviestore/internal/notification"
	"github.com/smallbiznis/moviestore/internal/observability"
	obsmiddleware "github.com/smallbiznis/moviestore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	obstracing "github.com/smallbiznis/moviestore/internal/observability/tracing"
	"github.com/smallbiznis/moviestore/internal/payment"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/providers"
	"github.com/smallbiznis/moviestore/internal/ratelimit"
	"github.com/smallbiznis/moviestore/internal/rent"
	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
	"github.com/smallbiznis/moviestore/internal/sale"
	saledomain "github.com/smallbiznis/moviestore/internal/sale/domain"
	"github.com/smallbiznis/moviestore/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	auth.Module,
	storage.Module,
	providers.Module,
	notification.Module,
	movie.Module,
	payment.Module,
	rent.Module,
	sale.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authsvc    authdomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	movieSvc   moviedomain.Service
	rentSvc    rentdomain.Service
	saleSvc    saledomain.Service
	webhookSvc paymentdomain.WebhookService
	storage    storage.Storage
	txLimiter  *ratelimit.TransactionLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Authsvc    authdomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	MovieSvc   moviedomain.Service
	RentSvc    rentdomain.Service
	SaleSvc    saledomain.Service
	WebhookSvc paymentdomain.WebhookService
	Storage    storage.Storage                `optional:"true"`
	TxLimiter  *ratelimit.TransactionLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		authsvc:    p.Authsvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		movieSvc:   p.MovieSvc,
		rentSvc:    p.RentSvc,
		saleSvc:    p.SaleSvc,
		webhookSvc: p.WebhookSvc,
		storage:    p.Storage,
		txLimiter:  p.TxLimiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerMediaRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Movies --------
	api.GET("/movies", s.ListMovies)
	api.GET("/movies/:id", s.GetMovie)
	api.POST("/movies", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieCreate), s.CreateMovie)
	api.PUT("/movies/:id", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieUpdate), s.ReplaceMovie)
	api.PATCH("/movies/:id", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieUpdate), s.UpdateMovie)
	api.DELETE("/movies/:id", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieDelete), s.DeleteMovie)
	api.PATCH("/movies/:id/set_available", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieUpdate), s.SetMovieAvailable)
	api.PATCH("/movies/:id/set_unavailable", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieUpdate), s.SetMovieUnavailable)
	api.PATCH("/movies/:id/like", s.AuthRequired(), s.authorize(authorization.ObjectMovie, authorization.ActionMovieLike), s.LikeMovie)

	// -------- Transactions --------
	api.POST("/movies/:id/rent_it", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentCreate), s.TransactionRateLimit(), s.RentIt)
	api.PATCH("/movies/:id/buy_it", s.AuthRequired(), s.authorize(authorization.ObjectSale, authorization.ActionSaleCreate), s.TransactionRateLimit(), s.BuyIt)

	// -------- Rents --------
	api.GET("/rents", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentView), s.ListRents)
	api.POST("/rents", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentCreate), s.TransactionRateLimit(), s.CreateRent)
	api.GET("/rents/:id", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentView), s.GetRent)
	api.PATCH("/rents/:id", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentView), s.UpdateRent)
	api.PATCH("/rents/:id/return_movie", s.AuthRequired(), s.authorize(authorization.ObjectRent, authorization.ActionRentReturn), s.ReturnMovie)

	// -------- Sales --------
	api.GET("/sales", s.AuthRequired(), s.authorize(authorization.ObjectSale, authorization.ActionSaleView), s.ListSales)
	api.GET("/sales/:id", s.AuthRequired(), s.authorize(authorization.ObjectSale, authorization.ActionSaleView), s.GetSale)
	api.GET("/sales/:id/receipt", s.AuthRequired(), s.authorize(authorization.ObjectSale, authorization.ActionSaleView), s.GetSaleReceipt)

	// -------- Activity log --------
	api.GET("/logentrymovies", s.AuthRequired(), s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListMovieLog)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

// registerMediaRoutes serves locally stored images under /media.
func (s *Server) registerMediaRoutes() {
	local, ok := s.storage.(*storage.Local)
	if !ok || local == nil {
		return
	}
	s.engine.Static("/media", local.Root())
}
