package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/authorization"
	"github.com/smallbiznis/walletpay/internal/checkout"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/walletpay/internal/observability/logger"
	obstracing "github.com/smallbiznis/walletpay/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/walletpay/internal/order/domain"
	ordersvc "github.com/smallbiznis/walletpay/internal/order/service"
	"github.com/smallbiznis/walletpay/internal/ratelimit"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(
		func(s *checkout.Service) Checkout { return s },
		func(s *ordersvc.Service) Orders { return s },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// Checkout is the payment surface behind the HTTP routes.
type Checkout interface {
	Initiate(ctx context.Context, draftID snowflake.ID, opts checkout.InitiateOptions) (*checkout.InitiateResponse, error)
	GetStatus(ctx context.Context, reference string) (transaction.Snapshot, error)
	Cancel(ctx context.Context, reference string, opts checkout.CancelOptions) (bool, error)
	Capture(ctx context.Context, reference string, amount int64) (bool, error)
	Refund(ctx context.Context, reference string, amount int64) (bool, error)
	HandleCallback(ctx context.Context, raw []byte, authToken string) (*attemptdomain.Attempt, error)
	ReconcileReference(ctx context.Context, reference, trigger string) (*attemptdomain.Attempt, error)
	Restart(ctx context.Context, id snowflake.ID, actor string) (*attemptdomain.Attempt, error)
	ManualCancel(ctx context.Context, id snowflake.ID, actor, reason string) (*attemptdomain.Attempt, error)
	Detail(ctx context.Context, id snowflake.ID) (*attemptdomain.Detail, error)
	ListAttempts(ctx context.Context, req attemptsvc.ListRequest) (*attemptsvc.ListResponse, error)
}

type Orders interface {
	CreateDraft(ctx context.Context, req ordersvc.CreateDraftRequest) (*orderdomain.Draft, error)
	GetDraft(ctx context.Context, id snowflake.ID) (*orderdomain.Draft, error)
	GetOrderByReference(ctx context.Context, reference string) (*orderdomain.Order, error)
}

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	checkout Checkout
	orders   Orders
	authzSvc authorization.Service
	limiter  ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Checkout Checkout
	Orders   Orders
	AuthzSvc authorization.Service
	Limiter  ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http.server"),
		checkout: p.Checkout,
		orders:   p.Orders,
		authzSvc: p.AuthzSvc,
		limiter:  p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerCallbackRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.TokenRequired(s.cfg.APIToken))

	// -------- Drafts --------
	api.POST("/drafts", s.CreateDraft)
	api.GET("/drafts/:id", s.GetDraft)
	api.POST("/drafts/:id/payments", s.InitiatePayment)

	// -------- Payments --------
	api.GET("/payments/:reference", s.GetPayment)
	api.POST("/payments/:reference/cancel", s.CancelPayment)
	api.POST("/payments/:reference/capture", s.CapturePayment)
	api.POST("/payments/:reference/refund", s.RefundPayment)
}

func (s *Server) registerCallbackRoutes() {
	// The provider appends its own path to the configured callback prefix.
	callbacks := s.engine.Group("/callbacks", s.CallbackRateLimit())
	callbacks.POST("/*path", s.HandleCallback)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.TokenRequired(s.cfg.AdminAPIToken))
	admin.Use(s.OperatorRequired())

	admin.GET("/attempts", s.authorizeAction(authorization.ObjectAttempt, authorization.ActionAttemptView), s.ListAttempts)
	admin.GET("/attempts/:id", s.authorizeAction(authorization.ObjectAttempt, authorization.ActionAttemptView), s.GetAttemptDetail)
	admin.POST("/attempts/:id/restart", s.authorizeAction(authorization.ObjectAttempt, authorization.ActionAttemptRestart), s.RestartAttempt)
	admin.POST("/attempts/:id/cancel", s.authorizeAction(authorization.ObjectAttempt, authorization.ActionAttemptCancel), s.ManualCancelAttempt)
	admin.POST("/payments/:reference/reconcile", s.authorizeAction(authorization.ObjectAttempt, authorization.ActionAttemptSync), s.ReconcilePayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
