// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"billing-service/internal/config"
	"billing-service/internal/db"
	"billing-service/internal/domain/payment"
	orphanHandler "billing-service/internal/handlers/orphan"
	paymentHandler "billing-service/internal/handlers/payment"
	pricingHandler "billing-service/internal/handlers/pricing"
	subscriptionHandler "billing-service/internal/handlers/subscription"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/jwt"
	"billing-service/internal/pkg/metrics"
	"billing-service/internal/pkg/storage"
	"billing-service/internal/pkg/throttle"
	"billing-service/internal/provider"
	"billing-service/internal/repository"
	"billing-service/internal/repository/memory"
	"billing-service/internal/repository/postgres"
	orphanUsecase "billing-service/internal/service/orphan"
	paymentUsecase "billing-service/internal/service/payment"
	pricingUsecase "billing-service/internal/service/pricing"
	subscriptionUsecase "billing-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New()}
}

// Start wires every dependency and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// ----- Logger -----
	logger, err := newLogger(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- Store -----
	store, closeStore, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, s.cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("redis connected", zap.String("addr", s.cfg.Redis.Addr))

	limiter := throttle.NewLimiter(redisClient, "billing")

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Document Storage -----
	docs, err := storage.New(ctx, s.cfg.OrphanDocs)
	if err != nil {
		return fmt.Errorf("failed to init document storage: %w", err)
	}

	// ----- Metrics -----
	m := metrics.New()

	// ----- Gateways -----
	registry := provider.NewRegistry(
		provider.NewPayoneerAdapter(s.cfg.Payoneer),
		provider.NewJazzCashAdapter(s.cfg.JazzCash),
		provider.NewEasyPaisaAdapter(s.cfg.EasyPaisa),
	)
	resolver := provider.NewResolver(payment.Gateway(s.cfg.DefaultPKRGateway))

	// ----- Services (Usecases) -----
	pricingService := pricingUsecase.NewPricingService(pricingUsecase.Rates{
		PKRPerUSD: s.cfg.PKRPerUSD,
		EURPerUSD: s.cfg.EURPerUSD,
	})
	subscriptionService := subscriptionUsecase.NewSubscriptionService(
		store,
		pricingService,
		m,
		subscriptionUsecase.Config{
			TrialDays:       s.cfg.TrialDays,
			MaxAICallsTrial: s.cfg.MaxAICallsTrial,
		},
		logger,
	)
	paymentService := paymentUsecase.NewPaymentService(
		store,
		registry,
		resolver,
		limiter,
		docs,
		m,
		paymentUsecase.Config{
			BaseURL:      s.cfg.BaseURL,
			LockTTL:      s.cfg.PaymentLockTTL,
			ReceiptTypes: s.cfg.ReceiptTypes,
		},
		logger,
	)
	reconciler := paymentUsecase.NewReconciler(store, registry, m, logger)
	orphanService := orphanUsecase.NewOrphanService(
		store,
		docs,
		limiter,
		m,
		orphanUsecase.Config{
			AllowedTypes:   s.cfg.OrphanDocTypes,
			SubmitCooldown: s.cfg.SubmissionCooldown,
		},
		logger,
	)

	// ----- Scheduler -----
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.cfg.ExpirySchedule, func() {
		n, err := subscriptionService.ExpireLapsed(ctx)
		if err != nil {
			logger.Error("failed to expire lapsed subscriptions", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired lapsed subscriptions", zap.Int64("count", n))
		}
	}); err != nil {
		return fmt.Errorf("invalid EXPIRY_SCHEDULE %q: %w", s.cfg.ExpirySchedule, err)
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	SetupRouter(s.engine, logger, &Handlers{
		PricingHandler:      pricingHandler.NewPricingHandler(pricingService),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService),
		PaymentHandler:      paymentHandler.NewPaymentHandler(paymentService),
		WebhookHandler:      paymentHandler.NewWebhookHandler(reconciler, logger),
		OrphanHandler:       orphanHandler.NewOrphanHandler(orphanService),
		AuthMiddleware:      middleware.NewAuthMiddleware(verifier),
		AccessGuard:         subscriptionService,
		Limiter:             limiter,
		Metrics:             m.Handler(),
		WebhookRateLimit:    s.cfg.WebhookRateLimit,
		WebhookRateWindow:   s.cfg.WebhookRateWindow,
	})

	// ----- Run -----
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduler did not stop in time")
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore connects the configured backend. The memory store is for local
// runs without Postgres.
func (s *Server) openStore(ctx context.Context) (repository.Store, func(), error) {
	if s.cfg.DBDriver == "memory" {
		s.logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := db.ConnectPostgres(ctx, s.cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	store := postgres.NewDB(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.logger.Info("postgres connected")

	return store, pool.Close, nil
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
