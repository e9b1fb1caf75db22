package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/config"
	"github.com/SergeiKhy/brainplus-backend/internal/handler"
	"github.com/SergeiKhy/brainplus-backend/internal/middleware"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	var logger *zap.Logger
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	healthChecks := make(map[string]handler.HealthCheckFunc)

	// PostgreSQL необязателен: без него события пишутся в лог, баллы хранятся в памяти
	var (
		attributionRepo repository.AttributionRepository
		pointsRepo      repository.PointsRepository
	)
	if cfg.DB.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := repository.Migrate(ctx, repository.DSN(cfg.DB))
		cancel()
		if err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}

		db, err := repository.NewPostgresDB(cfg.DB)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Connected to PostgreSQL")

		attributionRepo = repository.NewAttributionRepository(db)
		pointsRepo = repository.NewPointsRepository(db)
		healthChecks["postgres"] = db.Ping
	} else {
		logger.Warn("PostgreSQL не настроен: события атрибуции пишутся в лог, баллы хранятся в памяти")
		attributionRepo = repository.NewLogAttributionRepository(logger.Named("attribution"))
		pointsRepo = repository.NewMemoryPointsRepository()
	}

	// Хранилище редирект-леджера
	var ledgerRepo repository.LedgerRepository
	switch cfg.Ledger.Backend {
	case config.LedgerBackendRedis:
		if !cfg.Redis.Enabled() {
			logger.Fatal("LEDGER_BACKEND=redis требует REDIS_HOST")
		}
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		logger.Info("Connected to Redis")

		ledgerRepo = repository.NewRedisLedgerRepository(redis)
		healthChecks["redis"] = redis.Ping
	default:
		ledgerRepo = repository.NewMemoryLedgerRepository(cfg.Ledger.Capacity, nil)
	}

	// Сервисы
	scorer := service.NewRiskScorer(service.RiskScorerConfig{
		HighThreshold:     cfg.Risk.HighThreshold,
		VarianceThreshold: cfg.Risk.VarianceThreshold,
		MaxIdentities:     cfg.Risk.MaxIdentities,
		MaxEvents:         cfg.Risk.MaxEvents,
		SweepInterval:     cfg.Risk.SweepInterval,
	}, logger.Named("risk"))
	scorer.Start()
	defer scorer.Stop()

	ledger := service.NewRedirectLedger(ledgerRepo, service.RedirectLedgerConfig{
		Policy:      cfg.Ledger.Policy,
		TTL:         cfg.Ledger.TTL,
		TokenLength: cfg.Ledger.TokenLength,
		FallbackURL: cfg.Ledger.FallbackURL,
	}, logger.Named("ledger"))
	ledger.Start()
	defer ledger.Stop()
	logger.Info("Redirect ledger ready",
		zap.String("backend", cfg.Ledger.Backend),
		zap.String("policy", cfg.Ledger.Policy),
		zap.Duration("ttl", cfg.Ledger.TTL),
	)

	// Процессор атрибуции (Worker Pool)
	attribution := service.NewAttributionProcessor(attributionRepo, cfg.Attribution.Workers, cfg.Attribution.Buffer, logger.Named("attribution"))
	attribution.Start()
	defer attribution.Stop()

	points := service.NewPointsService(pointsRepo, cfg.Points.PerBatch, logger.Named("points"))
	catalog := service.NewDefaultDealCatalog()

	// Middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Scope:             "ip",
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	identityLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Scope:             "identity",
		RequestsPerSecond: cfg.RateLimit.IdentityRequestsPerSecond,
		BurstSize:         cfg.RateLimit.IdentityBurstSize,
		CleanupInterval:   time.Minute,
	})
	defer identityLimiter.Stop()

	apiKey := middleware.NewAPIKey(cfg.Auth.APIKeys)
	if apiKey.Enabled() {
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(handler.RouterDeps{
		Deals: handler.NewDealHandler(catalog, scorer, ledger, points, attribution, handler.DealHandlerConfig{
			BaseURL:     cfg.App.BaseURL,
			AffiliateID: cfg.Ledger.AffiliateID,
			ClickGating: cfg.Risk.ClickGating,
		}, logger),
		Redirects:           handler.NewRedirectHandler(ledger, attribution),
		Points:              handler.NewPointsHandler(points, logger),
		Health:              handler.NewHealthHandler(cfg.App.Env, healthChecks),
		RateLimiter:         rateLimiter,
		IdentityRateLimiter: identityLimiter,
		APIKey:              apiKey,
		CORSOrigins:         cfg.App.CORSOrigins,
		Logger:              logger,
	})

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
